package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"shoplist/internal/board"
	"shoplist/internal/config"
	"shoplist/internal/itemstore"
	"shoplist/internal/journal"
	"shoplist/internal/protocol"
	"shoplist/internal/render"
)

// Shop is what the one-shot item commands drive.
type Shop interface {
	FullRefresh(ctx context.Context) error
	RefreshTags(ctx context.Context) error
	Snapshot() []board.Card
	Tags() []string
	Lookup(id protocol.ItemID) (board.Card, bool)
	ToggleFilter(tag string) bool
	Create(ctx context.Context, data itemstore.ItemData) (itemstore.Item, error)
	Update(ctx context.Context, id protocol.ItemID, data itemstore.ItemData) error
	SetDone(ctx context.Context, id protocol.ItemID, done bool) error
	Delete(ctx context.Context, id protocol.ItemID) error
	DeleteAllDone(ctx context.Context) (int, error)
}

type Deps struct {
	LoadConfig   func() (config.Config, error)
	RunUI        func(context.Context, config.Config) error
	RunWatch     func(context.Context, config.Config) error
	OpenShop     func(context.Context, config.Config) (Shop, func() error, error)
	ListHistory  func(ctx context.Context, cfg config.Config, limit int) ([]journal.Entry, error)
	RunMigrateUp func(context.Context, config.Config) error
	Stdout       io.Writer
}

var errMissingID = errors.New("item id is required")

func BuildApp(deps Deps) *cli.App {
	return &cli.App{
		Name:  "shoplist",
		Usage: "shared shopping list kept in sync across clients",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "deployment", Aliases: []string{"d"}, Usage: "list deployment (url root segment)"},
		},
		Action: func(ctx *cli.Context) error {
			return withConfig(ctx, deps, func(cfg config.Config) error {
				return runUI(ctx.Context, deps, cfg)
			})
		},
		Commands: []*cli.Command{
			{
				Name:  "ui",
				Usage: "open the interactive list",
				Action: func(ctx *cli.Context) error {
					return withConfig(ctx, deps, func(cfg config.Config) error {
						return runUI(ctx.Context, deps, cfg)
					})
				},
			},
			{
				Name:  "watch",
				Usage: "stay connected and print the list after every change",
				Action: func(ctx *cli.Context) error {
					return withConfig(ctx, deps, func(cfg config.Config) error {
						if deps.RunWatch == nil {
							return errors.New("watch runner is not configured")
						}
						return deps.RunWatch(ctx.Context, cfg)
					})
				},
			},
			{
				Name:  "list",
				Usage: "print the items",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "tag", Aliases: []string{"t"}, Usage: "only items carrying this tag"},
					&cli.BoolFlag{Name: "untagged", Usage: "include items without tags in a tag filter"},
				},
				Action: func(ctx *cli.Context) error {
					return withShop(ctx, deps, func(shop Shop) error {
						if err := shop.FullRefresh(ctx.Context); err != nil {
							return err
						}
						for _, tag := range ctx.StringSlice("tag") {
							shop.ToggleFilter(tag)
						}
						if ctx.Bool("untagged") {
							shop.ToggleFilter(board.NoTagsFilter)
						}
						return render.Cards(stdout(deps), shop.Snapshot(), 0)
					})
				},
			},
			{
				Name:  "tags",
				Usage: "print the known tags",
				Action: func(ctx *cli.Context) error {
					return withShop(ctx, deps, func(shop Shop) error {
						if err := shop.RefreshTags(ctx.Context); err != nil {
							return err
						}
						return render.Tags(stdout(deps), shop.Tags())
					})
				},
			},
			{
				Name:      "add",
				Usage:     "add an item",
				ArgsUsage: "TITLE",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "tag", Aliases: []string{"t"}},
				},
				Action: func(ctx *cli.Context) error {
					title := strings.Join(ctx.Args().Slice(), " ")
					return withShop(ctx, deps, func(shop Shop) error {
						created, err := shop.Create(ctx.Context, itemstore.ItemData{Title: title, Tags: ctx.StringSlice("tag")})
						if err != nil {
							return err
						}
						_, err = fmt.Fprintln(stdout(deps), created.ID)
						return err
					})
				},
			},
			{
				Name:      "edit",
				Usage:     "change title or tags of an item",
				ArgsUsage: "ID",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title"},
					&cli.StringSliceFlag{Name: "tag", Aliases: []string{"t"}, Usage: "replaces all tags"},
					&cli.BoolFlag{Name: "clear-tags"},
				},
				Action: func(ctx *cli.Context) error {
					id, err := itemArg(ctx)
					if err != nil {
						return err
					}
					return withShop(ctx, deps, func(shop Shop) error {
						if err := shop.FullRefresh(ctx.Context); err != nil {
							return err
						}
						card, ok := shop.Lookup(id)
						if !ok {
							return fmt.Errorf("item %s not found", id)
						}
						data := itemstore.ItemData{Title: card.Item.Title, Tags: card.Item.Tags}
						if ctx.IsSet("title") {
							data.Title = ctx.String("title")
						}
						if ctx.IsSet("tag") {
							data.Tags = ctx.StringSlice("tag")
						}
						if ctx.Bool("clear-tags") {
							data.Tags = []string{}
						}
						return shop.Update(ctx.Context, id, data)
					})
				},
			},
			doneCommand("done", "cross an item off", true, deps),
			doneCommand("undone", "put an item back on the list", false, deps),
			{
				Name:      "rm",
				Usage:     "delete an item",
				ArgsUsage: "ID",
				Action: func(ctx *cli.Context) error {
					id, err := itemArg(ctx)
					if err != nil {
						return err
					}
					return withShop(ctx, deps, func(shop Shop) error {
						return shop.Delete(ctx.Context, id)
					})
				},
			},
			{
				Name:  "clear-done",
				Usage: "delete every crossed-off item",
				Action: func(ctx *cli.Context) error {
					return withShop(ctx, deps, func(shop Shop) error {
						if err := shop.FullRefresh(ctx.Context); err != nil {
							return err
						}
						n, err := shop.DeleteAllDone(ctx.Context)
						if _, werr := fmt.Fprintf(stdout(deps), "deleted %d items\n", n); werr != nil {
							err = errors.Join(err, werr)
						}
						return err
					})
				},
			},
			{
				Name:  "history",
				Usage: "print the crossed/uncrossed actions made on this machine",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 20},
				},
				Action: func(ctx *cli.Context) error {
					return withConfig(ctx, deps, func(cfg config.Config) error {
						if deps.ListHistory == nil {
							return errors.New("history is not configured")
						}
						entries, err := deps.ListHistory(ctx.Context, cfg, ctx.Int("limit"))
						if err != nil {
							return err
						}
						return render.History(stdout(deps), entries)
					})
				},
			},
			{
				Name:  "migrate",
				Usage: "run database migration",
				Subcommands: []*cli.Command{
					{
						Name:  "up",
						Usage: "apply pending migrations",
						Action: func(ctx *cli.Context) error {
							return withConfig(ctx, deps, func(cfg config.Config) error {
								if deps.RunMigrateUp == nil {
									return errors.New("migrate up runner is not configured")
								}
								return deps.RunMigrateUp(ctx.Context, cfg)
							})
						},
					},
				},
			},
		},
	}
}

func doneCommand(name, usage string, done bool, deps Deps) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "ID",
		Action: func(ctx *cli.Context) error {
			id, err := itemArg(ctx)
			if err != nil {
				return err
			}
			return withShop(ctx, deps, func(shop Shop) error {
				if err := shop.FullRefresh(ctx.Context); err != nil {
					return err
				}
				return shop.SetDone(ctx.Context, id, done)
			})
		},
	}
}

func itemArg(ctx *cli.Context) (protocol.ItemID, error) {
	id := strings.TrimSpace(ctx.Args().First())
	if id == "" {
		return "", errMissingID
	}
	return protocol.ItemID(id), nil
}

func loadConfig(ctx *cli.Context, deps Deps) (config.Config, error) {
	load := deps.LoadConfig
	if load == nil {
		load = config.LoadDefault
	}
	cfg, err := load()
	if err != nil {
		return config.Config{}, err
	}
	if d := strings.TrimSpace(ctx.String("deployment")); d != "" {
		cfg.Deployment = d
	}
	return cfg, nil
}

func withConfig(ctx *cli.Context, deps Deps, fn func(config.Config) error) error {
	cfg, err := loadConfig(ctx, deps)
	if err != nil {
		return err
	}
	return fn(cfg)
}

func withShop(ctx *cli.Context, deps Deps, fn func(Shop) error) error {
	return withConfig(ctx, deps, func(cfg config.Config) error {
		if deps.OpenShop == nil {
			return errors.New("item store is not configured")
		}
		shop, closeShop, err := deps.OpenShop(ctx.Context, cfg)
		if err != nil {
			return err
		}
		err = fn(shop)
		if closeShop != nil {
			err = errors.Join(err, closeShop())
		}
		return err
	})
}

func runUI(ctx context.Context, deps Deps, cfg config.Config) error {
	if deps.RunUI == nil {
		return errors.New("ui runner is not configured")
	}
	return deps.RunUI(ctx, cfg)
}

func stdout(deps Deps) io.Writer {
	if deps.Stdout != nil {
		return deps.Stdout
	}
	return os.Stdout
}
