package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"shoplist/internal/command"
	"shoplist/internal/config"
	"shoplist/internal/db"
	"shoplist/internal/journal"
	"shoplist/internal/lifecycle"
	"shoplist/internal/logging"
	"shoplist/internal/tui"
)

var version = "dev"

func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := command.BuildApp(command.Deps{
		LoadConfig: config.LoadDefault,
		RunUI:      runUI,
		RunWatch: func(ctx context.Context, cfg config.Config) error {
			return runWatch(ctx, os.Stdout, cfg)
		},
		OpenShop:     openShop,
		ListHistory:  listHistory,
		RunMigrateUp: runMigrateUp,
	})
	app.Version = version

	if err := app.RunContext(rootCtx, os.Args); err != nil {
		logging.NewLogger(logging.Options{Level: "error", Writer: os.Stderr, Component: "shoplist"}).Error("shoplist failed", "err", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	return logging.NewLogger(logging.Options{Level: cfg.LogLevel, Writer: w, Component: "shoplist"})
}

func openShop(_ context.Context, cfg config.Config) (command.Shop, func() error, error) {
	rt, err := newRuntime(cfg, newLogger(cfg, os.Stderr), nil)
	if err != nil {
		return nil, nil, err
	}
	return rt.reconciler, rt.Close, nil
}

func runUI(ctx context.Context, cfg config.Config) error {
	logFile, err := os.OpenFile(cfg.LogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	defer func() { _ = logFile.Close() }()
	logger := newLogger(cfg, logFile)

	view := tui.NewProgramView()
	rt, err := newRuntime(cfg, logger, view)
	if err != nil {
		return err
	}
	mgr, err := rt.newBrokerManager(view.SetStatus)
	if err != nil {
		_ = rt.Close()
		return err
	}

	lc := lifecycle.NewManager(logger.With("module", "lifecycle"))
	lc.AddRun("broker", mgr.Run)
	lc.AddRun("ui", func(runCtx context.Context) error {
		return tui.Run(runCtx, tui.Options{
			Actions:    rt.reconciler,
			View:       view,
			Deployment: cfg.Deployment,
			Logger:     logger.With("module", "tui"),
		})
	})
	lc.AddShutdown("runtime", func(context.Context) error {
		return rt.Close()
	})
	return lc.StartAndWait(ctx)
}

func runWatch(ctx context.Context, out io.Writer, cfg config.Config) error {
	logger := newLogger(cfg, os.Stderr)
	view := newWatchView(out)
	rt, err := newRuntime(cfg, logger, view)
	if err != nil {
		return err
	}
	mgr, err := rt.newBrokerManager(view.SetStatus)
	if err != nil {
		_ = rt.Close()
		return err
	}

	lc := lifecycle.NewManager(logger.With("module", "lifecycle"))
	lc.AddRun("broker", mgr.Run)
	lc.AddShutdown("runtime", func(context.Context) error {
		return rt.Close()
	})
	return lc.StartAndWait(ctx)
}

func listHistory(_ context.Context, cfg config.Config, limit int) ([]journal.Entry, error) {
	gdb, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close(gdb) }()
	st, err := journal.NewStore(gdb)
	if err != nil {
		return nil, err
	}
	return st.List(limit)
}

func runMigrateUp(_ context.Context, cfg config.Config) error {
	gdb, err := db.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	return db.Close(gdb)
}
