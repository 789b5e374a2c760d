package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	dbmodel "shoplist/internal/db"
	"shoplist/internal/itemstore"
	"shoplist/internal/journal"
	"shoplist/internal/logging"
)

const defaultTimeout = 10 * time.Second

type Sender interface {
	Collect(ctx context.Context, rec itemstore.CollectRecord) error
}

type Journal interface {
	Append(e journal.Entry) (int64, error)
	MarkStatus(id int64, status string, cause error) error
}

type Options struct {
	Sender     Sender
	Journal    Journal
	Enabled    bool
	Deployment string
	UserAgent  string
	UserKey    string
	Timeout    time.Duration
	Logger     *slog.Logger
}

// Collector reports crossed/uncrossed actions. Reporting is fire and forget:
// Record returns immediately and failures are only logged and journaled.
type Collector struct {
	sender     Sender
	journal    Journal
	enabled    bool
	deployment string
	userAgent  string
	userKey    string
	timeout    time.Duration
	logger     *slog.Logger

	wg sync.WaitGroup
}

func New(opts Options) *Collector {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Collector{
		sender:     opts.Sender,
		journal:    opts.Journal,
		enabled:    opts.Enabled && opts.Sender != nil,
		deployment: opts.Deployment,
		userAgent:  opts.UserAgent,
		userKey:    opts.UserKey,
		timeout:    timeout,
		logger:     logging.OrDiscard(opts.Logger),
	}
}

func (c *Collector) Enabled() bool {
	return c != nil && c.enabled
}

// Record queues one action report. Location is never collected.
func (c *Collector) Record(item itemstore.Item, done bool) {
	if !c.Enabled() {
		return
	}
	rec := itemstore.CollectRecord{
		ActionType: itemstore.ActionTypeFor(done),
		Name:       item.Title,
		ItemID:     item.ID,
		UserAgent:  c.userAgent,
		UserKey:    c.userKey,
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.send(rec)
	}()
}

// Wait blocks until every queued report finished.
func (c *Collector) Wait() {
	if c == nil {
		return
	}
	c.wg.Wait()
}

func (c *Collector) send(rec itemstore.CollectRecord) {
	var entryID int64
	if c.journal != nil {
		id, err := c.journal.Append(journal.Entry{
			Deployment: c.deployment,
			ItemID:     string(rec.ItemID),
			Name:       rec.Name,
			ActionType: rec.ActionType,
		})
		if err != nil {
			c.logger.Warn("journal append failed", "item_id", rec.ItemID, "err", err)
		} else {
			entryID = id
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	err := c.sender.Collect(ctx, rec)
	status := dbmodel.JournalSent
	if err != nil {
		status = dbmodel.JournalFailed
		c.logger.Warn("collect failed", "item_id", rec.ItemID, "action_type", rec.ActionType, "status", itemstore.StatusOf(err), "err", err)
	}
	if entryID == 0 {
		return
	}
	if markErr := c.journal.MarkStatus(entryID, status, err); markErr != nil {
		c.logger.Warn("journal update failed", "entry_id", entryID, "err", markErr)
	}
}
