package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"shoplist/internal/board"
	"shoplist/internal/itemstore"
	"shoplist/internal/logging"
	"shoplist/internal/protocol"
)

// Store is the backend the reconciler reads authoritative state from.
type Store interface {
	ListItems(ctx context.Context) ([]itemstore.Item, error)
	ListTags(ctx context.Context) ([]string, error)
	CreateItem(ctx context.Context, data itemstore.ItemData) (itemstore.Item, error)
	UpdateItem(ctx context.Context, id protocol.ItemID, data itemstore.ItemData) (itemstore.Item, error)
	SetDone(ctx context.Context, id protocol.ItemID, done bool) error
	DeleteItem(ctx context.Context, id protocol.ItemID) error
	DeleteItems(ctx context.Context, ids []protocol.ItemID) error
}

// Recorder receives every done toggle the user makes.
type Recorder interface {
	Record(item itemstore.Item, done bool)
}

type Options struct {
	Store    Store
	View     View
	Recorder Recorder
	Logger   *slog.Logger
}

// Reconciler owns the rendered list and keeps it in line with the backend.
// All board mutations happen under mu; network calls never hold it.
type Reconciler struct {
	store    Store
	view     View
	recorder Recorder
	logger   *slog.Logger

	mu         sync.Mutex
	board      *board.Board
	issuedSeq  uint64
	appliedSeq uint64
	// toggled remembers done flips by the refresh seq current when they
	// happened, so a refresh fetched before the flip does not undo it.
	toggled map[protocol.ItemID]toggleMark
}

type toggleMark struct {
	done bool
	seq  uint64
}

func New(opts Options) (*Reconciler, error) {
	if opts.Store == nil {
		return nil, errors.New("item store is required")
	}
	view := opts.View
	if view == nil {
		view = NopView{}
	}
	return &Reconciler{
		store:    opts.Store,
		view:     view,
		recorder: opts.Recorder,
		logger:   logging.OrDiscard(opts.Logger),
		board:    board.New(),
		toggled:  make(map[protocol.ItemID]toggleMark),
	}, nil
}

// ToggleReconcile applies a done-flag change that already happened on the
// backend. Unknown ids and matching flags are no-ops; no request is issued.
func (r *Reconciler) ToggleReconcile(_ context.Context, n protocol.ChangeNotification) {
	r.mu.Lock()
	card, ok := r.board.Lookup(n.ID)
	if !ok {
		r.mu.Unlock()
		r.logger.Debug("change notification for item not rendered", "item_id", n.ID)
		return
	}
	if card.Done == n.Status {
		r.mu.Unlock()
		return
	}
	card, _ = r.board.Toggle(n.ID)
	r.noteToggleLocked(card)
	r.mu.Unlock()

	r.view.ToggleDone(card)
}

// FullRefresh re-fetches every item, replaces the rendered list, re-applies
// the active filters and restores the scroll position. When refreshes
// overlap, a response older than one already applied is dropped.
func (r *Reconciler) FullRefresh(ctx context.Context) error {
	r.mu.Lock()
	r.issuedSeq++
	seq := r.issuedSeq
	r.mu.Unlock()

	pos := r.view.ScrollPosition()
	items, err := r.store.ListItems(ctx)
	if err != nil {
		r.logger.Warn("error while fetching items", "status", itemstore.StatusOf(err), "err", err)
		return err
	}

	r.mu.Lock()
	if seq < r.appliedSeq {
		r.mu.Unlock()
		r.logger.Debug("dropping stale refresh", "seq", seq, "applied", r.appliedSeq)
		return nil
	}
	r.appliedSeq = seq
	r.board.Replace(items)
	r.reapplyTogglesLocked(seq)
	cards := r.board.Snapshot()
	r.mu.Unlock()

	r.view.Render(cards)
	r.view.ScrollTo(pos)
	return nil
}

func (r *Reconciler) noteToggleLocked(card board.Card) {
	r.toggled[card.ID()] = toggleMark{done: card.Done, seq: r.issuedSeq}
}

// reapplyTogglesLocked restores flips made after refresh seq was issued.
// Flips older than that are already part of the fetched list.
func (r *Reconciler) reapplyTogglesLocked(seq uint64) {
	for id, m := range r.toggled {
		if m.seq < seq {
			delete(r.toggled, id)
			continue
		}
		if c, ok := r.board.Lookup(id); ok && c.Done != m.done {
			r.board.Toggle(id)
		}
	}
}

// RefreshTags reloads the tag labels used for filter chips and completion.
func (r *Reconciler) RefreshTags(ctx context.Context) error {
	tags, err := r.store.ListTags(ctx)
	if err != nil {
		r.logger.Warn("error while fetching tags", "status", itemstore.StatusOf(err), "err", err)
		return err
	}
	r.mu.Lock()
	r.board.SetTags(tags)
	cards := r.board.Snapshot()
	r.mu.Unlock()
	r.view.Render(cards)
	return nil
}

func (r *Reconciler) Snapshot() []board.Card {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.board.Snapshot()
}

func (r *Reconciler) Visible() []board.Card {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.board.Visible()
}

func (r *Reconciler) Lookup(id protocol.ItemID) (board.Card, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.board.Lookup(id)
}

func (r *Reconciler) Tags() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.board.Tags()
}

func (r *Reconciler) Filters() board.FilterSet {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.board.Filters()
}
