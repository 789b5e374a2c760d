package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"shoplist/internal/itemstore"
	"shoplist/internal/protocol"
)

var (
	ErrNotRendered = errors.New("item is not in the list")
	ErrEmptyTitle  = errors.New("title is required")
)

// ToggleDone flips an item on behalf of the user: the card changes first,
// then the backend is told. A failed request is logged and returned; the
// local flip stays (last writer wins).
func (r *Reconciler) ToggleDone(ctx context.Context, id protocol.ItemID) error {
	r.mu.Lock()
	card, ok := r.board.Toggle(id)
	if ok {
		r.noteToggleLocked(card)
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRendered, id)
	}
	r.view.ToggleDone(card)

	if r.recorder != nil {
		r.recorder.Record(card.Item, card.Done)
	}
	if err := r.store.SetDone(ctx, id, card.Done); err != nil {
		r.logger.Warn("error while updating done flag", "item_id", id, "status", itemstore.StatusOf(err), "err", err)
		return err
	}
	return nil
}

// SetDone brings an item to the wanted state, toggling only when it differs.
func (r *Reconciler) SetDone(ctx context.Context, id protocol.ItemID, done bool) error {
	card, ok := r.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRendered, id)
	}
	if card.Done == done {
		return nil
	}
	return r.ToggleDone(ctx, id)
}

// Create posts a new item and re-reads the list; new items never get
// inserted from local data alone.
func (r *Reconciler) Create(ctx context.Context, data itemstore.ItemData) (itemstore.Item, error) {
	data, err := normalizeData(data)
	if err != nil {
		return itemstore.Item{}, err
	}
	created, err := r.store.CreateItem(ctx, data)
	if err != nil {
		r.logger.Warn("error while creating item", "status", itemstore.StatusOf(err), "err", err)
		return itemstore.Item{}, err
	}
	refreshErr := r.FullRefresh(ctx)
	if tagErr := r.refreshTagsIfNew(ctx, data.Tags); tagErr != nil {
		refreshErr = errors.Join(refreshErr, tagErr)
	}
	return created, refreshErr
}

// Update edits title and tags. The card shows the edit right away.
func (r *Reconciler) Update(ctx context.Context, id protocol.ItemID, data itemstore.ItemData) error {
	data, err := normalizeData(data)
	if err != nil {
		return err
	}
	r.mu.Lock()
	_, ok := r.board.Update(id, data)
	cards := r.board.Snapshot()
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRendered, id)
	}
	r.view.Render(cards)

	if _, err := r.store.UpdateItem(ctx, id, data); err != nil {
		r.logger.Warn("error while updating item", "item_id", id, "status", itemstore.StatusOf(err), "err", err)
		return err
	}
	return r.refreshTagsIfNew(ctx, data.Tags)
}

// Delete removes the card and the item.
func (r *Reconciler) Delete(ctx context.Context, id protocol.ItemID) error {
	r.mu.Lock()
	removed := r.board.Remove(id)
	cards := r.board.Snapshot()
	r.mu.Unlock()
	if removed {
		r.view.Render(cards)
	}
	if err := r.store.DeleteItem(ctx, id); err != nil {
		r.logger.Warn("error while deleting item", "item_id", id, "status", itemstore.StatusOf(err), "err", err)
		return err
	}
	return nil
}

// DeleteAllDone deletes every done item concurrently, waits for all requests
// and then refreshes. It is best effort: individual failures do not stop the
// others and are reported together. It returns how many deletes were issued.
func (r *Reconciler) DeleteAllDone(ctx context.Context) (int, error) {
	r.mu.Lock()
	ids := r.board.DoneIDs()
	r.mu.Unlock()

	var deleteErr error
	if len(ids) > 0 {
		deleteErr = r.store.DeleteItems(ctx, ids)
		if deleteErr != nil {
			r.logger.Warn("some deletes failed", "count", len(ids), "err", deleteErr)
		}
	}
	refreshErr := r.FullRefresh(ctx)
	return len(ids), errors.Join(deleteErr, refreshErr)
}

// ToggleFilter flips one tag filter (or NoTagsFilter) and re-renders.
func (r *Reconciler) ToggleFilter(tag string) bool {
	r.mu.Lock()
	active := r.board.ToggleFilter(tag)
	cards := r.board.Snapshot()
	r.mu.Unlock()
	r.view.Render(cards)
	return active
}

func (r *Reconciler) refreshTagsIfNew(ctx context.Context, tags []string) error {
	known := map[string]struct{}{}
	for _, t := range r.Tags() {
		known[t] = struct{}{}
	}
	for _, t := range tags {
		if _, ok := known[t]; !ok {
			return r.RefreshTags(ctx)
		}
	}
	return nil
}

func normalizeData(data itemstore.ItemData) (itemstore.ItemData, error) {
	data.Title = strings.TrimSpace(data.Title)
	if data.Title == "" {
		return itemstore.ItemData{}, ErrEmptyTitle
	}
	data.Tags = itemstore.NormalizeTags(data.Tags)
	return data, nil
}
