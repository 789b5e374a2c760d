package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"

	"shoplist/internal/board"
	"shoplist/internal/itemstore"
	"shoplist/internal/protocol"
	"shoplist/internal/router"
)

type fakeStore struct {
	mu        sync.Mutex
	items     []itemstore.Item
	tags      []string
	listCalls int
	calls     []string
	setDone   map[protocol.ItemID]bool
	failSet   error
	listHook  func(call int) ([]itemstore.Item, error)
	nextID    int
}

func newFakeStore(items ...itemstore.Item) *fakeStore {
	return &fakeStore{items: items, setDone: map[protocol.ItemID]bool{}}
}

func (s *fakeStore) record(call string) {
	s.calls = append(s.calls, call)
}

func (s *fakeStore) networkCalls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *fakeStore) ListItems(context.Context) ([]itemstore.Item, error) {
	s.mu.Lock()
	s.listCalls++
	call := s.listCalls
	s.record("list")
	hook := s.listHook
	out := append([]itemstore.Item(nil), s.items...)
	s.mu.Unlock()
	if hook != nil {
		return hook(call)
	}
	return out, nil
}

func (s *fakeStore) ListTags(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("tags")
	return append([]string(nil), s.tags...), nil
}

func (s *fakeStore) CreateItem(_ context.Context, data itemstore.ItemData) (itemstore.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("create")
	s.nextID++
	it := itemstore.Item{ID: protocol.ItemID("new-" + string(rune('0'+s.nextID))), Title: data.Title, Tags: data.Tags}
	s.items = append([]itemstore.Item{it}, s.items...)
	return it, nil
}

func (s *fakeStore) UpdateItem(_ context.Context, id protocol.ItemID, data itemstore.ItemData) (itemstore.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("update")
	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i].Title = data.Title
			s.items[i].Tags = data.Tags
			return s.items[i], nil
		}
	}
	return itemstore.Item{}, &itemstore.FetchError{Op: "update item", Status: 404, StatusText: "Not Found"}
}

func (s *fakeStore) SetDone(_ context.Context, id protocol.ItemID, done bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("done")
	if s.failSet != nil {
		return s.failSet
	}
	s.setDone[id] = done
	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i].Done = done
		}
	}
	return nil
}

func (s *fakeStore) DeleteItem(_ context.Context, id protocol.ItemID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("delete")
	for i := range s.items {
		if s.items[i].ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *fakeStore) DeleteItems(ctx context.Context, ids []protocol.ItemID) error {
	var errs []error
	for _, id := range ids {
		errs = append(errs, s.DeleteItem(ctx, id))
	}
	return errors.Join(errs...)
}

type fakeView struct {
	mu       sync.Mutex
	renders  int
	toggles  []board.Card
	pos      board.Position
	restored []board.Position
}

func (v *fakeView) Render([]board.Card) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.renders++
}

func (v *fakeView) ToggleDone(card board.Card) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.toggles = append(v.toggles, card)
}

func (v *fakeView) ScrollPosition() board.Position {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pos
}

func (v *fakeView) ScrollTo(pos board.Position) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pos = pos
	v.restored = append(v.restored, pos)
}

type fakeRecorder struct {
	records []string
}

func (f *fakeRecorder) Record(item itemstore.Item, done bool) {
	f.records = append(f.records, string(item.ID)+":"+itemstore.ActionTypeFor(done))
}

func newTestReconciler(t *testing.T, store *fakeStore) (*Reconciler, *fakeView) {
	t.Helper()
	view := &fakeView{}
	r, err := New(Options{Store: store, View: view})
	if err != nil {
		t.Fatalf("new reconciler failed: %v", err)
	}
	if err := r.FullRefresh(context.Background()); err != nil {
		t.Fatalf("initial refresh failed: %v", err)
	}
	return r, view
}

func visibleIDs(cards []board.Card) []protocol.ItemID {
	out := make([]protocol.ItemID, 0, len(cards))
	for _, c := range cards {
		out = append(out, c.ID())
	}
	return out
}

func TestToggleReconcile_FlipsWithoutNetworkCall(t *testing.T) {
	store := newFakeStore(itemstore.Item{ID: "A", Title: "Milk", Tags: []string{}, Done: false})
	r, view := newTestReconciler(t, store)
	before := len(store.networkCalls())

	r.ToggleReconcile(context.Background(), protocol.ChangeNotification{ID: "A", Status: true})

	card, ok := r.Lookup("A")
	if !ok || !card.Done {
		t.Fatalf("expected A done, got ok=%v card=%+v", ok, card)
	}
	if len(view.toggles) != 1 || !view.toggles[0].Done {
		t.Fatalf("expected exactly one visual toggle to done, got %+v", view.toggles)
	}
	if after := len(store.networkCalls()); after != before {
		t.Fatalf("expected no network call, got %v", store.networkCalls()[before:])
	}
}

func TestToggleReconcile_SameStatusIsNoop(t *testing.T) {
	store := newFakeStore(itemstore.Item{ID: "A", Title: "Milk", Done: true})
	r, view := newTestReconciler(t, store)

	r.ToggleReconcile(context.Background(), protocol.ChangeNotification{ID: "A", Status: true})
	r.ToggleReconcile(context.Background(), protocol.ChangeNotification{ID: "A", Status: true})

	if len(view.toggles) != 0 {
		t.Fatalf("expected no visual toggle, got %d", len(view.toggles))
	}
	if card, _ := r.Lookup("A"); !card.Done {
		t.Fatal("expected A to stay done")
	}
}

func TestToggleReconcile_UnknownItemIsNoop(t *testing.T) {
	store := newFakeStore(
		itemstore.Item{ID: "A", Title: "Milk"},
		itemstore.Item{ID: "B", Title: "Eggs", Done: true},
	)
	r, view := newTestReconciler(t, store)
	before := r.Snapshot()

	r.ToggleReconcile(context.Background(), protocol.ChangeNotification{ID: "Z", Status: true})

	after := r.Snapshot()
	if len(after) != len(before) {
		t.Fatalf("expected rendered set unchanged, before=%d after=%d", len(before), len(after))
	}
	for i := range before {
		if before[i].ID() != after[i].ID() || before[i].Done != after[i].Done {
			t.Fatalf("card %d changed: before=%+v after=%+v", i, before[i], after[i])
		}
	}
	if len(view.toggles) != 0 {
		t.Fatalf("expected no visual toggle, got %d", len(view.toggles))
	}
}

func TestFullRefresh_IsIdempotent(t *testing.T) {
	store := newFakeStore(
		itemstore.Item{ID: "A", Title: "Milk"},
		itemstore.Item{ID: "B", Title: "Eggs", Tags: []string{"Dairy"}, Done: true},
	)
	r, _ := newTestReconciler(t, store)

	first := r.Snapshot()
	if err := r.FullRefresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	second := r.Snapshot()
	if len(first) != len(second) {
		t.Fatalf("expected same size, got %d and %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID() != second[i].ID() || first[i].Done != second[i].Done || first[i].Visible != second[i].Visible {
			t.Fatalf("card %d differs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestFullRefresh_RestoresScrollPosition(t *testing.T) {
	store := newFakeStore(itemstore.Item{ID: "A", Title: "Milk"})
	r, view := newTestReconciler(t, store)
	view.pos = board.Position{Y: 7}

	if err := r.FullRefresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	last := view.restored[len(view.restored)-1]
	if last.Y != 7 {
		t.Fatalf("expected scroll restored to 7, got %+v", last)
	}
}

func TestFullRefresh_FailureKeepsRenderedList(t *testing.T) {
	store := newFakeStore(itemstore.Item{ID: "A", Title: "Milk"})
	r, _ := newTestReconciler(t, store)
	store.listHook = func(int) ([]itemstore.Item, error) {
		return nil, &itemstore.FetchError{Op: "list items", Status: 500, StatusText: "Internal Server Error"}
	}

	err := r.FullRefresh(context.Background())
	if itemstore.StatusOf(err) != 500 {
		t.Fatalf("expected 500 fetch error, got %v", err)
	}
	if len(r.Snapshot()) != 1 {
		t.Fatal("expected rendered list untouched after failed refresh")
	}
}

func TestFullRefresh_DropsStaleResponse(t *testing.T) {
	store := newFakeStore()
	r, _ := newTestReconciler(t, store)

	release := make(chan struct{})
	started := make(chan struct{})
	store.listHook = func(call int) ([]itemstore.Item, error) {
		if call == 2 {
			close(started)
			<-release
			return []itemstore.Item{{ID: "old", Title: "Stale"}}, nil
		}
		return []itemstore.Item{{ID: "new", Title: "Fresh"}}, nil
	}

	done := make(chan error, 1)
	go func() {
		done <- r.FullRefresh(context.Background())
	}()
	<-started
	if err := r.FullRefresh(context.Background()); err != nil {
		t.Fatalf("second refresh failed: %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first refresh failed: %v", err)
	}

	got := visibleIDs(r.Snapshot())
	if len(got) != 1 || got[0] != "new" {
		t.Fatalf("expected the newer refresh to win, got %v", got)
	}
}

func TestFullRefresh_KeepsToggleMadeWhileFetching(t *testing.T) {
	store := newFakeStore(itemstore.Item{ID: "A", Title: "Milk"})
	r, _ := newTestReconciler(t, store)

	release := make(chan struct{})
	started := make(chan struct{})
	store.listHook = func(call int) ([]itemstore.Item, error) {
		if call == 2 {
			close(started)
			<-release
		}
		return []itemstore.Item{{ID: "A", Title: "Milk", Done: false}}, nil
	}

	done := make(chan error, 1)
	go func() {
		done <- r.FullRefresh(context.Background())
	}()
	<-started
	r.ToggleReconcile(context.Background(), protocol.ChangeNotification{ID: "A", Status: true})
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	card, ok := r.Lookup("A")
	if !ok || !card.Done {
		t.Fatalf("expected toggle made during fetch to survive refresh, got %+v", card)
	}

	if err := r.FullRefresh(context.Background()); err != nil {
		t.Fatalf("follow-up refresh failed: %v", err)
	}
	card, _ = r.Lookup("A")
	if card.Done {
		t.Fatal("expected a refresh issued after the toggle to take the backend state")
	}
}

func TestNewItemWhileFilterActive_HidesNonMatchingItems(t *testing.T) {
	store := newFakeStore(itemstore.Item{ID: "A", Title: "Cheese", Tags: []string{"Dairy"}})
	r, _ := newTestReconciler(t, store)
	r.ToggleFilter("Dairy")

	store.mu.Lock()
	store.items = append(store.items,
		itemstore.Item{ID: "B", Title: "Bread", Tags: []string{"Bakery"}},
		itemstore.Item{ID: "C", Title: "Yoghurt", Tags: []string{"Dairy"}},
	)
	store.mu.Unlock()

	rt := router.New(protocol.NewTopics("einkaufsliste"), r)
	if err := rt.Dispatch(context.Background(), "einkaufsliste_newItem", []byte("{}")); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	if len(r.Snapshot()) != 3 {
		t.Fatalf("expected 3 rendered cards after refresh, got %d", len(r.Snapshot()))
	}
	got := visibleIDs(r.Visible())
	if len(got) != 2 || got[0] != "A" || got[1] != "C" {
		t.Fatalf("expected only Dairy items visible, got %v", got)
	}
	if card, _ := r.Lookup("B"); card.Visible {
		t.Fatal("expected B hidden by Dairy filter")
	}
}

func TestToggleDone_OptimisticWithRecordAndNoRollback(t *testing.T) {
	store := newFakeStore(itemstore.Item{ID: "A", Title: "Milk"})
	view := &fakeView{}
	rec := &fakeRecorder{}
	r, err := New(Options{Store: store, View: view, Recorder: rec})
	if err != nil {
		t.Fatalf("new failed: %v", err)
	}
	if err := r.FullRefresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	if err := r.ToggleDone(context.Background(), "A"); err != nil {
		t.Fatalf("toggle failed: %v", err)
	}
	if !store.setDone["A"] {
		t.Fatal("expected backend told A is done")
	}
	if len(rec.records) != 1 || rec.records[0] != "A:CROSSED" {
		t.Fatalf("unexpected records %v", rec.records)
	}

	store.failSet = &itemstore.FetchError{Op: "set done", Status: 503, StatusText: "Service Unavailable"}
	if err := r.ToggleDone(context.Background(), "A"); itemstore.StatusOf(err) != 503 {
		t.Fatalf("expected 503 error, got %v", err)
	}
	if card, _ := r.Lookup("A"); card.Done {
		t.Fatal("expected local flip to stay after failed request")
	}
	if len(view.toggles) != 2 {
		t.Fatalf("expected two visual toggles, got %d", len(view.toggles))
	}

	if err := r.ToggleDone(context.Background(), "missing"); !errors.Is(err, ErrNotRendered) {
		t.Fatalf("expected ErrNotRendered, got %v", err)
	}
}

func TestSetDone_OnlyTogglesWhenDifferent(t *testing.T) {
	store := newFakeStore(itemstore.Item{ID: "A", Title: "Milk", Done: true})
	r, _ := newTestReconciler(t, store)

	if err := r.SetDone(context.Background(), "A", true); err != nil {
		t.Fatalf("set done failed: %v", err)
	}
	for _, c := range store.networkCalls() {
		if c == "done" {
			t.Fatal("expected no request when already done")
		}
	}
	if err := r.SetDone(context.Background(), "A", false); err != nil {
		t.Fatalf("set done failed: %v", err)
	}
	if done, ok := store.setDone["A"]; !ok || done {
		t.Fatalf("expected backend told A is not done, got ok=%v done=%v", ok, done)
	}
}

func TestCreate_RefreshesFromBackend(t *testing.T) {
	store := newFakeStore(itemstore.Item{ID: "A", Title: "Milk"})
	store.tags = []string{"Bakery"}
	r, _ := newTestReconciler(t, store)

	created, err := r.Create(context.Background(), itemstore.ItemData{Title: "  Bread ", Tags: []string{" Bakery", "", "Bakery"}})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.Title != "Bread" || len(created.Tags) != 1 {
		t.Fatalf("expected normalized item, got %+v", created)
	}
	got := visibleIDs(r.Snapshot())
	if len(got) != 2 || got[0] != created.ID {
		t.Fatalf("expected created item first after refresh, got %v", got)
	}
	if tags := r.Tags(); len(tags) != 1 || tags[0] != "Bakery" {
		t.Fatalf("expected tags reloaded for unknown tag, got %v", tags)
	}

	if _, err := r.Create(context.Background(), itemstore.ItemData{Title: "   "}); !errors.Is(err, ErrEmptyTitle) {
		t.Fatalf("expected ErrEmptyTitle, got %v", err)
	}
}

func TestUpdate_AppliesLocallyThenSends(t *testing.T) {
	store := newFakeStore(itemstore.Item{ID: "A", Title: "Milk"})
	r, view := newTestReconciler(t, store)
	renders := view.renders

	if err := r.Update(context.Background(), "A", itemstore.ItemData{Title: "Oat milk"}); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	card, _ := r.Lookup("A")
	if card.Item.Title != "Oat milk" {
		t.Fatalf("expected local title updated, got %q", card.Item.Title)
	}
	if view.renders != renders+1 {
		t.Fatalf("expected one re-render, got %d", view.renders-renders)
	}
	if store.items[0].Title != "Oat milk" {
		t.Fatal("expected backend updated")
	}
	if err := r.Update(context.Background(), "Z", itemstore.ItemData{Title: "x"}); !errors.Is(err, ErrNotRendered) {
		t.Fatalf("expected ErrNotRendered, got %v", err)
	}
}

func TestDelete_RemovesCardAndItem(t *testing.T) {
	store := newFakeStore(itemstore.Item{ID: "A", Title: "Milk"}, itemstore.Item{ID: "B", Title: "Eggs"})
	r, _ := newTestReconciler(t, store)

	if err := r.Delete(context.Background(), "A"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, ok := r.Lookup("A"); ok {
		t.Fatal("expected A removed locally")
	}
	if len(store.items) != 1 || store.items[0].ID != "B" {
		t.Fatalf("expected backend to keep only B, got %+v", store.items)
	}
}

func TestNew_RequiresStore(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error without store")
	}
}
