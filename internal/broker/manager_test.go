package broker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
)

type fakeConn struct {
	dialer *fakeDialer
	onLost func(error)

	mu       sync.Mutex
	subs     []string
	handlers map[string]func(Message)
	closed   bool
}

func (c *fakeConn) Subscribe(_ context.Context, topic string, _ byte, handler func(Message)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dialer.failSubscribe != "" && topic == c.dialer.failSubscribe {
		return errors.New("suback refused")
	}
	c.subs = append(c.subs, topic)
	c.handlers[topic] = handler
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	already := c.closed
	c.closed = true
	c.mu.Unlock()
	if !already {
		c.dialer.mu.Lock()
		c.dialer.open--
		c.dialer.mu.Unlock()
	}
	return nil
}

func (c *fakeConn) subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.subs...)
}

func (c *fakeConn) emit(topic string, payload string) {
	c.mu.Lock()
	h := c.handlers[topic]
	c.mu.Unlock()
	if h != nil {
		h(Message{Topic: topic, Payload: []byte(payload)})
	}
}

func (c *fakeConn) lose() {
	c.onLost(errors.New("connection reset"))
}

type fakeDialer struct {
	mu            sync.Mutex
	failFirst     int
	failSubscribe string
	dials         int
	open          int
	maxOpen       int
	conns         []*fakeConn
}

func (d *fakeDialer) Dial(_ context.Context, _ string, onLost func(error)) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.dials <= d.failFirst {
		return nil, errors.New("broker unreachable")
	}
	c := &fakeConn{dialer: d, onLost: onLost, handlers: map[string]func(Message){}}
	d.conns = append(d.conns, c)
	d.open++
	if d.open > d.maxOpen {
		d.maxOpen = d.open
	}
	return c, nil
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

func (d *fakeDialer) stats() (dials, open, maxOpen int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials, d.open, d.maxOpen
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type runHarness struct {
	mgr    *Manager
	cancel context.CancelFunc
	done   chan error
	ready  chan *Session
}

func startManager(t *testing.T, dialer Dialer, hooks Hooks) *runHarness {
	t.Helper()
	h := &runHarness{done: make(chan error, 1), ready: make(chan *Session, 16)}
	onReady := hooks.OnReady
	hooks.OnReady = func(ctx context.Context, s *Session) {
		if onReady != nil {
			onReady(ctx, s)
		}
		h.ready <- s
	}
	mgr, err := NewManager(Options{
		Dialer:  dialer,
		Topics:  []string{"einkaufsliste_doneUpdates", "einkaufsliste_newItem"},
		Hooks:   hooks,
		Backoff: &backoff.ZeroBackOff{},
	})
	if err != nil {
		t.Fatalf("new manager failed: %v", err)
	}
	h.mgr = mgr
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		h.done <- mgr.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-h.done
	})
	return h
}

func (h *runHarness) awaitReady(t *testing.T) *Session {
	t.Helper()
	select {
	case s := <-h.ready:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session ready")
		return nil
	}
}

func TestManager_SubscribesBothTopicsThenReady(t *testing.T) {
	dialer := &fakeDialer{}
	h := startManager(t, dialer, Hooks{})

	sess := h.awaitReady(t)
	if sess.State() != StateSubscribed {
		t.Fatalf("expected subscribed state, got %s", sess.State())
	}
	got := dialer.conn(0).subscriptions()
	if len(got) != 2 || got[0] != "einkaufsliste_doneUpdates" || got[1] != "einkaufsliste_newItem" {
		t.Fatalf("unexpected subscriptions %v", got)
	}
	if h.mgr.Current() != sess {
		t.Fatal("expected current session to be the ready session")
	}
}

func TestManager_ReconnectsAfterLossWithoutDuplicateSubscriptions(t *testing.T) {
	dialer := &fakeDialer{}
	var mu sync.Mutex
	lostCalls := 0
	h := startManager(t, dialer, Hooks{
		OnLost: func(context.Context, error) {
			mu.Lock()
			lostCalls++
			mu.Unlock()
		},
	})

	first := h.awaitReady(t)
	for i := 0; i < 3; i++ {
		dialer.conn(i).lose()
		h.awaitReady(t)
	}

	if first.State() != StateClosed {
		t.Fatalf("expected first session closed, got %s", first.State())
	}
	if first.Err() == nil {
		t.Fatal("expected first session to keep its loss error")
	}
	for i := 0; i < 4; i++ {
		subs := dialer.conn(i).subscriptions()
		if len(subs) != 2 {
			t.Fatalf("session %d: expected exactly 2 subscriptions, got %v", i, subs)
		}
	}
	if got := h.mgr.Sessions(); got != 4 {
		t.Fatalf("expected 4 sessions, got %d", got)
	}
	_, open, maxOpen := dialer.stats()
	if open != 1 || maxOpen != 1 {
		t.Fatalf("expected exactly one open connection at any time, open=%d max=%d", open, maxOpen)
	}
	mu.Lock()
	defer mu.Unlock()
	if lostCalls != 3 {
		t.Fatalf("expected lost hook 3 times, got %d", lostCalls)
	}
}

func TestManager_RetriesFailedConnectUntilSuccess(t *testing.T) {
	dialer := &fakeDialer{failFirst: 5}
	h := startManager(t, dialer, Hooks{})

	h.awaitReady(t)
	dials, _, _ := dialer.stats()
	if dials != 6 {
		t.Fatalf("expected 6 dial attempts, got %d", dials)
	}
}

func TestManager_SubscribeFailureClosesSessionAndRetries(t *testing.T) {
	dialer := &fakeDialer{failSubscribe: "einkaufsliste_newItem"}
	startManager(t, dialer, Hooks{})

	waitFor(t, "several attempts", func() bool {
		dials, _, _ := dialer.stats()
		return dials >= 3
	})
	_, open, maxOpen := dialer.stats()
	if open > 1 || maxOpen > 1 {
		t.Fatalf("expected failed sessions to be closed, open=%d max=%d", open, maxOpen)
	}
	if got := dialer.conn(0).subscriptions(); len(got) != 1 {
		t.Fatalf("expected only the first topic subscribed on a failed session, got %v", got)
	}
}

func TestManager_DeliversMessagesInOrder(t *testing.T) {
	dialer := &fakeDialer{}
	var mu sync.Mutex
	var got []string
	h := startManager(t, dialer, Hooks{
		OnMessage: func(_ context.Context, msg Message) {
			mu.Lock()
			got = append(got, msg.Topic+":"+string(msg.Payload))
			mu.Unlock()
		},
	})
	h.awaitReady(t)

	conn := dialer.conn(0)
	conn.emit("einkaufsliste_doneUpdates", "1")
	conn.emit("einkaufsliste_doneUpdates", "2")
	conn.emit("einkaufsliste_newItem", "{}")

	waitFor(t, "three messages", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	})
	mu.Lock()
	defer mu.Unlock()
	want := []string{"einkaufsliste_doneUpdates:1", "einkaufsliste_doneUpdates:2", "einkaufsliste_newItem:{}"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected message %d: want %q got %q", i, want[i], got[i])
		}
	}
}

func TestManager_CancelClosesSession(t *testing.T) {
	dialer := &fakeDialer{}
	h := startManager(t, dialer, Hooks{})
	sess := h.awaitReady(t)

	h.cancel()
	select {
	case err := <-h.done:
		if err != nil {
			t.Fatalf("expected nil error on cancel, got %v", err)
		}
		h.done <- nil
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after cancel")
	}
	if sess.State() != StateClosed {
		t.Fatalf("expected closed session, got %s", sess.State())
	}
	_, open, _ := dialer.stats()
	if open != 0 {
		t.Fatalf("expected no open connections, got %d", open)
	}
}

func TestNewManager_Validates(t *testing.T) {
	if _, err := NewManager(Options{Topics: []string{"x"}}); err == nil {
		t.Fatal("expected error without dialer")
	}
	if _, err := NewManager(Options{Dialer: &fakeDialer{}}); err == nil {
		t.Fatal("expected error without topics")
	}
	mgr, err := NewManager(Options{Dialer: &fakeDialer{}, Topics: []string{"x"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mgr.ClientID() == "" {
		t.Fatal("expected generated client id")
	}
}

func TestNewBackoff_StaysWithinBounds(t *testing.T) {
	b := NewBackoff(100*time.Millisecond, time.Second)
	for i := 0; i < 20; i++ {
		d := b.NextBackOff()
		if d <= 0 || d > 1500*time.Millisecond {
			t.Fatalf("attempt %d: backoff %v out of bounds", i, d)
		}
	}
}
