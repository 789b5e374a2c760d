package broker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"shoplist/internal/logging"
	"shoplist/internal/protocol"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultStableAfter    = 30 * time.Second
	inboxSize             = 64
)

type Hooks struct {
	// OnReady runs after every topic of a new session is subscribed.
	OnReady func(ctx context.Context, s *Session)
	// OnLost runs after a session dropped and before reconnecting.
	OnLost func(ctx context.Context, err error)
	// OnMessage receives inbound messages one at a time, in arrival order.
	OnMessage func(ctx context.Context, msg Message)
}

type Options struct {
	Dialer         Dialer
	Topics         []string
	Hooks          Hooks
	ClientID       string
	Endpoint       string
	ConnectTimeout time.Duration
	// Backoff paces reconnect attempts. Defaults to exponential backoff with jitter.
	Backoff backoff.BackOff
	// StableAfter is how long a session must last before the backoff resets.
	StableAfter time.Duration
	Logger      *slog.Logger
}

// NewBackoff returns the reconnect policy: exponential from initial up to max,
// with ±50% jitter, never giving up.
func NewBackoff(initial, max time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = max
	b.Multiplier = 2
	b.RandomizationFactor = 0.5
	b.Reset()
	return b
}

// Manager keeps exactly one broker session alive, reconnecting for as long as
// its context lives.
type Manager struct {
	dialer         Dialer
	topics         []string
	hooks          Hooks
	clientID       string
	endpoint       string
	connectTimeout time.Duration
	backoff        backoff.BackOff
	stableAfter    time.Duration
	logger         *slog.Logger

	inbox chan Message

	mu       sync.Mutex
	current  *Session
	sessions int
	attempts int
}

func NewManager(opts Options) (*Manager, error) {
	if opts.Dialer == nil {
		return nil, errors.New("broker dialer is required")
	}
	if len(opts.Topics) == 0 {
		return nil, errors.New("at least one topic is required")
	}
	clientID := opts.ClientID
	if clientID == "" {
		clientID = "shoplist-" + uuid.NewString()
	}
	connectTimeout := opts.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	b := opts.Backoff
	if b == nil {
		b = NewBackoff(500*time.Millisecond, 30*time.Second)
	}
	stableAfter := opts.StableAfter
	if stableAfter <= 0 {
		stableAfter = defaultStableAfter
	}
	return &Manager{
		dialer:         opts.Dialer,
		topics:         append([]string(nil), opts.Topics...),
		hooks:          opts.Hooks,
		clientID:       clientID,
		endpoint:       opts.Endpoint,
		connectTimeout: connectTimeout,
		backoff:        b,
		stableAfter:    stableAfter,
		logger:         logging.OrDiscard(opts.Logger),
		inbox:          make(chan Message, inboxSize),
	}, nil
}

func (m *Manager) ClientID() string {
	return m.clientID
}

// Current returns the active session, or nil while disconnected.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Sessions returns how many sessions have been opened so far.
func (m *Manager) Sessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions
}

// Run connects, subscribes and reconnects until ctx is done. It only returns
// once ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.deliver(ctx)
	}()
	defer wg.Wait()

	m.backoff.Reset()
	for {
		if ctx.Err() != nil {
			return nil
		}
		sess, lostCh, err := m.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			delay := m.backoff.NextBackOff()
			m.logger.Warn("broker connect failed", "endpoint", m.endpoint, "attempt", m.attemptCount(), "retry_in", delay, "err", err)
			if !sleep(ctx, delay) {
				return nil
			}
			continue
		}

		started := time.Now()
		select {
		case <-ctx.Done():
			m.endSession(sess)
			return nil
		case lostErr := <-lostCh:
			sess.markLost(lostErr)
			m.endSession(sess)
			m.logger.Warn("broker connection lost", "session", sess.ID(), "err", lostErr)
			if m.hooks.OnLost != nil {
				m.hooks.OnLost(ctx, lostErr)
			}
		}

		if time.Since(started) >= m.stableAfter {
			m.backoff.Reset()
			continue
		}
		delay := m.backoff.NextBackOff()
		m.logger.Info("broker session was short-lived, delaying reconnect", "retry_in", delay)
		if !sleep(ctx, delay) {
			return nil
		}
	}
}

func (m *Manager) connect(ctx context.Context) (*Session, <-chan error, error) {
	m.mu.Lock()
	m.attempts++
	m.mu.Unlock()
	m.logger.Info("connecting to broker", "endpoint", m.endpoint, "client_id", m.clientID)

	lostCh := make(chan error, 1)
	onLost := func(err error) {
		if err == nil {
			err = errors.New("connection closed")
		}
		select {
		case lostCh <- err:
		default:
		}
	}

	dialCtx, cancel := context.WithTimeout(ctx, m.connectTimeout)
	conn, err := m.dialer.Dial(dialCtx, m.clientID, onLost)
	cancel()
	if err != nil {
		return nil, nil, err
	}

	sess := newSession(conn)
	m.mu.Lock()
	prev := m.current
	m.current = sess
	m.sessions++
	m.mu.Unlock()
	if prev != nil {
		_ = prev.close()
	}
	m.logger.Info("connected to broker", "endpoint", m.endpoint, "session", sess.ID())

	handler := func(msg Message) {
		select {
		case m.inbox <- msg:
		case <-ctx.Done():
		}
	}
	for _, topic := range m.topics {
		subCtx, cancel := context.WithTimeout(ctx, m.connectTimeout)
		err := sess.Subscribe(subCtx, topic, protocol.AtLeastOnce, handler)
		cancel()
		if err != nil {
			m.endSession(sess)
			return nil, nil, err
		}
		m.logger.Info("subscribed to topic", "topic", topic, "session", sess.ID())
	}
	sess.markSubscribed()

	if m.hooks.OnReady != nil {
		m.hooks.OnReady(ctx, sess)
	}
	return sess, lostCh, nil
}

func (m *Manager) endSession(sess *Session) {
	m.mu.Lock()
	if m.current == sess {
		m.current = nil
	}
	m.mu.Unlock()
	if err := sess.close(); err != nil {
		m.logger.Debug("broker session close failed", "session", sess.ID(), "err", err)
	}
}

func (m *Manager) deliver(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-m.inbox:
			if m.hooks.OnMessage != nil {
				m.hooks.OnMessage(ctx, msg)
			}
		}
	}
}

func (m *Manager) attemptCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
