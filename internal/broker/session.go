package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

type Message struct {
	Topic   string
	Payload []byte
}

// Conn is one established broker connection.
type Conn interface {
	Subscribe(ctx context.Context, topic string, qos byte, handler func(Message)) error
	Close() error
}

// Dialer opens broker connections. onLost fires at most once, when an
// established connection drops.
type Dialer interface {
	Dial(ctx context.Context, clientID string, onLost func(error)) (Conn, error)
}

type State int

const (
	StateOpen State = iota
	StateSubscribed
	StateLost
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateSubscribed:
		return "subscribed"
	case StateLost:
		return "lost"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var ErrSessionEnded = errors.New("broker session ended")

// Session lives from a successful connect until the connection is lost or
// closed. It owns its subscription set; a new connection gets a new Session.
type Session struct {
	id   string
	conn Conn

	mu    sync.Mutex
	state State
	subs  []string
	err   error
}

func newSession(conn Conn) *Session {
	return &Session{id: uuid.NewString(), conn: conn, state: StateOpen}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscriptions returns the topics this session subscribed to, in order.
func (s *Session) Subscriptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.subs...)
}

// Err returns the error the connection was lost with, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Subscribe subscribes once per topic; repeated calls for an owned topic are no-ops.
func (s *Session) Subscribe(ctx context.Context, topic string, qos byte, handler func(Message)) error {
	s.mu.Lock()
	if s.state == StateLost || s.state == StateClosed {
		s.mu.Unlock()
		return ErrSessionEnded
	}
	for _, t := range s.subs {
		if t == topic {
			s.mu.Unlock()
			return nil
		}
	}
	s.mu.Unlock()

	if err := s.conn.Subscribe(ctx, topic, qos, handler); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateLost || s.state == StateClosed {
		return ErrSessionEnded
	}
	s.subs = append(s.subs, topic)
	return nil
}

func (s *Session) markSubscribed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateOpen {
		s.state = StateSubscribed
	}
}

func (s *Session) markLost(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return
	}
	s.state = StateLost
	s.err = err
}

// close releases the connection. Safe to call more than once.
func (s *Session) close() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosed
	s.mu.Unlock()
	return s.conn.Close()
}
