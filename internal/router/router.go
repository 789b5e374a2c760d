package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"shoplist/internal/broker"
	"shoplist/internal/logging"
	"shoplist/internal/protocol"
)

var ErrMalformedPayload = errors.New("malformed payload")

// Reconciler is what inbound messages are routed to.
type Reconciler interface {
	ToggleReconcile(ctx context.Context, n protocol.ChangeNotification)
	FullRefresh(ctx context.Context) error
}

type Router struct {
	topics     protocol.Topics
	reconciler Reconciler
}

func New(topics protocol.Topics, reconciler Reconciler) *Router {
	return &Router{topics: topics, reconciler: reconciler}
}

// Dispatch routes one message by topic. Unknown topics are ignored.
func (r *Router) Dispatch(ctx context.Context, topic string, payload []byte) error {
	switch topic {
	case r.topics.DoneUpdates:
		n, err := protocol.DecodeChangeNotification(payload)
		if err != nil {
			return fmt.Errorf("%w on %s: %v", ErrMalformedPayload, topic, err)
		}
		r.reconciler.ToggleReconcile(ctx, n)
		return nil
	case r.topics.NewItem:
		return r.reconciler.FullRefresh(ctx)
	default:
		return nil
	}
}

// Handler adapts Dispatch to the broker's message hook. Failures are logged
// and the message is dropped; later messages are unaffected.
func (r *Router) Handler(logger *slog.Logger) func(context.Context, broker.Message) {
	logger = logging.OrDiscard(logger)
	return func(ctx context.Context, msg broker.Message) {
		if err := r.Dispatch(ctx, msg.Topic, msg.Payload); err != nil {
			if errors.Is(err, ErrMalformedPayload) {
				logger.Warn("dropping malformed message", "topic", msg.Topic, "err", err)
				return
			}
			logger.Warn("message handling failed", "topic", msg.Topic, "err", err)
		}
	}
}
