package events

import (
	"context"
	"log/slog"

	"github.com/opencommercesearch/relevancy-engine/pkg/kafka"
)

// Notifier buffers change events and publishes them to Kafka from a single
// background goroutine. Emitting never blocks the caller; when the buffer is
// full the event is dropped and a warning logged, since a later sweep can
// always repair a missed rollup.
type Notifier struct {
	producer *kafka.Producer
	eventCh  chan QueryChanged
	logger   *slog.Logger
	done     chan struct{}
}

// NewNotifier creates a Notifier with the given buffer size.
func NewNotifier(producer *kafka.Producer, bufferSize int) *Notifier {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	return &Notifier{
		producer: producer,
		eventCh:  make(chan QueryChanged, bufferSize),
		logger:   slog.Default().With("component", "change-notifier"),
		done:     make(chan struct{}),
	}
}

// Start launches the publish loop. It returns immediately; the loop runs
// until ctx is cancelled or Close is called.
func (n *Notifier) Start(ctx context.Context) {
	go func() {
		defer close(n.done)
		for {
			select {
			case event, ok := <-n.eventCh:
				if !ok {
					return
				}
				n.publish(ctx, event)
			case <-ctx.Done():
				n.drainRemaining()
				return
			}
		}
	}()
	n.logger.Info("change notifier started", "buffer_size", cap(n.eventCh))
}

// Emit queues a change event for publishing without blocking.
func (n *Notifier) Emit(event QueryChanged) {
	select {
	case n.eventCh <- event:
	default:
		n.logger.Warn("change event dropped (buffer full)",
			"query", event.Ref().String(),
			"reason", string(event.Reason),
		)
	}
}

// Close stops accepting events and waits for the publish loop to finish.
func (n *Notifier) Close() {
	close(n.eventCh)
	<-n.done
}

func (n *Notifier) publish(ctx context.Context, event QueryChanged) {
	err := n.producer.Publish(ctx, kafka.Event{
		Key:   event.SiteID,
		Value: event,
	})
	if err != nil {
		n.logger.Error("failed to publish change event",
			"query", event.Ref().String(),
			"error", err,
		)
	}
}

func (n *Notifier) drainRemaining() {
	for {
		select {
		case event, ok := <-n.eventCh:
			if !ok {
				return
			}
			n.publish(context.Background(), event)
		default:
			return
		}
	}
}
