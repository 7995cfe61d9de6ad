package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/gym-class-api/internal/models"
	"github.com/noah-isme/gym-class-api/pkg/jobs"
)

// JobPublishWaitlistEvent carries one committed waitlist event to the broker.
const JobPublishWaitlistEvent = "publish_waitlist_event"

// WaitlistNotifier hands committed waitlist transitions to the external
// notification dispatcher.
type WaitlistNotifier interface {
	Notify(ctx context.Context, event models.WaitlistEvent) error
}

type eventPublisher interface {
	PublishJSON(ctx context.Context, messageType string, payload interface{}) error
}

// BrokerNotifier publishes waitlist events to the message broker.
type BrokerNotifier struct {
	publisher eventPublisher
}

// NewBrokerNotifier wraps a broker publisher.
func NewBrokerNotifier(publisher eventPublisher) *BrokerNotifier {
	return &BrokerNotifier{publisher: publisher}
}

// Notify publishes the event with its type as the message type.
func (n *BrokerNotifier) Notify(ctx context.Context, event models.WaitlistEvent) error {
	if n == nil || n.publisher == nil {
		return nil
	}
	return n.publisher.PublishJSON(ctx, string(event.Type), event)
}

// QueuedNotifier enqueues events for a background worker. Notify never waits
// on the broker; a full queue is reported as an error.
type QueuedNotifier struct {
	queue jobDispatcher
}

// NewQueuedNotifier builds a notifier feeding queue.
func NewQueuedNotifier(queue jobDispatcher) *QueuedNotifier {
	return &QueuedNotifier{queue: queue}
}

// Notify enqueues the event keyed by entry and event type.
func (n *QueuedNotifier) Notify(ctx context.Context, event models.WaitlistEvent) error {
	return n.queue.Enqueue(jobs.Job{
		ID:      event.EntryID + "/" + string(event.Type),
		Type:    JobPublishWaitlistEvent,
		Payload: event,
	})
}

// WaitlistEventWorker drains queued waitlist events into a notifier.
type WaitlistEventWorker struct {
	notifier WaitlistNotifier
	timeout  time.Duration
	logger   *zap.Logger
}

// NewWaitlistEventWorker constructs a worker. Each publish attempt is bounded
// by timeout.
func NewWaitlistEventWorker(notifier WaitlistNotifier, timeout time.Duration, logger *zap.Logger) *WaitlistEventWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WaitlistEventWorker{notifier: notifier, timeout: timeout, logger: logger}
}

// Handle processes a queue job.
func (w *WaitlistEventWorker) Handle(ctx context.Context, job jobs.Job) error {
	if job.Type != JobPublishWaitlistEvent {
		return fmt.Errorf("unknown waitlist event job %q", job.Type)
	}
	event, ok := job.Payload.(models.WaitlistEvent)
	if !ok {
		return fmt.Errorf("waitlist event job %s has payload %T", job.ID, job.Payload)
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	if err := w.notifier.Notify(ctx, event); err != nil {
		w.logger.Warn("publish waitlist event failed",
			zap.String("type", string(event.Type)),
			zap.String("entry_id", event.EntryID),
			zap.Int("attempt", job.Attempt),
			zap.Error(err),
		)
		return err
	}
	return nil
}
