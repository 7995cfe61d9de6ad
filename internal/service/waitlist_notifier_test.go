package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/gym-class-api/internal/models"
	"github.com/noah-isme/gym-class-api/pkg/jobs"
)

type publisherStub struct {
	messageType string
	payload     interface{}
	deadline    bool
	err         error
}

func (p *publisherStub) PublishJSON(ctx context.Context, messageType string, payload interface{}) error {
	p.messageType = messageType
	p.payload = payload
	_, p.deadline = ctx.Deadline()
	return p.err
}

// blockingNotifier stands in for a broker that is down: it only returns when
// the caller's context ends.
type blockingNotifier struct {
	delivered chan models.WaitlistEvent
	release   chan struct{}
}

func (n *blockingNotifier) Notify(ctx context.Context, event models.WaitlistEvent) error {
	select {
	case <-n.release:
		n.delivered <- event
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestBrokerNotifierPublishesEventType(t *testing.T) {
	pub := &publisherStub{}
	event := models.WaitlistEvent{Type: models.WaitlistEventNotified, EntryID: "e1"}

	require.NoError(t, NewBrokerNotifier(pub).Notify(context.Background(), event))
	assert.Equal(t, string(models.WaitlistEventNotified), pub.messageType)
	assert.Equal(t, event, pub.payload)

	var nilNotifier *BrokerNotifier
	assert.NoError(t, nilNotifier.Notify(context.Background(), event))
}

func TestWaitlistEventWorkerBoundsEachPublish(t *testing.T) {
	pub := &publisherStub{err: errors.New("connection refused")}
	worker := NewWaitlistEventWorker(NewBrokerNotifier(pub), time.Second, zap.NewNop())

	event := models.WaitlistEvent{Type: models.WaitlistEventPromoted, EntryID: "e1"}
	err := worker.Handle(context.Background(), jobs.Job{Type: JobPublishWaitlistEvent, Payload: event})
	assert.EqualError(t, err, "connection refused")
	assert.True(t, pub.deadline)

	assert.Error(t, worker.Handle(context.Background(), jobs.Job{Type: JobPublishWaitlistEvent, Payload: "junk"}))
	assert.Error(t, worker.Handle(context.Background(), jobs.Job{Type: JobExpireNotifications}))
}

func TestQueuedNotifierDoesNotWaitForBroker(t *testing.T) {
	broker := &blockingNotifier{delivered: make(chan models.WaitlistEvent, 1), release: make(chan struct{})}
	worker := NewWaitlistEventWorker(broker, time.Minute, zap.NewNop())
	queue := jobs.NewQueue("waitlist-events", worker.Handle, jobs.QueueConfig{Workers: 1, Logger: zap.NewNop()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx)
	defer queue.Stop()

	notifier := NewQueuedNotifier(queue)
	event := models.WaitlistEvent{Type: models.WaitlistEventNotified, EntryID: "e1", SessionID: "s1"}

	started := time.Now()
	require.NoError(t, notifier.Notify(context.Background(), event))
	assert.Less(t, time.Since(started), 100*time.Millisecond)

	assert.ErrorIs(t, notifier.Notify(context.Background(), event), jobs.ErrDuplicate)

	close(broker.release)
	select {
	case got := <-broker.delivered:
		assert.Equal(t, event, got)
	case <-time.After(2 * time.Second):
		t.Fatal("event was never delivered")
	}
}
