package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type fakeChannel struct {
	mu         sync.Mutex
	declared   []string
	published  []amqp.Publishing
	keys       []string
	publishErr error
	prefetch   int
	deliveries chan amqp.Delivery
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{deliveries: make(chan amqp.Delivery, 8)}
}

func (f *fakeChannel) QueueDeclare(name string, durable, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !durable {
		return amqp.Queue{}, errors.New("queue must be durable")
	}
	f.declared = append(f.declared, name)
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Qos(prefetchCount, _ int, _ bool) error {
	f.prefetch = prefetchCount
	return nil
}

func (f *fakeChannel) Consume(string, string, bool, bool, bool, bool, amqp.Table) (<-chan amqp.Delivery, error) {
	return f.deliveries, nil
}

func (f *fakeChannel) Close() error { return nil }

type ackRecorder struct {
	mu     sync.Mutex
	acked  []uint64
	nacked []uint64
	done   chan struct{}
}

func newAckRecorder() *ackRecorder { return &ackRecorder{done: make(chan struct{}, 8)} }

func (a *ackRecorder) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	a.acked = append(a.acked, tag)
	a.mu.Unlock()
	a.done <- struct{}{}
	return nil
}

func (a *ackRecorder) Nack(tag uint64, _ bool, requeue bool) error {
	if requeue {
		return errors.New("unexpected requeue")
	}
	a.mu.Lock()
	a.nacked = append(a.nacked, tag)
	a.mu.Unlock()
	a.done <- struct{}{}
	return nil
}

func (a *ackRecorder) Reject(tag uint64, requeue bool) error { return a.Nack(tag, false, requeue) }

type processorFunc func(ctx context.Context, jobID string) error

func (f processorFunc) Process(ctx context.Context, jobID string) error { return f(ctx, jobID) }

func TestPublisherDispatch(t *testing.T) {
	ch := newFakeChannel()
	pub, err := NewPublisher(ch, "")
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultQueue}, ch.declared)

	require.NoError(t, pub.Dispatch(context.Background(), "job-1"))
	require.Len(t, ch.published, 1)

	msg := ch.published[0]
	assert.Equal(t, DefaultQueue, ch.keys[0])
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "job-1", msg.MessageId)

	var body jobMessage
	require.NoError(t, json.Unmarshal(msg.Body, &body))
	assert.Equal(t, "job-1", body.JobID)
}

func TestPublisherDispatchError(t *testing.T) {
	ch := newFakeChannel()
	ch.publishErr = amqp.ErrClosed
	pub, err := NewPublisher(ch, "jobs")
	require.NoError(t, err)

	err = pub.Dispatch(context.Background(), "job-1")
	require.ErrorIs(t, err, amqp.ErrClosed)
}

func TestConsumerAcksProcessedJobs(t *testing.T) {
	ch := newFakeChannel()
	acks := newAckRecorder()

	var mu sync.Mutex
	var processed []string
	processor := processorFunc(func(_ context.Context, jobID string) error {
		mu.Lock()
		defer mu.Unlock()
		processed = append(processed, jobID)
		switch jobID {
		case "missing":
			return domain.ErrCheckoutJobNotFound
		case "broken":
			return errors.New("db down")
		}
		return nil
	})

	consumer := NewConsumer(ch, "", processor, WithPrefetch(2))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	ch.deliveries <- amqp.Delivery{Acknowledger: acks, DeliveryTag: 1, Body: []byte(`{"job_id":"ok"}`)}
	ch.deliveries <- amqp.Delivery{Acknowledger: acks, DeliveryTag: 2, Body: []byte(`{"job_id":"missing"}`)}
	ch.deliveries <- amqp.Delivery{Acknowledger: acks, DeliveryTag: 3, Body: []byte(`{"job_id":"broken"}`)}
	ch.deliveries <- amqp.Delivery{Acknowledger: acks, DeliveryTag: 4, Body: []byte(`not json`)}

	for i := 0; i < 4; i++ {
		select {
		case <-acks.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("delivery %d was not settled", i+1)
		}
	}
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, 2, ch.prefetch)
	assert.Equal(t, []uint64{1}, acks.acked)
	assert.Equal(t, []uint64{2, 3, 4}, acks.nacked)
	assert.Equal(t, []string{"ok", "missing", "broken"}, processed)
}

func TestConsumerClosedChannel(t *testing.T) {
	ch := newFakeChannel()
	close(ch.deliveries)
	consumer := NewConsumer(ch, "jobs", processorFunc(func(context.Context, string) error { return nil }))

	err := consumer.Run(context.Background())
	require.Error(t, err)
}
