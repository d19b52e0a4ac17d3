package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

type failingDeleter struct{}

func (failingDeleter) Delete(context.Context, string) error { return errors.New("redis down") }

func checkoutMessage(t *testing.T, eventType, cartUUID string) *sarama.ConsumerMessage {
	t.Helper()
	msg, err := domain.NewOutboxMessage(domain.AggregateCheckoutJob, "job-1", eventType, domain.CheckoutEventPayload{
		JobID: "job-1", CartUUID: cartUUID, OrderID: "order-1", TS: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("build message: %v", err)
	}
	value, err := json.Marshal(NewEnvelope(msg, time.Now().UTC()))
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return &sarama.ConsumerMessage{
		Topic:   TopicOrderEvents,
		Value:   value,
		Headers: []*sarama.RecordHeader{{Key: []byte(HeaderEventType), Value: []byte(eventType)}},
	}
}

func TestCartCleanupHandler_DeletesCartOnSuccess(t *testing.T) {
	ctx := context.Background()
	carts := memory.NewCartStore(time.Hour)
	if err := carts.Save(ctx, domain.NewCart("cart-1", "BRL", time.Now())); err != nil {
		t.Fatalf("save cart: %v", err)
	}

	handler := CartCleanupHandler(carts, nil)
	if err := handler(ctx, checkoutMessage(t, domain.EventCheckoutSucceeded, "cart-1")); err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if _, err := carts.Get(ctx, "cart-1"); !errors.Is(err, domain.ErrCartNotFound) {
		t.Fatalf("expected cart removed, got %v", err)
	}

	// Повтор доставки не ошибка.
	if err := handler(ctx, checkoutMessage(t, domain.EventCheckoutSucceeded, "cart-1")); err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}
}

func TestCartCleanupHandler_IgnoresOtherEvents(t *testing.T) {
	ctx := context.Background()
	carts := memory.NewCartStore(time.Hour)
	if err := carts.Save(ctx, domain.NewCart("cart-1", "BRL", time.Now())); err != nil {
		t.Fatalf("save cart: %v", err)
	}

	handler := CartCleanupHandler(carts, nil)
	if err := handler(ctx, checkoutMessage(t, domain.EventCheckoutFailed, "cart-1")); err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if _, err := carts.Get(ctx, "cart-1"); err != nil {
		t.Fatalf("cart must survive failed checkout: %v", err)
	}

	if err := handler(ctx, &sarama.ConsumerMessage{Value: []byte("not json")}); err != nil {
		t.Fatalf("malformed message must be skipped: %v", err)
	}
}

func TestCartCleanupHandler_StoreErrorRetried(t *testing.T) {
	handler := CartCleanupHandler(failingDeleter{}, nil)
	if err := handler(context.Background(), checkoutMessage(t, domain.EventCheckoutSucceeded, "cart-1")); err == nil {
		t.Fatal("expected store error to be returned for retry")
	}
}
