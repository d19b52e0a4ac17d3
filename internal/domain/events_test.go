package domain

import (
	"errors"
	"testing"
	"time"
)

func TestNewOutboxMessageCheckoutPayload(t *testing.T) {
	ts := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	msg, err := NewOutboxMessage(AggregateCheckoutJob, "job-1", EventCheckoutSucceeded, CheckoutEventPayload{
		JobID:    "job-1",
		CartUUID: "cart-1",
		OrderID:  "order-1",
		TS:       ts,
	})
	if err != nil {
		t.Fatalf("build message: %v", err)
	}
	if err := msg.Validate(); err != nil {
		t.Fatalf("checkout event must be valid: %v", err)
	}
	want := `{"job_id":"job-1","cart_uuid":"cart-1","order_id":"order-1","ts":"2026-05-04T10:00:00Z"}`
	if string(msg.Payload) != want {
		t.Fatalf("payload = %s, want %s", msg.Payload, want)
	}
}

func TestOutboxMessageValidate(t *testing.T) {
	valid := OutboxMessage{AggregateType: AggregateOrder, AggregateID: "order-1", EventType: EventOrderCreated, Payload: []byte(`{"order_id":"order-1"}`)}

	tests := []struct {
		name string
		mut  func(m *OutboxMessage)
		ok   bool
	}{
		{name: "order event", mut: func(*OutboxMessage) {}, ok: true},
		{name: "empty payload", mut: func(m *OutboxMessage) { m.Payload = nil }, ok: true},
		{name: "unknown aggregate", mut: func(m *OutboxMessage) { m.AggregateType = "cart" }},
		{name: "missing aggregate id", mut: func(m *OutboxMessage) { m.AggregateID = "" }},
		{name: "missing event type", mut: func(m *OutboxMessage) { m.EventType = "" }},
		{name: "broken payload", mut: func(m *OutboxMessage) { m.Payload = []byte(`{"order_id":`) }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			msg := valid
			tc.mut(&msg)
			err := msg.Validate()
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrOutboxMessageInvalid) {
				t.Fatalf("expected ErrOutboxMessageInvalid, got %v", err)
			}
		})
	}
}
