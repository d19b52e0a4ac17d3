package kafka

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
)

func TestProducer_PublishEvent(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var decoded map[string]string
		if err := json.Unmarshal(val, &decoded); err != nil {
			return err
		}
		if decoded["order_id"] != "order-123" {
			return errors.New("unexpected payload")
		}
		return nil
	})

	producer := NewProducerFrom(mockProducer, log.WithField("component", "kafka-producer-test"))
	if err := producer.PublishEvent(TopicOrderEvents, "order-123", map[string]string{"order_id": "order-123"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := producer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEventError(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	producer := NewProducerFrom(mockProducer, nil)
	err := producer.PublishEvent(TopicOrderEvents, "order-123", map[string]string{})
	if !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Fatalf("expected wrapped ErrOutOfBrokers, got %v", err)
	}
	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEventMarshalError(t *testing.T) {
	producer := NewProducerFrom(mocks.NewSyncProducer(t, nil), nil)
	if err := producer.PublishEvent(TopicOrderEvents, "k", make(chan int)); err == nil {
		t.Fatal("expected marshal error")
	}
}

func TestProducerConfig(t *testing.T) {
	cfg := ProducerConfig("storefront")
	if cfg.ClientID != "storefront" {
		t.Fatalf("unexpected client id %q", cfg.ClientID)
	}
	if !cfg.Producer.Idempotent || cfg.Net.MaxOpenRequests != 1 {
		t.Fatal("producer must be idempotent with a single in-flight request")
	}
	if cfg.Producer.RequiredAcks != sarama.WaitForAll {
		t.Fatalf("unexpected acks %v", cfg.Producer.RequiredAcks)
	}
}
