package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// CartDeleter удаляет корзину из кэша.
type CartDeleter interface {
	Delete(ctx context.Context, uuid string) error
}

// CartCleanupHandler удаляет корзину после checkout.succeeded; прочие события пропускаются.
// Битые сообщения тоже пропускаются: корзина всё равно истечёт по TTL.
func CartCleanupHandler(carts CartDeleter, logger *log.Entry) MessageHandler {
	if logger == nil {
		logger = log.WithField("component", "cart-cleanup")
	}
	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		if eventType := headerValue(message, HeaderEventType); eventType != "" && eventType != domain.EventCheckoutSucceeded {
			return nil
		}

		env, err := ParseEnvelope(message)
		if err != nil {
			logger.WithError(err).Warn("skip malformed event")
			return nil
		}
		if env.EventType != domain.EventCheckoutSucceeded {
			return nil
		}

		var payload domain.CheckoutEventPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil || payload.CartUUID == "" {
			logger.WithError(err).WithField("event_id", env.ID).Warn("skip checkout event without cart")
			return nil
		}

		if err := carts.Delete(ctx, payload.CartUUID); err != nil && !errors.Is(err, domain.ErrCartNotFound) {
			return fmt.Errorf("delete cart %s: %w", payload.CartUUID, err)
		}
		logger.WithFields(log.Fields{
			"cart_uuid": payload.CartUUID,
			"job_id":    payload.JobID,
			"order_id":  payload.OrderID,
		}).Info("cart removed after checkout")
		return nil
	}
}

func headerValue(message *sarama.ConsumerMessage, key string) string {
	for _, h := range message.Headers {
		if h != nil && string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}
