package payment

import (
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// ErrCircuitOpen: шлюз временно выключен после серии сбоев.
var ErrCircuitOpen = fmt.Errorf("%w: circuit breaker is open", domain.ErrPaymentTemporary)

// CircuitState: состояние предохранителя.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// CircuitBreaker размыкается после maxFailures временных сбоев подряд.
// Отказы по бизнес-причинам (отклонённая карта) предохранитель не считает.
type CircuitBreaker struct {
	maxFailures  int
	resetTimeout time.Duration

	mu          sync.Mutex
	failures    int
	lastFailure time.Time
	state       CircuitState
	logger      *log.Entry
	now         func() time.Time
}

// NewCircuitBreaker создаёт предохранитель.
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration, logger *log.Entry) *CircuitBreaker {
	if logger == nil {
		logger = log.New().WithField("component", "circuit-breaker")
	}
	if maxFailures <= 0 {
		maxFailures = 5
	}
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        CircuitClosed,
		logger:       logger,
		now:          time.Now,
	}
}

// State возвращает текущее состояние.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Execute выполняет операцию через предохранитель.
func (cb *CircuitBreaker) Execute(operation string, fn func() error) error {
	if err := cb.before(operation); err != nil {
		return err
	}
	err := fn()
	cb.after(operation, err)
	return err
}

func (cb *CircuitBreaker) before(operation string) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != CircuitOpen {
		return nil
	}
	if cb.now().Sub(cb.lastFailure) <= cb.resetTimeout {
		return ErrCircuitOpen
	}
	cb.state = CircuitHalfOpen
	cb.logger.WithField("operation", operation).Info("circuit breaker half-open")
	return nil
}

func (cb *CircuitBreaker) after(operation string, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil && countsAsFailure(err) {
		cb.failures++
		cb.lastFailure = cb.now()
		if cb.state == CircuitHalfOpen || cb.failures >= cb.maxFailures {
			cb.state = CircuitOpen
			cb.logger.WithFields(log.Fields{
				"operation": operation,
				"failures":  cb.failures,
			}).Warn("circuit breaker opened")
		}
		return
	}

	if cb.state == CircuitHalfOpen {
		cb.state = CircuitClosed
		cb.logger.WithField("operation", operation).Info("circuit breaker closed")
	}
	cb.failures = 0
}

func countsAsFailure(err error) bool {
	return !errors.Is(err, ErrCircuitOpen) && !domain.IsBusiness(err)
}
