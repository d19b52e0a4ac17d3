// Package payment содержит платёжные шлюзы и общую обвязку вокруг них.
package payment

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Registry хранит шлюзы по имени провайдера.
type Registry struct {
	mu       sync.RWMutex
	gateways map[string]domain.PaymentGateway
}

// NewRegistry регистрирует переданные шлюзы.
func NewRegistry(gateways ...domain.PaymentGateway) *Registry {
	r := &Registry{gateways: make(map[string]domain.PaymentGateway, len(gateways))}
	for _, gw := range gateways {
		r.Register(gw)
	}
	return r
}

// Register добавляет или заменяет шлюз.
func (r *Registry) Register(gw domain.PaymentGateway) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways[strings.ToLower(gw.Name())] = gw
}

// Gateway возвращает шлюз или ErrGatewayNotFound.
func (r *Registry) Gateway(name string) (domain.PaymentGateway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	gw, ok := r.gateways[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrGatewayNotFound, name)
	}
	return gw, nil
}

// Names возвращает зарегистрированные провайдеры в алфавитном порядке.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.gateways))
	for name := range r.gateways {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var _ domain.GatewayRegistry = (*Registry)(nil)
