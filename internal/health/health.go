// Package health отдаёт /healthz, /livez и /readyz по зарегистрированным проверкам.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status: статус компонента.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

const defaultCheckTimeout = 2 * time.Second

// Check: результат проверки компонента.
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Response: тело /healthz.
type Response struct {
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Checks        map[string]Check `json:"checks,omitempty"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

// Checker проверяет один компонент.
type Checker interface {
	Check(ctx context.Context) Check
}

// Handler собирает проверки и выполняет их параллельно с общим таймаутом.
type Handler struct {
	mu        sync.RWMutex
	checkers  map[string]Checker
	version   string
	timeout   time.Duration
	startTime time.Time
}

// NewHandler создаёт handler; при timeout <= 0 берётся 2s.
func NewHandler(version string, timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}
	return &Handler{
		checkers:  make(map[string]Checker),
		version:   version,
		timeout:   timeout,
		startTime: time.Now(),
	}
}

// RegisterChecker регистрирует проверку под именем name.
func (h *Handler) RegisterChecker(name string, checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = checker
}

// Names возвращает имена проверок по алфавиту.
func (h *Handler) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.checkers))
	for name := range h.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run выполняет все проверки и сводит общий статус.
func (h *Handler) Run(ctx context.Context) (Status, map[string]Check) {
	h.mu.RLock()
	checkers := make(map[string]Checker, len(h.checkers))
	for k, v := range h.checkers {
		checkers[k] = v
	}
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var mu sync.Mutex
	checks := make(map[string]Check, len(checkers))
	var g errgroup.Group
	for name, checker := range checkers {
		g.Go(func() error {
			check := checker.Check(ctx)
			if check.Name == "" {
				check.Name = name
			}
			mu.Lock()
			checks[name] = check
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	overall := StatusHealthy
	for _, check := range checks {
		switch {
		case check.Status == StatusUnhealthy:
			overall = StatusUnhealthy
		case check.Status == StatusDegraded && overall == StatusHealthy:
			overall = StatusDegraded
		}
	}
	return overall, checks
}

// ServeHTTP отдаёт полный отчёт; unhealthy: 503.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status, checks := h.Run(r.Context())
	response := Response{
		Status:        status,
		Timestamp:     time.Now().UTC(),
		Checks:        checks,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	}

	code := http.StatusOK
	if status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(response)
}

// LivenessHandler всегда отвечает 200.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ReadinessHandler отвечает 503, пока хотя бы одна проверка unhealthy. Degraded не мешает готовности.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if status, _ := h.Run(r.Context()); status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// FuncChecker: проверка функцией, например Ping хранилища.
type FuncChecker struct {
	name     string
	optional bool
	checkFn  func(ctx context.Context) error
}

// NewChecker создаёт обязательную проверку, ошибка даёт unhealthy.
func NewChecker(name string, checkFn func(ctx context.Context) error) *FuncChecker {
	return &FuncChecker{name: name, checkFn: checkFn}
}

// NewOptionalChecker создаёт проверку необязательного компонента, ошибка даёт degraded.
func NewOptionalChecker(name string, checkFn func(ctx context.Context) error) *FuncChecker {
	return &FuncChecker{name: name, optional: true, checkFn: checkFn}
}

// Check выполняет проверку.
func (c *FuncChecker) Check(ctx context.Context) Check {
	start := time.Now()
	err := c.checkFn(ctx)
	check := Check{
		Name:       c.name,
		Status:     StatusHealthy,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		check.Status = StatusUnhealthy
		if c.optional {
			check.Status = StatusDegraded
		}
		check.Message = err.Error()
	}
	return check
}
