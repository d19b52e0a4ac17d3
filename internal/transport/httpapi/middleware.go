package httpapi

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
)

// HeaderIdempotencyKey: ключ идемпотентности команды.
const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderReplayed       = "Idempotent-Replayed"
)

func (a *API) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				a.logger.WithFields(log.Fields{
					"panic":      rec,
					"path":       r.URL.Path,
					"request_id": middleware.GetReqID(r.Context()),
					"stack":      string(debug.Stack()),
				}).Error("panic in HTTP handler")
				writeError(w, http.StatusInternalServerError, "an unexpected error occurred", "INTERNAL_ERROR")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			entry := a.logger.WithFields(log.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"duration_ms": time.Since(start).Milliseconds(),
				"bytes":       ww.BytesWritten(),
				"request_id":  middleware.GetReqID(r.Context()),
			})
			if ww.Status() >= http.StatusInternalServerError {
				entry.Warn("http request")
				return
			}
			entry.Info("http request")
		}()
		next.ServeHTTP(ww, r)
	})
}

// instrument пишет RED-метрики по шаблону маршрута.
func (a *API) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		a.metrics.Begin()
		defer func() {
			route := "unknown"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			a.metrics.End(r.Method, route, status, time.Since(start))
		}()
		next.ServeHTTP(ww, r)
	})
}

// idempotent повторяет сохранённый ответ для уже выполненной команды с тем же Idempotency-Key.
// Без заголовка запрос выполняется как обычно.
func (a *API) idempotent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
		if key == "" || a.idempotency == nil {
			next.ServeHTTP(w, r)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "cannot read request body", "INVALID_BODY")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		hash := idempotency.RequestHash(r.Method, r.URL.Path, body)
		replay, err := a.idempotency.Begin(r.Context(), key, hash)
		switch {
		case errors.Is(err, domain.ErrIdempotencyHashMismatch):
			writeError(w, http.StatusConflict, err.Error(), "IDEMPOTENCY_KEY_REUSED")
			return
		case err != nil:
			writeDomainError(w, r, a.logger, err)
			return
		case replay != nil:
			w.Header().Set(HeaderReplayed, "true")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(replay.Status)
			_, _ = w.Write(replay.Body)
			return
		}

		var captured bytes.Buffer
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		ww.Tee(&captured)

		finished := false
		defer func() {
			status := ww.Status()
			if !finished {
				// Обработчик упал: ключ закрывается ответом 500, иначе он висел бы в processing до TTL.
				status = http.StatusInternalServerError
			}
			if status == 0 {
				status = http.StatusOK
			}
			a.idempotency.Finish(context.WithoutCancel(r.Context()), key, status, captured.Bytes())
		}()
		next.ServeHTTP(ww, r)
		finished = true
	})
}
