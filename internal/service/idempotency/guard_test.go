package idempotency

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

type failingLocker struct{}

func (failingLocker) Acquire(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("redis: connection refused")
}

func (failingLocker) Release(context.Context, string) error { return nil }

func TestRequestHash(t *testing.T) {
	a := RequestHash(http.MethodPost, "/v1/orders/o-1/cancel", []byte(`{"reason":"x"}`))
	b := RequestHash(http.MethodPost, "/v1/orders/o-1/cancel", []byte(`{"reason":"x"}`))
	c := RequestHash(http.MethodPost, "/v1/orders/o-2/cancel", []byte(`{"reason":"x"}`))

	if a != b {
		t.Fatal("hash must be deterministic")
	}
	if a == c {
		t.Fatal("different paths must produce different hashes")
	}
	if len(a) != 64 {
		t.Fatalf("expected hex sha256, got %q", a)
	}
}

func TestGuard_FirstRequestThenReplay(t *testing.T) {
	ctx := context.Background()
	guard := NewGuard(memory.NewIdempotencyRepository(), memory.NewLocker())

	replay, err := guard.Begin(ctx, "key-1", "hash-a")
	if err != nil || replay != nil {
		t.Fatalf("first request must proceed, replay=%v err=%v", replay, err)
	}
	guard.Finish(ctx, "key-1", http.StatusAccepted, []byte(`{"id":"job-1"}`))

	replay, err = guard.Begin(ctx, "key-1", "hash-a")
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if replay == nil || replay.Status != http.StatusAccepted || string(replay.Body) != `{"id":"job-1"}` {
		t.Fatalf("unexpected replay %+v", replay)
	}
}

func TestGuard_HashMismatch(t *testing.T) {
	ctx := context.Background()
	guard := NewGuard(memory.NewIdempotencyRepository(), memory.NewLocker())

	if _, err := guard.Begin(ctx, "key-1", "hash-a"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	guard.Finish(ctx, "key-1", http.StatusOK, []byte(`{}`))

	if _, err := guard.Begin(ctx, "key-1", "hash-b"); !errors.Is(err, domain.ErrIdempotencyHashMismatch) {
		t.Fatalf("expected hash mismatch, got %v", err)
	}
}

func TestGuard_InProgress(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewIdempotencyRepository()
	guard := NewGuard(repo, memory.NewLocker())

	if _, err := guard.Begin(ctx, "key-1", "hash-a"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := guard.Begin(ctx, "key-1", "hash-a"); !errors.Is(err, ErrInProgress) {
		t.Fatalf("expected in-progress from lock, got %v", err)
	}

	// Без блокировки решение принимает репозиторий.
	noLock := NewGuard(repo, nil)
	if _, err := noLock.Begin(ctx, "key-1", "hash-a"); !errors.Is(err, ErrInProgress) {
		t.Fatalf("expected in-progress from repository, got %v", err)
	}
}

func TestGuard_ServerErrorStoredAsFailed(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewIdempotencyRepository()
	guard := NewGuard(repo, memory.NewLocker())

	if _, err := guard.Begin(ctx, "key-1", "hash-a"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	guard.Finish(ctx, "key-1", http.StatusBadGateway, []byte(`{"error":"gateway"}`))

	record, err := repo.Get("key-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.Status != domain.IdempotencyStatusFailed || record.HTTPStatus != http.StatusBadGateway {
		t.Fatalf("unexpected record %+v", record)
	}
}

func TestGuard_LockerFailureFallsBackToRepository(t *testing.T) {
	ctx := context.Background()
	guard := NewGuard(memory.NewIdempotencyRepository(), failingLocker{})

	replay, err := guard.Begin(ctx, "key-1", "hash-a")
	if err != nil || replay != nil {
		t.Fatalf("expected proceed, replay=%v err=%v", replay, err)
	}
	if _, err := guard.Begin(ctx, "key-1", "hash-a"); !errors.Is(err, ErrInProgress) {
		t.Fatalf("expected in-progress, got %v", err)
	}
}
