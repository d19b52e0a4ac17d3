package memory_test

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func TestCheckoutJobRepository_OnePerCart(t *testing.T) {
	repo := memory.NewCheckoutJobRepository()
	now := time.Now().UTC()

	first := domain.NewCheckoutJob("job-1", domain.Cart{UUID: "cart-1"}, 0, now)
	stored, created, err := repo.CreateForCart(first)
	if err != nil || !created || stored.ID != "job-1" {
		t.Fatalf("first create: stored=%+v created=%v err=%v", stored, created, err)
	}

	second := domain.NewCheckoutJob("job-2", domain.Cart{UUID: "cart-1"}, 0, now)
	stored, created, err = repo.CreateForCart(second)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if created || stored.ID != "job-1" {
		t.Fatalf("expected existing job-1, got %s created=%v", stored.ID, created)
	}
}

func TestCheckoutJobRepository_SaveVersion(t *testing.T) {
	repo := memory.NewCheckoutJobRepository()
	now := time.Now().UTC()
	job := domain.NewCheckoutJob("job-1", domain.Cart{UUID: "cart-1"}, 0, now)
	_, _, _ = repo.CreateForCart(job)

	if err := job.Claim(now, time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := repo.Save(job); err != nil {
		t.Fatalf("save: %v", err)
	}
	// Второй воркер с устаревшей версией проигрывает.
	if err := repo.Save(job); !errors.Is(err, domain.ErrCheckoutJobConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	stored, err := repo.Get("job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != domain.CheckoutJobProcessing || stored.Version != 1 {
		t.Fatalf("unexpected stored job: %+v", stored)
	}
	if _, err := repo.Get("missing"); !errors.Is(err, domain.ErrCheckoutJobNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCheckoutJobRepository_ListDue(t *testing.T) {
	repo := memory.NewCheckoutJobRepository()
	now := time.Now().UTC()

	late := domain.NewCheckoutJob("job-late", domain.Cart{UUID: "cart-1"}, 0, now.Add(-time.Minute))
	early := domain.NewCheckoutJob("job-early", domain.Cart{UUID: "cart-2"}, 0, now.Add(-time.Hour))
	future := domain.NewCheckoutJob("job-future", domain.Cart{UUID: "cart-3"}, 0, now.Add(time.Hour))
	done := domain.NewCheckoutJob("job-done", domain.Cart{UUID: "cart-4"}, 0, now.Add(-time.Hour))
	done.Status = domain.CheckoutJobSucceeded
	stuck := domain.NewCheckoutJob("job-stuck", domain.Cart{UUID: "cart-5"}, 0, now.Add(-2*time.Hour))
	_ = stuck.Claim(now.Add(-2*time.Hour), time.Minute)
	leased := domain.NewCheckoutJob("job-leased", domain.Cart{UUID: "cart-6"}, 0, now.Add(-2*time.Hour))
	_ = leased.Claim(now, time.Minute)
	for _, job := range []domain.CheckoutJob{late, early, future, done, stuck, leased} {
		if _, _, err := repo.CreateForCart(job); err != nil {
			t.Fatalf("create %s: %v", job.ID, err)
		}
	}

	due, err := repo.ListDue(now, 10)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 3 || due[0].ID != "job-stuck" || due[1].ID != "job-early" || due[2].ID != "job-late" {
		t.Fatalf("unexpected due jobs: %+v", due)
	}
}
