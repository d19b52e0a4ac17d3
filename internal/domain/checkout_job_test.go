package domain

import (
	"errors"
	"testing"
	"time"
)

func TestCheckoutJobLifecycle(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	job := NewCheckoutJob("job-1", Cart{UUID: "cart-1"}, 0, now)

	if job.MaxAttempts != DefaultCheckoutMaxAttempts {
		t.Fatalf("max attempts = %d", job.MaxAttempts)
	}
	if !job.Due(now) {
		t.Fatal("fresh job must be due immediately")
	}
	if err := job.Claim(now, time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if job.Attempts != 1 || job.Status != CheckoutJobProcessing || !job.NextRunAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("unexpected job after claim: %+v", job)
	}
	if err := job.Claim(now, time.Minute); !errors.Is(err, ErrCheckoutJobConflict) {
		t.Fatalf("double claim must conflict, got %v", err)
	}

	if err := job.Reschedule(ErrPaymentTemporary, 5*time.Second, now); err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if job.Due(now) {
		t.Fatal("rescheduled job must not be due before delay")
	}
	if job.LastError != ErrPaymentTemporary.Error() {
		t.Fatalf("last error = %q", job.LastError)
	}

	later := now.Add(5 * time.Second)
	if err := job.Claim(later, time.Minute); err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if err := job.Succeed("order-1", later); err != nil {
		t.Fatalf("succeed: %v", err)
	}
	if !job.Status.Terminal() || job.OrderID != "order-1" {
		t.Fatalf("unexpected job after succeed: %+v", job)
	}
	if err := job.Fail(errors.New("late"), later); !errors.Is(err, ErrCheckoutJobConflict) {
		t.Fatalf("fail after succeed must conflict, got %v", err)
	}
}

func TestCheckoutJobExpiredLeaseIsReclaimed(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	job := NewCheckoutJob("job-1", Cart{UUID: "cart-1"}, 3, now)
	if err := job.Claim(now, 0); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !job.NextRunAt.Equal(now.Add(DefaultCheckoutLease)) {
		t.Fatalf("default lease not applied: %s", job.NextRunAt)
	}
	if job.Due(now.Add(DefaultCheckoutLease - time.Second)) {
		t.Fatal("job under lease must not be due")
	}

	// Результат попытки не сохранён: после аренды задачу берёт другой обработчик.
	expired := now.Add(DefaultCheckoutLease)
	if !job.Due(expired) {
		t.Fatal("job with expired lease must be due")
	}
	if err := job.Claim(expired, time.Minute); err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if job.Attempts != 2 || job.Status != CheckoutJobProcessing {
		t.Fatalf("unexpected job after reclaim: %+v", job)
	}

	_ = job.Succeed("order-1", expired)
	if job.Due(expired.Add(time.Hour)) {
		t.Fatal("terminal job must never be due")
	}
}

func TestCheckoutJobAttemptsLeft(t *testing.T) {
	now := time.Now()
	job := NewCheckoutJob("job-1", Cart{UUID: "cart-1"}, 2, now)
	_ = job.Claim(now, time.Minute)
	if !job.AttemptsLeft() {
		t.Fatal("one attempt must remain")
	}
	_ = job.Reschedule(nil, 0, now)
	_ = job.Claim(now, time.Minute)
	if job.AttemptsLeft() {
		t.Fatal("no attempts must remain")
	}
	if err := job.Fail(ErrPaymentTemporary, now); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if job.Status != CheckoutJobFailed {
		t.Fatalf("status = %s", job.Status)
	}
}

func TestCheckoutJobStatusValid(t *testing.T) {
	for _, s := range []CheckoutJobStatus{CheckoutJobPending, CheckoutJobProcessing, CheckoutJobSucceeded, CheckoutJobFailed} {
		if !s.Valid() {
			t.Fatalf("%s must be valid", s)
		}
	}
	if CheckoutJobStatus("queued").Valid() {
		t.Fatal("unknown status must be invalid")
	}
}
