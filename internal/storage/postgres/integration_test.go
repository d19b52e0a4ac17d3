package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestMigrator_PostgresLifecycle(t *testing.T) {
	store := openRawStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := store.MigrateDown(ctx, 100); err != nil {
		t.Fatalf("migrate down reset: %v", err)
	}
	assertMigrationState(ctx, t, store, MigrationState{Version: 0, Applied: 0, Pending: 3})

	if err := store.MigrateUp(ctx, 1); err != nil {
		t.Fatalf("migrate up one step: %v", err)
	}
	assertMigrationState(ctx, t, store, MigrationState{Version: 1, Applied: 1, Pending: 2})

	if err := store.MigrateUp(ctx, 0); err != nil {
		t.Fatalf("migrate up all: %v", err)
	}
	assertMigrationState(ctx, t, store, MigrationState{Version: 3, Applied: 3, Pending: 0})

	// Повторный up ничего не меняет.
	if err := store.MigrateUp(ctx, 0); err != nil {
		t.Fatalf("idempotent migrate up: %v", err)
	}
	assertMigrationState(ctx, t, store, MigrationState{Version: 3, Applied: 3, Pending: 0})

	if err := store.MigrateDown(ctx, 0); err != nil {
		t.Fatalf("migrate down default step: %v", err)
	}
	assertMigrationState(ctx, t, store, MigrationState{Version: 2, Applied: 2, Pending: 1})

	if err := store.MigrateDown(ctx, 2); err != nil {
		t.Fatalf("migrate down 2: %v", err)
	}
	if err := store.MigrateDown(ctx, 1); err != nil {
		t.Fatalf("migrate down on empty should be no-op: %v", err)
	}
	assertMigrationState(ctx, t, store, MigrationState{Version: 0, Applied: 0, Pending: 3})
}

func assertMigrationState(ctx context.Context, t *testing.T, store *Store, want MigrationState) {
	t.Helper()

	got, err := store.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("migration status: %v", err)
	}
	if got != want {
		t.Fatalf("unexpected migration state: got=%+v want=%+v", got, want)
	}
}

func TestInventoryRepository_PostgresLedger(t *testing.T) {
	store := openIntegrationStore(t)
	seedProduct(t, store, "prod-1", 0)
	repo := NewInventoryRepository(store)
	now := time.Now().UTC().Round(time.Microsecond)

	if err := repo.Restock("prod-1", 3, now); err != nil {
		t.Fatalf("restock: %v", err)
	}

	lines := []domain.InventoryLine{{ProductID: "prod-1", Qty: 2}}
	if err := repo.Reserve("order-1", lines, now); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	// Повтор резерва идемпотентен.
	if err := repo.Reserve("order-1", lines, now); err != nil {
		t.Fatalf("repeat reserve: %v", err)
	}
	if err := repo.Reserve("order-2", lines, now); !errors.Is(err, domain.ErrInventoryUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	assertBalance(t, repo, "prod-1", 1)

	if err := repo.Release("order-1", lines, now); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := repo.Release("order-1", lines, now); err != nil {
		t.Fatalf("repeat release: %v", err)
	}
	assertBalance(t, repo, "prod-1", 3)

	entries, err := repo.Entries("prod-1")
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected restock+reserve+release entries, got %+v", entries)
	}
}

func assertBalance(t *testing.T, repo domain.InventoryRepository, productID string, want int32) {
	t.Helper()

	got, err := repo.Balance(productID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if got != want {
		t.Fatalf("unexpected balance for %s: got=%d want=%d", productID, got, want)
	}
}

func TestUnitOfWork_PostgresCommitAndRollback(t *testing.T) {
	store := openIntegrationStore(t)
	uow := NewUnitOfWork(store)
	now := time.Now().UTC().Round(time.Microsecond)

	order := domain.Order{
		ID:            "order-1",
		CustomerID:    "customer-1",
		CartUUID:      "cart-1",
		Status:        domain.OrderStatusPending,
		Currency:      "BRL",
		SubtotalMinor: 200,
		AmountMinor:   200,
		Items: []domain.OrderItem{
			{ID: "item-1", ProductID: "prod-1", SKU: "SKU-1", Name: "Item", Qty: 2, PriceMinor: 100, CreatedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := uow.Do(func(repos domain.Repositories) error {
		if err := repos.Orders.Create(order); err != nil {
			return err
		}
		if _, err := repos.Outbox.Enqueue(domain.OutboxMessage{AggregateType: "order", AggregateID: order.ID, EventType: "order.created"}); err != nil {
			return err
		}
		return repos.Timeline.Append(domain.TimelineEvent{OrderID: order.ID, Type: "created", Status: order.Status, Occurred: now})
	})
	if err != nil {
		t.Fatalf("commit unit of work: %v", err)
	}

	repos := store.Repositories()
	got, err := repos.Orders.Get(order.ID)
	if err != nil {
		t.Fatalf("get committed order: %v", err)
	}
	if len(got.Items) != 1 || got.Items[0].Name != "Item" {
		t.Fatalf("unexpected items: %+v", got.Items)
	}

	boom := errors.New("boom")
	err = uow.Do(func(repos domain.Repositories) error {
		second := order
		second.ID = "order-2"
		second.Items = nil
		if err := repos.Orders.Create(second); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := repos.Orders.Get("order-2"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected rolled back order, got %v", err)
	}

	stats, err := repos.Outbox.Stats()
	if err != nil {
		t.Fatalf("outbox stats: %v", err)
	}
	if stats.PendingCount != 1 {
		t.Fatalf("unexpected outbox backlog: %+v", stats)
	}
}

func TestCheckoutJobRepository_PostgresLifecycle(t *testing.T) {
	store := openIntegrationStore(t)
	repo := NewCheckoutJobRepository(store)
	now := time.Now().UTC().Round(time.Microsecond)

	cart := domain.NewCart("cart-1", "brl", now)
	job := domain.NewCheckoutJob("job-1", cart, 3, now)

	stored, created, err := repo.CreateForCart(job)
	if err != nil || !created {
		t.Fatalf("create job: created=%v err=%v", created, err)
	}
	again, created, err := repo.CreateForCart(domain.NewCheckoutJob("job-2", cart, 3, now))
	if err != nil || created || again.ID != stored.ID {
		t.Fatalf("expected existing job, got %+v created=%v err=%v", again, created, err)
	}

	due, err := repo.ListDue(now, 10)
	if err != nil || len(due) != 1 {
		t.Fatalf("list due: %+v err=%v", due, err)
	}

	claimed := due[0]
	if err := claimed.Claim(now, time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := repo.Save(claimed); err != nil {
		t.Fatalf("save claimed: %v", err)
	}
	// Устаревшая версия не может захватить задачу второй раз.
	stale := due[0]
	if err := stale.Claim(now, time.Minute); err != nil {
		t.Fatalf("claim stale copy: %v", err)
	}
	if err := repo.Save(stale); !errors.Is(err, domain.ErrCheckoutJobConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	got, err := repo.Get("job-1")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != domain.CheckoutJobProcessing || got.Attempts != 1 || got.Version != 1 {
		t.Fatalf("unexpected job state: %+v", got)
	}
	if got.Cart.UUID != "cart-1" || got.Cart.Currency != "BRL" {
		t.Fatalf("unexpected cart snapshot: %+v", got.Cart)
	}

	// Захваченная задача невидима, пока не истечёт аренда.
	if due, err := repo.ListDue(now, 10); err != nil || len(due) != 0 {
		t.Fatalf("leased job must not be due: %+v err=%v", due, err)
	}
	due, err = repo.ListDue(now.Add(time.Minute), 10)
	if err != nil || len(due) != 1 || due[0].Status != domain.CheckoutJobProcessing {
		t.Fatalf("expired lease must be due: %+v err=%v", due, err)
	}
}

func seedProduct(t *testing.T, store *Store, id string, priceMinor int64) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := store.DB().ExecContext(ctx, `
		INSERT INTO products (id, sku, name, price_minor)
		VALUES ($1, $2, $3, $4)
	`, id, "SKU-"+id, "Product "+id, priceMinor); err != nil {
		t.Fatalf("seed product: %v", err)
	}
}
