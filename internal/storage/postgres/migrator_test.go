package postgres

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestLoadMigrations_SortedPairs(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/002_more.up.sql":   {Data: []byte("CREATE TABLE b (id INT);")},
		"sql/migrations/002_more.down.sql": {Data: []byte("DROP TABLE b;")},
		"sql/migrations/001_init.up.sql":   {Data: []byte("CREATE TABLE a (id INT);")},
		"sql/migrations/001_init.down.sql": {Data: []byte("DROP TABLE a;")},
	}

	migrations, err := loadMigrations(fsys)
	if err != nil {
		t.Fatalf("loadMigrations failed: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[0].Name != "init" || migrations[0].Down != "DROP TABLE a;" {
		t.Fatalf("unexpected first migration: %+v", migrations[0])
	}
	if migrations[1].Version != 2 || migrations[1].Name != "more" {
		t.Fatalf("unexpected second migration: %+v", migrations[1])
	}
}

func TestLoadMigrations_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		fsys    fstest.MapFS
		wantErr string
	}{
		{
			name:    "missing down",
			fsys:    fstest.MapFS{"sql/migrations/001_init.up.sql": {Data: []byte("SELECT 1;")}},
			wantErr: "both up and down",
		},
		{
			name:    "invalid name",
			fsys:    fstest.MapFS{"sql/migrations/not_a_migration.sql": {Data: []byte("SELECT 1;")}},
			wantErr: "invalid migration file name",
		},
		{
			name: "empty body",
			fsys: fstest.MapFS{
				"sql/migrations/001_init.up.sql":   {Data: []byte("  \n")},
				"sql/migrations/001_init.down.sql": {Data: []byte("SELECT 1;")},
			},
			wantErr: "empty",
		},
		{
			name: "name mismatch",
			fsys: fstest.MapFS{
				"sql/migrations/001_init.up.sql":    {Data: []byte("SELECT 1;")},
				"sql/migrations/001_other.down.sql": {Data: []byte("SELECT 1;")},
			},
			wantErr: "name mismatch",
		},
		{
			name:    "no files",
			fsys:    fstest.MapFS{},
			wantErr: "no migration files",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := loadMigrations(tt.fsys)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	t.Parallel()

	migrations, err := loadMigrations(embeddedMigrations)
	if err != nil {
		t.Fatalf("embedded migrations: %v", err)
	}
	if len(migrations) == 0 || migrations[0].Version != 1 {
		t.Fatalf("unexpected embedded migrations: %+v", migrations)
	}
	if !strings.Contains(migrations[0].Up, "CREATE TABLE checkout_jobs") {
		t.Fatal("initial migration must create checkout_jobs")
	}
}
