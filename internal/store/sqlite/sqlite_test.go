package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"pdvledger/backend/internal/store"
)

func TestEnsureSchemaIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		// force the DDL to run again on a database that already has it
		s.initialized = false
		if err := s.EnsureSchema(ctx); err != nil {
			t.Fatalf("ensure schema call %d: %v", i, err)
		}
		var tables int
		err := s.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`).Scan(&tables)
		if err != nil {
			t.Fatalf("count tables: %v", err)
		}
		if tables != 7 {
			t.Fatalf("expected 7 tables after call %d, got %d", i, tables)
		}
	}

	var indexes int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name LIKE 'idx_%'`).Scan(&indexes)
	if err != nil {
		t.Fatalf("count indexes: %v", err)
	}
	if indexes != 4 {
		t.Fatalf("expected 4 indexes, got %d", indexes)
	}
}

func TestEnsureSchemaReappliesAfterReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.sqlite")
	ctx := context.Background()

	first, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if _, err := first.CreateSale(ctx, sampleSale(jan(15, 10), "5"), sampleItems(1), samplePayments("01")); err != nil {
		t.Fatalf("create sale: %v", err)
	}
	_ = first.Close()

	second, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer second.Close()
	if got := countRows(t, second, "sale"); got != 1 {
		t.Fatalf("expected existing data to survive reopen, got %d sales", got)
	}
}

func TestEnsureSchemaConcurrentCallers(t *testing.T) {
	s := newTestStore(t)
	s.initialized = false

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.EnsureSchema(context.Background())
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent ensure schema: %v", err)
		}
	}
}

func TestResolvePathOverrideCreatesParent(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "dir", "db.sqlite")
	t.Setenv(PathEnv, target)

	got, err := ResolvePath()
	if err != nil {
		t.Fatalf("resolve path: %v", err)
	}
	if got != target {
		t.Fatalf("expected override %s, got %s", target, got)
	}
	if info, err := os.Stat(filepath.Dir(target)); err != nil || !info.IsDir() {
		t.Fatalf("expected parent directory to exist: %v", err)
	}
}

func TestResolvePathUserConfigDir(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG_CONFIG_HOME only drives os.UserConfigDir on linux")
	}
	base := t.TempDir()
	t.Setenv(PathEnv, "")
	t.Setenv("XDG_CONFIG_HOME", base)

	got, err := ResolvePath()
	if err != nil {
		t.Fatalf("resolve path: %v", err)
	}
	want := filepath.Join(base, appDirName, "sqlite", "db.sqlite")
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
	if _, err := os.Stat(filepath.Dir(want)); err != nil {
		t.Fatalf("expected data directory to be created: %v", err)
	}
}

func TestResolvePathFallsBackToWorkingDir(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("relies on linux UserConfigDir lookup")
	}
	t.Setenv(PathEnv, "")
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("HOME", "")

	got, err := ResolvePath()
	if err != nil {
		t.Fatalf("resolve path: %v", err)
	}
	if got != fallbackPath {
		t.Fatalf("expected fallback %s, got %s", fallbackPath, got)
	}
}

func TestOpenFailsWhenDirectoryCannotBeCreated(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatalf("write blocker: %v", err)
	}

	_, err := Open(context.Background(), filepath.Join(blocker, "sub", "db.sqlite"))
	if !errors.Is(err, store.ErrInitialization) {
		t.Fatalf("expected ErrInitialization, got %v", err)
	}
}
