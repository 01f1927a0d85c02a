// Package testutil provisions throwaway Postgres schemas for round store tests.
package testutil

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"

	"round-settlement/internal/config"
	"round-settlement/internal/store"
)

const migrationsDir = "migrations"

// OpenRoundStore returns a store bound to a fresh schema with every up
// migration applied. The schema is dropped when the test finishes. Without
// TEST_POSTGRES_DSN the test is skipped.
func OpenRoundStore(t testing.TB) *store.Store {
	t.Helper()
	cfg, err := config.LoadTest()
	if err != nil {
		t.Skipf("skip postgres round store: %v", err)
	}
	ctx := context.Background()
	schema := "rounds_" + strings.ToLower(store.NewID())

	admin, err := pgx.Connect(ctx, cfg.TestPostgresDSN)
	if err != nil {
		t.Fatalf("connect test db: %v", err)
	}
	_, err = admin.Exec(ctx, "CREATE SCHEMA "+pgx.Identifier{schema}.Sanitize())
	_ = admin.Close(ctx)
	if err != nil {
		t.Fatalf("create schema %s: %v", schema, err)
	}

	st, err := store.New(withSearchPath(cfg.TestPostgresDSN, schema))
	if err != nil {
		t.Fatalf("open round store: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
		dropSchema(cfg.TestPostgresDSN, schema)
	})
	if err := migrate(ctx, st); err != nil {
		t.Fatalf("migrate %s: %v", schema, err)
	}
	return st
}

func migrate(ctx context.Context, st *store.Store) error {
	dir, err := findMigrations()
	if err != nil {
		return err
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	if err != nil {
		return err
	}
	sort.Strings(files)
	for _, f := range files {
		sql, err := os.ReadFile(f)
		if err != nil {
			return err
		}
		if _, err := st.Pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(f), err)
		}
	}
	return nil
}

// findMigrations walks up from the package under test to the module root.
func findMigrations() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		candidate := filepath.Join(dir, migrationsDir)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%s directory not found", migrationsDir)
		}
		dir = parent
	}
}

func dropSchema(dsn, schema string) {
	ctx := context.Background()
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return
	}
	defer conn.Close(ctx)
	_, _ = conn.Exec(ctx, "DROP SCHEMA "+pgx.Identifier{schema}.Sanitize()+" CASCADE")
}

func withSearchPath(dsn, schema string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "search_path=" + url.QueryEscape(schema)
}
