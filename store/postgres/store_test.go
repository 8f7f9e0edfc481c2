//go:build integration

package postgres_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/delayed/store"
	pgstore "github.com/xraph/delayed/store/postgres"
	"github.com/xraph/delayed/store/storetest"
)

// setupContainer starts one Postgres container and returns its
// connection string.
func setupContainer(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("delayed_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if termErr := container.Terminate(ctx); termErr != nil {
			t.Logf("terminate container: %v", termErr)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}
	return connStr
}

func TestConformance(t *testing.T) {
	connStr := setupContainer(t)

	storetest.Run(t, func(t *testing.T) store.Store {
		ctx := context.Background()
		s, err := pgstore.New(ctx, connStr, pgstore.WithLogger(slog.Default()))
		if err != nil {
			t.Fatalf("connect: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })

		if err := s.Migrate(ctx); err != nil {
			t.Fatalf("migrate: %v", err)
		}
		if _, err := s.Pool().Exec(ctx, `TRUNCATE delayed_jobs`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return s
	})
}

func TestMigrate_ConcurrentCallers(t *testing.T) {
	connStr := setupContainer(t)
	ctx := context.Background()

	g, gctx := errgroup.WithContext(ctx)
	for range 4 {
		g.Go(func() error {
			s, err := pgstore.New(gctx, connStr)
			if err != nil {
				return err
			}
			defer s.Close()
			return s.Migrate(gctx)
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent migrate: %v", err)
	}

	s, err := pgstore.New(ctx, connStr)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer s.Close()

	var n int
	if err := s.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM delayed_migrations`).Scan(&n); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if n != 1 {
		t.Errorf("migrations recorded = %d, want 1", n)
	}
}
