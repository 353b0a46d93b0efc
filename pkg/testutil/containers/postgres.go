//go:build integration

// Package containers provides shared testcontainers instances for integration
// tests. Containers live for the whole test binary; Ryuk reaps them afterward.
package containers

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer wraps a testcontainers PostgreSQL instance.
type PostgresContainer struct {
	Container testcontainers.Container
	DSN       string
	DB        *sql.DB
}

var (
	pgOnce      sync.Once
	pgSingleton *PostgresContainer
	pgErr       error
)

// GetPostgres returns the shared PostgreSQL container, starting it on first
// use. Suites share one instance and isolate themselves with TruncateTables.
func GetPostgres(t *testing.T) *PostgresContainer {
	t.Helper()

	pgOnce.Do(func() {
		ctx := context.Background()

		container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
			tcpostgres.WithDatabase("wishwell_test"),
			tcpostgres.WithUsername("wishwell"),
			tcpostgres.WithPassword("wishwell"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
		if err != nil {
			pgErr = fmt.Errorf("start postgres container: %w", err)
			return
		}

		dsn, err := container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			_ = container.Terminate(ctx)
			pgErr = fmt.Errorf("postgres connection string: %w", err)
			return
		}

		db, err := sql.Open("postgres", dsn)
		if err != nil {
			_ = container.Terminate(ctx)
			pgErr = fmt.Errorf("open postgres: %w", err)
			return
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			_ = container.Terminate(ctx)
			pgErr = fmt.Errorf("ping postgres: %w", err)
			return
		}

		pgSingleton = &PostgresContainer{Container: container, DSN: dsn, DB: db}
	})

	if pgErr != nil {
		t.Fatalf("postgres container: %v", pgErr)
	}
	return pgSingleton
}

// TruncateTables empties the given tables; call from SetupTest for isolation.
func (p *PostgresContainer) TruncateTables(ctx context.Context, tables ...string) error {
	for _, table := range tables {
		if _, err := p.DB.ExecContext(ctx, "TRUNCATE TABLE "+table+" CASCADE"); err != nil {
			return fmt.Errorf("truncate %s: %w", table, err)
		}
	}
	return nil
}
