package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/cenkalti/backoff/v4"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// OpenDB opens an instrumented pool. driverName is "postgres" (lib/pq) or "pgx".
func OpenDB(driverName, dsn string) (*sql.DB, error) {
	switch driverName {
	case "postgres", "pgx":
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driverName)
	}

	return otelsql.Open(driverName, dsn,
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
	)
}

// WrapDB exposes the same pool through sqlx for struct scanning.
func WrapDB(db *sql.DB, driverName string) *sqlx.DB {
	return sqlx.NewDb(db, driverName)
}

// WaitForDB pings until the database answers or maxWait elapses.
func WaitForDB(ctx context.Context, db *sql.DB, maxWait time.Duration) error {
	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(200*time.Millisecond),
		backoff.WithMaxInterval(5*time.Second),
		backoff.WithMaxElapsedTime(maxWait),
	)
	return backoff.Retry(func() error {
		return db.PingContext(ctx)
	}, backoff.WithContext(b, ctx))
}
