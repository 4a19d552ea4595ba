package db

import (
	"context"
	"fmt"
	"net/http"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	PracticeIDKey contextKey = "practice_id"
	DBConnKey     contextKey = "db_conn"
	TxKey         contextKey = "db_tx"
)

var practiceIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// Querier is the subset of pgx operations repositories run their queries
// through. It is satisfied by *pgxpool.Pool, *pgxpool.Conn and pgx.Tx, so a
// repository joins whatever unit of work the context carries.
type Querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// PracticeMiddleware resolves the calling practice and pins the request to a
// connection whose search_path points at that practice's schema. Every row a
// repository touches downstream is therefore scoped to the practice.
func PracticeMiddleware(pool *pgxpool.Pool, defaultPractice string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			practiceID := extractPracticeID(c, defaultPractice)

			if !practiceIDPattern.MatchString(practiceID) {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid practice identifier")
			}

			ctx := c.Request().Context()
			conn, err := pool.Acquire(ctx)
			if err != nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "database unavailable")
			}
			defer conn.Release()

			schema := fmt.Sprintf("practice_%s", practiceID)
			_, err = conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s, public", schema))
			if err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "practice resolution failed")
			}

			ctx = context.WithValue(ctx, PracticeIDKey, practiceID)
			ctx = context.WithValue(ctx, DBConnKey, conn)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("practice_id", practiceID)

			return next(c)
		}
	}
}

func extractPracticeID(c echo.Context, defaultPractice string) string {
	// 1. JWT claim (set by auth middleware)
	if pid, ok := c.Get("jwt_practice_id").(string); ok && pid != "" {
		return pid
	}

	// 2. X-Practice-ID header
	if pid := c.Request().Header.Get("X-Practice-ID"); pid != "" {
		return pid
	}

	// 3. Query parameter
	if pid := c.QueryParam("practice_id"); pid != "" {
		return pid
	}

	return defaultPractice
}

// QuerierFromContext returns the unit of work the context carries: an open
// transaction first, then the practice-scoped connection. Nil means the
// caller should fall back to its pool.
func QuerierFromContext(ctx context.Context) Querier {
	if tx, ok := ctx.Value(TxKey).(pgx.Tx); ok && tx != nil {
		return tx
	}
	if conn, ok := ctx.Value(DBConnKey).(*pgxpool.Conn); ok && conn != nil {
		return conn
	}
	return nil
}

// PracticeFromContext retrieves the practice ID from context.
func PracticeFromContext(ctx context.Context) string {
	pid, _ := ctx.Value(PracticeIDKey).(string)
	return pid
}

// CreatePracticeSchema creates a new schema for a practice and runs all
// migrations against it. If migrationsDir is empty, migrations are skipped.
func CreatePracticeSchema(ctx context.Context, pool *pgxpool.Pool, practiceID string, migrationsDir string) error {
	if !practiceIDPattern.MatchString(practiceID) {
		return fmt.Errorf("invalid practice identifier: %s", practiceID)
	}

	schema := fmt.Sprintf("practice_%s", practiceID)

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema))
	if err != nil {
		return fmt.Errorf("create schema %s: %w", schema, err)
	}

	if migrationsDir != "" {
		migrator := NewMigrator(pool, migrationsDir)
		if _, err := migrator.Up(ctx, schema); err != nil {
			return fmt.Errorf("run migrations for %s: %w", schema, err)
		}
	}

	return nil
}
