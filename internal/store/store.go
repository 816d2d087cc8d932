// Package store is the Postgres persistence layer. It owns the schema
// (embedded goose migrations), all SQL, and the error classification the
// retry policy at the transaction boundary depends on.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for goose
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateURL is returned when a target URL is already monitored.
	ErrDuplicateURL = errors.New("target url already exists")
	// ErrContention marks serialization failures, deadlocks and races on
	// the open-incident index. Callers retry the whole transaction.
	ErrContention = errors.New("store contention")
)

// Postgres error codes the store branches on.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// Store wraps a pgx connection pool.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	dsn    string
}

// New connects to Postgres and verifies the connection. It does not touch
// the schema; call Migrate for that.
func New(ctx context.Context, databaseURL string, logger *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{
		pool:   pool,
		logger: logger.With("component", "store"),
		dsn:    databaseURL,
	}, nil
}

// Migrate applies all pending schema migrations. Safe to run repeatedly;
// goose tracks applied versions.
func (s *Store) Migrate(ctx context.Context) error {
	subFS, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("sub filesystem: %w", err)
	}
	goose.SetBaseFS(subFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	db, err := sql.Open("pgx", s.dsn)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()

	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("apply schema migrations: %w", err)
	}
	return nil
}

// Ping verifies store connectivity; used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// IsContention reports whether err should be retried at the transaction
// boundary.
func IsContention(err error) bool {
	return errors.Is(err, ErrContention)
}

// classify maps low-level Postgres errors onto the store's sentinel errors.
// uniqueAs decides what a unique violation means in the calling context.
func classify(err error, uniqueAs error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("%w: %s", uniqueAs, pgErr.ConstraintName)
		case codeSerializationFailure, codeDeadlockDetected:
			return fmt.Errorf("%w: %s", ErrContention, pgErr.Code)
		}
	}
	return err
}

// rowScanner abstracts pgx.Row and pgx.Rows for shared scan helpers.
type rowScanner interface {
	Scan(dest ...any) error
}

func noRowsAsNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
