// Package postgres is the PostgreSQL query layer for sage.
//
// It exposes one Queries value per pool with typed params and row structs,
// so domain packages can declare narrow consumer interfaces over exactly
// the calls they make (the same seam the stores use for mocking in tests).
//
// All statements are parameterized; metadata filters are always marshaled
// JSON, never interpolated text.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is the common interface satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries provides typed access to sage's tables.
//
// Queries is safe for concurrent use by multiple goroutines.
type Queries struct {
	db DBTX
}

// New creates a Queries value over a pool or transaction.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// NewPool opens a pgx connection pool with the given DSN.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
