package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

type scanner interface {
	Scan(dest ...any) error
}

// Querier is satisfied by both *sql.DB and *sql.Tx, so read helpers can run
// inside or outside a unit of work.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const pqUniqueViolation = "23505"

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != pqUniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}
