package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/swpuclaylee/APIFlask/internal/autherr"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// MapError translates a database error for op. Unique violations become
// *autherr.ConstraintError (matching autherr.ErrConstraintViolation), foreign key violations
// become autherr.ErrNotFound and everything else is autherr.ErrStoreUnavailable. nil stays nil.
func MapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return &autherr.ConstraintError{Op: op, Constraint: pgErr.ConstraintName}
		case pgErrForeignKeyViolation:
			return fmt.Errorf("%s: %w: %s", op, autherr.ErrNotFound, pgErr.ConstraintName)
		}
	}
	return autherr.Unavailable(op, err)
}

// IsUniqueViolation reports whether err is a Postgres unique violation, optionally on constraint.
func IsUniqueViolation(err error, constraint string) bool {
	pgErr, ok := maybePgError(err)
	if !ok || pgErr.Code != pgErrUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// Bounded returns ctx limited to d. d <= 0 leaves ctx unbounded.
func Bounded(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
