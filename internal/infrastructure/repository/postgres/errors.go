package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kirillkom/docvault/internal/core/domain"
)

const (
	uniqueViolation     = "23505"
	serializationFailed = "40001"
	deadlockDetected    = "40P01"
	tooManyConnections  = "53300"
	adminShutdown       = "57P01"
)

// writeError maps server-side failures of a write to domain kinds. Errors
// without a Postgres code are only annotated.
func writeError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return fmt.Errorf("%s: %w", operation, err)
	}
	switch pgErr.Code {
	case uniqueViolation:
		return domain.WrapError(domain.ErrConflict, operation, fmt.Errorf("%s: %w", pgErr.ConstraintName, err))
	case serializationFailed, deadlockDetected, tooManyConnections, adminShutdown:
		return domain.WrapError(domain.ErrTemporary, operation, err)
	default:
		return fmt.Errorf("%s: %w", operation, err)
	}
}
