package repositories

import (
	stderrors "errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres SQLSTATEs after which a transaction can simply be run again.
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

func isRetryableTxError(err error) bool {
	var pgErr *pgconn.PgError
	if !stderrors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == sqlStateSerializationFailure || pgErr.Code == sqlStateDeadlockDetected
}
