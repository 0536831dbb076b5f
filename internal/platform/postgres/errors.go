package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	codeForeignKeyViolation  = "23503"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeQueryCanceled        = "57014"
)

// SQLState returns the SQLSTATE code of a wrapped *pgconn.PgError, or "".
func SQLState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsForeignKeyViolation reports a delete blocked by a referencing row that
// no earlier step removed.
func IsForeignKeyViolation(err error) bool {
	return SQLState(err) == codeForeignKeyViolation
}

// IsRetryable reports serialization failures and deadlocks; the whole
// transaction may be retried.
func IsRetryable(err error) bool {
	switch SQLState(err) {
	case codeSerializationFailure, codeDeadlockDetected:
		return true
	}
	return false
}

// IsTimeout reports a statement canceled by statement_timeout or a context
// deadline.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return SQLState(err) == codeQueryCanceled
}

// ConstraintName returns the violated constraint of a wrapped
// *pgconn.PgError, or "".
func ConstraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}
