package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DB is satisfied by both *sql.DB and *sql.Tx.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Session runs the delete engine's rendered statements on a DB, typically
// the transaction a caller opened with WithTx.
type Session struct {
	db DB
}

func NewSession(db DB) *Session {
	if db == nil {
		return nil
	}
	return &Session{db: db}
}

// Exec runs a statement and returns the affected row count.
func (s *Session) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("session is not configured")
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// QueryIDs runs a single-column select and scans every row as an int64.
func (s *Session) QueryIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("session is not configured")
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// QueryRowContext exposes the underlying DB for single-row statements such
// as audit inserts made in the same transaction.
func (s *Session) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, query, args...)
}

// TxBeginner is satisfied by *sql.DB.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// WithTx runs fn inside a transaction, committing when fn returns nil and
// rolling back otherwise. A positive statementTimeout is set locally for the
// transaction.
func WithTx(ctx context.Context, db TxBeginner, statementTimeout time.Duration, fn func(tx *sql.Tx) error) error {
	if db == nil {
		return errors.New("db is required")
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if statementTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL statement_timeout = %d", statementTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("set statement timeout: %w", err)
		}
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
