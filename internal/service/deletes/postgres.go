package deletes

import (
	"context"
	"database/sql"
	"time"

	"github.com/animus-labs/cascade/internal/platform/postgres"
)

// PostgresTransactor runs each delete in its own *sql.Tx with a local
// statement timeout.
type PostgresTransactor struct {
	DB               postgres.TxBeginner
	StatementTimeout time.Duration
}

func (t PostgresTransactor) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return postgres.WithTx(ctx, t.DB, t.StatementTimeout, func(tx *sql.Tx) error {
		return fn(ctx, postgres.NewSession(tx))
	})
}
