package sales

import (
	"context"
	"database/sql"

	"github.com/safar/go-pos-store/internal/database"
	"github.com/safar/go-pos-store/internal/models"
	"github.com/safar/go-pos-store/internal/store"
)

// PostgresTransactor opens READ COMMITTED transactions and retries them on
// deadlock, serialization failure and lock timeout.
type PostgresTransactor struct {
	db   *sql.DB
	opts database.TxOptions
}

func NewPostgresTransactor(db *sql.DB, maxRetries int) *PostgresTransactor {
	opts := database.DefaultTxOptions()
	if maxRetries >= 0 {
		opts.MaxRetries = maxRetries
	}
	return &PostgresTransactor{db: db, opts: opts}
}

func (p *PostgresTransactor) InTx(ctx context.Context, fn func(ctx context.Context, st SaleStore) error) error {
	return database.WithRetry(ctx, p.db, p.opts, func(tx *sql.Tx) error {
		return fn(ctx, store.NewTx(tx))
	})
}

type PostgresReader struct {
	db *sql.DB
}

func NewPostgresReader(db *sql.DB) *PostgresReader {
	return &PostgresReader{db: db}
}

func (r *PostgresReader) GetSale(ctx context.Context, id int64) (*models.Sale, error) {
	return store.GetSale(ctx, r.db, id)
}

func (r *PostgresReader) ListSales(ctx context.Context, cursor string, limit int) (*store.CursorPage, error) {
	return store.ListSalesCursor(ctx, r.db, cursor, limit)
}
