package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/safar/go-pos-store/internal/models"
)

// Tx binds the transactional store functions to one open transaction.
type Tx struct {
	tx *sql.Tx
}

func NewTx(tx *sql.Tx) *Tx {
	return &Tx{tx: tx}
}

func (t *Tx) LockProducts(ctx context.Context, ids []int64) (map[int64]models.ProductSnapshot, error) {
	return LockProducts(ctx, t.tx, ids)
}

func (t *Tx) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	return DecrementStock(ctx, t.tx, productID, quantity)
}

func (t *Tx) IncrementStock(ctx context.Context, productID int64, quantity int) error {
	return IncrementStock(ctx, t.tx, productID, quantity)
}

func (t *Tx) InsertSale(ctx context.Context, sale *models.Sale) error {
	return InsertSale(ctx, t.tx, sale)
}

func (t *Tx) InsertSaleLine(ctx context.Context, line *models.SaleLine) error {
	return InsertSaleLine(ctx, t.tx, line)
}

func (t *Tx) LockSale(ctx context.Context, id int64) (*models.Sale, error) {
	return LockSale(ctx, t.tx, id)
}

func (t *Tx) DeleteSale(ctx context.Context, id int64) error {
	return DeleteSale(ctx, t.tx, id)
}

func (t *Tx) InsertOutboxEvent(ctx context.Context, eventType string, saleID int64, payload json.RawMessage) error {
	_, err := InsertOutboxEvent(ctx, t.tx, eventType, saleID, payload)
	return err
}

// ProductSnapshot locks and reads a single product. ok is false when the
// product does not exist.
func (t *Tx) ProductSnapshot(ctx context.Context, id int64) (snapshot models.ProductSnapshot, ok bool, err error) {
	snapshots, err := LockProducts(ctx, t.tx, []int64{id})
	if err != nil {
		return models.ProductSnapshot{}, false, err
	}
	snapshot, ok = snapshots[id]
	return snapshot, ok, nil
}
