package sales

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/safar/go-pos-store/internal/models"
)

// SaleStore is the transaction-scoped persistence surface the engine needs.
// Every call runs inside the one transaction opened by a Transactor.
type SaleStore interface {
	LockProducts(ctx context.Context, ids []int64) (map[int64]models.ProductSnapshot, error)
	DecrementStock(ctx context.Context, productID int64, quantity int) error
	IncrementStock(ctx context.Context, productID int64, quantity int) error
	InsertSale(ctx context.Context, sale *models.Sale) error
	InsertSaleLine(ctx context.Context, line *models.SaleLine) error
	LockSale(ctx context.Context, id int64) (*models.Sale, error)
	DeleteSale(ctx context.Context, id int64) error
	InsertOutboxEvent(ctx context.Context, eventType string, saleID int64, payload json.RawMessage) error
}

// Draft is a validated and priced sale that has not been written yet.
type Draft struct {
	UserID        int64
	PaymentMethod models.PaymentMethod
	Lines         []ValidatedLine
	Totals        Totals
}

// Writer persists a Draft: header, lines, stock decrements and the
// sale.registered outbox event, in that order.
type Writer struct{}

func NewWriter() *Writer {
	return &Writer{}
}

func (w *Writer) Write(ctx context.Context, st SaleStore, draft Draft) (*models.Sale, error) {
	sale := &models.Sale{
		UserID:        draft.UserID,
		PaymentMethod: draft.PaymentMethod,
		Subtotal:      draft.Totals.Subtotal,
		TaxTotal:      draft.Totals.TaxTotal,
		Total:         draft.Totals.Total,
	}

	if err := st.InsertSale(ctx, sale); err != nil {
		return nil, err
	}

	sale.Lines = make([]models.SaleLine, 0, len(draft.Lines))
	for i, vl := range draft.Lines {
		line := models.SaleLine{
			SaleID:       sale.ID,
			ProductID:    vl.Product.ID,
			Quantity:     vl.Request.Quantity,
			UnitPrice:    vl.Product.Price,
			UnitCost:     vl.Product.Cost,
			LineSubtotal: draft.Totals.Lines[i].Subtotal,
			LineTax:      draft.Totals.Lines[i].Tax,
		}
		if err := st.InsertSaleLine(ctx, &line); err != nil {
			return nil, err
		}
		sale.Lines = append(sale.Lines, line)
	}

	for _, line := range sale.Lines {
		if err := st.DecrementStock(ctx, line.ProductID, line.Quantity); err != nil {
			return nil, fmt.Errorf("decrement stock for product %d: %w", line.ProductID, err)
		}
	}

	if err := recordEvent(ctx, st, models.EventSaleRegistered, sale, sale.CreatedAt); err != nil {
		return nil, err
	}

	return sale, nil
}
