package sales

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/safar/go-pos-store/internal/models"
	"github.com/shopspring/decimal"
)

// SaleEvent is the outbox payload for sale.registered and sale.cancelled.
type SaleEvent struct {
	EventType     string               `json:"event_type"`
	SaleID        int64                `json:"sale_id"`
	SaleNumber    string               `json:"sale_number"`
	UserID        int64                `json:"user_id"`
	PaymentMethod models.PaymentMethod `json:"payment_method"`
	Subtotal      decimal.Decimal      `json:"subtotal"`
	TaxTotal      decimal.Decimal      `json:"tax_total"`
	Total         decimal.Decimal      `json:"total"`
	Lines         []SaleEventLine      `json:"lines"`
	OccurredAt    time.Time            `json:"occurred_at"`
}

type SaleEventLine struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func newSaleEvent(eventType string, sale *models.Sale, at time.Time) SaleEvent {
	lines := make([]SaleEventLine, len(sale.Lines))
	for i, l := range sale.Lines {
		lines[i] = SaleEventLine{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: l.UnitPrice}
	}

	return SaleEvent{
		EventType:     eventType,
		SaleID:        sale.ID,
		SaleNumber:    sale.SaleNumber,
		UserID:        sale.UserID,
		PaymentMethod: sale.PaymentMethod,
		Subtotal:      sale.Subtotal,
		TaxTotal:      sale.TaxTotal,
		Total:         sale.Total,
		Lines:         lines,
		OccurredAt:    at.UTC(),
	}
}

func recordEvent(ctx context.Context, st SaleStore, eventType string, sale *models.Sale, at time.Time) error {
	payload, err := json.Marshal(newSaleEvent(eventType, sale, at))
	if err != nil {
		return fmt.Errorf("encode %s event: %w", eventType, err)
	}
	return st.InsertOutboxEvent(ctx, eventType, sale.ID, payload)
}
