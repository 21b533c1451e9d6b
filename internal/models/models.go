package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int       `json:"version"`
}

type Product struct {
	ID            int64               `json:"id"`
	SKU           string              `json:"sku"`
	Name          string              `json:"name"`
	Description   string              `json:"description,omitempty"`
	Price         decimal.Decimal     `json:"price"`
	Cost          decimal.NullDecimal `json:"cost"`
	StockQuantity int                 `json:"stock_quantity"`
	TaxEligible   bool                `json:"tax_eligible"`
	MinStock      *int                `json:"min_stock,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
	Version       int                 `json:"version"`
}

// ProductSnapshot is the slice of catalog state a sale depends on, read under
// a row lock inside the sale's transaction.
type ProductSnapshot struct {
	ID            int64
	Price         decimal.Decimal
	Cost          decimal.NullDecimal
	StockQuantity int
	TaxEligible   bool
}

type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentCard     PaymentMethod = "card"
	PaymentTransfer PaymentMethod = "transfer"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentTransfer:
		return true
	}
	return false
}

// Sale is immutable once committed; totals are never recomputed from the catalog.
type Sale struct {
	ID            int64           `json:"id"`
	SaleNumber    string          `json:"sale_number"`
	UserID        int64           `json:"user_id"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	TaxTotal      decimal.Decimal `json:"tax_total"`
	Total         decimal.Decimal `json:"total"`
	CreatedAt     time.Time       `json:"created_at"`
	Lines         []SaleLine      `json:"lines,omitempty"`
}

type SaleLine struct {
	ID           int64               `json:"id"`
	SaleID       int64               `json:"sale_id"`
	ProductID    int64               `json:"product_id"`
	Quantity     int                 `json:"quantity"`
	UnitPrice    decimal.Decimal     `json:"unit_price"`
	UnitCost     decimal.NullDecimal `json:"unit_cost"`
	LineSubtotal decimal.Decimal     `json:"line_subtotal"`
	LineTax      decimal.Decimal     `json:"line_tax"`
}

const (
	EventSaleRegistered = "sale.registered"
	EventSaleCancelled  = "sale.cancelled"
)

const (
	OutboxStatusPending    = "pending"
	OutboxStatusProcessing = "processing"
	OutboxStatusProcessed  = "processed"
)

type OutboxEvent struct {
	ID          int64           `json:"id"`
	EventID     string          `json:"event_id"`
	EventType   string          `json:"event_type"`
	SaleID      int64           `json:"sale_id"`
	Payload     json.RawMessage `json:"payload"`
	Status      string          `json:"status"`
	Attempts    int             `json:"attempts"`
	CreatedAt   time.Time       `json:"created_at"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
}
