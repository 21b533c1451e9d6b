package sales

import (
	"errors"
	"fmt"

	"github.com/safar/go-pos-store/internal/database"
	"github.com/shopspring/decimal"
)

// Reason is the machine-checkable code carried by a ValidationError.
type Reason string

const (
	ReasonEmptyCart         Reason = "empty-cart"
	ReasonBadPaymentMethod  Reason = "bad-payment-method"
	ReasonBadQuantity       Reason = "bad-quantity"
	ReasonBadPrice          Reason = "bad-price"
	ReasonProductNotFound   Reason = "product-not-found"
	ReasonInsufficientStock Reason = "insufficient-stock"
	ReasonPriceMismatch     Reason = "price-mismatch"
)

// ValidationError rejects a sale request as a whole. Only the fields relevant
// to Reason are populated; Index is the zero-based cart position for the
// per-line structural reasons and -1 otherwise.
type ValidationError struct {
	Reason         Reason
	Index          int
	ProductID      int64
	Available      int
	Requested      int
	CurrentPrice   decimal.Decimal
	SubmittedPrice decimal.Decimal
}

func (e *ValidationError) Error() string {
	switch e.Reason {
	case ReasonEmptyCart:
		return "sale must contain at least one line"
	case ReasonBadPaymentMethod:
		return "payment method must be one of cash, card, transfer"
	case ReasonBadQuantity:
		return fmt.Sprintf("line %d: quantity must be greater than zero", e.Index)
	case ReasonBadPrice:
		return fmt.Sprintf("line %d: unit price must be greater than zero", e.Index)
	case ReasonProductNotFound:
		return fmt.Sprintf("product %d does not exist", e.ProductID)
	case ReasonInsufficientStock:
		return fmt.Sprintf("product %d: insufficient stock (available %d, requested %d)",
			e.ProductID, e.Available, e.Requested)
	case ReasonPriceMismatch:
		return fmt.Sprintf("product %d: price changed (current %s, submitted %s)",
			e.ProductID, e.CurrentPrice.StringFixed(2), e.SubmittedPrice.StringFixed(2))
	default:
		return fmt.Sprintf("invalid sale: %s", e.Reason)
	}
}

// IsReason reports whether err is a ValidationError with the given reason.
func IsReason(err error, reason Reason) bool {
	var ve *ValidationError
	return errors.As(err, &ve) && ve.Reason == reason
}

type ConflictReason string

const (
	ConflictDuplicate    ConflictReason = "duplicate"
	ConflictForeignKey   ConflictReason = "foreign-key"
	ConflictType         ConflictReason = "type"
	ConflictNotNull      ConflictReason = "not-null"
	ConflictCheck        ConflictReason = "check"
	ConflictStockChanged ConflictReason = "stock-changed"
	// ConflictKeyReused: the idempotency key belongs to a sale that has
	// since been cancelled, so there is nothing left to replay.
	ConflictKeyReused ConflictReason = "idempotency-key-reused"
)

// ConflictError is a storage integrity violation surfaced with its class.
type ConflictError struct {
	Reason     ConflictReason
	Constraint string
	err        error
}

func (e *ConflictError) Error() string {
	switch e.Reason {
	case ConflictDuplicate:
		return "conflict: record already exists"
	case ConflictForeignKey:
		return "conflict: referenced record does not exist"
	case ConflictType:
		return "conflict: value has the wrong type or is out of range"
	case ConflictNotNull:
		return "conflict: required value is missing"
	case ConflictCheck:
		return "conflict: value violates a data rule"
	case ConflictStockChanged:
		return "conflict: stock changed while the sale was being written"
	case ConflictKeyReused:
		return "conflict: idempotency key refers to a cancelled sale"
	default:
		return "conflict: " + string(e.Reason)
	}
}

func (e *ConflictError) Unwrap() error { return e.err }

const (
	CodeTimeout  = "timeout"
	CodeInternal = "internal"
)

// ServerError hides the underlying failure behind a stable code. The cause is
// reachable through Unwrap for logging only.
type ServerError struct {
	Code string
	err  error
}

func (e *ServerError) Error() string {
	if e.Code == CodeTimeout {
		return "server error: sale registration timed out"
	}
	return "server error: " + e.Code
}

func (e *ServerError) Unwrap() error { return e.err }

var (
	ErrSaleNotFound      = database.ErrSaleNotFound
	ErrRequestInProgress = errors.New("a request with this idempotency key is already in progress")
)
