package sales

import (
	"github.com/safar/go-pos-store/internal/models"
	"github.com/shopspring/decimal"
)

// PriceTolerance is the largest accepted gap between the submitted unit price
// and the catalog price.
var PriceTolerance = decimal.New(1, -2)

type LineRequest struct {
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
}

// ValidatedLine pairs a cart line with the catalog row it was checked against.
type ValidatedLine struct {
	Request LineRequest
	Product models.ProductSnapshot
}

type Validator struct {
	tolerance decimal.Decimal
}

func NewValidator() *Validator {
	return &Validator{tolerance: PriceTolerance}
}

// CheckStructure applies the rules that need no catalog data: a non-empty
// cart, a known payment method, and positive quantity and price on every line.
func (v *Validator) CheckStructure(paymentMethod string, lines []LineRequest) error {
	if len(lines) == 0 {
		return &ValidationError{Reason: ReasonEmptyCart, Index: -1}
	}

	if !models.PaymentMethod(paymentMethod).Valid() {
		return &ValidationError{Reason: ReasonBadPaymentMethod, Index: -1}
	}

	for i, line := range lines {
		if line.Quantity <= 0 {
			return &ValidationError{Reason: ReasonBadQuantity, Index: i, ProductID: line.ProductID, Requested: line.Quantity}
		}
		if !line.UnitPrice.IsPositive() {
			return &ValidationError{Reason: ReasonBadPrice, Index: i, ProductID: line.ProductID, SubmittedPrice: line.UnitPrice}
		}
	}

	return nil
}

// CheckCatalog cross-checks each line, in cart order, against the locked
// catalog snapshot and stops at the first violation. Lines naming the same
// product draw from one running stock figure.
func (v *Validator) CheckCatalog(lines []LineRequest, catalog map[int64]models.ProductSnapshot) ([]ValidatedLine, error) {
	remaining := make(map[int64]int, len(catalog))
	for id, product := range catalog {
		remaining[id] = product.StockQuantity
	}

	validated := make([]ValidatedLine, 0, len(lines))
	for i, line := range lines {
		product, ok := catalog[line.ProductID]
		if !ok {
			return nil, &ValidationError{Reason: ReasonProductNotFound, Index: i, ProductID: line.ProductID}
		}

		available := remaining[line.ProductID]
		if available < line.Quantity {
			return nil, &ValidationError{
				Reason:    ReasonInsufficientStock,
				Index:     i,
				ProductID: line.ProductID,
				Available: available,
				Requested: line.Quantity,
			}
		}

		if product.Price.Sub(line.UnitPrice).Abs().GreaterThan(v.tolerance) {
			return nil, &ValidationError{
				Reason:         ReasonPriceMismatch,
				Index:          i,
				ProductID:      line.ProductID,
				CurrentPrice:   product.Price,
				SubmittedPrice: line.UnitPrice,
			}
		}

		remaining[line.ProductID] = available - line.Quantity
		validated = append(validated, ValidatedLine{Request: line, Product: product})
	}

	return validated, nil
}

func productIDs(lines []LineRequest) []int64 {
	ids := make([]int64, len(lines))
	for i, line := range lines {
		ids[i] = line.ProductID
	}
	return ids
}
