package sales

import (
	"testing"

	"github.com/safar/go-pos-store/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCheckStructure(t *testing.T) {
	v := NewValidator()
	good := LineRequest{ProductID: 1, Quantity: 1, UnitPrice: dec("10.00")}

	tests := []struct {
		name   string
		method string
		lines  []LineRequest
		reason Reason
		index  int
	}{
		{"empty cart", "cash", nil, ReasonEmptyCart, -1},
		{"empty cart wins over bad method", "bitcoin", []LineRequest{}, ReasonEmptyCart, -1},
		{"unknown method", "bitcoin", []LineRequest{good}, ReasonBadPaymentMethod, -1},
		{"zero quantity", "card", []LineRequest{good, {ProductID: 2, Quantity: 0, UnitPrice: dec("1")}}, ReasonBadQuantity, 1},
		{"negative quantity", "card", []LineRequest{{ProductID: 2, Quantity: -3, UnitPrice: dec("1")}}, ReasonBadQuantity, 0},
		{"zero price", "transfer", []LineRequest{{ProductID: 2, Quantity: 1, UnitPrice: decimal.Zero}}, ReasonBadPrice, 0},
		{"negative price", "transfer", []LineRequest{good, good, {ProductID: 3, Quantity: 1, UnitPrice: dec("-5")}}, ReasonBadPrice, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.CheckStructure(tt.method, tt.lines)

			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.reason, ve.Reason)
			assert.Equal(t, tt.index, ve.Index)
		})
	}

	t.Run("valid", func(t *testing.T) {
		for _, m := range []string{"cash", "card", "transfer"} {
			assert.NoError(t, v.CheckStructure(m, []LineRequest{good}))
		}
	})
}

func TestCheckCatalog(t *testing.T) {
	v := NewValidator()
	catalog := map[int64]models.ProductSnapshot{
		1: {ID: 1, Price: dec("175.00"), StockQuantity: 5, TaxEligible: true},
		2: {ID: 2, Price: dec("10.00"), StockQuantity: 1},
	}

	t.Run("not found", func(t *testing.T) {
		_, err := v.CheckCatalog([]LineRequest{{ProductID: 99, Quantity: 1, UnitPrice: dec("1")}}, catalog)

		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, ReasonProductNotFound, ve.Reason)
		assert.Equal(t, int64(99), ve.ProductID)
	})

	t.Run("insufficient stock", func(t *testing.T) {
		_, err := v.CheckCatalog([]LineRequest{{ProductID: 1, Quantity: 6, UnitPrice: dec("175.00")}}, catalog)

		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, ReasonInsufficientStock, ve.Reason)
		assert.Equal(t, 5, ve.Available)
		assert.Equal(t, 6, ve.Requested)
	})

	t.Run("duplicate lines share stock", func(t *testing.T) {
		lines := []LineRequest{
			{ProductID: 1, Quantity: 3, UnitPrice: dec("175.00")},
			{ProductID: 1, Quantity: 3, UnitPrice: dec("175.00")},
		}
		_, err := v.CheckCatalog(lines, catalog)

		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, ReasonInsufficientStock, ve.Reason)
		assert.Equal(t, 1, ve.Index)
		assert.Equal(t, 2, ve.Available)
	})

	t.Run("price tolerance", func(t *testing.T) {
		tests := []struct {
			submitted string
			ok        bool
		}{
			{"175.00", true},
			{"174.99", true},
			{"175.01", true},
			{"174.98", false},
			{"175.02", false},
		}

		for _, tt := range tests {
			_, err := v.CheckCatalog([]LineRequest{{ProductID: 1, Quantity: 1, UnitPrice: dec(tt.submitted)}}, catalog)
			if tt.ok {
				assert.NoError(t, err, tt.submitted)
				continue
			}

			var ve *ValidationError
			require.ErrorAs(t, err, &ve, tt.submitted)
			assert.Equal(t, ReasonPriceMismatch, ve.Reason)
			assert.True(t, ve.CurrentPrice.Equal(dec("175.00")))
			assert.True(t, ve.SubmittedPrice.Equal(dec(tt.submitted)))
		}
	})

	t.Run("first violation in cart order", func(t *testing.T) {
		lines := []LineRequest{
			{ProductID: 2, Quantity: 1, UnitPrice: dec("12.00")},
			{ProductID: 99, Quantity: 1, UnitPrice: dec("1")},
		}
		_, err := v.CheckCatalog(lines, catalog)
		assert.True(t, IsReason(err, ReasonPriceMismatch))
	})

	t.Run("valid", func(t *testing.T) {
		lines := []LineRequest{
			{ProductID: 1, Quantity: 2, UnitPrice: dec("175.00")},
			{ProductID: 2, Quantity: 1, UnitPrice: dec("10.00")},
		}
		validated, err := v.CheckCatalog(lines, catalog)
		require.NoError(t, err)
		require.Len(t, validated, 2)
		assert.Equal(t, int64(1), validated[0].Product.ID)
		assert.Equal(t, 1, validated[1].Request.Quantity)
	})
}
