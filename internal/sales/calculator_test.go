package sales

import (
	"testing"

	"github.com/safar/go-pos-store/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validatedLine(price string, qty int, taxable bool) ValidatedLine {
	return ValidatedLine{
		Request: LineRequest{Quantity: qty, UnitPrice: dec(price)},
		Product: models.ProductSnapshot{Price: dec(price), StockQuantity: qty, TaxEligible: taxable},
	}
}

func assertDec(t *testing.T, want string, got interface{ StringFixed(int32) string }) {
	t.Helper()
	assert.Equal(t, want, got.StringFixed(2))
}

func TestCalculatorCompute(t *testing.T) {
	calc := NewCalculator(dec("0.18"))

	t.Run("single taxable line", func(t *testing.T) {
		totals := calc.Compute([]ValidatedLine{validatedLine("175.00", 2, true)})

		assertDec(t, "350.00", totals.Subtotal)
		assertDec(t, "63.00", totals.TaxTotal)
		assertDec(t, "413.00", totals.Total)
		require.Len(t, totals.Lines, 1)
		assertDec(t, "350.00", totals.Lines[0].Subtotal)
		assertDec(t, "63.00", totals.Lines[0].Tax)
	})

	t.Run("exempt line", func(t *testing.T) {
		totals := calc.Compute([]ValidatedLine{
			validatedLine("100.00", 1, true),
			validatedLine("50.00", 3, false),
		})

		assertDec(t, "250.00", totals.Subtotal)
		assertDec(t, "18.00", totals.TaxTotal)
		assertDec(t, "268.00", totals.Total)
		assertDec(t, "0.00", totals.Lines[1].Tax)
	})

	t.Run("line tax rounds half away from zero", func(t *testing.T) {
		// 0.25 * 0.18 = 0.045 -> 0.05 per line, twice.
		totals := calc.Compute([]ValidatedLine{
			validatedLine("0.25", 1, true),
			validatedLine("0.25", 1, true),
		})

		assertDec(t, "0.05", totals.Lines[0].Tax)
		assertDec(t, "0.10", totals.TaxTotal)
		assertDec(t, "0.60", totals.Total)
	})

	t.Run("total equals subtotal plus tax", func(t *testing.T) {
		totals := calc.Compute([]ValidatedLine{
			validatedLine("19.99", 3, true),
			validatedLine("0.33", 7, true),
			validatedLine("4.10", 1, false),
		})

		assert.True(t, totals.Total.Equal(totals.Subtotal.Add(totals.TaxTotal)))
		assert.Equal(t, int32(-2), totals.Total.Exponent())
	})

	t.Run("zero rate", func(t *testing.T) {
		totals := NewCalculator(dec("0")).Compute([]ValidatedLine{validatedLine("9.99", 2, true)})
		assertDec(t, "0.00", totals.TaxTotal)
		assertDec(t, "19.98", totals.Total)
	})
}
