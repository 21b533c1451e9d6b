package sales

import "github.com/shopspring/decimal"

// LineAmounts are the money figures of a single line, already rounded.
type LineAmounts struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
}

type Totals struct {
	Subtotal decimal.Decimal
	TaxTotal decimal.Decimal
	Total    decimal.Decimal
	Lines    []LineAmounts
}

// Calculator prices a validated cart. Every amount is rounded to cents at the
// line level before summing, then again on the aggregates.
type Calculator struct {
	taxRate decimal.Decimal
}

func NewCalculator(taxRate decimal.Decimal) *Calculator {
	return &Calculator{taxRate: taxRate}
}

func (c *Calculator) Compute(lines []ValidatedLine) Totals {
	amounts := make([]LineAmounts, len(lines))
	subtotal := decimal.Zero
	taxTotal := decimal.Zero

	for i, line := range lines {
		lineSubtotal := round2(line.Product.Price.Mul(decimal.NewFromInt(int64(line.Request.Quantity))))
		lineTax := decimal.Zero
		if line.Product.TaxEligible {
			lineTax = round2(lineSubtotal.Mul(c.taxRate))
		}

		amounts[i] = LineAmounts{Subtotal: lineSubtotal, Tax: lineTax}
		subtotal = subtotal.Add(lineSubtotal)
		taxTotal = taxTotal.Add(lineTax)
	}

	subtotal = round2(subtotal)
	taxTotal = round2(taxTotal)

	return Totals{
		Subtotal: subtotal,
		TaxTotal: taxTotal,
		Total:    round2(subtotal.Add(taxTotal)),
		Lines:    amounts,
	}
}

// round2 rounds half away from zero to two fraction digits.
func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
