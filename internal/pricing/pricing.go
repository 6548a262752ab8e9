package pricing

import "math"

const (
	// VATRate is the fixed value-added tax applied to the supply value.
	VATRate = 0.10
	// AccrualRate is the share of the transaction total credited as points.
	AccrualRate = 0.01
)

// LineAmounts holds the derived monetary fields of one line item.
type LineAmounts struct {
	SupplyValue float64
	VAT         float64
	Total       float64
}

// Line computes the derived amounts for a quantity/price pair. Values stay
// floating point; nothing is rounded until point accrual.
func Line(quantity int, price float64) LineAmounts {
	supply := float64(quantity) * price
	vat := supply * VATRate
	return LineAmounts{
		SupplyValue: supply,
		VAT:         vat,
		Total:       supply + vat,
	}
}

// Sum aggregates per-line amounts into transaction totals.
func Sum(lines []LineAmounts) LineAmounts {
	var totals LineAmounts
	for _, line := range lines {
		totals.SupplyValue += line.SupplyValue
		totals.VAT += line.VAT
		totals.Total += line.Total
	}
	return totals
}

// AccruePoints converts a transaction total into loyalty points,
// floored to a whole point.
func AccruePoints(totalAmount float64) int {
	if totalAmount <= 0 {
		return 0
	}
	return int(math.Floor(totalAmount * AccrualRate))
}
