package pricing

import (
	"math"
	"testing"
)

const tolerance = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) <= tolerance*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}

func TestLineDerivedAmounts(t *testing.T) {
	cases := []struct {
		name     string
		quantity int
		price    float64
	}{
		{"small", 1, 500},
		{"kim scenario", 2, 1000},
		{"bulk", 37, 12900},
		{"fractional price", 3, 99.9},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			amounts := Line(tc.quantity, tc.price)

			wantSupply := float64(tc.quantity) * tc.price
			if !almostEqual(amounts.SupplyValue, wantSupply) {
				t.Fatalf("supply value = %v, want %v", amounts.SupplyValue, wantSupply)
			}
			if !almostEqual(amounts.VAT, amounts.SupplyValue*0.1) {
				t.Fatalf("vat = %v, want supply*0.1 = %v", amounts.VAT, amounts.SupplyValue*0.1)
			}
			if !almostEqual(amounts.Total, amounts.SupplyValue+amounts.VAT) {
				t.Fatalf("total = %v, want supply+vat = %v", amounts.Total, amounts.SupplyValue+amounts.VAT)
			}
		})
	}
}

func TestKimScenario(t *testing.T) {
	amounts := Line(2, 1000)
	if amounts.SupplyValue != 2000 {
		t.Fatalf("supply value = %v, want 2000", amounts.SupplyValue)
	}
	if amounts.VAT != 200 {
		t.Fatalf("vat = %v, want 200", amounts.VAT)
	}
	if amounts.Total != 2200 {
		t.Fatalf("total = %v, want 2200", amounts.Total)
	}
	if points := AccruePoints(amounts.Total); points != 22 {
		t.Fatalf("points = %d, want 22", points)
	}
}

func TestSumAggregatesLines(t *testing.T) {
	lines := []LineAmounts{
		Line(2, 1000),
		Line(1, 350),
		Line(5, 80),
	}

	totals := Sum(lines)

	var wantSupply, wantVAT, wantTotal float64
	for _, line := range lines {
		wantSupply += line.SupplyValue
		wantVAT += line.VAT
		wantTotal += line.Total
	}
	if !almostEqual(totals.SupplyValue, wantSupply) || !almostEqual(totals.VAT, wantVAT) || !almostEqual(totals.Total, wantTotal) {
		t.Fatalf("totals = %+v, want supply=%v vat=%v total=%v", totals, wantSupply, wantVAT, wantTotal)
	}
}

func TestAccruePointsFloors(t *testing.T) {
	cases := []struct {
		total float64
		want  int
	}{
		{0, 0},
		{-500, 0},
		{99, 0},
		{100, 1},
		{2200, 22},
		{2299.99, 22},
		{123456.78, 1234},
	}

	for _, tc := range cases {
		if got := AccruePoints(tc.total); got != tc.want {
			t.Fatalf("AccruePoints(%v) = %d, want %d", tc.total, got, tc.want)
		}
	}
}
