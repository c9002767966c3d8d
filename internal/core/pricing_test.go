package core

import "testing"

func TestDerivePricing(t *testing.T) {
	cases := []struct {
		name      string
		amount    int64
		quantity  float64
		mode      PriceMode
		wantUnit  int64
		wantTotal int64
	}{
		{"unit mode multiplies", 1000, 3, PriceUnit, 1000, 3000},
		{"total mode divides", 10000, 4, PriceTotal, 2500, 10000},
		{"zero quantity total mode", 5000, 0, PriceTotal, 0, 5000},
		{"zero quantity unit mode", 5000, 0, PriceUnit, 5000, 0},
		{"fractional quantity", 1000, 2.5, PriceUnit, 1000, 2500},
		{"uneven division rounds half-up", 1000, 3, PriceTotal, 333, 1000},
		{"unknown mode falls back to total", 500, 2, PriceMode("x"), 250, 500},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DerivePricing(Money{Cents: tc.amount}, tc.quantity, tc.mode)
			if got.UnitPrice.Cents != tc.wantUnit {
				t.Fatalf("unit price: expected %d, got %d", tc.wantUnit, got.UnitPrice.Cents)
			}
			if got.TotalPrice.Cents != tc.wantTotal {
				t.Fatalf("total price: expected %d, got %d", tc.wantTotal, got.TotalPrice.Cents)
			}
		})
	}
}

func TestDerivePricingRoundTrip(t *testing.T) {
	// The entered amount must come back verbatim on its own side of the
	// derivation for any quantity.
	amounts := []int64{1, 99, 1234, 100000}
	quantities := []float64{0, 1, 2, 3.5, 10}
	for _, a := range amounts {
		for _, q := range quantities {
			if got := DerivePricing(Money{Cents: a}, q, PriceUnit); got.UnitPrice.Cents != a {
				t.Fatalf("unit mode: amount %d qty %v changed unit price to %d", a, q, got.UnitPrice.Cents)
			}
			if got := DerivePricing(Money{Cents: a}, q, PriceTotal); got.TotalPrice.Cents != a {
				t.Fatalf("total mode: amount %d qty %v changed total price to %d", a, q, got.TotalPrice.Cents)
			}
		}
	}
}
