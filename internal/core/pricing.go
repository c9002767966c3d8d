package core

import "math"

// Pricing is the pair of derived amounts for one expense line.
type Pricing struct {
	UnitPrice  Money
	TotalPrice Money
}

// DerivePricing computes unit and total price from the raw form input.
//
// In total mode the amount is the line total and the unit price is the
// total divided by the quantity; a zero quantity yields a zero unit
// price rather than a division fault. In unit mode the amount is the
// per-unit price and the total is unit times quantity. Divisions and
// multiplications round half-up to whole cents.
//
// The derivation happens exactly once, at write time. Stored expenses
// keep these values verbatim and rollups never re-derive them.
func DerivePricing(amount Money, quantity float64, mode PriceMode) Pricing {
	switch mode {
	case PriceUnit:
		return Pricing{
			UnitPrice:  amount,
			TotalPrice: mulCents(amount, quantity),
		}
	default:
		// Total mode is the form default; unknown modes fall back to it.
		return Pricing{
			UnitPrice:  divCents(amount, quantity),
			TotalPrice: amount,
		}
	}
}

func mulCents(m Money, q float64) Money {
	return Money{Cents: int64(math.Round(float64(m.Cents) * q))}
}

func divCents(m Money, q float64) Money {
	if q <= 0 {
		return Money{}
	}
	return Money{Cents: int64(math.Round(float64(m.Cents) / q))}
}
