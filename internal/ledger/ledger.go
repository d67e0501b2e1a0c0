// Package ledger implements the billed-minus-paid balance shared by
// clients, suppliers, workers and transporters.
package ledger

import "github.com/shopspring/decimal"

// Balance is what a party has been billed (or earned), what was paid, and
// the difference. A negative Due is an advance.
type Balance struct {
	Billed float64 `json:"billed"`
	Paid   float64 `json:"paid"`
	Due    float64 `json:"due"`
}

// Compute builds a Balance from its two sides.
func Compute(billed, paid float64) Balance {
	b := decimal.NewFromFloat(billed).Round(2)
	p := decimal.NewFromFloat(paid).Round(2)
	return Balance{
		Billed: b.InexactFloat64(),
		Paid:   p.InexactFloat64(),
		Due:    b.Sub(p).Round(2).InexactFloat64(),
	}
}

// Sum adds money values without float drift.
func Sum(values ...float64) float64 {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(decimal.NewFromFloat(v))
	}
	return total.Round(2).InexactFloat64()
}

// Outstanding is the positive part of Due.
func (b Balance) Outstanding() float64 {
	if b.Due > 0 {
		return b.Due
	}
	return 0
}

// Advance is how much was paid beyond what was billed.
func (b Balance) Advance() float64 {
	if b.Due < 0 {
		return -b.Due
	}
	return 0
}

// Settled reports whether nothing is owed either way.
func (b Balance) Settled() bool {
	return b.Due == 0
}

// Totals aggregates a list of balances.
type Totals struct {
	Billed      float64 `json:"billed"`
	Paid        float64 `json:"paid"`
	Outstanding float64 `json:"outstanding"`
	Advance     float64 `json:"advance"`
}

// Aggregate sums balances, keeping debts and advances apart so one party's
// advance never hides another party's debt.
func Aggregate(balances []Balance) Totals {
	var billed, paid, out, adv decimal.Decimal
	for _, b := range balances {
		billed = billed.Add(decimal.NewFromFloat(b.Billed))
		paid = paid.Add(decimal.NewFromFloat(b.Paid))
		out = out.Add(decimal.NewFromFloat(b.Outstanding()))
		adv = adv.Add(decimal.NewFromFloat(b.Advance()))
	}
	return Totals{
		Billed:      billed.Round(2).InexactFloat64(),
		Paid:        paid.Round(2).InexactFloat64(),
		Outstanding: out.Round(2).InexactFloat64(),
		Advance:     adv.Round(2).InexactFloat64(),
	}
}

// HalfDays is one attendance row.
type HalfDays struct {
	Morning bool
	Evening bool
}

// Days counts a morning or an evening as half a day each.
func (h HalfDays) Days() float64 {
	d := 0.0
	if h.Morning {
		d += 0.5
	}
	if h.Evening {
		d += 0.5
	}
	return d
}

// WorkedDays totals the days recorded across attendance rows.
func WorkedDays(rows []HalfDays) float64 {
	d := 0.0
	for _, r := range rows {
		d += r.Days()
	}
	return d
}

// Earned is days × daily rate.
func Earned(days, dailyRate float64) float64 {
	return decimal.NewFromFloat(days).Mul(decimal.NewFromFloat(dailyRate)).Round(2).InexactFloat64()
}

// NonNegative clamps v at zero. Used for aggregate debts where an overall
// surplus should read as no debt.
func NonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
