package portfolio

import (
	"math"
	"sort"
	"time"

	"github.com/bobmcallan/mfdesk/internal/models"
)

// cashFlow is one dated flow seen from the investor:
// negative = money invested, positive = money received or held.
type cashFlow struct {
	date   time.Time
	amount float64
}

// CalculateXIRR returns the annualised internal rate of return, in percent,
// of a set of fund transactions. BUY and SIP amounts are outflows, SELL
// amounts are inflows and currentValue is a final inflow at now.
// Returns 0 when the rate cannot be computed.
func CalculateXIRR(txns []*models.Transaction, currentValue float64, now time.Time) float64 {
	flows := make([]cashFlow, 0, len(txns)+1)
	for _, t := range txns {
		if t.Date.IsZero() {
			continue
		}
		amount, _ := t.Amount.Float64()
		switch {
		case t.Type.Inflow():
			flows = append(flows, cashFlow{date: t.Date, amount: -amount})
		case t.Type == models.TransactionSell:
			flows = append(flows, cashFlow{date: t.Date, amount: amount})
		}
	}
	if len(flows) == 0 {
		return 0
	}
	if currentValue > 0 {
		flows = append(flows, cashFlow{date: now, amount: currentValue})
	}

	sort.SliceStable(flows, func(i, j int) bool {
		return flows[i].date.Before(flows[j].date)
	})

	var hasNeg, hasPos bool
	for _, f := range flows {
		if f.amount < 0 {
			hasNeg = true
		}
		if f.amount > 0 {
			hasPos = true
		}
	}
	if !hasNeg || !hasPos {
		return 0
	}

	rate := solveXIRR(flows)
	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		return 0
	}
	return rate * 100
}

// solveXIRR finds r with NPV(r) = 0 by Newton-Raphson, falling back to
// bisection. Years are measured from the first flow in 365-day units.
func solveXIRR(flows []cashFlow) float64 {
	const (
		maxIter = 100
		tol     = 1e-7
		minRate = -0.999
		maxRate = 100.0
	)

	years := yearFractions(flows)

	var invested, received float64
	for _, f := range flows {
		if f.amount < 0 {
			invested -= f.amount
		} else {
			received += f.amount
		}
	}

	rate := 0.1
	if invested > 0 {
		if simple := received/invested - 1; simple > -0.9 && simple < 10 {
			rate = simple
		}
	}

	for iter := 0; iter < maxIter; iter++ {
		base := 1 + rate
		if base <= 0 {
			rate = minRate
			base = 1 + rate
		}

		var npv, dnpv float64
		for i, f := range flows {
			discount := math.Pow(base, years[i])
			if discount == 0 {
				continue
			}
			npv += f.amount / discount
			if years[i] != 0 {
				dnpv -= years[i] * f.amount / (discount * base)
			}
		}

		if math.Abs(npv) < tol {
			return rate
		}
		if dnpv == 0 {
			break
		}

		rate -= npv / dnpv
		rate = math.Max(minRate, math.Min(maxRate, rate))
	}

	return bisectXIRR(flows, years)
}

func yearFractions(flows []cashFlow) []float64 {
	base := flows[0].date
	years := make([]float64, len(flows))
	for i, f := range flows {
		years[i] = f.date.Sub(base).Hours() / 24 / 365
	}
	return years
}

// bisectXIRR searches [-0.99, 10] for a sign change of NPV. NaN when none.
func bisectXIRR(flows []cashFlow, years []float64) float64 {
	const (
		maxIter = 200
		tol     = 1e-6
	)

	npvAt := func(rate float64) float64 {
		var sum float64
		for i, f := range flows {
			sum += f.amount / math.Pow(1+rate, years[i])
		}
		return sum
	}

	lo, hi := -0.99, 10.0
	npvLo, npvHi := npvAt(lo), npvAt(hi)
	if npvLo*npvHi > 0 {
		return math.NaN()
	}

	for iter := 0; iter < maxIter; iter++ {
		mid := (lo + hi) / 2
		npvMid := npvAt(mid)
		if math.Abs(npvMid) < tol {
			return mid
		}
		if npvMid*npvLo < 0 {
			hi = mid
		} else {
			lo, npvLo = mid, npvMid
		}
	}
	return (lo + hi) / 2
}
