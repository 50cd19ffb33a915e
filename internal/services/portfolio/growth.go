package portfolio

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/mfdesk/internal/models"
)

// GrowthMonths is the length of the summary's growth series.
const GrowthMonths = 6

// holding replays one fund's transactions in date order.
type holding struct {
	nav    decimal.Decimal
	txns   []*models.Transaction
	cursor int
	units  decimal.Decimal
}

// advanceTo applies every transaction dated before cutoff.
func (h *holding) advanceTo(cutoff time.Time) {
	for h.cursor < len(h.txns) {
		t := h.txns[h.cursor]
		if !t.Date.Before(cutoff) {
			return
		}
		switch {
		case t.Type.Inflow():
			h.units = h.units.Add(t.Units)
		case t.Type == models.TransactionSell:
			h.units = h.units.Sub(t.Units)
			if h.units.IsNegative() {
				h.units = decimal.Zero
			}
		}
		h.cursor++
	}
}

// GrowthSeries returns AUM at the end of each of the last months calendar
// months, oldest first. AUM is units held at month end valued at each fund's
// current NAV. txns is keyed by fund id.
func GrowthSeries(funds []*models.Fund, txns map[int64][]*models.Transaction, now time.Time, months int) []models.GrowthPoint {
	holdings := make([]*holding, 0, len(funds))
	for _, f := range funds {
		sorted := append([]*models.Transaction(nil), txns[f.ID]...)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Date.Before(sorted[j].Date)
		})
		holdings = append(holdings, &holding{nav: f.CurrentNav, txns: sorted})
	}

	thisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	points := make([]models.GrowthPoint, 0, months)
	for i := months - 1; i >= 0; i-- {
		start := thisMonth.AddDate(0, -i, 0)
		end := start.AddDate(0, 1, 0)

		aum := decimal.Zero
		for _, h := range holdings {
			h.advanceTo(end)
			aum = aum.Add(h.units.Mul(h.nav))
		}

		points = append(points, models.GrowthPoint{
			Month: start.Format("Jan"),
			Aum:   aum.Round(2).InexactFloat64(),
		})
	}
	return points
}
