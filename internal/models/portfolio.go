// Package models defines data structures for mfdesk
package models

// ClientWithPortfolio is a client row on the dashboard with derived holdings figures.
type ClientWithPortfolio struct {
	Client
	PortfolioValue float64 `json:"portfolioValue"`
	FundCount      int     `json:"fundCount"`
}

// GrowthPoint is the AUM at the end of one calendar month.
type GrowthPoint struct {
	Month string  `json:"month"`
	Aum   float64 `json:"aum"`
}

// PortfolioSummary aggregates every client of one distributor.
type PortfolioSummary struct {
	TotalAum        float64       `json:"totalAum"`
	TotalClients    int           `json:"totalClients"`
	TotalCommission float64       `json:"totalCommission"`
	AmountInvested  float64       `json:"amountInvested"`
	Xirr            float64       `json:"xirr"`
	GrowthData      []GrowthPoint `json:"growthData"`
}

// ClientDetail backs the per-client dashboard.
type ClientDetail struct {
	Client          *Client `json:"client"`
	Funds           []*Fund `json:"funds"`
	Goals           []*Goal `json:"goals"`
	TotalInvestment float64 `json:"totalInvestment"`
	AmountInvested  float64 `json:"amountInvested"`
	Xirr            float64 `json:"xirr"`
}
