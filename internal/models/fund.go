package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fund is a mutual fund holding of one client.
type Fund struct {
	ID             int64           `json:"id"`
	ClientID       int64           `json:"clientId"`
	FundName       string          `json:"fundName"`
	Units          decimal.Decimal `json:"units"`
	CurrentNav     decimal.Decimal `json:"currentNav"`
	InvestedAmount decimal.Decimal `json:"investedAmount"`
	CurrentValue   decimal.Decimal `json:"currentValue"`
	LastUpdated    time.Time       `json:"lastUpdated"`
}

// TransactionType is BUY, SELL or SIP.
type TransactionType string

const (
	TransactionBuy  TransactionType = "BUY"
	TransactionSell TransactionType = "SELL"
	TransactionSIP  TransactionType = "SIP"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionBuy, TransactionSell, TransactionSIP:
		return true
	}
	return false
}

// Inflow reports whether the transaction adds units (money into the fund).
func (t TransactionType) Inflow() bool {
	return t == TransactionBuy || t == TransactionSIP
}

// Transaction records one purchase, redemption or SIP instalment.
type Transaction struct {
	ID       int64           `json:"id"`
	FundID   int64           `json:"fundId"`
	Type     TransactionType `json:"type"`
	Units    decimal.Decimal `json:"units"`
	NavValue decimal.Decimal `json:"navValue"`
	Amount   decimal.Decimal `json:"amount"`
	Date     time.Time       `json:"date"`
}

// Commission is a trail/upfront commission earned by a distributor on a fund.
type Commission struct {
	ID     int64           `json:"id"`
	UserID int64           `json:"userId"`
	FundID int64           `json:"fundId"`
	Amount decimal.Decimal `json:"amount"`
	Rate   decimal.Decimal `json:"rate"`
	Date   time.Time       `json:"date"`
}
