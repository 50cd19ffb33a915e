package surrealdb

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/bobmcallan/mfdesk/internal/common"
	"github.com/bobmcallan/mfdesk/internal/interfaces"
	"github.com/bobmcallan/mfdesk/internal/models"
)

// Decimals are persisted as strings so no precision is lost in transit.

type fundRow struct {
	Seq            int64     `json:"seq"`
	ClientID       int64     `json:"client_id"`
	FundName       string    `json:"fund_name"`
	Units          string    `json:"units"`
	CurrentNav     string    `json:"current_nav"`
	InvestedAmount string    `json:"invested_amount"`
	CurrentValue   string    `json:"current_value"`
	LastUpdated    time.Time `json:"last_updated"`
}

func (r *fundRow) toModel() (*models.Fund, error) {
	f := &models.Fund{ID: r.Seq, ClientID: r.ClientID, FundName: r.FundName, LastUpdated: r.LastUpdated}
	var err error
	if f.Units, err = parseDecimal("units", r.Units); err != nil {
		return nil, err
	}
	if f.CurrentNav, err = parseDecimal("current_nav", r.CurrentNav); err != nil {
		return nil, err
	}
	if f.InvestedAmount, err = parseDecimal("invested_amount", r.InvestedAmount); err != nil {
		return nil, err
	}
	if f.CurrentValue, err = parseDecimal("current_value", r.CurrentValue); err != nil {
		return nil, err
	}
	return f, nil
}

type transactionRow struct {
	Seq      int64     `json:"seq"`
	FundID   int64     `json:"fund_id"`
	Type     string    `json:"type"`
	Units    string    `json:"units"`
	NavValue string    `json:"nav_value"`
	Amount   string    `json:"amount"`
	Date     time.Time `json:"date"`
}

func (r *transactionRow) toModel() (*models.Transaction, error) {
	tx := &models.Transaction{ID: r.Seq, FundID: r.FundID, Type: models.TransactionType(r.Type), Date: r.Date}
	var err error
	if tx.Units, err = parseDecimal("units", r.Units); err != nil {
		return nil, err
	}
	if tx.NavValue, err = parseDecimal("nav_value", r.NavValue); err != nil {
		return nil, err
	}
	if tx.Amount, err = parseDecimal("amount", r.Amount); err != nil {
		return nil, err
	}
	return tx, nil
}

type commissionRow struct {
	Seq    int64     `json:"seq"`
	UserID int64     `json:"user_id"`
	FundID int64     `json:"fund_id"`
	Amount string    `json:"amount"`
	Rate   string    `json:"rate"`
	Date   time.Time `json:"date"`
}

func (r *commissionRow) toModel() (*models.Commission, error) {
	c := &models.Commission{ID: r.Seq, UserID: r.UserID, FundID: r.FundID, Date: r.Date}
	var err error
	if c.Amount, err = parseDecimal("amount", r.Amount); err != nil {
		return nil, err
	}
	if c.Rate, err = parseDecimal("rate", r.Rate); err != nil {
		return nil, err
	}
	return c, nil
}

func parseDecimal(field, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	return d, nil
}

// FundStore implements interfaces.FundStore using SurrealDB.
type FundStore struct {
	db     *surrealdb.DB
	ids    *idAllocator
	logger *common.Logger
}

// NewFundStore creates a new FundStore.
func NewFundStore(db *surrealdb.DB, ids *idAllocator, logger *common.Logger) *FundStore {
	return &FundStore{db: db, ids: ids, logger: logger}
}

func (s *FundStore) create(ctx context.Context, table string, id int64, row any) error {
	_, err := surrealdb.Query[any](ctx, s.db, "CREATE $rid CONTENT $row", map[string]any{
		"rid": surrealmodels.NewRecordID(table, id),
		"row": row,
	})
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", table, err)
	}
	return nil
}

func (s *FundStore) requireRecord(ctx context.Context, table string, id int64, what string) error {
	ok, err := exists(ctx, s.db, table, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s %d: %w", what, id, common.ErrNotFound)
	}
	return nil
}

func (s *FundStore) AddFund(ctx context.Context, fund *models.Fund) (*models.Fund, error) {
	if err := s.requireRecord(ctx, "client", fund.ClientID, "fund client"); err != nil {
		return nil, err
	}
	id, err := s.ids.next(ctx, "fund")
	if err != nil {
		return nil, err
	}

	row := fundRow{
		Seq:            id,
		ClientID:       fund.ClientID,
		FundName:       fund.FundName,
		Units:          fund.Units.String(),
		CurrentNav:     fund.CurrentNav.String(),
		InvestedAmount: fund.InvestedAmount.String(),
		CurrentValue:   fund.CurrentValue.String(),
		LastUpdated:    fund.LastUpdated,
	}
	if row.LastUpdated.IsZero() {
		row.LastUpdated = time.Now()
	}
	if err := s.create(ctx, "fund", id, row); err != nil {
		return nil, err
	}
	return row.toModel()
}

func (s *FundStore) ListFunds(ctx context.Context, clientID int64) ([]*models.Fund, error) {
	rows, err := queryRows[fundRow](ctx, s.db, "SELECT * OMIT id FROM fund WHERE client_id = $client_id ORDER BY seq", map[string]any{
		"client_id": clientID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list funds: %w", err)
	}

	out := make([]*models.Fund, 0, len(rows))
	for i := range rows {
		f, err := rows[i].toModel()
		if err != nil {
			return nil, fmt.Errorf("fund %d: %w", rows[i].Seq, err)
		}
		out = append(out, f)
	}
	return out, nil
}

func (s *FundStore) AddTransaction(ctx context.Context, tx *models.Transaction) (*models.Transaction, error) {
	if !tx.Type.Valid() {
		return nil, fmt.Errorf("transaction type %q is not supported", tx.Type)
	}
	if err := s.requireRecord(ctx, "fund", tx.FundID, "transaction fund"); err != nil {
		return nil, err
	}
	id, err := s.ids.next(ctx, "fund_transaction")
	if err != nil {
		return nil, err
	}

	row := transactionRow{
		Seq:      id,
		FundID:   tx.FundID,
		Type:     string(tx.Type),
		Units:    tx.Units.String(),
		NavValue: tx.NavValue.String(),
		Amount:   tx.Amount.String(),
		Date:     tx.Date,
	}
	if err := s.create(ctx, "fund_transaction", id, row); err != nil {
		return nil, err
	}
	return row.toModel()
}

func (s *FundStore) ListTransactions(ctx context.Context, fundID int64) ([]*models.Transaction, error) {
	rows, err := queryRows[transactionRow](ctx, s.db, "SELECT * OMIT id FROM fund_transaction WHERE fund_id = $fund_id ORDER BY date, seq", map[string]any{
		"fund_id": fundID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	out := make([]*models.Transaction, 0, len(rows))
	for i := range rows {
		tx, err := rows[i].toModel()
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", rows[i].Seq, err)
		}
		out = append(out, tx)
	}
	return out, nil
}

func (s *FundStore) AddCommission(ctx context.Context, c *models.Commission) (*models.Commission, error) {
	if err := s.requireRecord(ctx, "user", c.UserID, "commission user"); err != nil {
		return nil, err
	}
	if err := s.requireRecord(ctx, "fund", c.FundID, "commission fund"); err != nil {
		return nil, err
	}
	id, err := s.ids.next(ctx, "commission")
	if err != nil {
		return nil, err
	}

	row := commissionRow{
		Seq:    id,
		UserID: c.UserID,
		FundID: c.FundID,
		Amount: c.Amount.String(),
		Rate:   c.Rate.String(),
		Date:   c.Date,
	}
	if err := s.create(ctx, "commission", id, row); err != nil {
		return nil, err
	}
	return row.toModel()
}

func (s *FundStore) ListCommissions(ctx context.Context, userID int64) ([]*models.Commission, error) {
	rows, err := queryRows[commissionRow](ctx, s.db, "SELECT * OMIT id FROM commission WHERE user_id = $user_id ORDER BY seq", map[string]any{
		"user_id": userID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list commissions: %w", err)
	}

	out := make([]*models.Commission, 0, len(rows))
	for i := range rows {
		c, err := rows[i].toModel()
		if err != nil {
			return nil, fmt.Errorf("commission %d: %w", rows[i].Seq, err)
		}
		out = append(out, c)
	}
	return out, nil
}

var _ interfaces.FundStore = (*FundStore)(nil)
