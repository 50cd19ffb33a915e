package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/mfdesk/internal/common"
	"github.com/bobmcallan/mfdesk/internal/interfaces"
	"github.com/bobmcallan/mfdesk/internal/models"
	"github.com/bobmcallan/mfdesk/internal/services/auth"
)

// Demo account loaded at startup.
const (
	SeedUsername = "Chinmay"
	SeedPassword = "qwertyuiop"
)

// commissionRate is the trail commission on invested amounts in the fixtures.
var commissionRate = decimal.RequireFromString("0.01")

type seedTxn struct {
	typ       models.TransactionType
	units     string
	nav       string
	monthsAgo int
}

type seedFund struct {
	name string
	nav  string
	txns []seedTxn
}

type seedClient struct {
	name         string
	email        string
	phone        string
	pan          string
	age          int
	riskAppetite int
	profession   string
	funds        []seedFund
	goals        []models.NewGoalInput
}

func seedClients() []seedClient {
	retirement := decimal.NewFromInt(10000000)
	risk, years := 4, 20

	return []seedClient{
		{
			name:         "Rahul Sharma",
			email:        "rahul@example.com",
			phone:        "+91 98765 43210",
			pan:          "ABCDE1234F",
			age:          35,
			riskAppetite: 6,
			profession:   "Software Engineer",
			funds: []seedFund{
				{name: "HDFC Balanced Advantage Fund", nav: "420.50", txns: []seedTxn{
					{models.TransactionBuy, "500", "350", 10},
					{models.TransactionSIP, "100", "380", 6},
					{models.TransactionSIP, "100", "400", 3},
				}},
				{name: "SBI Blue Chip Fund", nav: "85.20", txns: []seedTxn{
					{models.TransactionBuy, "2000", "70", 8},
					{models.TransactionSell, "500", "82", 2},
				}},
			},
			goals: []models.NewGoalInput{
				{GoalName: "Retirement", TargetAmount: &retirement, RiskLevel: &risk, TimeFrame: &years},
			},
		},
		{
			name:         "Priya Patel",
			email:        "priya@example.com",
			phone:        "+91 98765 43211",
			pan:          "FGHIJ5678K",
			age:          29,
			riskAppetite: 8,
			profession:   "Doctor",
			funds: []seedFund{
				{name: "Axis Long Term Equity Fund", nav: "92.75", txns: []seedTxn{
					{models.TransactionBuy, "3000", "78", 11},
					{models.TransactionSIP, "500", "84", 5},
				}},
			},
		},
	}
}

// Seed loads the demo distributor, clients, holdings, commissions and goals.
// It does nothing when the demo user already exists.
func Seed(ctx context.Context, storage interfaces.StorageManager, logger *common.Logger, now time.Time) error {
	if _, err := storage.UserStore().GetUserByUsername(ctx, SeedUsername); err == nil {
		logger.Debug().Str("username", SeedUsername).Msg("Seed data already present")
		return nil
	} else if !errors.Is(err, common.ErrNotFound) {
		return fmt.Errorf("checking seed user: %w", err)
	}

	hash, err := auth.HashPassword(SeedPassword)
	if err != nil {
		return err
	}
	user, err := storage.UserStore().CreateUser(ctx, &models.User{
		Username:     SeedUsername,
		PasswordHash: hash,
		CreatedAt:    now,
	})
	if err != nil {
		if errors.Is(err, common.ErrConflict) {
			return nil
		}
		return fmt.Errorf("creating seed user: %w", err)
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	var funds, txns int

	for _, sc := range seedClients() {
		client, err := storage.ClientStore().CreateClient(ctx, &models.Client{
			UserID:       user.ID,
			Name:         sc.name,
			Email:        sc.email,
			Phone:        sc.phone,
			PanNumber:    sc.pan,
			KycStatus:    true,
			Age:          sc.age,
			RiskAppetite: sc.riskAppetite,
			Profession:   sc.profession,
			CreatedAt:    now,
		})
		if err != nil {
			return fmt.Errorf("creating seed client %s: %w", sc.name, err)
		}

		for _, sf := range sc.funds {
			fund, err := seedHolding(ctx, storage.FundStore(), client.ID, sf, today)
			if err != nil {
				return err
			}
			funds++
			txns += len(sf.txns)

			if _, err := storage.FundStore().AddCommission(ctx, &models.Commission{
				UserID: user.ID,
				FundID: fund.ID,
				Amount: fund.InvestedAmount.Mul(commissionRate).Round(2),
				Rate:   commissionRate,
				Date:   today,
			}); err != nil {
				return fmt.Errorf("creating seed commission: %w", err)
			}
		}

		for _, g := range sc.goals {
			if _, err := storage.GoalStore().CreateGoal(ctx, g.ToGoal(client.ID, now)); err != nil {
				return fmt.Errorf("creating seed goal: %w", err)
			}
		}
	}

	logger.Info().
		Int64("user_id", user.ID).
		Int("funds", funds).
		Int("transactions", txns).
		Msg("Seed data loaded")
	return nil
}

// seedHolding derives the fund's position from its transactions, stores the
// fund and then its transactions. Sells reduce invested amount at average cost.
func seedHolding(ctx context.Context, store interfaces.FundStore, clientID int64, sf seedFund, today time.Time) (*models.Fund, error) {
	nav := decimal.RequireFromString(sf.nav)
	units, invested := decimal.Zero, decimal.Zero

	txns := make([]*models.Transaction, 0, len(sf.txns))
	for _, st := range sf.txns {
		u := decimal.RequireFromString(st.units)
		price := decimal.RequireFromString(st.nav)
		amount := u.Mul(price)

		if st.typ.Inflow() {
			units = units.Add(u)
			invested = invested.Add(amount)
		} else if units.IsPositive() {
			avgCost := invested.Div(units)
			invested = invested.Sub(avgCost.Mul(u))
			units = units.Sub(u)
		}

		txns = append(txns, &models.Transaction{
			Type:     st.typ,
			Units:    u,
			NavValue: price,
			Amount:   amount,
			Date:     today.AddDate(0, -st.monthsAgo, 0),
		})
	}

	fund, err := store.AddFund(ctx, &models.Fund{
		ClientID:       clientID,
		FundName:       sf.name,
		Units:          units,
		CurrentNav:     nav,
		InvestedAmount: invested.Round(2),
		CurrentValue:   units.Mul(nav).Round(2),
		LastUpdated:    today,
	})
	if err != nil {
		return nil, fmt.Errorf("creating seed fund %s: %w", sf.name, err)
	}

	for _, t := range txns {
		t.FundID = fund.ID
		if _, err := store.AddTransaction(ctx, t); err != nil {
			return nil, fmt.Errorf("creating seed transaction: %w", err)
		}
	}
	return fund, nil
}
