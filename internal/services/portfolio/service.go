// Package portfolio derives client and distributor dashboard figures from
// fund holdings and transactions.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/mfdesk/internal/common"
	"github.com/bobmcallan/mfdesk/internal/interfaces"
	"github.com/bobmcallan/mfdesk/internal/models"
)

// Service implements PortfolioService
type Service struct {
	storage   interfaces.StorageManager
	optimizer interfaces.OptimizerService
	logger    *common.Logger
	now       func() time.Time
}

// Option configures the service
type Option func(*Service)

// WithClock overrides time.Now for valuation dates.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a new portfolio service. optimizer may be nil, in which
// case goals are stored without an optimization.
func NewService(
	storage interfaces.StorageManager,
	optimizer interfaces.OptimizerService,
	logger *common.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		storage:   storage,
		optimizer: optimizer,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListClients returns the user's clients with portfolio value and fund count.
func (s *Service) ListClients(ctx context.Context, userID int64) ([]*models.ClientWithPortfolio, error) {
	clients, err := s.storage.ClientStore().ListClients(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}

	out := make([]*models.ClientWithPortfolio, 0, len(clients))
	for _, c := range clients {
		funds, err := s.storage.FundStore().ListFunds(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list funds for client %d: %w", c.ID, err)
		}
		out = append(out, &models.ClientWithPortfolio{
			Client:         *c,
			PortfolioValue: toFloat(sumCurrentValue(funds)),
			FundCount:      len(funds),
		})
	}
	return out, nil
}

// CreateClient validates the input and stores a client owned by userID.
func (s *Service) CreateClient(ctx context.Context, userID int64, in models.NewClientInput) (*models.Client, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	client, err := s.storage.ClientStore().CreateClient(ctx, in.ToClient(userID, s.now()))
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	s.logger.Info().Int64("user_id", userID).Int64("client_id", client.ID).Msg("Client created")
	return client, nil
}

// ClientDetail returns one client's holdings, goals and returns.
func (s *Service) ClientDetail(ctx context.Context, userID, clientID int64) (*models.ClientDetail, error) {
	client, err := s.ownedClient(ctx, userID, clientID)
	if err != nil {
		return nil, err
	}

	funds, txns, err := s.holdings(ctx, []*models.Client{client})
	if err != nil {
		return nil, err
	}
	goals, err := s.storage.GoalStore().ListGoals(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list goals: %w", err)
	}

	current := toFloat(sumCurrentValue(funds))
	return &models.ClientDetail{
		Client:          client,
		Funds:           funds,
		Goals:           goals,
		TotalInvestment: current,
		AmountInvested:  toFloat(sumInvested(funds)),
		Xirr:            round2(CalculateXIRR(flatten(txns), current, s.now())),
	}, nil
}

// Summary aggregates every client of userID.
func (s *Service) Summary(ctx context.Context, userID int64) (*models.PortfolioSummary, error) {
	clients, err := s.storage.ClientStore().ListClients(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}

	funds, txns, err := s.holdings(ctx, clients)
	if err != nil {
		return nil, err
	}

	commissions, err := s.storage.FundStore().ListCommissions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list commissions: %w", err)
	}
	totalCommission := decimal.Zero
	for _, c := range commissions {
		totalCommission = totalCommission.Add(c.Amount)
	}

	now := s.now()
	aum := toFloat(sumCurrentValue(funds))
	summary := &models.PortfolioSummary{
		TotalAum:        aum,
		TotalClients:    len(clients),
		TotalCommission: toFloat(totalCommission),
		AmountInvested:  toFloat(sumInvested(funds)),
		Xirr:            round2(CalculateXIRR(flatten(txns), aum, now)),
		GrowthData:      GrowthSeries(funds, txns, now, GrowthMonths),
	}

	s.logger.Debug().
		Int64("user_id", userID).
		Int("clients", summary.TotalClients).
		Int("funds", len(funds)).
		Msg("Portfolio summary computed")

	return summary, nil
}

// GrowthChart renders the summary's growth series as PNG.
func (s *Service) GrowthChart(ctx context.Context, userID int64) ([]byte, error) {
	summary, err := s.Summary(ctx, userID)
	if err != nil {
		return nil, err
	}
	return RenderGrowthChart(summary.GrowthData)
}

// ListGoals returns a client's goals when the client belongs to userID.
func (s *Service) ListGoals(ctx context.Context, userID, clientID int64) ([]*models.Goal, error) {
	if _, err := s.ownedClient(ctx, userID, clientID); err != nil {
		return nil, err
	}
	goals, err := s.storage.GoalStore().ListGoals(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list goals: %w", err)
	}
	return goals, nil
}

// CreateGoal stores a goal and attaches the optimizer result for its risk
// level and time frame. An optimizer failure is recorded on the goal rather
// than failing the call.
func (s *Service) CreateGoal(ctx context.Context, userID, clientID int64, in models.NewGoalInput) (*models.Goal, error) {
	if _, err := s.ownedClient(ctx, userID, clientID); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	goal := in.ToGoal(clientID, s.now())

	if s.optimizer != nil {
		result, err := s.optimizer.Optimize(ctx, in.OptimizeRequest())
		if err != nil {
			// Caller cancellation aborts; other failures are recorded on the goal
			if ctx.Err() != nil {
				return nil, fmt.Errorf("optimizing goal: %w", ctx.Err())
			}
			goal.OptimizationError = OptimizationFailure(err)
			s.logger.Warn().Err(err).Int64("client_id", clientID).Msg("Goal stored without optimization")
		} else {
			goal.Optimization = result
		}
	}

	created, err := s.storage.GoalStore().CreateGoal(ctx, goal)
	if err != nil {
		return nil, fmt.Errorf("failed to create goal: %w", err)
	}

	s.logger.Info().Int64("client_id", clientID).Int64("goal_id", created.ID).Msg("Goal created")
	return created, nil
}

// OptimizationFailure is the user-facing description of an optimizer error.
func OptimizationFailure(err error) string {
	pe, ok := common.AsProcessError(err)
	if !ok {
		return "Portfolio optimization unavailable"
	}
	switch pe.Kind {
	case common.ProcessExit:
		if pe.Stderr != "" {
			return "Portfolio optimization failed: " + pe.Stderr
		}
		return "Portfolio optimization failed"
	case common.ProcessOutput:
		return "Invalid response format from optimizer"
	case common.ProcessTimeout:
		return "Portfolio optimization timed out"
	case common.ProcessBusy:
		return "Portfolio optimizer is busy"
	}
	return "Portfolio optimization failed"
}

// ownedClient hides other users' clients behind ErrNotFound.
func (s *Service) ownedClient(ctx context.Context, userID, clientID int64) (*models.Client, error) {
	client, err := s.storage.ClientStore().GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, fmt.Errorf("client %d: %w", clientID, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	if client.UserID != userID {
		return nil, fmt.Errorf("client %d: %w", clientID, common.ErrNotFound)
	}
	return client, nil
}

// holdings loads the funds of clients and their transactions keyed by fund id.
func (s *Service) holdings(ctx context.Context, clients []*models.Client) ([]*models.Fund, map[int64][]*models.Transaction, error) {
	var funds []*models.Fund
	txns := make(map[int64][]*models.Transaction)

	for _, c := range clients {
		cf, err := s.storage.FundStore().ListFunds(ctx, c.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to list funds for client %d: %w", c.ID, err)
		}
		for _, f := range cf {
			t, err := s.storage.FundStore().ListTransactions(ctx, f.ID)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to list transactions for fund %d: %w", f.ID, err)
			}
			txns[f.ID] = t
		}
		funds = append(funds, cf...)
	}
	return funds, txns, nil
}

func flatten(byFund map[int64][]*models.Transaction) []*models.Transaction {
	var all []*models.Transaction
	for _, t := range byFund {
		all = append(all, t...)
	}
	return all
}

func sumCurrentValue(funds []*models.Fund) decimal.Decimal {
	total := decimal.Zero
	for _, f := range funds {
		total = total.Add(f.CurrentValue)
	}
	return total
}

func sumInvested(funds []*models.Fund) decimal.Decimal {
	total := decimal.Zero
	for _, f := range funds {
		total = total.Add(f.InvestedAmount)
	}
	return total
}

func toFloat(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// Ensure Service implements PortfolioService
var _ interfaces.PortfolioService = (*Service)(nil)
