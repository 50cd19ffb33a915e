package surrealdb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/bobmcallan/mfdesk/internal/common"
	"github.com/bobmcallan/mfdesk/internal/interfaces"
	"github.com/bobmcallan/mfdesk/internal/models"
)

// goalRow is the DB-level representation of a goal. The optimizer result is
// kept as its raw JSON text.
type goalRow struct {
	Seq               int64     `json:"seq"`
	ClientID          int64     `json:"client_id"`
	Name              string    `json:"name"`
	TargetAmount      string    `json:"target_amount"`
	RiskLevel         int       `json:"risk_level"`
	TimeFrame         int       `json:"time_frame"`
	TargetYear        int       `json:"target_year"`
	Optimization      string    `json:"optimization"`
	OptimizationError string    `json:"optimization_error"`
	CreatedAt         time.Time `json:"created_at"`
}

func (r *goalRow) toModel() (*models.Goal, error) {
	target, err := parseDecimal("target_amount", r.TargetAmount)
	if err != nil {
		return nil, err
	}
	g := &models.Goal{
		ID:                r.Seq,
		ClientID:          r.ClientID,
		Name:              r.Name,
		TargetAmount:      target,
		RiskLevel:         r.RiskLevel,
		TimeFrame:         r.TimeFrame,
		TargetYear:        r.TargetYear,
		OptimizationError: r.OptimizationError,
		CreatedAt:         r.CreatedAt,
	}
	if r.Optimization != "" {
		g.Optimization = json.RawMessage(r.Optimization)
	}
	return g, nil
}

// GoalStore implements interfaces.GoalStore using SurrealDB.
type GoalStore struct {
	db     *surrealdb.DB
	ids    *idAllocator
	logger *common.Logger
}

// NewGoalStore creates a new GoalStore.
func NewGoalStore(db *surrealdb.DB, ids *idAllocator, logger *common.Logger) *GoalStore {
	return &GoalStore{db: db, ids: ids, logger: logger}
}

func (s *GoalStore) CreateGoal(ctx context.Context, goal *models.Goal) (*models.Goal, error) {
	ok, err := exists(ctx, s.db, "client", goal.ClientID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("goal client %d: %w", goal.ClientID, common.ErrNotFound)
	}

	id, err := s.ids.next(ctx, "goal")
	if err != nil {
		return nil, err
	}

	row := goalRow{
		Seq:               id,
		ClientID:          goal.ClientID,
		Name:              goal.Name,
		TargetAmount:      goal.TargetAmount.String(),
		RiskLevel:         goal.RiskLevel,
		TimeFrame:         goal.TimeFrame,
		TargetYear:        goal.TargetYear,
		Optimization:      string(goal.Optimization),
		OptimizationError: goal.OptimizationError,
		CreatedAt:         goal.CreatedAt,
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}

	if _, err := surrealdb.Query[any](ctx, s.db, "CREATE $rid CONTENT $row", map[string]any{
		"rid": surrealmodels.NewRecordID("goal", id),
		"row": row,
	}); err != nil {
		return nil, fmt.Errorf("failed to create goal: %w", err)
	}
	return row.toModel()
}

func (s *GoalStore) ListGoals(ctx context.Context, clientID int64) ([]*models.Goal, error) {
	rows, err := queryRows[goalRow](ctx, s.db, "SELECT * OMIT id FROM goal WHERE client_id = $client_id ORDER BY seq", map[string]any{
		"client_id": clientID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list goals: %w", err)
	}

	out := make([]*models.Goal, 0, len(rows))
	for i := range rows {
		g, err := rows[i].toModel()
		if err != nil {
			return nil, fmt.Errorf("goal %d: %w", rows[i].Seq, err)
		}
		out = append(out, g)
	}
	return out, nil
}

var _ interfaces.GoalStore = (*GoalStore)(nil)
