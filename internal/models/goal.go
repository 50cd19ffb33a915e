package models

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/mfdesk/internal/common"
)

// Goal is a client's investment target with the optimizer result captured at
// creation time.
type Goal struct {
	ID                int64           `json:"id"`
	ClientID          int64           `json:"clientId"`
	Name              string          `json:"name"`
	TargetAmount      decimal.Decimal `json:"targetAmount"`
	RiskLevel         int             `json:"riskLevel"`
	TimeFrame         int             `json:"timeFrame"`
	TargetYear        int             `json:"targetYear"`
	Optimization      json.RawMessage `json:"optimization,omitempty"`
	OptimizationError string          `json:"optimizationError,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
}

// NewGoalInput is the new-goal form body. targetAmount accepts a JSON number
// or a numeric string.
type NewGoalInput struct {
	GoalName     string           `json:"goalName"`
	TargetAmount *decimal.Decimal `json:"targetAmount"`
	RiskLevel    *int             `json:"riskLevel"`
	TimeFrame    *int             `json:"timeFrame"`
}

// Validate normalises the input in place and reports rejected fields.
func (in *NewGoalInput) Validate() error {
	ve := common.NewValidationError()

	in.GoalName = strings.TrimSpace(in.GoalName)
	switch n := utf8.RuneCountInString(in.GoalName); {
	case n == 0:
		ve.Add("goalName", "is required")
	case n > 128:
		ve.Add("goalName", "must be at most 128 characters")
	}

	switch {
	case in.TargetAmount == nil:
		ve.Add("targetAmount", "is required")
	case !in.TargetAmount.IsPositive():
		ve.Add("targetAmount", "must be greater than 0")
	}

	opt := OptimizeInput{RiskLevel: in.RiskLevel, TimeFrame: in.TimeFrame}
	if err := opt.Validate(); err != nil {
		if fe, ok := common.AsValidationError(err); ok {
			for field, msg := range fe.Fields {
				ve.Add(field, msg)
			}
		}
	}

	return ve.Err()
}

// OptimizeRequest returns the optimizer input for the goal. Call Validate first.
func (in *NewGoalInput) OptimizeRequest() OptimizeRequest {
	return OptimizeRequest{RiskLevel: *in.RiskLevel, TimeFrame: *in.TimeFrame}
}

// ToGoal builds the record to store. Call Validate first.
func (in *NewGoalInput) ToGoal(clientID int64, now time.Time) *Goal {
	return &Goal{
		ClientID:     clientID,
		Name:         in.GoalName,
		TargetAmount: *in.TargetAmount,
		RiskLevel:    *in.RiskLevel,
		TimeFrame:    *in.TimeFrame,
		TargetYear:   now.Year() + *in.TimeFrame,
		CreatedAt:    now,
	}
}
