package models

import "github.com/bobmcallan/mfdesk/internal/common"

// OptimizeInput is the optimize-portfolio request body. Both fields are required.
type OptimizeInput struct {
	RiskLevel *int `json:"riskLevel"`
	TimeFrame *int `json:"timeFrame"`
}

// Validate checks riskLevel 0-10 and timeFrame 1-30 years.
func (in *OptimizeInput) Validate() error {
	ve := common.NewValidationError()

	switch {
	case in.RiskLevel == nil:
		ve.Add("riskLevel", "is required")
	case *in.RiskLevel < 0 || *in.RiskLevel > 10:
		ve.Add("riskLevel", "must be between 0 and 10")
	}

	switch {
	case in.TimeFrame == nil:
		ve.Add("timeFrame", "is required")
	case *in.TimeFrame < 1 || *in.TimeFrame > 30:
		ve.Add("timeFrame", "must be between 1 and 30 years")
	}

	return ve.Err()
}

// Request converts validated input. Call Validate first.
func (in *OptimizeInput) Request() OptimizeRequest {
	return OptimizeRequest{RiskLevel: *in.RiskLevel, TimeFrame: *in.TimeFrame}
}

// OptimizeRequest is the single JSON line written to the optimizer's stdin.
type OptimizeRequest struct {
	RiskLevel int `json:"riskLevel"`
	TimeFrame int `json:"timeFrame"`
}

// Validate re-checks the ranges for callers that build a request directly.
func (r OptimizeRequest) Validate() error {
	in := OptimizeInput{RiskLevel: &r.RiskLevel, TimeFrame: &r.TimeFrame}
	return in.Validate()
}
