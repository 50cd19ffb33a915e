package interfaces

import (
	"context"
	"encoding/json"

	"github.com/bobmcallan/mfdesk/internal/models"
)

// AuthService handles registration, login and sessions
type AuthService interface {
	// Register creates the user and a session. Returns common.ErrConflict for
	// a taken username and *common.ValidationError for bad input.
	Register(ctx context.Context, creds models.Credentials) (*models.User, *models.Session, error)

	// Login returns common.ErrUnauthorized for unknown users or bad passwords.
	Login(ctx context.Context, creds models.Credentials) (*models.User, *models.Session, error)

	// Logout deletes the session; unknown or empty ids are not an error.
	Logout(ctx context.Context, sessionID string) error

	// CurrentUser returns the session's user, or common.ErrUnauthorized when
	// the session is absent or expired.
	CurrentUser(ctx context.Context, sessionID string) (*models.User, error)

	// IssueToken signs the cookie value for a session.
	IssueToken(session *models.Session) (string, error)

	// ParseToken verifies a cookie value and returns the session id it carries.
	ParseToken(token string) (string, error)
}

// PortfolioService derives dashboard figures from holdings
type PortfolioService interface {
	ListClients(ctx context.Context, userID int64) ([]*models.ClientWithPortfolio, error)
	CreateClient(ctx context.Context, userID int64, in models.NewClientInput) (*models.Client, error)

	// ClientDetail returns common.ErrNotFound when the client belongs to someone else.
	ClientDetail(ctx context.Context, userID, clientID int64) (*models.ClientDetail, error)

	Summary(ctx context.Context, userID int64) (*models.PortfolioSummary, error)

	// GrowthChart renders the summary's growth series as PNG.
	GrowthChart(ctx context.Context, userID int64) ([]byte, error)

	ListGoals(ctx context.Context, userID, clientID int64) ([]*models.Goal, error)

	// CreateGoal stores the goal even when optimisation fails; the failure is
	// recorded on the goal.
	CreateGoal(ctx context.Context, userID, clientID int64, in models.NewGoalInput) (*models.Goal, error)
}

// OptimizerService runs the external portfolio optimizer
type OptimizerService interface {
	// Optimize returns the optimizer's stdout verbatim when it is a JSON object.
	Optimize(ctx context.Context, req models.OptimizeRequest) (json.RawMessage, error)
}

// ChatService answers support chat messages
type ChatService interface {
	Reply(ctx context.Context, req models.ChatRequest) (string, error)
}
