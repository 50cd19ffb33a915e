// Package interfaces defines service contracts for mfdesk
package interfaces

import (
	"context"
	"time"

	"github.com/bobmcallan/mfdesk/internal/models"
)

// StorageManager coordinates all storage backends
type StorageManager interface {
	// Storage accessors
	UserStore() UserStore
	SessionStore() SessionStore
	ClientStore() ClientStore
	FundStore() FundStore
	GoalStore() GoalStore

	// Lifecycle
	Close() error
}

// UserStore manages distributor accounts.
type UserStore interface {
	// GetUser returns common.ErrNotFound when the id is unknown.
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)

	// CreateUser assigns the next id. Returns common.ErrConflict when the
	// username is taken; the existing record is left untouched.
	CreateUser(ctx context.Context, user *models.User) (*models.User, error)
}

// SessionStore manages login sessions.
type SessionStore interface {
	SaveSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	// DeleteSession is idempotent.
	DeleteSession(ctx context.Context, id string) error
	// DeleteExpired removes sessions expired at now and returns the count.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// ClientStore manages investor records.
type ClientStore interface {
	// CreateClient assigns id = max+1 atomically. The owner must exist.
	CreateClient(ctx context.Context, client *models.Client) (*models.Client, error)
	GetClient(ctx context.Context, id int64) (*models.Client, error)
	// ListClients returns the clients owned by userID ordered by id.
	ListClients(ctx context.Context, userID int64) ([]*models.Client, error)
}

// FundStore manages holdings, transactions and commissions.
type FundStore interface {
	AddFund(ctx context.Context, fund *models.Fund) (*models.Fund, error)
	ListFunds(ctx context.Context, clientID int64) ([]*models.Fund, error)

	AddTransaction(ctx context.Context, tx *models.Transaction) (*models.Transaction, error)
	// ListTransactions returns the fund's transactions ordered by date.
	ListTransactions(ctx context.Context, fundID int64) ([]*models.Transaction, error)

	AddCommission(ctx context.Context, c *models.Commission) (*models.Commission, error)
	ListCommissions(ctx context.Context, userID int64) ([]*models.Commission, error)
}

// GoalStore manages client goals.
type GoalStore interface {
	CreateGoal(ctx context.Context, goal *models.Goal) (*models.Goal, error)
	ListGoals(ctx context.Context, clientID int64) ([]*models.Goal, error)
}
