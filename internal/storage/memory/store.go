// Package memory implements interfaces.StorageManager with process-lifetime maps.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bobmcallan/mfdesk/internal/common"
	"github.com/bobmcallan/mfdesk/internal/interfaces"
	"github.com/bobmcallan/mfdesk/internal/models"
)

// Store holds every entity in maps guarded by one RWMutex. Ids are allocated
// as max+1 under the write lock so they strictly increase and are never reused.
// Records are copied on the way in and out; callers never share memory with
// the store.
type Store struct {
	mu     sync.RWMutex
	logger *common.Logger

	users        map[int64]*models.User
	sessions     map[string]*models.Session
	clients      map[int64]*models.Client
	funds        map[int64]*models.Fund
	transactions map[int64]*models.Transaction
	commissions  map[int64]*models.Commission
	goals        map[int64]*models.Goal
}

// NewStore creates an empty Store.
func NewStore(logger *common.Logger) *Store {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &Store{
		logger:       logger,
		users:        make(map[int64]*models.User),
		sessions:     make(map[string]*models.Session),
		clients:      make(map[int64]*models.Client),
		funds:        make(map[int64]*models.Fund),
		transactions: make(map[int64]*models.Transaction),
		commissions:  make(map[int64]*models.Commission),
		goals:        make(map[int64]*models.Goal),
	}
}

func (s *Store) UserStore() interfaces.UserStore       { return s }
func (s *Store) SessionStore() interfaces.SessionStore { return s }
func (s *Store) ClientStore() interfaces.ClientStore   { return s }
func (s *Store) FundStore() interfaces.FundStore       { return s }
func (s *Store) GoalStore() interfaces.GoalStore       { return s }

// Close is a no-op; the maps die with the process.
func (s *Store) Close() error { return nil }

func nextID[T any](m map[int64]T) int64 {
	var max int64
	for id := range m {
		if id > max {
			max = id
		}
	}
	return max + 1
}

// --- Users ---

func (s *Store) GetUser(ctx context.Context, id int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, common.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("user %q: %w", username, common.ErrNotFound)
}

func (s *Store) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Username == user.Username {
			return nil, fmt.Errorf("username %q: %w", user.Username, common.ErrConflict)
		}
	}

	cp := *user
	cp.ID = nextID(s.users)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.users[cp.ID] = &cp

	out := cp
	return &out, nil
}

// --- Sessions ---

func (s *Store) SaveSession(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		return fmt.Errorf("session id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[session.UserID]; !ok {
		return fmt.Errorf("session owner %d: %w", session.UserID, common.ErrNotFound)
	}
	cp := *session
	s.sessions[cp.ID] = &cp
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session: %w", common.ErrNotFound)
	}
	cp := *sess
	return &cp, nil
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}

func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

// --- Clients ---

func (s *Store) CreateClient(ctx context.Context, client *models.Client) (*models.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[client.UserID]; !ok {
		return nil, fmt.Errorf("client owner %d: %w", client.UserID, common.ErrNotFound)
	}

	cp := *client
	cp.ID = nextID(s.clients)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.clients[cp.ID] = &cp
	s.logger.Debug().Int64("client_id", cp.ID).Int64("user_id", cp.UserID).Msg("Client stored")

	out := cp
	return &out, nil
}

func (s *Store) GetClient(ctx context.Context, id int64) (*models.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.clients[id]
	if !ok {
		return nil, fmt.Errorf("client %d: %w", id, common.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (s *Store) ListClients(ctx context.Context, userID int64) ([]*models.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Client, 0)
	for _, c := range s.clients {
		if c.UserID == userID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- Funds, transactions, commissions ---

func (s *Store) AddFund(ctx context.Context, fund *models.Fund) (*models.Fund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[fund.ClientID]; !ok {
		return nil, fmt.Errorf("fund client %d: %w", fund.ClientID, common.ErrNotFound)
	}

	cp := *fund
	cp.ID = nextID(s.funds)
	if cp.LastUpdated.IsZero() {
		cp.LastUpdated = time.Now()
	}
	s.funds[cp.ID] = &cp

	out := cp
	return &out, nil
}

func (s *Store) ListFunds(ctx context.Context, clientID int64) ([]*models.Fund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Fund, 0)
	for _, f := range s.funds {
		if f.ClientID == clientID {
			cp := *f
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) AddTransaction(ctx context.Context, tx *models.Transaction) (*models.Transaction, error) {
	if !tx.Type.Valid() {
		return nil, fmt.Errorf("transaction type %q is not supported", tx.Type)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.funds[tx.FundID]; !ok {
		return nil, fmt.Errorf("transaction fund %d: %w", tx.FundID, common.ErrNotFound)
	}

	cp := *tx
	cp.ID = nextID(s.transactions)
	s.transactions[cp.ID] = &cp

	out := cp
	return &out, nil
}

func (s *Store) ListTransactions(ctx context.Context, fundID int64) ([]*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Transaction, 0)
	for _, tx := range s.transactions {
		if tx.FundID == fundID {
			cp := *tx
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) AddCommission(ctx context.Context, c *models.Commission) (*models.Commission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[c.UserID]; !ok {
		return nil, fmt.Errorf("commission user %d: %w", c.UserID, common.ErrNotFound)
	}
	if _, ok := s.funds[c.FundID]; !ok {
		return nil, fmt.Errorf("commission fund %d: %w", c.FundID, common.ErrNotFound)
	}

	cp := *c
	cp.ID = nextID(s.commissions)
	s.commissions[cp.ID] = &cp

	out := cp
	return &out, nil
}

func (s *Store) ListCommissions(ctx context.Context, userID int64) ([]*models.Commission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Commission, 0)
	for _, c := range s.commissions {
		if c.UserID == userID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- Goals ---

func (s *Store) CreateGoal(ctx context.Context, goal *models.Goal) (*models.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[goal.ClientID]; !ok {
		return nil, fmt.Errorf("goal client %d: %w", goal.ClientID, common.ErrNotFound)
	}

	cp := *goal
	cp.ID = nextID(s.goals)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.goals[cp.ID] = &cp

	out := cp
	return &out, nil
}

func (s *Store) ListGoals(ctx context.Context, clientID int64) ([]*models.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Goal, 0)
	for _, g := range s.goals {
		if g.ClientID == clientID {
			cp := *g
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Compile-time check
var _ interfaces.StorageManager = (*Store)(nil)
