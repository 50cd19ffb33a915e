// Package surrealdb implements interfaces.StorageManager on SurrealDB.
package surrealdb

import (
	"context"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"

	"github.com/bobmcallan/mfdesk/internal/common"
	"github.com/bobmcallan/mfdesk/internal/interfaces"
)

// Manager implements interfaces.StorageManager using SurrealDB.
type Manager struct {
	db     *surrealdb.DB
	logger *common.Logger

	userStore    *UserStore
	sessionStore *SessionStore
	clientStore  *ClientStore
	fundStore    *FundStore
	goalStore    *GoalStore
}

var tables = []string{"user", "session", "client", "fund", "fund_transaction", "commission", "goal", "counter"}

// NewManager creates a new StorageManager connected to SurrealDB.
func NewManager(ctx context.Context, logger *common.Logger, config *common.Config) (*Manager, error) {
	// Connect to SurrealDB
	db, err := surrealdb.New(config.Storage.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	// Sign in
	if _, err := db.SignIn(ctx, map[string]interface{}{
		"user": config.Storage.Username,
		"pass": config.Storage.Password,
	}); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("failed to sign in to SurrealDB: %w", err)
	}

	// Select namespace and database
	if err := db.Use(ctx, config.Storage.Namespace, config.Storage.Database); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("failed to select namespace/database: %w", err)
	}

	if err := defineSchema(ctx, db); err != nil {
		db.Close(ctx)
		return nil, err
	}

	m := newManager(db, logger)

	logger.Info().
		Str("address", config.Storage.Address).
		Str("namespace", config.Storage.Namespace).
		Str("database", config.Storage.Database).
		Msg("SurrealDB storage manager initialized")

	return m, nil
}

func newManager(db *surrealdb.DB, logger *common.Logger) *Manager {
	ids := &idAllocator{db: db}
	return &Manager{
		db:           db,
		logger:       logger,
		userStore:    NewUserStore(db, ids, logger),
		sessionStore: NewSessionStore(db, logger),
		clientStore:  NewClientStore(db, ids, logger),
		fundStore:    NewFundStore(db, ids, logger),
		goalStore:    NewGoalStore(db, ids, logger),
	}
}

// defineSchema creates tables and indexes. SurrealDB v3 errors on querying
// non-existent tables.
func defineSchema(ctx context.Context, db *surrealdb.DB) error {
	for _, table := range tables {
		sql := fmt.Sprintf("DEFINE TABLE IF NOT EXISTS %s SCHEMALESS", table)
		if _, err := surrealdb.Query[any](ctx, db, sql, nil); err != nil {
			return fmt.Errorf("failed to define table %s: %w", table, err)
		}
	}

	indexes := []string{
		"DEFINE INDEX IF NOT EXISTS user_username ON user FIELDS username UNIQUE",
		"DEFINE INDEX IF NOT EXISTS client_user ON client FIELDS user_id",
		"DEFINE INDEX IF NOT EXISTS fund_client ON fund FIELDS client_id",
		"DEFINE INDEX IF NOT EXISTS txn_fund ON fund_transaction FIELDS fund_id",
		"DEFINE INDEX IF NOT EXISTS commission_user ON commission FIELDS user_id",
		"DEFINE INDEX IF NOT EXISTS goal_client ON goal FIELDS client_id",
	}
	for _, sql := range indexes {
		if _, err := surrealdb.Query[any](ctx, db, sql, nil); err != nil {
			return fmt.Errorf("failed to define index: %w", err)
		}
	}
	return nil
}

func (m *Manager) UserStore() interfaces.UserStore       { return m.userStore }
func (m *Manager) SessionStore() interfaces.SessionStore { return m.sessionStore }
func (m *Manager) ClientStore() interfaces.ClientStore   { return m.clientStore }
func (m *Manager) FundStore() interfaces.FundStore       { return m.fundStore }
func (m *Manager) GoalStore() interfaces.GoalStore       { return m.goalStore }

func (m *Manager) Close() error {
	m.db.Close(context.Background())
	return nil
}

// idAllocator hands out per-table sequence numbers from the counter table.
// A single UPSERT statement is atomic, so concurrent callers never collide.
type idAllocator struct {
	db *surrealdb.DB
}

type counterRow struct {
	Value int64 `json:"value"`
}

func (a *idAllocator) next(ctx context.Context, name string) (int64, error) {
	sql := "UPSERT type::record('counter', $name) SET value = (value ?? 0) + 1 RETURN AFTER"
	rows, err := queryRows[counterRow](ctx, a.db, sql, map[string]any{"name": name})
	if err != nil {
		return 0, fmt.Errorf("failed to allocate %s id: %w", name, err)
	}
	if len(rows) == 0 || rows[0].Value <= 0 {
		return 0, fmt.Errorf("failed to allocate %s id: empty counter", name)
	}
	return rows[0].Value, nil
}

// queryRows runs a single-statement query and returns its result rows.
func queryRows[T any](ctx context.Context, db *surrealdb.DB, sql string, vars map[string]any) ([]T, error) {
	results, err := surrealdb.Query[[]T](ctx, db, sql, vars)
	if err != nil {
		return nil, err
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	return (*results)[0].Result, nil
}

// exists reports whether the record table:id is present.
func exists(ctx context.Context, db *surrealdb.DB, table string, id int64) (bool, error) {
	type idRow struct {
		N int64 `json:"n"`
	}
	sql := fmt.Sprintf("SELECT count() AS n FROM %s WHERE seq = $id GROUP ALL", table)
	rows, err := queryRows[idRow](ctx, db, sql, map[string]any{"id": id})
	if err != nil {
		return false, fmt.Errorf("failed to check %s %d: %w", table, id, err)
	}
	return len(rows) > 0 && rows[0].N > 0, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already contains") || strings.Contains(msg, "already exists")
}

func notFound(kind string, id any) error {
	return fmt.Errorf("%s %v: %w", kind, id, common.ErrNotFound)
}

// Compile-time check
var _ interfaces.StorageManager = (*Manager)(nil)
