package surrealdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/bobmcallan/mfdesk/internal/common"
	"github.com/bobmcallan/mfdesk/internal/interfaces"
	"github.com/bobmcallan/mfdesk/internal/models"
)

// userRow is the DB-level representation of a user.
type userRow struct {
	Seq          int64     `json:"seq"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

func (r *userRow) toModel() *models.User {
	return &models.User{
		ID:           r.Seq,
		Username:     r.Username,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt,
	}
}

// UserStore implements interfaces.UserStore using SurrealDB.
type UserStore struct {
	db     *surrealdb.DB
	ids    *idAllocator
	logger *common.Logger
}

// NewUserStore creates a new UserStore.
func NewUserStore(db *surrealdb.DB, ids *idAllocator, logger *common.Logger) *UserStore {
	return &UserStore{db: db, ids: ids, logger: logger}
}

func (s *UserStore) GetUser(ctx context.Context, id int64) (*models.User, error) {
	rows, err := queryRows[userRow](ctx, s.db, "SELECT * OMIT id FROM $rid", map[string]any{
		"rid": surrealmodels.NewRecordID("user", id),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if len(rows) == 0 {
		return nil, notFound("user", id)
	}
	return rows[0].toModel(), nil
}

func (s *UserStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	rows, err := queryRows[userRow](ctx, s.db, "SELECT * OMIT id FROM user WHERE username = $username LIMIT 1", map[string]any{
		"username": username,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}
	if len(rows) == 0 {
		return nil, notFound("user", username)
	}
	return rows[0].toModel(), nil
}

func (s *UserStore) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	if _, err := s.GetUserByUsername(ctx, user.Username); err == nil {
		return nil, fmt.Errorf("username %q: %w", user.Username, common.ErrConflict)
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	id, err := s.ids.next(ctx, "user")
	if err != nil {
		return nil, err
	}

	row := userRow{
		Seq:          id,
		Username:     user.Username,
		PasswordHash: user.PasswordHash,
		CreatedAt:    user.CreatedAt,
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}

	_, err = surrealdb.Query[any](ctx, s.db, "CREATE $rid CONTENT $row", map[string]any{
		"rid": surrealmodels.NewRecordID("user", id),
		"row": row,
	})
	if err != nil {
		// The unique index closes the window between the lookup and the insert
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("username %q: %w", user.Username, common.ErrConflict)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return row.toModel(), nil
}

// sessionRow is the DB-level representation of a session.
type sessionRow struct {
	SID       string    `json:"sid"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionStore implements interfaces.SessionStore using SurrealDB.
type SessionStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewSessionStore creates a new SessionStore.
func NewSessionStore(db *surrealdb.DB, logger *common.Logger) *SessionStore {
	return &SessionStore{db: db, logger: logger}
}

func (s *SessionStore) SaveSession(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		return fmt.Errorf("session id is required")
	}
	ok, err := exists(ctx, s.db, "user", session.UserID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("session owner %d: %w", session.UserID, common.ErrNotFound)
	}

	row := sessionRow{
		SID:       session.ID,
		UserID:    session.UserID,
		CreatedAt: session.CreatedAt,
		ExpiresAt: session.ExpiresAt,
	}
	_, err = surrealdb.Query[any](ctx, s.db, "UPSERT $rid CONTENT $row", map[string]any{
		"rid": surrealmodels.NewRecordID("session", session.ID),
		"row": row,
	})
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *SessionStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	rows, err := queryRows[sessionRow](ctx, s.db, "SELECT * OMIT id FROM $rid", map[string]any{
		"rid": surrealmodels.NewRecordID("session", id),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("session: %w", common.ErrNotFound)
	}
	r := rows[0]
	return &models.Session{ID: r.SID, UserID: r.UserID, CreatedAt: r.CreatedAt, ExpiresAt: r.ExpiresAt}, nil
}

func (s *SessionStore) DeleteSession(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if _, err := surrealdb.Delete[sessionRow](ctx, s.db, surrealmodels.NewRecordID("session", id)); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *SessionStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	rows, err := queryRows[sessionRow](ctx, s.db, "DELETE session WHERE expires_at <= $now RETURN BEFORE", map[string]any{
		"now": now,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return len(rows), nil
}

var (
	_ interfaces.UserStore    = (*UserStore)(nil)
	_ interfaces.SessionStore = (*SessionStore)(nil)
)
