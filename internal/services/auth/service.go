// Package auth provides registration, login and session services
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bobmcallan/mfdesk/internal/common"
	"github.com/bobmcallan/mfdesk/internal/interfaces"
	"github.com/bobmcallan/mfdesk/internal/models"
)

const tokenIssuer = "mfdesk"

// Service implements AuthService
type Service struct {
	users    interfaces.UserStore
	sessions interfaces.SessionStore
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
	logger   *common.Logger

	dummyOnce sync.Once
	dummyHash string
}

// Option configures the service
type Option func(*Service)

// WithLogger sets the logger
func WithLogger(logger *common.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithSessionTTL sets how long a session stays valid
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock overrides time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a new auth service
func NewService(storage interfaces.StorageManager, secret string, opts ...Option) *Service {
	s := &Service{
		users:    storage.UserStore(),
		sessions: storage.SessionStore(),
		secret:   []byte(secret),
		ttl:      24 * time.Hour,
		now:      time.Now,
		logger:   common.NewSilentLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a user and an initial session
func (s *Service) Register(ctx context.Context, creds models.Credentials) (*models.User, *models.Session, error) {
	creds.Username = strings.TrimSpace(creds.Username)
	if err := creds.Validate(); err != nil {
		return nil, nil, err
	}

	if _, err := s.users.GetUserByUsername(ctx, creds.Username); err == nil {
		return nil, nil, fmt.Errorf("username %q: %w", creds.Username, common.ErrConflict)
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, nil, fmt.Errorf("failed to look up user: %w", err)
	}

	hash, err := HashPassword(creds.Password)
	if err != nil {
		return nil, nil, err
	}

	user, err := s.users.CreateUser(ctx, &models.User{
		Username:     creds.Username,
		PasswordHash: hash,
		CreatedAt:    s.now(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create user: %w", err)
	}

	session, err := s.newSession(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info().Int64("user_id", user.ID).Str("username", user.Username).Msg("User registered")
	return user, session, nil
}

// Login verifies credentials and creates a session
func (s *Service) Login(ctx context.Context, creds models.Credentials) (*models.User, *models.Session, error) {
	creds.Username = strings.TrimSpace(creds.Username)
	if creds.Username == "" || creds.Password == "" {
		ve := common.NewValidationError()
		if creds.Username == "" {
			ve.Add("username", "is required")
		}
		if creds.Password == "" {
			ve.Add("password", "is required")
		}
		return nil, nil, ve
	}

	user, err := s.users.GetUserByUsername(ctx, creds.Username)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			return nil, nil, fmt.Errorf("failed to look up user: %w", err)
		}
		// Unknown users pay the same hashing cost as known ones
		VerifyPassword(creds.Password, s.dummy())
		s.logger.Info().Str("username", creds.Username).Msg("Login rejected: unknown user")
		return nil, nil, common.ErrUnauthorized
	}

	if !VerifyPassword(creds.Password, user.PasswordHash) {
		s.logger.Info().Int64("user_id", user.ID).Msg("Login rejected: bad password")
		return nil, nil, common.ErrUnauthorized
	}

	session, err := s.newSession(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Debug().Int64("user_id", user.ID).Msg("User logged in")
	return user, session, nil
}

// Logout deletes the session
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.sessions.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// CurrentUser resolves a session to its user
func (s *Service) CurrentUser(ctx context.Context, sessionID string) (*models.User, error) {
	if sessionID == "" {
		return nil, common.ErrUnauthorized
	}

	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if session.Expired(s.now()) {
		if err := s.sessions.DeleteSession(ctx, sessionID); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to delete expired session")
		}
		return nil, common.ErrUnauthorized
	}

	user, err := s.users.GetUser(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// IssueToken signs an HS256 JWT carrying the session id.
func (s *Service) IssueToken(session *models.Session) (string, error) {
	claims := jwt.MapClaims{
		"sid": session.ID,
		"sub": strconv.FormatInt(session.UserID, 10),
		"iss": tokenIssuer,
		"iat": session.CreatedAt.Unix(),
		"exp": session.ExpiresAt.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ParseToken validates a token and returns the session id it carries.
// The session itself still has to be looked up.
func (s *Service) ParseToken(tokenString string) (string, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrUnauthorized, err)
	}

	sid, _ := claims["sid"].(string)
	if sid == "" {
		return "", fmt.Errorf("%w: token has no session", common.ErrUnauthorized)
	}
	return sid, nil
}

// SweepExpired removes all sessions expired by now.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	n, err := s.sessions.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep sessions: %w", err)
	}
	if n > 0 {
		s.logger.Debug().Int("count", n).Msg("Expired sessions removed")
	}
	return n, nil
}

func (s *Service) newSession(ctx context.Context, userID int64) (*models.Session, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, err
	}
	now := s.now()
	session := &models.Session{
		ID:        id,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.sessions.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return session, nil
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = HashPassword("mfdesk-timing-equaliser")
	})
	return s.dummyHash
}

// newSessionID returns 32 random bytes, base64url encoded.
func newSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Ensure Service implements AuthService
var _ interfaces.AuthService = (*Service)(nil)
