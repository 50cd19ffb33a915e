package models

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/bobmcallan/mfdesk/internal/common"
)

// User represents a distributor account. PasswordHash is never serialised.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Session binds a random token to a user until ExpiresAt.
type Session struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the session is no longer valid at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Credentials is the register/login request body.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Validate checks the register form rules: username 3-128 characters with no
// control characters, password at least 6 characters.
func (c *Credentials) Validate() error {
	ve := common.NewValidationError()

	name := strings.TrimSpace(c.Username)
	switch n := utf8.RuneCountInString(name); {
	case n == 0:
		ve.Add("username", "is required")
	case n < 3:
		ve.Add("username", "must be at least 3 characters")
	case n > 128:
		ve.Add("username", "must be at most 128 characters")
	}
	if strings.IndexFunc(name, unicode.IsControl) >= 0 {
		ve.Add("username", "must not contain control characters")
	}

	if utf8.RuneCountInString(c.Password) < 6 {
		ve.Add("password", "must be at least 6 characters")
	}

	return ve.Err()
}
