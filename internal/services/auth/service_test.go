package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/mfdesk/internal/common"
	"github.com/bobmcallan/mfdesk/internal/models"
	"github.com/bobmcallan/mfdesk/internal/storage/memory"
)

const testSecret = "test-secret"

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestService(t *testing.T) (*Service, *memory.Store, *fakeClock) {
	t.Helper()
	store := memory.NewStore(common.NewSilentLogger())
	clock := &fakeClock{t: time.Now()}
	svc := NewService(store, testSecret, WithClock(clock.Now), WithSessionTTL(time.Hour))
	return svc, store, clock
}

func TestHashPassword_RoundTrip(t *testing.T) {
	hash, err := HashPassword("qwertyuiop")
	require.NoError(t, err)

	hashHex, saltHex, ok := strings.Cut(hash, ".")
	require.True(t, ok)
	assert.Len(t, hashHex, 128)
	assert.Len(t, saltHex, 32)

	assert.True(t, VerifyPassword("qwertyuiop", hash))
	assert.False(t, VerifyPassword("qwertyuiop!", hash))
}

func TestHashPassword_SaltDiffers(t *testing.T) {
	a, err := HashPassword("same")
	require.NoError(t, err)
	b, err := HashPassword("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerifyPassword_Malformed(t *testing.T) {
	for _, stored := range []string{"", "nodot", "zz.zz", ".abcd", "abcd."} {
		assert.False(t, VerifyPassword("x", stored), "stored=%q", stored)
	}
}

func TestRegisterThenLogin_SameUserID(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	for _, creds := range []models.Credentials{
		{Username: "abc", Password: "123456"},
		{Username: "Chinmay", Password: "qwertyuiop"},
		{Username: "a-much-longer-user.name", Password: "a long passphrase with spaces"},
	} {
		registered, session, err := svc.Register(ctx, creds)
		require.NoError(t, err)
		require.NotNil(t, session)

		loggedIn, _, err := svc.Login(ctx, creds)
		require.NoError(t, err)
		assert.Equal(t, registered.ID, loggedIn.ID)
	}
}

func TestRegister_DuplicateDoesNotMutate(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	first, _, err := svc.Register(ctx, models.Credentials{Username: "Chinmay", Password: "qwertyuiop"})
	require.NoError(t, err)
	before, err := store.GetUser(ctx, first.ID)
	require.NoError(t, err)

	_, _, err = svc.Register(ctx, models.Credentials{Username: "Chinmay", Password: "different-pass"})
	require.ErrorIs(t, err, common.ErrConflict)

	after, err := store.GetUser(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, before.PasswordHash, after.PasswordHash)

	_, _, err = svc.Login(ctx, models.Credentials{Username: "Chinmay", Password: "qwertyuiop"})
	assert.NoError(t, err)
}

func TestRegister_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, _, err := svc.Register(context.Background(), models.Credentials{Username: "ab", Password: "123"})
	ve, ok := common.AsValidationError(err)
	require.True(t, ok)
	assert.Contains(t, ve.Fields, "username")
	assert.Contains(t, ve.Fields, "password")
}

func TestLogin_Failures(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.Register(ctx, models.Credentials{Username: "Chinmay", Password: "qwertyuiop"})
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, models.Credentials{Username: "Chinmay", Password: "wrong-pass"})
	assert.ErrorIs(t, err, common.ErrUnauthorized)

	_, _, err = svc.Login(ctx, models.Credentials{Username: "ghost", Password: "qwertyuiop"})
	assert.ErrorIs(t, err, common.ErrUnauthorized)

	_, _, err = svc.Login(ctx, models.Credentials{Username: "", Password: ""})
	_, ok := common.AsValidationError(err)
	assert.True(t, ok)
}

func TestCurrentUser_SessionLifecycle(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()

	user, session, err := svc.Register(ctx, models.Credentials{Username: "Chinmay", Password: "qwertyuiop"})
	require.NoError(t, err)

	got, err := svc.CurrentUser(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	require.NoError(t, svc.Logout(ctx, session.ID))
	require.NoError(t, svc.Logout(ctx, session.ID), "logout is idempotent")
	require.NoError(t, svc.Logout(ctx, ""))

	_, err = svc.CurrentUser(ctx, session.ID)
	assert.ErrorIs(t, err, common.ErrUnauthorized)

	_, session2, err := svc.Login(ctx, models.Credentials{Username: "Chinmay", Password: "qwertyuiop"})
	require.NoError(t, err)
	clock.Advance(2 * time.Hour)
	_, err = svc.CurrentUser(ctx, session2.ID)
	assert.ErrorIs(t, err, common.ErrUnauthorized)
}

func TestSweepExpired(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.Register(ctx, models.Credentials{Username: "Chinmay", Password: "qwertyuiop"})
	require.NoError(t, err)

	n, err := svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	clock.Advance(61 * time.Minute)
	n, err = svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIssueAndParseToken(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()

	_, session, err := svc.Register(ctx, models.Credentials{Username: "Chinmay", Password: "qwertyuiop"})
	require.NoError(t, err)

	token, err := svc.IssueToken(session)
	require.NoError(t, err)

	sid, err := svc.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, session.ID, sid)

	other := NewService(memory.NewStore(nil), "another-secret", WithClock(clock.Now))
	_, err = other.ParseToken(token)
	assert.ErrorIs(t, err, common.ErrUnauthorized)

	clock.Advance(2 * time.Hour)
	_, err = svc.ParseToken(token)
	assert.ErrorIs(t, err, common.ErrUnauthorized, "expired token")
}

func TestParseToken_RejectsNoneAlgorithm(t *testing.T) {
	svc, _, _ := newTestService(t)

	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sid": "forged",
		"iss": tokenIssuer,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	tokenString, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = svc.ParseToken(tokenString)
	assert.ErrorIs(t, err, common.ErrUnauthorized)
}
