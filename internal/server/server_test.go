package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/mfdesk/internal/app"
	"github.com/bobmcallan/mfdesk/internal/common"
	"github.com/bobmcallan/mfdesk/internal/models"
)

var testNow = time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)

const optimizerReply = `{"allocation":{"equity":60,"debt":40},"expectedReturn":11.2}`

// testEnv is a running server backed by the memory store and seeded fixtures.
type testEnv struct {
	t      *testing.T
	srv    *Server
	http   *httptest.Server
	dir    string
	marker string
}

// shellCommand runs script under /bin/sh. Each run first touches marker.
func shellCommand(marker, script string) []string {
	return []string{"/bin/sh", "-c", fmt.Sprintf("touch '%s'; %s", marker, script)}
}

// newTestEnv starts a server. configure may adjust the config before the app
// is built; env.dir and env.marker are already set when it runs.
func newTestEnv(t *testing.T, configure func(env *testEnv, cfg *common.Config)) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{t: t, dir: dir, marker: filepath.Join(dir, "optimizer.spawned")}

	cfg := common.NewDefaultConfig()
	cfg.Logging.Level = "disabled"
	cfg.Optimizer.Command = shellCommand(env.marker, fmt.Sprintf("cat >/dev/null; echo '%s'", optimizerReply))
	cfg.Optimizer.Timeout = "5s"
	cfg.Optimizer.QueueTimeout = "1s"
	cfg.Chat.KnowledgeDir = filepath.Join(dir, "knowledge")
	require.NoError(t, os.MkdirAll(cfg.Chat.KnowledgeDir, 0755))

	if configure != nil {
		configure(env, cfg)
	}

	a, err := app.NewAppWithConfig(context.Background(), cfg,
		app.WithLogger(common.NewSilentLogger()),
		app.WithClock(func() time.Time { return testNow }),
	)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	srv, err := NewServer(a)
	require.NoError(t, err)
	env.srv = srv

	env.http = httptest.NewServer(srv.Handler())
	t.Cleanup(env.http.Close)
	return env
}

// optimizerSpawned reports whether the optimizer script ever ran.
func (e *testEnv) optimizerSpawned() bool {
	_, err := os.Stat(e.marker)
	return err == nil
}

// testClient is one browser: its own cookie jar, redirects not followed.
type testClient struct {
	t    *testing.T
	base string
	http *http.Client
}

func (e *testEnv) newClient() *testClient {
	jar, err := cookiejar.New(nil)
	require.NoError(e.t, err)
	return &testClient{
		t:    e.t,
		base: e.http.URL,
		http: &http.Client{
			Jar:     jar,
			Timeout: 10 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// do sends body as JSON; a string body is sent verbatim.
func (c *testClient) do(method, path string, body interface{}) (*http.Response, []byte) {
	c.t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(c.t, err)
		reader = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, c.base+path, reader)
	require.NoError(c.t, err)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	return resp, data
}

func (c *testClient) register(username, password string) *models.User {
	c.t.Helper()
	resp, data := c.do(http.MethodPost, "/api/register", map[string]string{"username": username, "password": password})
	require.Equal(c.t, http.StatusOK, resp.StatusCode, string(data))
	var user models.User
	require.NoError(c.t, json.Unmarshal(data, &user))
	return &user
}

func (c *testClient) login(username, password string) *models.User {
	c.t.Helper()
	resp, data := c.do(http.MethodPost, "/api/login", map[string]string{"username": username, "password": password})
	require.Equal(c.t, http.StatusOK, resp.StatusCode, string(data))
	var user models.User
	require.NoError(c.t, json.Unmarshal(data, &user))
	return &user
}

func decodeError(t *testing.T, data []byte) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(data, &resp), string(data))
	return resp
}

func sessionCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == "mfdesk_session" {
			return c
		}
	}
	return nil
}

func TestRegisterThenLogin_SameUserID(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.newClient()

	resp, data := c.do(http.MethodPost, "/api/register", map[string]string{"username": "alice", "password": "secret123"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))

	cookie := sessionCookie(resp)
	require.NotNil(t, cookie, "register must set the session cookie")
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, "/", cookie.Path)
	assert.False(t, cookie.Secure, "Secure is production-only")
	assert.Equal(t, int((24 * time.Hour).Seconds()), cookie.MaxAge, "cookie lives as long as the session")

	var registered models.User
	require.NoError(t, json.Unmarshal(data, &registered))
	assert.Equal(t, "alice", registered.Username)
	assert.Positive(t, registered.ID)
	assert.True(t, registered.CreatedAt.Equal(testNow), "accounts are stamped with the app clock, got %s", registered.CreatedAt)
	assert.NotContains(t, string(data), "password")

	resp, _ = c.do(http.MethodPost, "/api/logout", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	loggedIn := c.login("alice", "secret123")
	assert.Equal(t, registered.ID, loggedIn.ID)
}

func TestRegister_DuplicateUsername(t *testing.T) {
	env := newTestEnv(t, nil)
	first := env.newClient().register("alice", "secret123")

	resp, data := env.newClient().do(http.MethodPost, "/api/register", map[string]string{"username": "alice", "password": "different"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "Username already exists", decodeError(t, data).Message)
	assert.Nil(t, sessionCookie(resp))

	// The original password still works.
	assert.Equal(t, first.ID, env.newClient().login("alice", "secret123").ID)
}

func TestRegister_Validation(t *testing.T) {
	env := newTestEnv(t, nil)
	resp, data := env.newClient().do(http.MethodPost, "/api/register", map[string]string{"username": "al", "password": "123"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	errResp := decodeError(t, data)
	assert.Contains(t, errResp.Fields, "username")
	assert.Contains(t, errResp.Fields, "password")
}

func TestLogin_Failures(t *testing.T) {
	env := newTestEnv(t, nil)
	env.newClient().register("alice", "secret123")

	tests := []struct {
		name string
		body interface{}
		want int
	}{
		{"wrong password", map[string]string{"username": "alice", "password": "nope-nope"}, http.StatusUnauthorized},
		{"unknown user", map[string]string{"username": "mallory", "password": "secret123"}, http.StatusUnauthorized},
		{"missing password", map[string]string{"username": "alice"}, http.StatusBadRequest},
		{"malformed", `{"username":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, data := env.newClient().do(http.MethodPost, "/api/login", tt.body)
			assert.Equal(t, tt.want, resp.StatusCode, string(data))
			assert.Nil(t, sessionCookie(resp))
		})
	}
}

func TestUser_RequiresSession(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.newClient()

	resp, _ := c.do(http.MethodGet, "/api/user", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	c.register("alice", "secret123")
	resp, data := c.do(http.MethodGet, "/api/user", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var user models.User
	require.NoError(t, json.Unmarshal(data, &user))
	assert.Equal(t, "alice", user.Username)
}

func TestLogout_InvalidatesSessionServerSide(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.newClient()

	resp, _ := c.do(http.MethodPost, "/api/register", map[string]string{"username": "alice", "password": "secret123"})
	stolen := sessionCookie(resp)
	require.NotNil(t, stolen)

	resp, data := c.do(http.MethodPost, "/api/logout", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, data)
	if cleared := sessionCookie(resp); assert.NotNil(t, cleared) {
		assert.Empty(t, cleared.Value)
		assert.Negative(t, cleared.MaxAge)
	}

	// Replaying the old cookie no longer authenticates.
	req, err := http.NewRequest(http.MethodGet, env.http.URL+"/api/user", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: stolen.Name, Value: stolen.Value})
	replay, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	replay.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, replay.StatusCode)
}

func TestLogout_AnonymousIsOK(t *testing.T) {
	env := newTestEnv(t, nil)
	resp, _ := env.newClient().do(http.MethodPost, "/api/logout", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestForgedCookie_IsAnonymous(t *testing.T) {
	env := newTestEnv(t, nil)

	req, err := http.NewRequest(http.MethodGet, env.http.URL+"/api/clients", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: "mfdesk_session", Value: "eyJhbGciOiJub25lIn0.eyJzaWQiOiJ4In0."})
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHealthAndVersion(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.newClient()

	resp, data := c.do(http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(data))

	resp, data = c.do(http.MethodGet, "/api/version", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var version map[string]string
	require.NoError(t, json.Unmarshal(data, &version))
	assert.Equal(t, common.GetVersion(), version["version"])

	resp, _ = c.do(http.MethodPost, "/api/health", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestDiagnostics_RequiresSession(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.newClient()

	resp, _ := c.do(http.MethodGet, "/api/diagnostics", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	c.login(app.SeedUsername, app.SeedPassword)
	resp, data := c.do(http.MethodGet, "/api/diagnostics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var diag map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &diag))
	assert.Contains(t, diag["process_pools"], "optimizer")
	assert.Equal(t, "memory", diag["storage_backend"])
}

func TestUnknownAPIPath_IsJSON404(t *testing.T) {
	env := newTestEnv(t, nil)
	resp, data := env.newClient().do(http.MethodGet, "/api/nope", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "Not found", decodeError(t, data).Message)
}
