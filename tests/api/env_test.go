// Package api runs the HTTP surface end to end against a SurrealDB container.
package api

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
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/mfdesk/internal/app"
	"github.com/bobmcallan/mfdesk/internal/common"
	"github.com/bobmcallan/mfdesk/internal/server"
	"github.com/bobmcallan/mfdesk/internal/storage"
	tcommon "github.com/bobmcallan/mfdesk/tests/common"
)

var clock = time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)

// Env is a seeded mfdesk server persisting to its own SurrealDB database.
type Env struct {
	t      *testing.T
	cfg    *common.Config
	server *httptest.Server
	client *http.Client
}

// NewEnv starts the shared container and an isolated server over it.
func NewEnv(t *testing.T) *Env {
	t.Helper()
	sc := tcommon.StartSurrealDB(t)
	return newEnvAt(t, sc.Address(), databaseName(t))
}

func newEnvAt(t *testing.T, address, database string) *Env {
	t.Helper()

	cfg := common.NewDefaultConfig()
	cfg.Logging.Level = "disabled"
	cfg.Storage.Backend = storage.BackendSurrealDB
	cfg.Storage.Address = address
	cfg.Storage.Username = "root"
	cfg.Storage.Password = "root"
	cfg.Storage.Namespace = "mfdesk_api_test"
	cfg.Storage.Database = database
	cfg.Optimizer.Command = []string{"/bin/sh", "-c", `cat >/dev/null; echo '{"allocation":{"equity":70,"debt":30}}'`}
	cfg.Chat.KnowledgeDir = filepath.Join(t.TempDir(), "knowledge")
	require.NoError(t, os.MkdirAll(cfg.Chat.KnowledgeDir, 0755))

	a, err := app.NewAppWithConfig(context.Background(), cfg,
		app.WithLogger(common.NewSilentLogger()),
		app.WithClock(func() time.Time { return clock }),
	)
	require.NoError(t, err)

	srv, err := server.NewServer(a)
	require.NoError(t, err)

	env := &Env{t: t, cfg: cfg, server: httptest.NewServer(srv.Handler())}
	env.client = env.newHTTPClient()
	t.Cleanup(func() {
		env.server.Close()
		a.Close()
	})
	return env
}

func databaseName(t *testing.T) string {
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	return fmt.Sprintf("api_%s_%d", name, time.Now().UnixNano()%100000)
}

func (e *Env) newHTTPClient() *http.Client {
	jar, err := cookiejar.New(nil)
	require.NoError(e.t, err)
	return &http.Client{
		Jar:     jar,
		Timeout: 30 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Anonymous returns a copy of the env with an empty cookie jar.
func (e *Env) Anonymous() *Env {
	clone := *e
	clone.client = e.newHTTPClient()
	return &clone
}

// Do sends body as JSON when non-nil and returns the response with its body read.
func (e *Env) Do(method, path string, body interface{}) (*http.Response, []byte) {
	e.t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(e.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.client.Do(req)
	require.NoError(e.t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(e.t, err)
	return resp, data
}

// Login signs in and fails the test on anything but 200.
func (e *Env) Login(username, password string) {
	e.t.Helper()
	resp, data := e.Do(http.MethodPost, "/api/login", map[string]string{"username": username, "password": password})
	require.Equal(e.t, http.StatusOK, resp.StatusCode, string(data))
}

func decodeInto(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(data, v), string(data))
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }
