package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/mfdesk/internal/common"
)

func TestRequireMethod(t *testing.T) {
	rec := httptest.NewRecorder()
	ok := RequireMethod(rec, httptest.NewRequest(http.MethodPut, "/api/clients", nil), http.MethodGet, http.MethodPost)
	assert.False(t, ok)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET, POST", rec.Header().Get("Allow"))

	rec = httptest.NewRecorder()
	assert.True(t, RequireMethod(rec, httptest.NewRequest(http.MethodPost, "/api/clients", nil), http.MethodGet, http.MethodPost))
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
		Age  *int   `json:"age"`
	}

	tests := []struct {
		name      string
		body      string
		wantOK    bool
		wantCode  int
		wantField string
	}{
		{"valid", `{"name":"a","age":3}`, true, http.StatusOK, ""},
		{"trailing whitespace", "{\"name\":\"a\"}\n", true, http.StatusOK, ""},
		{"unknown field", `{"name":"a","role":"admin"}`, false, http.StatusBadRequest, "role"},
		{"wrong type", `{"age":"three"}`, false, http.StatusBadRequest, "age"},
		{"trailing object", `{"name":"a"}{"name":"b"}`, false, http.StatusBadRequest, ""},
		{"truncated", `{"name":`, false, http.StatusBadRequest, ""},
		{"empty", ``, false, http.StatusBadRequest, ""},
		{"too large", `{"name":"` + strings.Repeat("x", maxBodyBytes) + `"}`, false, http.StatusRequestEntityTooLarge, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/x", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			var p payload
			ok := DecodeJSON(rec, req, &p)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, "a", p.Name)
				return
			}
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantField != "" {
				var resp ErrorResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.Contains(t, resp.Fields, tt.wantField)
			}
		})
	}
}

func TestParseID(t *testing.T) {
	id, err := parseID("17")
	require.NoError(t, err)
	assert.Equal(t, int64(17), id)

	for _, raw := range []string{"", "0", "-3", "1.5", "abc", "99999999999999999999"} {
		_, err := parseID(raw)
		assert.Error(t, err, raw)
	}
}

func TestWriteServiceError(t *testing.T) {
	srv := &Server{logger: common.NewSilentLogger()}

	ve := common.NewValidationError()
	ve.Add("name", "is required")

	tests := []struct {
		name    string
		err     error
		code    int
		details string
	}{
		{"validation", fmt.Errorf("create: %w", ve), http.StatusBadRequest, ""},
		{"unauthorized", common.ErrUnauthorized, http.StatusUnauthorized, ""},
		{"not found", fmt.Errorf("client 3: %w", common.ErrNotFound), http.StatusNotFound, ""},
		{"conflict", common.ErrConflict, http.StatusConflict, ""},
		{"insufficient data", fmt.Errorf("need 2 points: %w", common.ErrInsufficientData), http.StatusUnprocessableEntity, "need 2 points: insufficient data"},
		{"cancelled", context.Canceled, http.StatusServiceUnavailable, ""},
		{"process exit", &common.ProcessError{Kind: common.ProcessExit, Stderr: "boom"}, http.StatusInternalServerError, "boom"},
		{"process timeout", &common.ProcessError{Kind: common.ProcessTimeout}, http.StatusGatewayTimeout, ""},
		{"unexpected", errors.New("disk on fire"), http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.writeServiceError(rec, httptest.NewRequest(http.MethodGet, "/api/x", nil), tt.err)
			assert.Equal(t, tt.code, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.details, resp.Details)
			assert.NotContains(t, resp.Message, "disk on fire", "internal errors are not leaked")
		})
	}
}

func TestWriteProcessError_OptimizerWording(t *testing.T) {
	srv := &Server{logger: common.NewSilentLogger()}

	tests := []struct {
		kind    common.ProcessErrorKind
		code    int
		message string
	}{
		{common.ProcessExit, http.StatusUnprocessableEntity, "Portfolio optimization failed"},
		{common.ProcessOutput, http.StatusInternalServerError, "Invalid response format from optimizer"},
		{common.ProcessTimeout, http.StatusGatewayTimeout, "Portfolio optimization timed out"},
		{common.ProcessBusy, http.StatusServiceUnavailable, "Portfolio optimizer is busy, try again shortly"},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.writeProcessError(rec, &common.ProcessError{Kind: tt.kind, Stderr: "stderr", Stdout: "stdout"}, optimizerMessages)
			assert.Equal(t, tt.code, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.message, resp.Message)
		})
	}
}

func TestWriteProcessError_DetailsAlwaysPresent(t *testing.T) {
	srv := &Server{logger: common.NewSilentLogger()}

	for _, kind := range []common.ProcessErrorKind{common.ProcessExit, common.ProcessOutput} {
		t.Run(kind.String(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.writeProcessError(rec, &common.ProcessError{Kind: kind}, optimizerMessages)

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Contains(t, body, "details")
		})
	}
}
