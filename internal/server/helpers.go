package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/bobmcallan/mfdesk/internal/common"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// ErrorResponse is the standard error format for REST API responses.
type ErrorResponse struct {
	Message string            `json:"message"`
	Details string            `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// ProcessErrorResponse reports a failed external process. Details is always
// present, empty when the process wrote nothing.
type ProcessErrorResponse struct {
	Message string `json:"message"`
	Details string `json:"details"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, ErrorResponse{Message: message})
}

// WriteErrorDetails writes a JSON error response with diagnostic details.
func WriteErrorDetails(w http.ResponseWriter, statusCode int, message, details string) {
	WriteJSON(w, statusCode, ErrorResponse{Message: message, Details: details})
}

// RequireMethod validates the HTTP method and returns true if it matches.
// If it doesn't match, it writes a 405 response and returns false.
func RequireMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	return false
}

// DecodeJSON strictly decodes the request body into v: unknown fields,
// wrong types and trailing data are rejected. Returns false after writing a
// 400 response when decoding fails.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Body == nil || r.Body == http.NoBody {
		WriteError(w, http.StatusBadRequest, "Request body is required")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(v)
	if err == nil {
		if _, extra := dec.Token(); extra != io.EOF {
			err = errors.New("unexpected data after JSON object")
		}
	}
	if err != nil {
		writeDecodeError(w, err)
		return false
	}
	return true
}

func writeDecodeError(w http.ResponseWriter, err error) {
	var typeErr *json.UnmarshalTypeError
	var maxErr *http.MaxBytesError

	switch {
	case errors.As(err, &typeErr) && typeErr.Field != "":
		WriteJSON(w, http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Fields:  map[string]string{typeErr.Field: "must be a " + jsonKind(typeErr.Type.Kind().String())},
		})
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		field := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
		WriteJSON(w, http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Fields:  map[string]string{field: "is not allowed"},
		})
	case errors.As(err, &maxErr):
		WriteError(w, http.StatusRequestEntityTooLarge, "Request body too large")
	case errors.Is(err, io.EOF):
		WriteError(w, http.StatusBadRequest, "Request body is required")
	default:
		WriteError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
	}
}

func jsonKind(kind string) string {
	switch kind {
	case "int", "int8", "int16", "int32", "int64", "uint", "uint8", "uint16", "uint32", "uint64", "float32", "float64":
		return "number"
	case "bool":
		return "boolean"
	case "string":
		return "string"
	}
	return "valid value"
}

// parseID parses a positive integer path segment.
func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

// writeServiceError maps a service error onto an HTTP response.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if ve, ok := common.AsValidationError(err); ok {
		WriteJSON(w, http.StatusBadRequest, ErrorResponse{Message: "Validation failed", Fields: ve.Fields})
		return
	}
	if pe, ok := common.AsProcessError(err); ok {
		s.writeProcessError(w, pe, defaultProcessMessages)
		return
	}

	switch {
	case errors.Is(err, common.ErrUnauthorized):
		WriteError(w, http.StatusUnauthorized, "Not authenticated")
	case errors.Is(err, common.ErrNotFound):
		WriteError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, common.ErrConflict):
		WriteError(w, http.StatusConflict, "Already exists")
	case errors.Is(err, common.ErrInsufficientData):
		WriteErrorDetails(w, http.StatusUnprocessableEntity, "Not enough data", err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.logger.Info().Str("path", r.URL.Path).Err(err).Msg("Request abandoned")
		WriteError(w, http.StatusServiceUnavailable, "Request cancelled")
	default:
		s.logger.Error().Str("path", r.URL.Path).Err(err).Msg("Request failed")
		WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// processMessages holds the user-facing wording for one external process.
type processMessages struct {
	exitStatus int
	exit       string
	output     string
	timeout    string
	busy       string
}

var (
	defaultProcessMessages = processMessages{
		exitStatus: http.StatusInternalServerError,
		exit:       "Process failed",
		output:     "Invalid response format from process",
		timeout:    "Process timed out",
		busy:       "Server busy, try again shortly",
	}
	optimizerMessages = processMessages{
		exitStatus: http.StatusUnprocessableEntity,
		exit:       "Portfolio optimization failed",
		output:     "Invalid response format from optimizer",
		timeout:    "Portfolio optimization timed out",
		busy:       "Portfolio optimizer is busy, try again shortly",
	}
	chatMessages = processMessages{
		exitStatus: http.StatusInternalServerError,
		exit:       "Chat assistant failed",
		output:     "Invalid response from chat assistant",
		timeout:    "Chat assistant timed out",
		busy:       "Chat assistant is busy, try again shortly",
	}
)

// writeProcessError maps an external process failure. Exit failures carry
// stderr and malformed output carries the raw stdout as details.
func (s *Server) writeProcessError(w http.ResponseWriter, pe *common.ProcessError, msgs processMessages) {
	switch pe.Kind {
	case common.ProcessExit:
		WriteJSON(w, msgs.exitStatus, ProcessErrorResponse{Message: msgs.exit, Details: pe.Stderr})
	case common.ProcessOutput:
		s.logger.Error().Str("command", pe.Command).Int("stdout_bytes", len(pe.Stdout)).Msg("Process returned invalid output")
		WriteJSON(w, http.StatusInternalServerError, ProcessErrorResponse{Message: msgs.output, Details: pe.Stdout})
	case common.ProcessTimeout:
		WriteError(w, http.StatusGatewayTimeout, msgs.timeout)
	case common.ProcessBusy:
		w.Header().Set("Retry-After", "5")
		WriteError(w, http.StatusServiceUnavailable, msgs.busy)
	default:
		s.logger.Error().Str("command", pe.Command).Err(pe).Msg("Process failed to start")
		WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}
