package common

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel errors shared by storage, services and handlers.
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("already exists")

	// ErrInsufficientData means a derived result needs more history than exists.
	ErrInsufficientData = errors.New("insufficient data")
)

// ValidationError carries field-level messages for a rejected input.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError returns an empty ValidationError ready for Add.
func NewValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string]string)}
}

// Add records a message for field. The first message per field wins.
func (e *ValidationError) Add(field, message string) {
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = message
	}
}

// Err returns e when at least one field failed, otherwise nil.
func (e *ValidationError) Err() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ProcessErrorKind classifies a failed external process call.
type ProcessErrorKind int

const (
	// ProcessExit means the process exited non-zero.
	ProcessExit ProcessErrorKind = iota + 1
	// ProcessOutput means the process exited zero but its output was unusable.
	ProcessOutput
	// ProcessTimeout means the process exceeded its deadline and was killed.
	ProcessTimeout
	// ProcessBusy means no process slot became free in time.
	ProcessBusy
)

func (k ProcessErrorKind) String() string {
	switch k {
	case ProcessExit:
		return "exit"
	case ProcessOutput:
		return "output"
	case ProcessTimeout:
		return "timeout"
	case ProcessBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// ProcessError describes a failed external process call. Stderr and Stdout
// hold the captured streams for diagnosis.
type ProcessError struct {
	Kind     ProcessErrorKind
	Command  string
	ExitCode int
	Stderr   string
	Stdout   string
	Err      error
}

func (e *ProcessError) Error() string {
	switch e.Kind {
	case ProcessExit:
		return fmt.Sprintf("process %s exited with code %d: %s", e.Command, e.ExitCode, e.Stderr)
	case ProcessOutput:
		return fmt.Sprintf("process %s returned an invalid response", e.Command)
	case ProcessTimeout:
		return fmt.Sprintf("process %s timed out", e.Command)
	case ProcessBusy:
		return fmt.Sprintf("process %s: no free slot", e.Command)
	}
	return fmt.Sprintf("process %s failed", e.Command)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// AsProcessError reports whether err wraps a ProcessError and returns it.
func AsProcessError(err error) (*ProcessError, bool) {
	var pe *ProcessError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// AsValidationError reports whether err wraps a ValidationError and returns it.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
