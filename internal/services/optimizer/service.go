// Package optimizer bridges portfolio optimisation to an external command
// that reads one JSON line on stdin and prints one JSON object on stdout.
package optimizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bobmcallan/mfdesk/internal/common"
	"github.com/bobmcallan/mfdesk/internal/interfaces"
	"github.com/bobmcallan/mfdesk/internal/models"
	"github.com/bobmcallan/mfdesk/internal/services/procpool"
)

// Runner executes a command; *procpool.Pool satisfies it.
type Runner interface {
	Run(ctx context.Context, argv []string, stdin []byte) (*procpool.Output, error)
}

// Service implements OptimizerService
type Service struct {
	runner  Runner
	command []string
	logger  *common.Logger
}

// NewService creates a new optimizer service
func NewService(runner Runner, command []string, logger *common.Logger) *Service {
	return &Service{
		runner:  runner,
		command: command,
		logger:  logger,
	}
}

// Optimize runs the optimizer once. No retries.
func (s *Service) Optimize(ctx context.Context, req models.OptimizeRequest) (json.RawMessage, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	line, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode optimizer input: %w", err)
	}
	line = append(line, '\n')

	out, err := s.runner.Run(ctx, s.command, line)
	if err != nil {
		if pe, ok := common.AsProcessError(err); ok {
			s.logger.Warn().
				Str("kind", pe.Kind.String()).
				Int("risk_level", req.RiskLevel).
				Int("time_frame", req.TimeFrame).
				Str("stderr", pe.Stderr).
				Msg("Portfolio optimization failed")
		}
		return nil, err
	}

	trimmed := bytes.TrimSpace(out.Stdout)
	if !isJSONObject(trimmed) {
		s.logger.Error().
			Int("stdout_bytes", len(out.Stdout)).
			Msg("Optimizer returned malformed output")
		return nil, &common.ProcessError{
			Kind:    common.ProcessOutput,
			Command: strings.Join(s.command, " "),
			Stdout:  string(out.Stdout),
			Stderr:  strings.TrimSpace(string(out.Stderr)),
		}
	}

	s.logger.Info().
		Int("risk_level", req.RiskLevel).
		Int("time_frame", req.TimeFrame).
		Dur("elapsed", out.Duration).
		Msg("Portfolio optimized")

	return json.RawMessage(trimmed), nil
}

func isJSONObject(b []byte) bool {
	if len(b) == 0 || b[0] != '{' {
		return false
	}
	var obj map[string]json.RawMessage
	return json.Unmarshal(b, &obj) == nil
}

// Ensure Service implements OptimizerService
var _ interfaces.OptimizerService = (*Service)(nil)
