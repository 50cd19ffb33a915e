// Package procpool runs external commands through a bounded pool of slots
// with a per-call timeout.
package procpool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/bobmcallan/mfdesk/internal/common"
)

// Output is the captured result of a successful run.
type Output struct {
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
}

// Stats reports pool usage counters.
type Stats struct {
	Capacity int   `json:"capacity"`
	Active   int64 `json:"active"`
	Runs     int64 `json:"runs"`
	Rejected int64 `json:"rejected"`
}

// Pool limits concurrent external processes. A call waits up to queueTimeout
// for a slot, then runs with a deadline of timeout; on expiry the process is
// killed.
type Pool struct {
	name         string
	sem          chan struct{}
	timeout      time.Duration
	queueTimeout time.Duration
	waitDelay    time.Duration
	logger       *common.Logger

	active   atomic.Int64
	runs     atomic.Int64
	rejected atomic.Int64
}

// Option configures the pool
type Option func(*Pool)

// WithLogger sets the logger
func WithLogger(logger *common.Logger) Option {
	return func(p *Pool) {
		p.logger = logger
	}
}

// WithWaitDelay bounds how long Run waits for output pipes to close after the
// process is killed.
func WithWaitDelay(d time.Duration) Option {
	return func(p *Pool) {
		p.waitDelay = d
	}
}

// New creates a pool sized and timed from cfg.
func New(name string, cfg common.ProcessConfig, opts ...Option) *Pool {
	p := &Pool{
		name:         name,
		sem:          make(chan struct{}, cfg.GetMaxConcurrent()),
		timeout:      cfg.GetTimeout(),
		queueTimeout: cfg.GetQueueTimeout(),
		waitDelay:    2 * time.Second,
		logger:       common.NewSilentLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes argv with stdin as its standard input. Failures are returned
// as *common.ProcessError (exit, timeout, busy) or a plain wrapped error when
// the command could not be started or the caller went away.
func (p *Pool) Run(ctx context.Context, argv []string, stdin []byte) (*Output, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("%s: no command configured", p.name)
	}
	command := strings.Join(argv, " ")

	if err := p.acquire(ctx); err != nil {
		if errors.Is(err, errBusy) {
			p.rejected.Add(1)
			p.logger.Warn().Str("pool", p.name).Int("capacity", cap(p.sem)).Msg("No free process slot")
			return nil, &common.ProcessError{Kind: common.ProcessBusy, Command: command, Err: err}
		}
		return nil, fmt.Errorf("%s: waiting for slot: %w", p.name, err)
	}
	defer p.release()

	runID := uuid.NewString()
	start := time.Now()

	runCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Stdin = bytes.NewReader(stdin)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = p.waitDelay

	p.runs.Add(1)
	p.logger.Debug().Str("pool", p.name).Str("run_id", runID).Str("command", command).Msg("Process started")

	err := cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		switch {
		case ctx.Err() != nil:
			// Caller cancelled; the process was killed on its behalf
			return nil, fmt.Errorf("%s: %w", p.name, ctx.Err())

		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			p.logger.Warn().Str("pool", p.name).Str("run_id", runID).Dur("timeout", p.timeout).Msg("Process timed out and was killed")
			return nil, &common.ProcessError{
				Kind:    common.ProcessTimeout,
				Command: command,
				Stderr:  strings.TrimSpace(stderr.String()),
				Stdout:  stdout.String(),
				Err:     runCtx.Err(),
			}
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			p.logger.Info().Str("pool", p.name).Str("run_id", runID).Int("exit_code", exitErr.ExitCode()).Dur("elapsed", elapsed).Msg("Process exited non-zero")
			return nil, &common.ProcessError{
				Kind:     common.ProcessExit,
				Command:  command,
				ExitCode: exitErr.ExitCode(),
				Stderr:   strings.TrimSpace(stderr.String()),
				Stdout:   stdout.String(),
				Err:      err,
			}
		}

		return nil, fmt.Errorf("%s: failed to run %s: %w", p.name, argv[0], err)
	}

	p.logger.Debug().Str("pool", p.name).Str("run_id", runID).Dur("elapsed", elapsed).Int("stdout_bytes", stdout.Len()).Msg("Process finished")

	return &Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), Duration: elapsed}, nil
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Capacity: cap(p.sem),
		Active:   p.active.Load(),
		Runs:     p.runs.Load(),
		Rejected: p.rejected.Load(),
	}
}

var errBusy = errors.New("no free process slot")

func (p *Pool) acquire(ctx context.Context) error {
	// Fast path
	select {
	case p.sem <- struct{}{}:
		p.active.Add(1)
		return nil
	default:
	}

	timer := time.NewTimer(p.queueTimeout)
	defer timer.Stop()

	select {
	case p.sem <- struct{}{}:
		p.active.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errBusy
	}
}

func (p *Pool) release() {
	p.active.Add(-1)
	<-p.sem
}
