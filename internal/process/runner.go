// Package process runs external programs and reports their failures with the
// captured standard error.
package process

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"

	"github.com/rs/zerolog"
)

// Runner executes external programs.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner is the os/exec backed Runner.
type ExecRunner struct {
	logger zerolog.Logger
}

// NewExecRunner creates a Runner that spawns one OS process per call.
func NewExecRunner(logger zerolog.Logger) *ExecRunner {
	return &ExecRunner{logger: logger.With().Str("component", "process").Logger()}
}

// Run starts name with args, captures everything written to stderr and waits
// for it to exit. There is no retry and no timeout beyond what ctx imposes.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	start := time.Now()

	var stderr bytes.Buffer
	// #nosec G204 -- program and arguments come from server configuration and request paths
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		r.logger.Error().Err(err).Str("command", name).Msg("process failed to start")
		return &ExternalProcessError{Command: name, ExitCode: -1, Launch: true, Err: err}
	}

	err := cmd.Wait()
	duration := time.Since(start)
	if err == nil {
		r.logger.Debug().Str("command", name).Dur("duration", duration).Msg("process finished")
		return nil
	}

	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	}

	r.logger.Warn().
		Str("command", name).
		Int("exit_code", exitCode).
		Dur("duration", duration).
		Msg("process failed")

	return &ExternalProcessError{
		Command:  name,
		ExitCode: exitCode,
		Stderr:   stderr.String(),
		Err:      err,
	}
}

// Ensure ExecRunner implements Runner.
var _ Runner = (*ExecRunner)(nil)
