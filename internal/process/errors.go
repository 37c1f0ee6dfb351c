package process

import (
	"errors"
	"fmt"
)

// ExternalProcessError reports a transcoder or model invocation that failed to
// launch or exited with a non-zero status.
type ExternalProcessError struct {
	Command  string
	ExitCode int
	Stderr   string
	// Launch is set when the program could not be started at all.
	Launch bool
	Err    error
}

func (e *ExternalProcessError) Error() string {
	if e.Launch {
		return fmt.Sprintf("%s failed to start: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("%s exited %d\n%s", e.Command, e.ExitCode, e.Stderr)
}

func (e *ExternalProcessError) Unwrap() error {
	return e.Err
}

// IsExternalProcessError checks if an error is an ExternalProcessError.
func IsExternalProcessError(err error) bool {
	var pe *ExternalProcessError
	return errors.As(err, &pe)
}

// AsExternalProcessError returns the ExternalProcessError wrapped in err, if any.
func AsExternalProcessError(err error) (*ExternalProcessError, bool) {
	var pe *ExternalProcessError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
