// Package errs holds the error taxonomy shared by the voxclone core packages.
package errs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// ErrNotFound indicates a referenced identifier does not resolve to a stored clip.
var ErrNotFound = errors.New("not found")

// ValidationError reports a bad or missing request field. No external process
// has been started when one is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Invalid constructs a ValidationError for the given field.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IOError wraps a filesystem failure that is not attributable to an external process.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// IO wraps err as an *IOError. A nil err yields nil. The op and path of an
// *fs.PathError or *os.LinkError are replaced by op and path.
func IO(op, path string, err error) error {
	if err == nil {
		return nil
	}

	var pathErr *fs.PathError
	var linkErr *os.LinkError
	switch {
	case errors.As(err, &pathErr):
		err = pathErr.Err
	case errors.As(err, &linkErr):
		err = linkErr.Err
	}
	return &IOError{Op: op, Path: path, Err: err}
}

// IsValidation checks if an error is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound checks if an error wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsIO checks if an error is an IOError.
func IsIO(err error) bool {
	var ioe *IOError
	return errors.As(err, &ioe)
}
