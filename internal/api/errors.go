package api

import (
	"errors"
	"net/http"

	"github.com/voxclone/voxclone/internal/audio"
	"github.com/voxclone/voxclone/internal/errs"
	"github.com/voxclone/voxclone/internal/process"
)

// Failure kinds used as metric labels and log fields.
const (
	kindValidation      = "validation"
	kindNotFound        = "not_found"
	kindTooLarge        = "too_large"
	kindExternalProcess = "external_process"
	kindFormat          = "format"
	kindIO              = "io"
	kindInternal        = "internal"
)

// classify maps a service error to its HTTP status, detail message and kind.
// External process failures keep the captured stderr in the message.
func classify(err error) (int, string, string) {
	var (
		httpErr   *HTTPError
		validErr  *errs.ValidationError
		procErr   *process.ExternalProcessError
		formatErr *audio.FormatError
		maxErr    *http.MaxBytesError
	)

	switch {
	case errors.As(err, &httpErr):
		return httpErr.Status, httpErr.Message, kindValidation
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge, "Upload exceeds limit", kindTooLarge
	case errors.As(err, &validErr):
		return http.StatusBadRequest, validErr.Message, kindValidation
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound, "Reference not found", kindNotFound
	case errors.As(err, &procErr):
		return http.StatusInternalServerError, procErr.Error(), kindExternalProcess
	case errors.As(err, &formatErr):
		return http.StatusUnprocessableEntity, formatErr.Error(), kindFormat
	case errs.IsIO(err):
		return http.StatusInternalServerError, "Storage error", kindIO
	default:
		return http.StatusInternalServerError, "Server error", kindInternal
	}
}
