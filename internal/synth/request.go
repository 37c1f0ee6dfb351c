package synth

import (
	"strings"

	"github.com/voxclone/voxclone/internal/errs"
)

// Request asks for Text to be read in the voice of exactly one reference
// source: a stored clip identifier or freshly uploaded audio bytes.
type Request struct {
	Text        string
	Language    string
	ReferenceID string
	Audio       []byte
}

// Validate checks the request invariants. Text is only trimmed for the
// emptiness check; the model receives it unchanged.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return errs.Invalid("text", "Missing text")
	}

	hasID := strings.TrimSpace(r.ReferenceID) != ""
	hasAudio := len(r.Audio) > 0

	switch {
	case hasID && hasAudio:
		return &errs.ValidationError{Message: "Provide either referenceId or file, not both"}
	case !hasID && !hasAudio:
		return &errs.ValidationError{Message: "Missing file or referenceId"}
	}

	return nil
}

// Result is a generated artifact. Path stays on disk after the request.
type Result struct {
	Filename string
	Path     string
	Audio    []byte
	Language string
}
