package schema

import (
	"fmt"
	"unicode/utf8"

	"github.com/voxclone/voxclone/internal/errs"
)

const defaultLang = "en"

// TTSRequest is the wire form of a synthesis request. Exactly one of
// ReferenceID and Audio is expected; the orchestrator enforces it.
type TTSRequest struct {
	Text        string `json:"text" msgpack:"text"`
	Lang        string `json:"lang,omitempty" msgpack:"lang,omitempty"`
	ReferenceID string `json:"reference_id,omitempty" msgpack:"reference_id,omitempty"`
	Audio       []byte `json:"audio,omitempty" msgpack:"audio,omitempty"`
}

// Validate applies defaults and enforces the configured text length limit
// (0 = unlimited). fallbackLang replaces an empty Lang; when it is also empty
// "en" is used.
func (r *TTSRequest) Validate(maxTextLength int, fallbackLang string) error {
	r.applyDefaults(fallbackLang)

	if maxTextLength > 0 && utf8.RuneCountInString(r.Text) > maxTextLength {
		return errs.Invalid("text", fmt.Sprintf("Text is too long, max length is %d", maxTextLength))
	}

	return nil
}

func (r *TTSRequest) applyDefaults(fallbackLang string) {
	if r.Lang == "" {
		r.Lang = fallbackLang
	}

	if r.Lang == "" {
		r.Lang = defaultLang
	}
}
