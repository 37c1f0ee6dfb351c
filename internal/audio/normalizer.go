// Package audio converts arbitrary input audio into the canonical reference
// format by delegating to an external transcoder.
package audio

import (
	"context"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/voxclone/voxclone/internal/errs"
	"github.com/voxclone/voxclone/internal/process"
)

// DefaultTranscoder is used when no transcoder path is configured.
const DefaultTranscoder = "ffmpeg"

// Normalizer transcodes input audio into the canonical format.
type Normalizer struct {
	runner     process.Runner
	transcoder string
	logger     zerolog.Logger
}

// NewNormalizer creates a Normalizer invoking transcoder through runner.
func NewNormalizer(runner process.Runner, transcoder string, logger zerolog.Logger) *Normalizer {
	if transcoder == "" {
		transcoder = DefaultTranscoder
	}
	return &Normalizer{
		runner:     runner,
		transcoder: transcoder,
		logger:     logger.With().Str("component", "normalizer").Logger(),
	}
}

// Normalize writes a canonical copy of inputPath to outputPath, overwriting it
// if present. Container and codec detection is left to the transcoder; its
// failure is returned unchanged.
func (n *Normalizer) Normalize(ctx context.Context, inputPath, outputPath string) error {
	if err := n.runner.Run(ctx, n.transcoder, transcodeArgs(inputPath, outputPath)...); err != nil {
		return err
	}

	got, err := Inspect(outputPath)
	if err != nil {
		return errs.IO("inspect", outputPath, err)
	}
	if !got.IsCanonical() {
		return &FormatError{Path: outputPath, Got: got}
	}

	n.logger.Debug().Str("input", inputPath).Str("output", outputPath).Msg("audio normalized")
	return nil
}

func transcodeArgs(inputPath, outputPath string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", inputPath,
		"-ar", strconv.Itoa(CanonicalSampleRate),
		"-ac", strconv.Itoa(CanonicalChannels),
		"-c:a", CanonicalCodec,
		outputPath,
	}
}
