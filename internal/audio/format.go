package audio

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

// Canonical format every reference clip is stored in.
const (
	CanonicalSampleRate = 44100
	CanonicalChannels   = 1
	CanonicalBitDepth   = 16
	CanonicalCodec      = "pcm_s16le"

	wavFormatPCM = 1
)

// ErrNotWAV indicates the file does not carry a RIFF/WAVE header.
var ErrNotWAV = errors.New("not a wav file")

// Format describes the header of a WAV file.
type Format struct {
	SampleRate int  `json:"sample_rate"`
	Channels   int  `json:"channels"`
	BitDepth   int  `json:"bit_depth"`
	PCM        bool `json:"pcm"`
}

// IsCanonical reports whether f is mono, 44.1 kHz, 16-bit linear PCM.
func (f Format) IsCanonical() bool {
	return f.PCM &&
		f.SampleRate == CanonicalSampleRate &&
		f.Channels == CanonicalChannels &&
		f.BitDepth == CanonicalBitDepth
}

func (f Format) String() string {
	codec := "non-pcm"
	if f.PCM {
		codec = "pcm"
	}
	return fmt.Sprintf("%s %d Hz, %d ch, %d bit", codec, f.SampleRate, f.Channels, f.BitDepth)
}

// FormatError reports a transcoder output that is not in the canonical format.
type FormatError struct {
	Path string
	Got  Format
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s is not canonical audio (got %s)", e.Path, e.Got)
}

// Inspect reads the WAV header of path.
func Inspect(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return Format{}, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return Format{}, fmt.Errorf("%s: %w", path, ErrNotWAV)
	}

	return Format{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
		PCM:        dec.WavAudioFormat == wavFormatPCM,
	}, nil
}
