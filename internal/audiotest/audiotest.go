// Package audiotest provides WAV fixtures and stub executables standing in for
// the transcoder and the synthesis model in tests.
package audiotest

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteWAV writes a short PCM WAV file with the given header values.
func WriteWAV(t testing.TB, path string, sampleRate, channels, bitDepth int) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create wav: %v", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, bitDepth, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           make([]int, 441*channels),
		SourceBitDepth: bitDepth,
	}
	for i := range buf.Data {
		buf.Data[i] = (i % 64) * 256
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close wav encoder: %v", err)
	}
}

// CanonicalWAV writes a mono 44.1 kHz 16-bit fixture into a temp dir and returns its path.
func CanonicalWAV(t testing.TB) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "canonical.wav")
	WriteWAV(t, path, 44100, 1, 16)
	return path
}

// Script writes an executable shell script with body and returns its path.
func Script(t testing.TB, name, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

// Transcoder returns a stub transcoder that checks its -i input exists and
// copies fixture to its last argument.
func Transcoder(t testing.TB, fixture string) string {
	t.Helper()

	return Script(t, "ffmpeg", fmt.Sprintf(`in=""
prev=""
for a; do
  if [ "$prev" = "-i" ]; then in="$a"; fi
  prev="$a"
  out="$a"
done
if [ ! -f "$in" ]; then echo "$in: No such file or directory" >&2; exit 1; fi
cp '%s' "$out"`, fixture))
}

// Failing returns a stub that writes stderr and exits with code.
func Failing(t testing.TB, name, stderr string, code int) string {
	t.Helper()

	return Script(t, name, fmt.Sprintf("printf '%%s' '%s' >&2\nexit %d", stderr, code))
}

// Model returns a stub synthesis model invoked as
// model <reference> <text> <lang> <output>; it copies the reference to the output
// and appends its arguments, one per line, to logPath when logPath is not empty.
func Model(t testing.TB, logPath string) string {
	t.Helper()

	record := ""
	if logPath != "" {
		record = fmt.Sprintf(`printf '%%s\n' "$@" >> '%s'`, logPath)
	}
	return Script(t, "model", record+`
if [ ! -f "$1" ]; then echo "reference $1 missing" >&2; exit 2; fi
cp "$1" "$4"`)
}
