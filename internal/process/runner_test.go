package process

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "stub.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func newTestRunner() *ExecRunner {
	return NewExecRunner(zerolog.New(io.Discard))
}

func TestRun_Success(t *testing.T) {
	out := filepath.Join(t.TempDir(), "touched")
	script := writeScript(t, `touch "$1"`)

	err := newTestRunner().Run(context.Background(), script, out)
	require.NoError(t, err)
	assert.FileExists(t, out)
}

func TestRun_NonZeroExitCapturesStderr(t *testing.T) {
	script := writeScript(t, `echo "Invalid data found when processing input" >&2; exit 3`)

	err := newTestRunner().Run(context.Background(), script)
	require.Error(t, err)

	pe, ok := AsExternalProcessError(err)
	require.True(t, ok)
	assert.Equal(t, 3, pe.ExitCode)
	assert.False(t, pe.Launch)
	assert.Equal(t, "Invalid data found when processing input\n", pe.Stderr)
	assert.Contains(t, err.Error(), "exited 3")
	assert.Contains(t, err.Error(), "Invalid data found when processing input")
}

func TestRun_StdoutIsNotCaptured(t *testing.T) {
	script := writeScript(t, `echo "progress"; echo "boom" >&2; exit 1`)

	err := newTestRunner().Run(context.Background(), script)
	pe, ok := AsExternalProcessError(err)
	require.True(t, ok)
	assert.Equal(t, "boom\n", pe.Stderr)
}

func TestRun_LaunchFailure(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "does-not-exist")

	err := newTestRunner().Run(context.Background(), missing)
	require.Error(t, err)

	pe, ok := AsExternalProcessError(err)
	require.True(t, ok)
	assert.True(t, pe.Launch)
	assert.Equal(t, -1, pe.ExitCode)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Contains(t, err.Error(), "failed to start")
}

func TestRun_ArgumentsPassedVerbatim(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "args")
	script := writeScript(t, `printf '%s|' "$@" > "`+out+`"`)

	err := newTestRunner().Run(context.Background(), script, "Hello, world!", "en", "a b")
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "Hello, world!|en|a b|", string(data))
}

func TestIsExternalProcessError(t *testing.T) {
	assert.True(t, IsExternalProcessError(&ExternalProcessError{Command: "ffmpeg", ExitCode: 1}))
	assert.False(t, IsExternalProcessError(io.EOF))
}
