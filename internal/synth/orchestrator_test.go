package synth

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/voxclone/voxclone/internal/audio"
	"github.com/voxclone/voxclone/internal/audiotest"
	"github.com/voxclone/voxclone/internal/errs"
	"github.com/voxclone/voxclone/internal/process"
	"github.com/voxclone/voxclone/internal/reference"
	"github.com/voxclone/voxclone/internal/workspace"
)

type countingRunner struct {
	inner process.Runner
	calls atomic.Int32
}

func (r *countingRunner) Run(ctx context.Context, name string, args ...string) error {
	r.calls.Add(1)
	return r.inner.Run(ctx, name, args...)
}

type fakeMirror struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (m *fakeMirror) Upload(_ context.Context, key string, _ []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, key)
	return m.err
}

type fixture struct {
	orchestrator *Orchestrator
	store        *reference.Store
	runner       *countingRunner
	workspaceDir string
	outputDir    string
	modelLog     string
}

type fixtureOptions struct {
	transcoder string
	model      string
}

func newFixture(t *testing.T, opts fixtureOptions) *fixture {
	t.Helper()

	root := t.TempDir()
	logger := zerolog.New(io.Discard)
	canonical := audiotest.CanonicalWAV(t)

	f := &fixture{
		workspaceDir: filepath.Join(root, "tmp"),
		outputDir:    filepath.Join(root, "storage", "outputs"),
		modelLog:     filepath.Join(root, "model.log"),
	}

	if opts.transcoder == "" {
		opts.transcoder = audiotest.Transcoder(t, canonical)
	}
	if opts.model == "" {
		opts.model = audiotest.Model(t, f.modelLog)
	}

	f.runner = &countingRunner{inner: process.NewExecRunner(logger)}
	normalizer := audio.NewNormalizer(f.runner, opts.transcoder, logger)

	// The store gets its own working transcoder so clips can be seeded even
	// when the request path is configured to fail.
	seedNormalizer := audio.NewNormalizer(process.NewExecRunner(logger), audiotest.Transcoder(t, canonical), logger)
	f.store = reference.NewStore(filepath.Join(root, "storage", "references"), seedNormalizer, logger)

	f.orchestrator = New(Config{
		OutputDir:    f.outputDir,
		ModelCommand: opts.model,
	}, f.store, normalizer, f.runner, workspace.NewManager(f.workspaceDir, logger), logger)

	return f
}

func (f *fixture) seedClip(t *testing.T) reference.Clip {
	t.Helper()

	clip, err := f.store.Save(context.Background(), strings.NewReader("seed"))
	require.NoError(t, err)
	return clip
}

func (f *fixture) assertNoWorkspaceLeft(t *testing.T) {
	t.Helper()

	entries, err := os.ReadDir(f.workspaceDir)
	if os.IsNotExist(err) {
		return
	}
	require.NoError(t, err)
	assert.Empty(t, entries, "workspace directories left behind")
}

func (f *fixture) modelArgs(t *testing.T) []string {
	t.Helper()

	data, err := os.ReadFile(f.modelLog)
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func TestSynthesize_StoredReference(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	clip := f.seedClip(t)

	res, err := f.orchestrator.Synthesize(context.Background(), Request{
		Text:        "Hello from a cloned voice.",
		ReferenceID: clip.Filename,
	})
	require.NoError(t, err)

	assert.Regexp(t, `^out_\d+_[0-9a-f]{8}\.wav$`, res.Filename)
	assert.Equal(t, filepath.Join(f.outputDir, res.Filename), res.Path)
	assert.Equal(t, "en", res.Language)
	assert.NotEmpty(t, res.Audio)

	onDisk, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, onDisk, res.Audio)

	args := f.modelArgs(t)
	require.Len(t, args, 4)
	assert.Equal(t, "reference.wav", filepath.Base(args[0]))
	assert.Equal(t, f.workspaceDir, filepath.Dir(filepath.Dir(args[0])))
	assert.Equal(t, "Hello from a cloned voice.", args[1])
	assert.Equal(t, "en", args[2])
	assert.Equal(t, res.Path, args[3])

	f.assertNoWorkspaceLeft(t)
}

func TestSynthesize_UploadedAudioIsNormalized(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	res, err := f.orchestrator.Synthesize(context.Background(), Request{
		Text:     "  keep my spacing  ",
		Language: "de",
		Audio:    []byte("webm recording"),
	})
	require.NoError(t, err)

	format, err := audio.Inspect(res.Path)
	require.NoError(t, err)
	assert.True(t, format.IsCanonical())

	args := f.modelArgs(t)
	assert.Equal(t, "  keep my spacing  ", args[1])
	assert.Equal(t, "de", args[2])
	assert.Equal(t, int32(2), f.runner.calls.Load(), "transcoder then model")

	f.assertNoWorkspaceLeft(t)
}

func TestSynthesize_ModelArgsPrefix(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	f.orchestrator.cfg.ModelArgs = []string{"scripts/xtts_generate.py"}

	script := audiotest.Script(t, "python", `printf '%s\n' "$@" >> '`+f.modelLog+`'
cp "$2" "$5"`)
	f.orchestrator.cfg.ModelCommand = script

	clip := f.seedClip(t)
	_, err := f.orchestrator.Synthesize(context.Background(), Request{Text: "hi", ReferenceID: clip.ID})
	require.NoError(t, err)

	args := f.modelArgs(t)
	require.Len(t, args, 5)
	assert.Equal(t, "scripts/xtts_generate.py", args[0])
}

func TestSynthesize_ValidationRunsNoProcess(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{name: "neither source", req: Request{Text: "hello"}},
		{name: "both sources", req: Request{Text: "hello", ReferenceID: "abc", Audio: []byte("raw")}},
		{name: "blank text", req: Request{Text: "   \n", ReferenceID: "abc"}},
		{name: "empty text", req: Request{Audio: []byte("raw")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, fixtureOptions{})

			_, err := f.orchestrator.Synthesize(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, errs.IsValidation(err))

			stage, ok := FailedStage(err)
			require.True(t, ok)
			assert.Equal(t, StageValidating, stage)

			assert.Zero(t, f.runner.calls.Load())
			assert.NoDirExists(t, f.workspaceDir)
		})
	}
}

func TestSynthesize_UnknownReference(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	_, err := f.orchestrator.Synthesize(context.Background(), Request{
		Text:        "hello",
		ReferenceID: "0b6c1a8e-0000-4000-8000-000000000000.wav",
	})
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))

	stage, _ := FailedStage(err)
	assert.Equal(t, StageResolvingReference, stage)
	assert.Zero(t, f.runner.calls.Load())
	f.assertNoWorkspaceLeft(t)
}

func TestSynthesize_WorkspaceUnavailable(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	clip := f.seedClip(t)
	require.NoError(t, os.WriteFile(f.workspaceDir, []byte("not a directory"), 0o644))

	_, err := f.orchestrator.Synthesize(context.Background(), Request{Text: "hello", ReferenceID: clip.ID})
	require.Error(t, err)
	assert.True(t, errs.IsIO(err))

	stage, ok := FailedStage(err)
	require.True(t, ok)
	assert.Equal(t, StageResolvingReference, stage)
	assert.Zero(t, f.runner.calls.Load())
}

func TestSynthesize_TranscoderFailure(t *testing.T) {
	f := newFixture(t, fixtureOptions{
		transcoder: audiotest.Failing(t, "ffmpeg", "pipe:0: Invalid data found when processing input", 1),
	})

	_, err := f.orchestrator.Synthesize(context.Background(), Request{Text: "hello", Audio: []byte("junk")})
	require.Error(t, err)

	pe, ok := process.AsExternalProcessError(err)
	require.True(t, ok)
	assert.Equal(t, "pipe:0: Invalid data found when processing input", pe.Stderr)
	assert.Contains(t, err.Error(), "pipe:0: Invalid data found when processing input")

	stage, _ := FailedStage(err)
	assert.Equal(t, StageResolvingReference, stage)
	assert.Equal(t, int32(1), f.runner.calls.Load(), "model must not run")
	f.assertNoWorkspaceLeft(t)
}

func TestSynthesize_ModelFailure(t *testing.T) {
	f := newFixture(t, fixtureOptions{
		model: audiotest.Failing(t, "model", "RuntimeError: CUDA out of memory", 1),
	})
	clip := f.seedClip(t)

	_, err := f.orchestrator.Synthesize(context.Background(), Request{Text: "hello", ReferenceID: clip.ID})
	require.Error(t, err)

	pe, ok := process.AsExternalProcessError(err)
	require.True(t, ok)
	assert.Equal(t, 1, pe.ExitCode)
	assert.Equal(t, "RuntimeError: CUDA out of memory", pe.Stderr)

	stage, _ := FailedStage(err)
	assert.Equal(t, StageSynthesizing, stage)
	f.assertNoWorkspaceLeft(t)

	entries, err := os.ReadDir(f.outputDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSynthesize_ModelWritesNothing(t *testing.T) {
	f := newFixture(t, fixtureOptions{model: audiotest.Script(t, "model", "exit 0")})
	clip := f.seedClip(t)

	_, err := f.orchestrator.Synthesize(context.Background(), Request{Text: "hello", ReferenceID: clip.ID})
	require.Error(t, err)
	assert.True(t, errs.IsIO(err))

	stage, _ := FailedStage(err)
	assert.Equal(t, StageStreaming, stage)
	f.assertNoWorkspaceLeft(t)
}

func TestSynthesize_ModelLaunchFailure(t *testing.T) {
	f := newFixture(t, fixtureOptions{model: filepath.Join(t.TempDir(), "missing-python")})
	clip := f.seedClip(t)

	_, err := f.orchestrator.Synthesize(context.Background(), Request{Text: "hello", ReferenceID: clip.ID})

	pe, ok := process.AsExternalProcessError(err)
	require.True(t, ok)
	assert.True(t, pe.Launch)
	f.assertNoWorkspaceLeft(t)
}

func TestSynthesize_CancelledContextStillCompletes(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	clip := f.seedClip(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.orchestrator.Synthesize(ctx, Request{Text: "hello", ReferenceID: clip.ID})
	require.NoError(t, err)
	assert.FileExists(t, res.Path)
	f.assertNoWorkspaceLeft(t)
}

func TestSynthesize_Mirror(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	clip := f.seedClip(t)

	mirror := &fakeMirror{}
	f.orchestrator.SetMirror(mirror)

	res, err := f.orchestrator.Synthesize(context.Background(), Request{Text: "hello", ReferenceID: clip.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{res.Filename}, mirror.keys)

	mirror.err = errors.New("nats: no responders available for request")
	_, err = f.orchestrator.Synthesize(context.Background(), Request{Text: "again", ReferenceID: clip.ID})
	require.NoError(t, err, "mirror failures must not fail the request")
}

func TestSynthesize_ConcurrentRequestsGetDistinctArtifacts(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	clip := f.seedClip(t)

	const requests = 20
	names := make([]string, requests)

	var g errgroup.Group
	for i := 0; i < requests; i++ {
		g.Go(func() error {
			res, err := f.orchestrator.Synthesize(context.Background(), Request{Text: "hello", ReferenceID: clip.ID})
			if err != nil {
				return err
			}
			names[i] = res.Filename
			return nil
		})
	}
	require.NoError(t, g.Wait())

	seen := make(map[string]struct{}, requests)
	for _, n := range names {
		seen[n] = struct{}{}
	}
	assert.Len(t, seen, requests)
	f.assertNoWorkspaceLeft(t)
}

func TestStageErrorUnwraps(t *testing.T) {
	err := fail(StageSynthesizing, &process.ExternalProcessError{Command: "python", ExitCode: 1, Stderr: "boom"})

	assert.True(t, process.IsExternalProcessError(err))
	assert.Equal(t, "synthesizing: python exited 1\nboom", err.Error())

	_, ok := FailedStage(errors.New("plain"))
	assert.False(t, ok)
}
