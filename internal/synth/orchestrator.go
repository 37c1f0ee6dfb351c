// Package synth drives a single voice-cloning synthesis request from
// validation to the generated artifact.
package synth

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/voxclone/voxclone/internal/errs"
	"github.com/voxclone/voxclone/internal/process"
	"github.com/voxclone/voxclone/internal/workspace"
)

const (
	workingReference = "reference.wav"
	stagedUpload     = "input"
	fallbackLanguage = "en"
)

// ReferenceResolver maps a stored reference identifier to its file.
type ReferenceResolver interface {
	Resolve(id string) (string, error)
}

// Normalizer converts uploaded audio into the canonical format.
type Normalizer interface {
	Normalize(ctx context.Context, inputPath, outputPath string) error
}

// Mirror receives a copy of every generated artifact.
type Mirror interface {
	Upload(ctx context.Context, key string, data []byte) error
}

// Config holds the orchestrator settings.
type Config struct {
	OutputDir       string
	ModelCommand    string
	ModelArgs       []string
	DefaultLanguage string
}

// Orchestrator runs synthesis requests. It keeps no state between requests
// and is safe for concurrent use.
type Orchestrator struct {
	cfg        Config
	references ReferenceResolver
	normalizer Normalizer
	runner     process.Runner
	workspaces *workspace.Manager
	mirror     Mirror
	logger     zerolog.Logger
}

// New creates an Orchestrator.
func New(
	cfg Config,
	references ReferenceResolver,
	normalizer Normalizer,
	runner process.Runner,
	workspaces *workspace.Manager,
	logger zerolog.Logger,
) *Orchestrator {
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = fallbackLanguage
	}
	return &Orchestrator{
		cfg:        cfg,
		references: references,
		normalizer: normalizer,
		runner:     runner,
		workspaces: workspaces,
		logger:     logger.With().Str("component", "synth").Logger(),
	}
}

// SetMirror installs an artifact mirror. Mirror failures are logged only.
func (o *Orchestrator) SetMirror(m Mirror) {
	o.mirror = m
}

// Synthesize validates req, prepares the reference in a fresh workspace, runs
// the model and returns the artifact. The workspace is released before
// Synthesize returns on every path. Cancelling ctx does not stop a running
// transcoder or model.
func (o *Orchestrator) Synthesize(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	if err := req.Validate(); err != nil {
		return nil, fail(StageValidating, err)
	}
	if req.Language == "" {
		req.Language = o.cfg.DefaultLanguage
	}

	var result *Result
	err := o.workspaces.With(func(ws *workspace.Workspace) error {
		var err error
		result, err = o.run(ctx, ws, req)
		return err
	})
	if err != nil {
		if _, ok := FailedStage(err); !ok {
			// Only Acquire fails without a stage.
			err = fail(StageResolvingReference, err)
		}
		return nil, err
	}

	o.logger.Info().
		Str("output", result.Filename).
		Int("bytes", len(result.Audio)).
		Str("lang", req.Language).
		Dur("duration", time.Since(start)).
		Msg("synthesis done")

	return result, nil
}

// run performs the synthesis stages inside ws.
func (o *Orchestrator) run(ctx context.Context, ws *workspace.Workspace, req Request) (*Result, error) {
	logger := o.logger.With().
		Str("workspace", filepath.Base(ws.Dir())).
		Str("lang", req.Language).
		Logger()

	runCtx := context.WithoutCancel(ctx)

	refPath, err := o.prepareReference(runCtx, ws, req)
	if err != nil {
		logger.Warn().Err(err).Str("stage", string(StageResolvingReference)).Msg("synthesis failed")
		return nil, fail(StageResolvingReference, err)
	}

	filename, outPath, err := o.runModel(runCtx, refPath, req)
	if err != nil {
		logger.Warn().Err(err).Str("stage", string(StageSynthesizing)).Msg("synthesis failed")
		return nil, fail(StageSynthesizing, err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		err = errs.IO("read", outPath, err)
		logger.Warn().Err(err).Str("stage", string(StageStreaming)).Msg("synthesis failed")
		return nil, fail(StageStreaming, err)
	}

	o.mirrorArtifact(runCtx, logger, filename, data)

	return &Result{
		Filename: filename,
		Path:     outPath,
		Audio:    data,
		Language: req.Language,
	}, nil
}

// prepareReference leaves a canonical reference inside ws and returns its path.
func (o *Orchestrator) prepareReference(ctx context.Context, ws *workspace.Workspace, req Request) (string, error) {
	dst := ws.Path(workingReference)

	if len(req.Audio) == 0 {
		src, err := o.references.Resolve(req.ReferenceID)
		if err != nil {
			return "", err
		}
		if err := copyFile(src, dst); err != nil {
			return "", err
		}
		return dst, nil
	}

	staged := ws.Path(stagedUpload)
	if err := os.WriteFile(staged, req.Audio, 0o600); err != nil {
		return "", errs.IO("write", staged, err)
	}
	if err := o.normalizer.Normalize(ctx, staged, dst); err != nil {
		return "", err
	}

	return dst, nil
}

// runModel invokes <command> <args...> <reference> <text> <lang> <output>.
// The output lands in the durable output dir so it outlives the workspace.
func (o *Orchestrator) runModel(ctx context.Context, refPath string, req Request) (string, string, error) {
	if err := os.MkdirAll(o.cfg.OutputDir, 0o755); err != nil {
		return "", "", errs.IO("mkdir", o.cfg.OutputDir, err)
	}

	filename := outputName(time.Now())
	outPath := filepath.Join(o.cfg.OutputDir, filename)

	args := make([]string, 0, len(o.cfg.ModelArgs)+4)
	args = append(args, o.cfg.ModelArgs...)
	args = append(args, refPath, req.Text, req.Language, outPath)

	if err := o.runner.Run(ctx, o.cfg.ModelCommand, args...); err != nil {
		_ = os.Remove(outPath)
		return "", "", err
	}

	return filename, outPath, nil
}

func (o *Orchestrator) mirrorArtifact(ctx context.Context, logger zerolog.Logger, filename string, data []byte) {
	if o.mirror == nil {
		return
	}
	if err := o.mirror.Upload(ctx, filename, data); err != nil {
		logger.Warn().Err(err).Str("output", filename).Msg("failed to mirror artifact")
	}
}

// outputName is time-derived with a random suffix so requests finishing in
// the same millisecond get distinct files.
func outputName(now time.Time) string {
	return fmt.Sprintf("out_%d_%s.wav", now.UnixMilli(), uuid.NewString()[:8])
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errs.IO("open", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return errs.IO("create", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errs.IO("copy", dst, err)
	}

	if err := out.Close(); err != nil {
		return errs.IO("close", dst, err)
	}
	return nil
}
