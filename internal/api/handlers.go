package api

import (
	"context"
	"io"
	"net/http"
	"path"

	"github.com/rs/zerolog"

	"github.com/voxclone/voxclone/internal/config"
	"github.com/voxclone/voxclone/internal/reference"
	"github.com/voxclone/voxclone/internal/schema"
	"github.com/voxclone/voxclone/internal/synth"
)

// referencesURLPrefix is where the static file server exposes stored clips.
const referencesURLPrefix = "/storage/references/"

// ReferenceStore persists and lists reference clips.
type ReferenceStore interface {
	Save(ctx context.Context, raw io.Reader) (reference.Clip, error)
	Names(ctx context.Context) ([]string, error)
}

// Synthesizer produces speech in a reference voice.
type Synthesizer interface {
	Synthesize(ctx context.Context, req synth.Request) (*synth.Result, error)
}

// Handler serves the voxclone HTTP API.
type Handler struct {
	references  ReferenceStore
	synthesizer Synthesizer
	cfg         *config.Config
	metrics     *Metrics
	logger      zerolog.Logger
}

// NewHandler creates a Handler. metrics may be nil.
func NewHandler(references ReferenceStore, synthesizer Synthesizer, cfg *config.Config, metrics *Metrics, logger zerolog.Logger) *Handler {
	return &Handler{
		references:  references,
		synthesizer: synthesizer,
		cfg:         cfg,
		metrics:     metrics,
		logger:      logger.With().Str("component", "api").Logger(),
	}
}

// HandleHealth reports liveness for both GET and POST.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, schema.HealthResponse{Status: "ok"})
}

// HandleAddReference normalizes and stores an uploaded reference clip.
func (h *Handler) HandleAddReference(w http.ResponseWriter, r *http.Request) {
	h.limitBody(w, r)

	upload, err := openUpload(r)
	if err != nil {
		h.metrics.IncReferenceRejected()
		h.writeFailure(w, r, err)
		return
	}
	defer upload.Close()

	clip, err := h.references.Save(r.Context(), upload)
	if err != nil {
		h.metrics.IncReferenceRejected()
		h.writeFailure(w, r, err)
		return
	}

	h.metrics.IncReferenceSaved()
	h.requestLogger(r).Info().Str("reference_id", clip.ID).Msg("reference stored")

	WriteJSON(w, http.StatusOK, schema.AddReferenceResponse{
		ID:       clip.ID,
		Filename: clip.Filename,
		Path:     path.Join(referencesURLPrefix, clip.Filename),
	})
}

// HandleListReferences returns stored clip filenames, newest first.
func (h *Handler) HandleListReferences(w http.ResponseWriter, r *http.Request) {
	names, err := h.references.Names(r.Context())
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}

	WriteJSON(w, http.StatusOK, schema.ListReferencesResponse{References: names})
}

// HandleTTS synthesizes text in the voice of a stored or uploaded reference
// and returns the WAV artifact.
func (h *Handler) HandleTTS(w http.ResponseWriter, r *http.Request) {
	h.limitBody(w, r)

	req, err := ParseTTSRequest(r)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}

	if err := req.Validate(h.cfg.Limits.MaxTextLength, h.cfg.Model.DefaultLanguage); err != nil {
		h.writeFailure(w, r, err)
		return
	}

	h.metrics.IncActiveSyntheses()
	defer h.metrics.DecActiveSyntheses()

	result, err := h.synthesizer.Synthesize(r.Context(), synth.Request{
		Text:        req.Text,
		Language:    req.Lang,
		ReferenceID: req.ReferenceID,
		Audio:       req.Audio,
	})
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}

	h.metrics.IncSyntheses()
	WriteAudio(w, result.Filename, result.Audio)
}

func (h *Handler) limitBody(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Limits.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Limits.MaxUploadBytes)
	}
}

func (h *Handler) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status, message, kind := classify(err)
	h.metrics.IncFailure(kind)

	event := h.requestLogger(r).Warn()
	if status >= http.StatusInternalServerError {
		event = h.requestLogger(r).Error()
	}
	if stage, ok := synth.FailedStage(err); ok {
		event = event.Str("stage", string(stage))
	}
	event.Err(err).Int("status", status).Str("kind", kind).Msg("request failed")

	WriteError(w, status, message)
}

// requestLogger prefers the request-scoped logger installed by LoggingMiddleware.
func (h *Handler) requestLogger(r *http.Request) *zerolog.Logger {
	if l := zerolog.Ctx(r.Context()); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &h.logger
}
