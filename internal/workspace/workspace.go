// Package workspace hands out isolated per-request scratch directories.
package workspace

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/voxclone/voxclone/internal/errs"
)

const dirPrefix = "voxclone-"

// Workspace is an ephemeral directory owned by a single request.
type Workspace struct {
	dir     string
	release sync.Once
}

// Dir returns the workspace directory.
func (w *Workspace) Dir() string {
	return w.dir
}

// Path joins name inside the workspace.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, name)
}

// Manager creates and removes workspaces below a base directory.
type Manager struct {
	base   string
	logger zerolog.Logger
}

// NewManager creates a Manager. An empty base uses os.TempDir().
func NewManager(base string, logger zerolog.Logger) *Manager {
	if base == "" {
		base = os.TempDir()
	}
	return &Manager{
		base:   base,
		logger: logger.With().Str("component", "workspace").Logger(),
	}
}

// Acquire creates a new uniquely named workspace. Every successful Acquire
// must be paired with exactly one Release.
func (m *Manager) Acquire() (*Workspace, error) {
	if err := os.MkdirAll(m.base, 0o755); err != nil {
		return nil, errs.IO("mkdir", m.base, err)
	}

	dir := filepath.Join(m.base, dirPrefix+uuid.NewString())
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, errs.IO("mkdir", dir, err)
	}

	m.logger.Debug().Str("workspace", dir).Msg("workspace acquired")
	return &Workspace{dir: dir}, nil
}

// Release removes the workspace and everything in it. Removal errors are
// logged and never returned so they cannot replace the request's own result.
// Calling Release more than once is a no-op.
func (m *Manager) Release(ws *Workspace) {
	if ws == nil {
		return
	}

	ws.release.Do(func() {
		if err := os.RemoveAll(ws.dir); err != nil {
			m.logger.Warn().Err(err).Str("workspace", ws.dir).Msg("failed to remove workspace")
			return
		}
		m.logger.Debug().Str("workspace", ws.dir).Msg("workspace released")
	})
}

// With acquires a workspace, runs fn in it and releases it on every exit
// path, including a panic in fn.
func (m *Manager) With(fn func(ws *Workspace) error) error {
	ws, err := m.Acquire()
	if err != nil {
		return err
	}
	defer m.Release(ws)

	return fn(ws)
}
