// Package reference manages the durable library of normalized reference clips.
package reference

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/voxclone/voxclone/internal/errs"
)

const (
	clipExt    = ".wav"
	stagingExt = ".input"
	partialExt = ".partial.wav"
)

var validID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// Normalizer converts a raw input file into a canonical clip.
type Normalizer interface {
	Normalize(ctx context.Context, inputPath, outputPath string) error
}

// Clip is a stored, canonical reference recording.
type Clip struct {
	ID       string
	Filename string
	Path     string
	ModTime  time.Time
}

// Store keeps reference clips as <id>.wav files in a single directory.
type Store struct {
	dir        string
	normalizer Normalizer
	logger     zerolog.Logger
}

// NewStore creates a Store rooted at dir. The directory is created on first use.
func NewStore(dir string, normalizer Normalizer, logger zerolog.Logger) *Store {
	return &Store{
		dir:        dir,
		normalizer: normalizer,
		logger:     logger.With().Str("component", "reference_store").Logger(),
	}
}

// Dir returns the directory clips are stored in.
func (s *Store) Dir() string {
	return s.dir
}

// Save normalizes raw audio into a new clip. The raw bytes are staged next to
// the clip and removed before Save returns, whether or not normalization
// succeeded. The transcoder writes to a partial file that is renamed into
// place, so List never sees a half-written clip. Identifiers are random UUIDs
// and are not checked against existing clips.
func (s *Store) Save(ctx context.Context, raw io.Reader) (Clip, error) {
	if err := s.ensureDir(); err != nil {
		return Clip{}, err
	}

	id := uuid.NewString()
	stagingPath := filepath.Join(s.dir, id+stagingExt)
	partialPath := filepath.Join(s.dir, id+partialExt)
	clipPath := filepath.Join(s.dir, id+clipExt)

	defer func() {
		if err := os.Remove(stagingPath); err != nil && !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str("path", stagingPath).Msg("failed to remove staged upload")
		}
	}()

	n, err := writeFile(stagingPath, raw)
	if err != nil {
		return Clip{}, err
	}
	if n == 0 {
		return Clip{}, errs.Invalid("file", "Missing file")
	}

	if err := s.normalizer.Normalize(ctx, stagingPath, partialPath); err != nil {
		_ = os.Remove(partialPath)
		return Clip{}, fmt.Errorf("normalize reference %s: %w", id, err)
	}

	if err := os.Rename(partialPath, clipPath); err != nil {
		_ = os.Remove(partialPath)
		return Clip{}, errs.IO("rename", partialPath, err)
	}

	info, err := os.Stat(clipPath)
	if err != nil {
		return Clip{}, errs.IO("stat", clipPath, err)
	}

	s.logger.Info().Str("reference_id", id).Int64("bytes", info.Size()).Msg("reference saved")

	return Clip{
		ID:       id,
		Filename: id + clipExt,
		Path:     clipPath,
		ModTime:  info.ModTime(),
	}, nil
}

// List returns every stored clip, newest first. Clips with equal modification
// times keep directory order, which is unspecified. In-progress saves and clips
// removed while List runs are skipped.
func (s *Store) List(ctx context.Context) ([]Clip, error) {
	if err := s.ensureDir(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errs.IO("read dir", s.dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.Type().IsRegular() && strings.HasSuffix(name, clipExt) && validID.MatchString(strings.TrimSuffix(name, clipExt)) {
			names = append(names, name)
		}
	}

	found := make([]*Clip, len(names))
	g, _ := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			path := filepath.Join(s.dir, name)
			info, err := os.Stat(path)
			if os.IsNotExist(err) {
				return nil
			}
			if err != nil {
				return errs.IO("stat", path, err)
			}
			found[i] = &Clip{
				ID:       strings.TrimSuffix(name, clipExt),
				Filename: name,
				Path:     path,
				ModTime:  info.ModTime(),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	clips := make([]Clip, 0, len(found))
	for _, c := range found {
		if c != nil {
			clips = append(clips, *c)
		}
	}

	sort.SliceStable(clips, func(i, j int) bool {
		return clips[i].ModTime.After(clips[j].ModTime)
	})

	return clips, nil
}

// Names returns the filenames of List.
func (s *Store) Names(ctx context.Context) ([]string, error) {
	clips, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(clips))
	for i, c := range clips {
		names[i] = c.Filename
	}
	return names, nil
}

// Resolve maps an identifier, with or without the .wav suffix, to the path of
// an existing clip.
func (s *Store) Resolve(id string) (string, error) {
	id = strings.TrimSuffix(id, clipExt)
	if !validID.MatchString(id) {
		return "", fmt.Errorf("reference %q: %w", id, errs.ErrNotFound)
	}

	path := filepath.Join(s.dir, id+clipExt)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("reference %q: %w", id, errs.ErrNotFound)
		}
		return "", errs.IO("stat", path, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("reference %q: %w", id, errs.ErrNotFound)
	}

	return path, nil
}

func (s *Store) ensureDir() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errs.IO("mkdir", s.dir, err)
	}
	return nil
}

func writeFile(path string, r io.Reader) (int64, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return 0, errs.IO("create", path, err)
	}

	n, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		return n, errs.IO("write", path, err)
	}

	if err := f.Close(); err != nil {
		return n, errs.IO("close", path, err)
	}
	return n, nil
}
