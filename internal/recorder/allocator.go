package recorder

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Session is a named group of attempts under a recordings root.
type Session struct {
	Name string `json:"name"`
	Root string `json:"root"`
}

// Dir is the session directory. Slashes in the name create sub-directories.
func (s Session) Dir() string {
	return filepath.Join(s.Root, filepath.FromSlash(s.Name))
}

// Attempt is one recorded take, stored in its own ordinal directory.
type Attempt struct {
	ID          uuid.UUID `json:"id"`
	Session     Session   `json:"session"`
	Ordinal     int       `json:"ordinal"`
	Path        string    `json:"path"`
	Started     time.Time `json:"started"`
	FrameWidth  int       `json:"frame_width"`
	FrameHeight int       `json:"frame_height"`
	Frames      int       `json:"frames"`
}

// OrdinalName formats an attempt ordinal as a directory name.
func OrdinalName(ordinal int) string {
	return fmt.Sprintf("%03d", ordinal)
}

// Allocator creates attempt directories that never overwrite earlier ones.
type Allocator struct {
	Logger *slog.Logger
}

// Allocate creates the session directory if needed and then the first free
// ordinal directory inside it. Existing ordinals are skipped, never reused.
func (a Allocator) Allocate(s Session) (*Attempt, error) {
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if strings.TrimSpace(s.Name) == "" {
		return nil, &DirectoryError{Path: s.Root, Err: errors.New("empty session name")}
	}

	dir := s.Dir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &DirectoryError{Path: dir, Err: err}
	}

	for ordinal := 0; ordinal < math.MaxInt32; ordinal++ {
		path := filepath.Join(dir, OrdinalName(ordinal))
		err := os.Mkdir(path, 0755)
		if err == nil {
			logger.Debug("Created recording directory", "path", path)
			return &Attempt{
				ID:      uuid.New(),
				Session: s,
				Ordinal: ordinal,
				Path:    path,
			}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, &DirectoryError{Path: dir, Err: err}
		}
		logger.Debug("Recording directory exists, trying next", "path", path)
	}

	return nil, &DirectoryError{Path: dir, Err: errors.New("no free ordinal left")}
}
