// Package artifact owns the temporary directory shared by media downloads,
// normalized audio and synthesized speech.
package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var ErrNotFound = errors.New("artifact not found")

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

type Store struct {
	dir    string
	maxAge time.Duration
	log    *logrus.Entry
	now    func() time.Time
}

// New creates dir if needed.
func New(dir string, maxAge time.Duration, log *logrus.Entry) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve artifact dir: %w", err)
	}
	return &Store{dir: abs, maxAge: maxAge, log: log.WithField("component", "artifact"), now: time.Now}, nil
}

func (s *Store) Dir() string { return s.dir }

// NewPath returns a fresh, collision-free path "<prefix>_<owner>_<uuid>.<ext>".
// Nothing is created on disk.
func (s *Store) NewPath(owner, prefix, ext string) string {
	owner = unsafeChars.ReplaceAllString(owner, "")
	if owner == "" {
		owner = "anon"
	}
	name := fmt.Sprintf("%s_%s_%s.%s", prefix, owner, uuid.New().String(), strings.TrimPrefix(ext, "."))
	return filepath.Join(s.dir, name)
}

// Write stores data under a fresh name and returns its path.
func (s *Store) Write(owner, prefix, ext string, data []byte) (string, error) {
	p := s.NewPath(owner, prefix, ext)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return p, nil
}

// Remove deletes an artifact; missing files are not an error.
func (s *Store) Remove(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.WithError(err).WithField("path", path).Warn("remove artifact failed")
	}
}

// Lookup resolves a base name to a file inside the store. Path components in
// name are ignored so a caller cannot escape the directory.
func (s *Store) Lookup(name string) (string, error) {
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." || strings.HasPrefix(base, ".") {
		return "", ErrNotFound
	}
	p := filepath.Join(s.dir, base)
	fi, err := os.Stat(p)
	if err != nil || !fi.Mode().IsRegular() {
		return "", ErrNotFound
	}
	return p, nil
}

// Sweep deletes regular files older than the configured max age and returns
// how many were removed. Subdirectories are left alone.
func (s *Store) Sweep() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read artifact dir: %w", err)
	}
	cutoff := s.now().Add(-s.maxAge)
	removed := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		p := filepath.Join(s.dir, e.Name())
		if err := os.Remove(p); err != nil {
			s.log.WithError(err).WithField("path", p).Warn("sweep remove failed")
			continue
		}
		removed++
	}
	if removed > 0 {
		s.log.WithField("removed", removed).Info("swept expired artifacts")
	}
	return removed, nil
}
