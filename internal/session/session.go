// Package session handles session identity and on-disk layout. Each
// recording session gets a short id and a folder under the sessions
// directory holding its screenshots and logs.
package session

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"screendoc/internal/logging"
)

// Session identifies one recording run and its working directory.
type Session struct {
	ID        string
	CreatedAt time.Time
	Dir       string
}

// New creates a fresh session under baseDir, with its screenshots
// directory already in place.
func New(baseDir string) (*Session, error) {
	id := uuid.New().String()[:8]
	s := &Session{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		Dir:       filepath.Join(baseDir, id),
	}
	if err := os.MkdirAll(s.ScreenshotsDir(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	logging.Session("session %s created at %s", s.ID, s.Dir)
	return s, nil
}

// Open returns an existing session's handle without creating anything.
func Open(baseDir, id string, createdAt time.Time) *Session {
	return &Session{
		ID:        id,
		CreatedAt: createdAt,
		Dir:       filepath.Join(baseDir, id),
	}
}

// ScreenshotsDir is where the capturer writes its PNGs.
func (s *Session) ScreenshotsDir() string {
	return filepath.Join(s.Dir, "screenshots")
}
