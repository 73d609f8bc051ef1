package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCreatesLayout(t *testing.T) {
	base := t.TempDir()

	s, err := New(base)
	require.NoError(t, err)

	assert.Len(t, s.ID, 8)
	assert.Equal(t, filepath.Join(base, s.ID), s.Dir)

	info, err := os.Stat(s.ScreenshotsDir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestNewSessionsGetDistinctIDs(t *testing.T) {
	base := t.TempDir()

	a, err := New(base)
	require.NoError(t, err)
	b, err := New(base)
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
}

func TestOpenDoesNotCreate(t *testing.T) {
	base := t.TempDir()

	s := Open(base, "deadbeef", time.Time{})
	assert.Equal(t, filepath.Join(base, "deadbeef"), s.Dir)

	_, err := os.Stat(s.Dir)
	assert.True(t, os.IsNotExist(err))
}
