package cachecleaner

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string, size int) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), make([]byte, size), 0o644))
}

func TestCleanup_RemovesOlderThanRetention(t *testing.T) {
	cacheDir := t.TempDir()
	c, err := New(cacheDir, zerolog.Nop())
	require.NoError(t, err)

	writeFile(t, c.DataDir, "2026-06-01.json", 10)
	writeFile(t, c.DataDir, "2026-07-25.json", 10)
	writeFile(t, c.ImagesDir, "moyuren_20260601_090000.jpg", 20)
	writeFile(t, c.ImagesDir, "moyuren_20260728_090000.jpg", 20)
	writeFile(t, c.ImagesDir, "not-a-match.jpg", 5)

	today := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)
	result, err := c.Cleanup(today, 7)
	require.NoError(t, err)

	assert.Equal(t, 2, result.DeletedFiles)
	assert.Equal(t, int64(30), result.FreedBytes)
	assert.Equal(t, "2026-07-25", result.OldestKept)

	_, err = os.Stat(filepath.Join(c.DataDir, "2026-06-01.json"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(c.ImagesDir, "not-a-match.jpg"))
	assert.NoError(t, err, "non-matching files are left untouched")
}

func TestCleanup_EmptyDirsYieldTodayAsOldestKept(t *testing.T) {
	cacheDir := t.TempDir()
	c, err := New(cacheDir, zerolog.Nop())
	require.NoError(t, err)

	today := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)
	result, err := c.Cleanup(today, 30)
	require.NoError(t, err)
	assert.Equal(t, 0, result.DeletedFiles)
	assert.Equal(t, "2026-07-29", result.OldestKept)
}

func TestCleanup_KeepsFilesOnCutoffBoundary(t *testing.T) {
	cacheDir := t.TempDir()
	c, err := New(cacheDir, zerolog.Nop())
	require.NoError(t, err)

	// today - retainDays is exactly this date; boundary files are preserved.
	writeFile(t, c.DataDir, "2026-07-22.json", 10)

	today := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)
	result, err := c.Cleanup(today, 7)
	require.NoError(t, err)
	assert.Equal(t, 0, result.DeletedFiles)
	assert.Equal(t, "2026-07-22", result.OldestKept)
}
