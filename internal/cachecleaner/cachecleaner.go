// Package cachecleaner prunes day-cache JSON files and published JPEGs
// older than the configured retention window.
package cachecleaner

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
)

var (
	dataFilePattern  = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})\.json$`)
	imageFilePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+_(\d{8})_\d{6}\.jpg$`)
)

// Result is the outcome of one cleanup pass.
type Result struct {
	DeletedFiles int
	FreedBytes   int64
	OldestKept   string // YYYY-MM-DD
}

// Cleaner prunes the data and images directories under CacheDir.
type Cleaner struct {
	DataDir   string
	ImagesDir string
	log       zerolog.Logger
}

// New constructs a Cleaner rooted at cacheDir, ensuring its data/ and
// images/ subdirectories exist.
func New(cacheDir string, log zerolog.Logger) (*Cleaner, error) {
	dataDir := filepath.Join(cacheDir, "data")
	imagesDir := filepath.Join(cacheDir, "images")
	for _, dir := range []string{dataDir, imagesDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cachecleaner: create %s: %w", dir, err)
		}
	}
	return &Cleaner{DataDir: dataDir, ImagesDir: imagesDir, log: log.With().Str("service", "cache_cleaner").Logger()}, nil
}

// Cleanup removes every data/images file whose embedded date is strictly
// before businessToday minus retainDays; files on the boundary are kept.
func (c *Cleaner) Cleanup(businessToday time.Time, retainDays int) (Result, error) {
	cutoff := civilDate(businessToday).AddDate(0, 0, -retainDays)

	result := Result{}
	oldestKept := civilDate(businessToday)
	haveKept := false

	prune := func(dir string, pattern *regexp.Regexp) error {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return fmt.Errorf("cachecleaner: read %s: %w", dir, err)
		}

		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			m := pattern.FindStringSubmatch(e.Name())
			if m == nil {
				continue
			}
			date, err := parseEmbeddedDate(m[1])
			if err != nil {
				continue
			}

			if date.Before(cutoff) {
				path := filepath.Join(dir, e.Name())
				info, statErr := e.Info()
				if statErr == nil {
					result.FreedBytes += info.Size()
				}
				if err := os.Remove(path); err != nil {
					c.log.Warn().Err(err).Str("file", e.Name()).Msg("failed to remove expired cache file")
					continue
				}
				result.DeletedFiles++
				continue
			}

			if !haveKept || date.Before(oldestKept) {
				oldestKept = date
				haveKept = true
			}
		}
		return nil
	}

	if err := prune(c.DataDir, dataFilePattern); err != nil {
		return Result{}, err
	}
	if err := prune(c.ImagesDir, imageFilePattern); err != nil {
		return Result{}, err
	}

	result.OldestKept = oldestKept.Format("2006-01-02")

	c.log.Info().
		Int("deleted_files", result.DeletedFiles).
		Str("freed", humanize.Bytes(uint64(result.FreedBytes))).
		Str("oldest_kept", result.OldestKept).
		Msg("cache cleanup complete")

	return result, nil
}

func civilDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// parseEmbeddedDate parses either a "2006-01-02" data-file date or a
// "20060102" image-file date.
func parseEmbeddedDate(s string) (time.Time, error) {
	if len(s) == 8 {
		return time.Parse("20060102", s)
	}
	return time.Parse("2006-01-02", s)
}
