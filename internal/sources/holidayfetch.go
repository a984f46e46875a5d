package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// HolidayYearDoc is the raw shape of one year's upstream holiday document.
type HolidayYearDoc struct {
	Days []struct {
		Name     string `json:"name"`
		Date     string `json:"date"`
		IsOffDay bool   `json:"isOffDay"`
	} `json:"days"`
}

// HolidayYearFetcher fetches and caches a single year's raw holiday
// document, trying a list of mirrors before the canonical GitHub raw URL,
// and degrading to a stale on-disk cache if every network source fails.
type HolidayYearFetcher struct {
	Mirrors       []string
	RawPath       func(year int) string
	CanonicalBase string
	CacheDir      string
	Timeout       time.Duration
	client        *http.Client
}

// NewHolidayYearFetcher constructs a HolidayYearFetcher. rawPath renders
// the upstream path suffix for a given year (e.g. "/2026.json").
func NewHolidayYearFetcher(mirrors []string, canonicalBase string, rawPath func(year int) string, cacheDir string, timeout time.Duration) *HolidayYearFetcher {
	return &HolidayYearFetcher{
		Mirrors: mirrors, RawPath: rawPath, CanonicalBase: canonicalBase,
		CacheDir: cacheDir, Timeout: timeout, client: defaultHTTPClient(),
	}
}

func (f *HolidayYearFetcher) cachePath(year int) string {
	return filepath.Join(f.CacheDir, fmt.Sprintf("%d.json", year))
}

// ttlFor returns the cache validity window for a given year relative to
// currentYear: past years are permanent once cached, the current year gets
// a 7-day TTL, future years get 12 hours.
func ttlFor(year, currentYear int) (time.Duration, bool) {
	switch {
	case year < currentYear:
		return 0, true // permanent
	case year == currentYear:
		return 7 * 24 * time.Hour, false
	default:
		return 12 * time.Hour, false
	}
}

// Fetch returns the holiday document for year, preferring a still-valid
// on-disk cache, then network mirrors in order, then the canonical URL,
// falling back to a stale on-disk cache if everything else fails.
func (f *HolidayYearFetcher) Fetch(year, currentYear int) (*HolidayYearDoc, error) {
	ttl, permanent := ttlFor(year, currentYear)

	if doc, ok := f.readCache(year, ttl, permanent); ok {
		return doc, nil
	}

	urls := make([]string, 0, len(f.Mirrors)+1)
	for _, m := range f.Mirrors {
		urls = append(urls, m+f.RawPath(year))
	}
	urls = append(urls, f.CanonicalBase+f.RawPath(year))

	for _, u := range urls {
		var doc HolidayYearDoc
		if err := fetchJSON(context.Background(), f.client, u, nil, f.Timeout, &doc); err != nil {
			continue
		}
		f.writeCache(year, &doc)
		return &doc, nil
	}

	// Degraded mode: serve the stale cache regardless of age.
	if doc, ok := f.readCacheAnyAge(year); ok {
		return doc, nil
	}

	return nil, fmt.Errorf("sources: no holiday data available for year %d", year)
}

func (f *HolidayYearFetcher) readCache(year int, ttl time.Duration, permanent bool) (*HolidayYearDoc, bool) {
	info, err := os.Stat(f.cachePath(year))
	if err != nil {
		return nil, false
	}

	age := time.Since(info.ModTime())
	// A negative age means the file's mtime is in the future: clock skew,
	// treated as expired rather than trusted.
	if age < 0 {
		return nil, false
	}
	if !permanent && age > ttl {
		return nil, false
	}

	return f.readCacheAnyAge(year)
}

func (f *HolidayYearFetcher) readCacheAnyAge(year int) (*HolidayYearDoc, bool) {
	raw, err := os.ReadFile(f.cachePath(year))
	if err != nil {
		return nil, false
	}
	var doc HolidayYearDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, false
	}
	return &doc, true
}

func (f *HolidayYearFetcher) writeCache(year int, doc *HolidayYearDoc) {
	if err := os.MkdirAll(f.CacheDir, 0o755); err != nil {
		return
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return
	}
	tmp, err := os.CreateTemp(f.CacheDir, fmt.Sprintf(".%d-*.tmp", year))
	if err != nil {
		return
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return
	}
	tmp.Close()
	if err := os.Rename(tmpPath, f.cachePath(year)); err != nil {
		os.Remove(tmpPath)
	}
}
