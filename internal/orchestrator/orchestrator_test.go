package orchestrator

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/moyuren/calendarsvc/internal/audit"
	"github.com/moyuren/calendarsvc/internal/cachecleaner"
	"github.com/moyuren/calendarsvc/internal/clock"
	"github.com/moyuren/calendarsvc/internal/fanout"
	"github.com/moyuren/calendarsvc/internal/locking"
	"github.com/moyuren/calendarsvc/internal/render"
	"github.com/moyuren/calendarsvc/internal/sources"
	"github.com/moyuren/calendarsvc/internal/statestore"
)

type fakeBrowser struct{ err error }

func (f *fakeBrowser) Screenshot(ctx context.Context, html string, opts render.ScreenshotOptions) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte("jpeg-bytes"), nil
}

type fakeResolver struct {
	descriptor render.TemplateDescriptor
	defaultNm  string
}

func (f fakeResolver) Resolve(name string) (render.TemplateDescriptor, bool) {
	if name != f.defaultNm {
		return render.TemplateDescriptor{}, false
	}
	return f.descriptor, true
}
func (f fakeResolver) DefaultName() string { return f.defaultNm }

type testHarness struct {
	o         *Orchestrator
	statePath string
	staticDir string
}

func newHarness(t *testing.T, browserErr error) *testHarness {
	t.Helper()

	cacheDir := t.TempDir()
	staticDir := t.TempDir()
	lockDir := t.TempDir()
	statePath := filepath.Join(t.TempDir(), "state.json")

	for _, y := range []int{2025, 2026, 2027} {
		writeHolidayCache(t, cacheDir, y)
	}

	clk, err := clock.New("UTC", "UTC")
	require.NoError(t, err)

	fetcher := fanout.New(sources.NewRegistry(), zerolog.Nop())
	holidayFetcher := sources.NewHolidayYearFetcher(nil, "http://127.0.0.1:0/unreachable",
		func(year int) string { return fmt.Sprintf("/%d.json", year) }, cacheDir, 10*time.Millisecond)

	browser := &fakeBrowser{err: browserErr}
	renderer := render.New(filepath.Join("..", "render", "testdata"), staticDir, browser, nil)

	store := statestore.New(statePath)

	cleaner, err := cachecleaner.New(cacheDir, zerolog.Nop())
	require.NoError(t, err)

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	auditLog, err := audit.New(db, zerolog.Nop())
	require.NoError(t, err)

	locks, err := locking.NewManager(lockDir, zerolog.Nop())
	require.NoError(t, err)

	resolver := fakeResolver{defaultNm: "moyuren", descriptor: render.TemplateDescriptor{
		Name: "moyuren", Path: "simple.html", Width: 800, Height: 600, DeviceScaleFactor: 1, JPEGQuality: 85,
		ShowKFC: true, ShowStock: true,
	}}

	o := New(clk, fetcher, holidayFetcher, resolver, renderer, store, cleaner, auditLog, locks, 30, zerolog.Nop())
	return &testHarness{o: o, statePath: statePath, staticDir: staticDir}
}

func writeHolidayCache(t *testing.T, cacheDir string, year int) {
	t.Helper()
	content := `{"days":[]}`
	require.NoError(t, os.WriteFile(filepath.Join(cacheDir, fmt.Sprintf("%d.json", year)), []byte(content), 0o644))
}

func TestGenerate_ColdStartHappyPath(t *testing.T) {
	h := newHarness(t, nil)

	filename, err := h.o.Generate(context.Background(), "moyuren", audit.TriggerManual)
	require.NoError(t, err)
	assert.Regexp(t, `^moyuren_\d{8}_\d{6}\.jpg$`, filename)

	_, err = os.Stat(filepath.Join(h.staticDir, filename))
	require.NoError(t, err)

	state, exists, err := h.o.Store.Load()
	require.NoError(t, err)
	require.True(t, exists)
	assert.Equal(t, 2, state.Version)
	assert.Equal(t, filename, state.Templates["moyuren"].Filename)
	assert.Equal(t, h.o.Clock.BusinessToday().Format("2006-01-02"), state.Public.Date,
		"the published date must be the business day, not the display day")
}

func TestGenerate_UnknownTemplateFails(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.o.Generate(context.Background(), "does-not-exist", audit.TriggerManual)
	require.Error(t, err)
}

func TestGenerate_RecheckSkipsWithinTenSeconds(t *testing.T) {
	h := newHarness(t, nil)

	first, err := h.o.Generate(context.Background(), "moyuren", audit.TriggerManual)
	require.NoError(t, err)

	second, err := h.o.Generate(context.Background(), "moyuren", audit.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, first, second, "the recheck shortcut must return the same filename")
}

func TestGenerate_RenderFailurePropagatesAndLeavesStateUntouched(t *testing.T) {
	h := newHarness(t, assert.AnError)

	_, err := h.o.Generate(context.Background(), "moyuren", audit.TriggerManual)
	require.Error(t, err)

	_, exists, err := h.o.Store.Load()
	require.NoError(t, err)
	assert.False(t, exists, "a render failure must not touch the state file")
}

func TestGenerate_ConcurrentCallsAreSingleFlight(t *testing.T) {
	h := newHarness(t, nil)

	lock, err := h.o.Locks.AcquireLock(context.Background(), "generation", 50*time.Millisecond)
	require.NoError(t, err)
	defer lock.Release()

	_, err = h.o.Generate(context.Background(), "moyuren", audit.TriggerManual)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GENERATION_5001")
}
