package render

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	calctx "github.com/moyuren/calendarsvc/internal/context"
)

type fakeBrowser struct {
	lastHTML string
	lastOpts ScreenshotOptions
	err      error
}

func (f *fakeBrowser) Screenshot(ctx context.Context, html string, opts ScreenshotOptions) ([]byte, error) {
	f.lastHTML = html
	f.lastOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	return []byte("fake-jpeg-bytes"), nil
}

func fixedNow() time.Time {
	return time.Date(2026, 7, 29, 9, 0, 0, 0, time.UTC)
}

func TestRender_PublishesFileAndName(t *testing.T) {
	staticDir := t.TempDir()
	fb := &fakeBrowser{}
	r := New("testdata", staticDir, fb, fixedNow)

	ctx := calctx.Context{Date: calctx.DateInfo{YearMonth: "2026.07", Day: 29, WeekCN: "星期三"}}
	descriptor := TemplateDescriptor{Name: "moyuren", Path: "simple.html", Width: 800, Height: 600, DeviceScaleFactor: 2, JPEGQuality: 85}

	filename, err := r.Render(context.Background(), ctx, descriptor)
	require.NoError(t, err)
	assert.Equal(t, "moyuren_20260729_090000.jpg", filename)

	data, err := os.ReadFile(filepath.Join(staticDir, filename))
	require.NoError(t, err)
	assert.Equal(t, "fake-jpeg-bytes", string(data))

	assert.Contains(t, fb.lastHTML, "2026.07")
	assert.Contains(t, fb.lastHTML, "星期三")
	assert.Equal(t, 800, fb.lastOpts.Width)
	assert.Equal(t, 85, fb.lastOpts.JPEGQuality)
}

func TestRender_NoTempFileLeftOnScreenshotFailure(t *testing.T) {
	staticDir := t.TempDir()
	fb := &fakeBrowser{err: errors.New("boom")}
	r := New("testdata", staticDir, fb, fixedNow)

	_, err := r.Render(context.Background(), calctx.Context{}, TemplateDescriptor{Name: "moyuren", Path: "simple.html"})
	require.Error(t, err)

	entries, err := os.ReadDir(staticDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRender_TemplateLoadFailure(t *testing.T) {
	staticDir := t.TempDir()
	fb := &fakeBrowser{}
	r := New("testdata", staticDir, fb, fixedNow)

	_, err := r.Render(context.Background(), calctx.Context{}, TemplateDescriptor{Name: "moyuren", Path: "does-not-exist.html"})
	require.Error(t, err)
}
