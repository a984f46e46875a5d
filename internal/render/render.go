// Package render implements the template-to-JPEG renderer: it
// executes an html/template against the computed context, hands the
// resulting markup to a pluggable headless-browser screenshot backend, and
// atomically publishes the JPEG into the static directory.
package render

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"

	"github.com/moyuren/calendarsvc/internal/apperr"
	calctx "github.com/moyuren/calendarsvc/internal/context"
)

// ScreenshotOptions describes the viewport and output quality a render
// pass asks the browser backend to honour.
type ScreenshotOptions struct {
	Width             int
	Height            int
	DeviceScaleFactor float64
	JPEGQuality       int
}

// Browser is the narrow seam between the renderer and a real headless
// browser process. Production code drives Chromium via Playwright; tests
// substitute a fake that never launches a browser.
type Browser interface {
	Screenshot(ctx context.Context, html string, opts ScreenshotOptions) ([]byte, error)
}

// TemplateDescriptor is the per-template configuration needed to render
// one image, decoupled from the config package's YAML shape so this
// package does not import internal/config.
type TemplateDescriptor struct {
	Name              string
	Path              string
	Width             int
	Height            int
	DeviceScaleFactor float64
	JPEGQuality       int
	ShowKFC           bool
	ShowStock         bool
}

// Renderer renders a Context against a named template and publishes the
// resulting JPEG into StaticDir.
type Renderer struct {
	TemplatesDir string
	StaticDir    string
	Browser      Browser
	Now          func() time.Time
}

// New constructs a Renderer. now defaults to time.Now if nil.
func New(templatesDir, staticDir string, browser Browser, now func() time.Time) *Renderer {
	if now == nil {
		now = time.Now
	}
	return &Renderer{TemplatesDir: templatesDir, StaticDir: staticDir, Browser: browser, Now: now}
}

// Render executes descriptor's template against ctx, screenshots it, and
// atomically publishes the JPEG. It returns the published file's basename.
func (r *Renderer) Render(ctx context.Context, tmplCtx calctx.Context, descriptor TemplateDescriptor) (string, error) {
	html, err := r.renderHTML(descriptor, tmplCtx)
	if err != nil {
		return "", err
	}

	jpeg, err := r.Browser.Screenshot(ctx, html, ScreenshotOptions{
		Width:             descriptor.Width,
		Height:            descriptor.Height,
		DeviceScaleFactor: descriptor.DeviceScaleFactor,
		JPEGQuality:       descriptor.JPEGQuality,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", apperr.Wrap(apperr.CodeRenderPlaywrightError, "screenshot failed", err)
	}

	filename := fmt.Sprintf("%s_%s.jpg", descriptor.Name, r.Now().Format("20060102_150405"))
	if err := r.publish(filename, jpeg); err != nil {
		return "", err
	}
	return filename, nil
}

func (r *Renderer) renderHTML(descriptor TemplateDescriptor, tmplCtx calctx.Context) (string, error) {
	path := filepath.Join(r.TemplatesDir, descriptor.Path)
	tmpl, err := template.ParseFiles(path)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeRenderTemplateError, "failed to load template", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, tmplCtx); err != nil {
		return "", apperr.Wrap(apperr.CodeRenderTemplateError, "failed to execute template", err)
	}
	return buf.String(), nil
}

func (r *Renderer) publish(filename string, data []byte) error {
	if err := os.MkdirAll(r.StaticDir, 0o755); err != nil {
		return apperr.Wrap(apperr.CodeRenderSaveFailed, "failed to create static directory", err)
	}

	tmp, err := os.CreateTemp(r.StaticDir, ".render-*.tmp")
	if err != nil {
		return apperr.Wrap(apperr.CodeRenderSaveFailed, "failed to create temp image file", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return apperr.Wrap(apperr.CodeRenderSaveFailed, "failed to write temp image file", err)
	}
	if err := tmp.Close(); err != nil {
		return apperr.Wrap(apperr.CodeRenderSaveFailed, "failed to close temp image file", err)
	}

	dest := filepath.Join(r.StaticDir, filename)
	if err := os.Rename(tmpPath, dest); err != nil {
		return apperr.Wrap(apperr.CodeRenderSaveFailed, "failed to publish image file", err)
	}
	return nil
}
