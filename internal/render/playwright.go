package render

import (
	"context"
	"fmt"

	"github.com/playwright-community/playwright-go"
)

// PlaywrightBrowser drives a single headless Chromium instance, reused
// across calls, to satisfy the Browser interface in production.
type PlaywrightBrowser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
}

// NewPlaywrightBrowser installs (if needed) and launches headless Chromium.
// Callers must call Close when done.
func NewPlaywrightBrowser() (*PlaywrightBrowser, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("render: start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("render: launch chromium: %w", err)
	}

	return &PlaywrightBrowser{pw: pw, browser: browser}, nil
}

// Screenshot renders html in a fresh page sized to opts and returns a
// full-page JPEG.
func (b *PlaywrightBrowser) Screenshot(ctx context.Context, html string, opts ScreenshotOptions) ([]byte, error) {
	scale := opts.DeviceScaleFactor
	if scale <= 0 {
		scale = 1
	}
	quality := opts.JPEGQuality
	if quality <= 0 {
		quality = 90
	}

	page, err := b.browser.NewPage(playwright.BrowserNewPageOptions{
		Viewport: &playwright.Size{
			Width:  opts.Width,
			Height: opts.Height,
		},
		DeviceScaleFactor: playwright.Float(scale),
	})
	if err != nil {
		return nil, fmt.Errorf("render: new page: %w", err)
	}
	defer page.Close()

	if err := page.SetContent(html, playwright.PageSetContentOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
	}); err != nil {
		return nil, fmt.Errorf("render: set content: %w", err)
	}

	data, err := page.Screenshot(playwright.PageScreenshotOptions{
		Type:     playwright.ScreenshotTypeJpeg,
		Quality:  playwright.Int(quality),
		FullPage: playwright.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("render: screenshot: %w", err)
	}
	return data, nil
}

// Close tears down the browser and the Playwright driver process.
func (b *PlaywrightBrowser) Close() error {
	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			return err
		}
	}
	if b.pw != nil {
		return b.pw.Stop()
	}
	return nil
}
