package sources

import (
	"context"
	"net/http"
	"time"
)

// NewsAdapter performs a single GET against a configured news endpoint. Its
// payload is opaque JSON, destructured later by the context computer.
type NewsAdapter struct {
	URL     string
	Timeout time.Duration
	client  *http.Client
}

// NewNewsAdapter constructs a NewsAdapter.
func NewNewsAdapter(url string, timeout time.Duration) *NewsAdapter {
	return &NewsAdapter{URL: url, Timeout: timeout, client: defaultHTTPClient()}
}

func (a *NewsAdapter) Name() string { return "news" }

func (a *NewsAdapter) FetchFresh(ctx context.Context) (any, error) {
	var payload map[string]any
	if err := fetchJSON(ctx, a.client, a.URL, nil, a.Timeout, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}
