package sources

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// KfcAdapter fetches the Crazy-Thursday copy, but only on Thursdays in
// business time; on any other weekday it returns (nil, nil) without making
// a request. The Thursday gate lives here in the fetch path, not inside
// the daily cache that wraps it.
type KfcAdapter struct {
	URL          string
	Timeout      time.Duration
	BusinessDate func() time.Time
	client       *http.Client
}

// NewKfcAdapter constructs a KfcAdapter.
func NewKfcAdapter(url string, timeout time.Duration, businessDate func() time.Time) *KfcAdapter {
	return &KfcAdapter{URL: url, Timeout: timeout, BusinessDate: businessDate, client: defaultHTTPClient()}
}

func (a *KfcAdapter) Name() string { return "kfc" }

func (a *KfcAdapter) FetchFresh(ctx context.Context) (any, error) {
	if a.BusinessDate().Weekday() != time.Thursday {
		return nil, nil
	}

	var raw any
	if err := fetchJSON(ctx, a.client, a.URL, nil, a.Timeout, &raw); err != nil {
		return nil, err
	}

	content, ok := extractKfcContent(raw)
	if !ok {
		return nil, nil
	}
	content = strings.ReplaceAll(content, `\n`, "\n")
	return strings.TrimSpace(content), nil
}

// extractKfcContent accepts {data:{kfc:string}}, {data:string}, {text:string},
// or a bare string response shape.
func extractKfcContent(raw any) (string, bool) {
	switch v := raw.(type) {
	case string:
		return v, true
	case map[string]any:
		if data, ok := v["data"].(map[string]any); ok {
			if kfc, ok := data["kfc"].(string); ok {
				return kfc, true
			}
		}
		if data, ok := v["data"].(string); ok {
			return data, true
		}
		if text, ok := v["text"].(string); ok {
			return text, true
		}
	}
	return "", false
}
