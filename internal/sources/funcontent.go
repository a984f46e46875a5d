package sources

import (
	"context"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// FunContentEndpoint describes one candidate endpoint for the fun-content
// adapter.
type FunContentEndpoint struct {
	Name         string
	URL          string
	DataPath     string // dot-path into the JSON response, e.g. "data.tip"
	DisplayTitle string
}

// FunContentPayload is the adapter's result shape.
type FunContentPayload struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

var defaultFunContent = FunContentPayload{Title: "🐟 摸鱼小贴士", Content: "喝杯水，歇一歇，今天也要元气满满。"}

// FunContentAdapter tries a date-seeded permutation of configured endpoints
// until one yields a non-empty string at its data_path.
type FunContentAdapter struct {
	Endpoints []FunContentEndpoint
	Timeout   time.Duration
	// BusinessDate supplies the YYYYMMDD shuffle seed for a given call.
	BusinessDate func() time.Time
	client       *http.Client
}

// NewFunContentAdapter constructs a FunContentAdapter.
func NewFunContentAdapter(endpoints []FunContentEndpoint, timeout time.Duration, businessDate func() time.Time) *FunContentAdapter {
	return &FunContentAdapter{Endpoints: endpoints, Timeout: timeout, BusinessDate: businessDate, client: defaultHTTPClient()}
}

func (a *FunContentAdapter) Name() string { return "fun_content" }

func (a *FunContentAdapter) FetchFresh(ctx context.Context) (any, error) {
	if len(a.Endpoints) == 0 {
		return defaultFunContent, nil
	}

	order := shuffleByDate(len(a.Endpoints), a.BusinessDate())

	for _, idx := range order {
		ep := a.Endpoints[idx]
		var raw map[string]any
		if err := fetchJSON(ctx, a.client, ep.URL, nil, a.Timeout, &raw); err != nil {
			continue
		}
		content, ok := extractByPath(raw, ep.DataPath)
		if !ok || strings.TrimSpace(content) == "" {
			continue
		}
		title := ep.DisplayTitle
		if title == "" {
			title = defaultFunContent.Title
		}
		return FunContentPayload{Title: title, Content: content}, nil
	}

	return defaultFunContent, nil
}

// shuffleByDate returns a permutation of [0,n) seeded by the date formatted
// as an integer YYYYMMDD, so every call on the same business day tries the
// endpoints in the same order.
func shuffleByDate(n int, date time.Time) []int {
	seedStr := date.Format("20060102")
	seed, err := strconv.ParseInt(seedStr, 10, 64)
	if err != nil {
		seed = 0
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
	return order
}

// extractByPath walks a dot-path (e.g. "data.tip") over a nested map,
// returning (value, true) only if it resolves to a string, which may be empty.
func extractByPath(m map[string]any, path string) (string, bool) {
	parts := strings.Split(path, ".")
	var current any = m
	for _, part := range parts {
		asMap, ok := current.(map[string]any)
		if !ok {
			return "", false
		}
		current, ok = asMap[part]
		if !ok {
			return "", false
		}
	}
	s, ok := current.(string)
	return s, ok
}
