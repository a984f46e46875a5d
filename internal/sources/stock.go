package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// indexOrder lists the five fixed index rows this adapter always emits, in
// this order.
var indexOrder = []string{"000001", "399001", "399006", "HSI", "DJIA"}

var indexMarket = map[string]string{
	"000001": "A", "399001": "A", "399006": "A",
	"HSI": "HK",
	"DJIA": "US",
}

// TradingDayOracle answers whether market is in session on date. Consulted
// by the stock adapter to populate StockItem.IsTradingDay.
type TradingDayOracle interface {
	IsTradingDay(ctx context.Context, market string, date time.Time) (bool, error)
}

// StockItem is one row of the stock-index payload.
type StockItem struct {
	Code         string `json:"code"`
	Name         string `json:"name"`
	Price        string `json:"price"`
	Change       string `json:"change"`
	ChangePct    string `json:"change_pct"`
	Trend        string `json:"trend"` // up | down | flat
	Market       string `json:"market"`
	IsTradingDay bool   `json:"is_trading_day"`
	IsStale      bool   `json:"is_stale,omitempty"`
}

// StockAdapter fetches a batch quote and maintains its own short-TTL cache,
// serving a stale (IsStale=true) copy of the last success when a fetch
// fails.
type StockAdapter struct {
	QuoteURL     string
	Timeout      time.Duration
	CacheTTL     time.Duration
	Oracle       TradingDayOracle
	BusinessDate func() time.Time
	client       *http.Client

	mu       sync.Mutex
	cached   []StockItem
	cachedAt time.Time
}

// NewStockAdapter constructs a StockAdapter.
func NewStockAdapter(quoteURL string, timeout, cacheTTL time.Duration, oracle TradingDayOracle, businessDate func() time.Time) *StockAdapter {
	return &StockAdapter{
		QuoteURL:     quoteURL,
		Timeout:      timeout,
		CacheTTL:     cacheTTL,
		Oracle:       oracle,
		BusinessDate: businessDate,
		client:       defaultHTTPClient(),
	}
}

func (a *StockAdapter) Name() string { return "stock_index" }

type eastmoneyResponse struct {
	RC   int `json:"rc"`
	Data struct {
		Diff []eastmoneyDiff `json:"diff"`
	} `json:"data"`
}

type eastmoneyDiff struct {
	F2  float64 `json:"f2"`  // price
	F3  float64 `json:"f3"`  // change_pct
	F4  float64 `json:"f4"`  // change
	F12 string  `json:"f12"` // code
	F14 string  `json:"f14"` // name
}

func (a *StockAdapter) FetchFresh(ctx context.Context) (any, error) {
	a.mu.Lock()
	if !a.cachedAt.IsZero() && time.Since(a.cachedAt) < a.CacheTTL {
		cached := a.cached
		a.mu.Unlock()
		return cached, nil
	}
	a.mu.Unlock()

	items, err := a.fetchAndBuild(ctx)
	if err != nil {
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.cached != nil {
			stale := make([]StockItem, len(a.cached))
			copy(stale, a.cached)
			for i := range stale {
				stale[i].IsStale = true
			}
			return stale, nil
		}
		return nil, err
	}

	a.mu.Lock()
	a.cached = items
	a.cachedAt = time.Now()
	a.mu.Unlock()
	return items, nil
}

func (a *StockAdapter) fetchAndBuild(ctx context.Context) ([]StockItem, error) {
	params := url.Values{
		"fltt":   {"2"},
		"fields": {"f2,f3,f4,f12,f14"},
		"secids": {strings.Join(indexOrder, ",")},
	}

	var resp eastmoneyResponse
	if err := fetchJSON(ctx, a.client, a.QuoteURL, params, a.Timeout, &resp); err != nil {
		return nil, err
	}
	if resp.RC != 0 {
		return nil, fmt.Errorf("sources: stock quote rc=%d", resp.RC)
	}

	byCode := make(map[string]eastmoneyDiff, len(resp.Data.Diff))
	for _, d := range resp.Data.Diff {
		byCode[d.F12] = d
	}

	today := a.BusinessDate()
	items := make([]StockItem, 0, len(indexOrder))
	for _, code := range indexOrder {
		market := indexMarket[code]
		tradingDay := a.isTradingDay(ctx, market, today)

		d, ok := byCode[code]
		if !ok {
			items = append(items, StockItem{
				Code: code, Market: market, IsTradingDay: tradingDay,
				Price: "--", Change: "--", ChangePct: "--", Trend: "flat",
			})
			continue
		}

		trend := "flat"
		if d.F3 > 0 {
			trend = "up"
		} else if d.F3 < 0 {
			trend = "down"
		}

		items = append(items, StockItem{
			Code:         code,
			Name:         d.F14,
			Price:        formatPrice(d.F2),
			Change:       formatPrice(d.F4),
			ChangePct:    formatChangePct(d.F3),
			Trend:        trend,
			Market:       market,
			IsTradingDay: tradingDay,
		})
	}
	return items, nil
}

func (a *StockAdapter) isTradingDay(ctx context.Context, market string, date time.Time) bool {
	if a.Oracle != nil {
		if isTrading, err := a.Oracle.IsTradingDay(ctx, market, date); err == nil {
			return isTrading
		}
	}
	return date.Weekday() != time.Saturday && date.Weekday() != time.Sunday
}

func formatPrice(v float64) string {
	return humanize.FormatFloat("#,###.##", v)
}

func formatChangePct(v float64) string {
	sign := "+"
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%.2f%%", sign, v)
}
