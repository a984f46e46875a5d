// Package tradingday answers whether an exchange is in session on a given
// date: weekend fast path first, then a short-TTL cache, then a remote
// market-status API, then a hard-coded per-market holiday table. The
// stock-index adapter is its only consumer and never needs intraday
// session state, so the lookup is a whole-day boolean.
package tradingday

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// ExchangeCalendar carries a market's timezone and fixed holiday list.
type ExchangeCalendar struct {
	Market   string
	Name     string
	Timezone *time.Location
	Holidays []time.Time
}

func isHoliday(cal *ExchangeCalendar, date time.Time) bool {
	local := date.In(cal.Timezone)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, cal.Timezone)
	for _, h := range cal.Holidays {
		if h.Equal(today) {
			return true
		}
	}
	return false
}

// Oracle answers IsTradingDay queries for the three markets the stock
// adapter tracks: A (Shanghai/Shenzhen composite), HK (HKEX), US (NYSE).
type Oracle struct {
	calendars  map[string]*ExchangeCalendar
	cacheDB    *sql.DB
	httpClient *http.Client
	apiURL     string
	log        zerolog.Logger
}

// marketStatusResponse is the expected shape of the configurable remote
// market-status API.
type marketStatusResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Markets []struct {
			ID     string `json:"id"`
			IsOpen bool   `json:"isOpen"`
			Status struct {
				IsOpen bool `json:"isOpen"`
			} `json:"status"`
		} `json:"markets"`
	} `json:"data"`
}

// New constructs an Oracle backed by cacheDB (may be nil to disable
// caching) and apiURL (may be empty to skip the remote lookup entirely).
func New(cacheDB *sql.DB, apiURL string, log zerolog.Logger) (*Oracle, error) {
	if cacheDB != nil {
		if _, err := cacheDB.Exec(`CREATE TABLE IF NOT EXISTS cache_data (
			cache_key TEXT PRIMARY KEY,
			cache_value TEXT NOT NULL,
			expires_at INTEGER,
			created_at INTEGER NOT NULL
		)`); err != nil {
			return nil, fmt.Errorf("tradingday: create cache table: %w", err)
		}
	}

	o := &Oracle{
		calendars:  map[string]*ExchangeCalendar{},
		cacheDB:    cacheDB,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		apiURL:     apiURL,
		log:        log.With().Str("service", "trading_day_oracle").Logger(),
	}
	o.initCalendars()
	return o, nil
}

func (o *Oracle) initCalendars() {
	shanghai, _ := time.LoadLocation("Asia/Shanghai")
	hk, _ := time.LoadLocation("Asia/Hong_Kong")
	ny, _ := time.LoadLocation("America/New_York")

	o.calendars["A"] = &ExchangeCalendar{
		Market: "A", Name: "Shanghai/Shenzhen Composite", Timezone: shanghai,
		Holidays: []time.Time{
			time.Date(2026, 1, 1, 0, 0, 0, 0, shanghai),
			time.Date(2026, 2, 16, 0, 0, 0, 0, shanghai),
			time.Date(2026, 2, 17, 0, 0, 0, 0, shanghai),
			time.Date(2026, 2, 18, 0, 0, 0, 0, shanghai),
			time.Date(2026, 2, 19, 0, 0, 0, 0, shanghai),
			time.Date(2026, 2, 20, 0, 0, 0, 0, shanghai),
			time.Date(2026, 4, 6, 0, 0, 0, 0, shanghai),
			time.Date(2026, 5, 1, 0, 0, 0, 0, shanghai),
			time.Date(2026, 6, 19, 0, 0, 0, 0, shanghai),
			time.Date(2026, 9, 25, 0, 0, 0, 0, shanghai),
			time.Date(2026, 10, 1, 0, 0, 0, 0, shanghai),
		},
	}
	o.calendars["HK"] = &ExchangeCalendar{
		Market: "HK", Name: "HKEX", Timezone: hk,
		Holidays: []time.Time{
			time.Date(2026, 1, 1, 0, 0, 0, 0, hk),
			time.Date(2026, 2, 17, 0, 0, 0, 0, hk),
			time.Date(2026, 2, 18, 0, 0, 0, 0, hk),
			time.Date(2026, 2, 19, 0, 0, 0, 0, hk),
			time.Date(2026, 4, 3, 0, 0, 0, 0, hk),
			time.Date(2026, 4, 6, 0, 0, 0, 0, hk),
			time.Date(2026, 5, 1, 0, 0, 0, 0, hk),
			time.Date(2026, 10, 1, 0, 0, 0, 0, hk),
			time.Date(2026, 12, 25, 0, 0, 0, 0, hk),
		},
	}
	o.calendars["US"] = &ExchangeCalendar{
		Market: "US", Name: "NYSE", Timezone: ny,
		Holidays: []time.Time{
			time.Date(2026, 1, 1, 0, 0, 0, 0, ny),
			time.Date(2026, 1, 19, 0, 0, 0, 0, ny),
			time.Date(2026, 2, 16, 0, 0, 0, 0, ny),
			time.Date(2026, 4, 3, 0, 0, 0, 0, ny),
			time.Date(2026, 5, 25, 0, 0, 0, 0, ny),
			time.Date(2026, 6, 19, 0, 0, 0, 0, ny),
			time.Date(2026, 7, 3, 0, 0, 0, 0, ny),
			time.Date(2026, 9, 7, 0, 0, 0, 0, ny),
			time.Date(2026, 11, 26, 0, 0, 0, 0, ny),
			time.Date(2026, 12, 25, 0, 0, 0, 0, ny),
		},
	}
}

// IsTradingDay implements sources.TradingDayOracle.
func (o *Oracle) IsTradingDay(ctx context.Context, market string, date time.Time) (bool, error) {
	open, _ := o.isTradingDayWithSource(ctx, market, date)
	return open, nil
}

// isTradingDayWithSource additionally reports which layer answered, used by
// tests to verify the weekend fast path never touches the network.
func (o *Oracle) isTradingDayWithSource(ctx context.Context, market string, date time.Time) (bool, string) {
	cal, ok := o.calendars[market]
	if !ok {
		cal = o.calendars["US"]
	}

	local := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, cal.Timezone)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false, "fallback"
	}

	cacheKey := fmt.Sprintf("%s:%s", market, local.Format("2006-01-02"))

	if isOpen, found := o.readCache(cacheKey); found {
		return isOpen, "cache"
	}

	if o.apiURL != "" {
		isOpen, err := o.fetchFromAPI(ctx, market)
		if err == nil {
			o.writeCache(cacheKey, isOpen)
			return isOpen, "api"
		}
		o.log.Warn().Err(err).Str("market", market).Msg("trading-day API lookup failed, falling back")
	}

	return !isHoliday(cal, local), "fallback"
}

func (o *Oracle) readCache(cacheKey string) (bool, bool) {
	if o.cacheDB == nil {
		return false, false
	}

	var value string
	var expiresAt sql.NullInt64
	err := o.cacheDB.QueryRow(
		"SELECT cache_value, expires_at FROM cache_data WHERE cache_key = ?", cacheKey,
	).Scan(&value, &expiresAt)
	if err != nil {
		return false, false
	}
	if expiresAt.Valid && time.Now().Unix() > expiresAt.Int64 {
		return false, false
	}
	return value == "true", true
}

func (o *Oracle) writeCache(cacheKey string, isOpen bool) {
	if o.cacheDB == nil {
		return
	}
	value := "false"
	if isOpen {
		value = "true"
	}
	_, err := o.cacheDB.Exec(
		`INSERT OR REPLACE INTO cache_data (cache_key, cache_value, expires_at, created_at) VALUES (?, ?, ?, ?)`,
		cacheKey, value, time.Now().Add(6*time.Hour).Unix(), time.Now().Unix(),
	)
	if err != nil {
		o.log.Warn().Err(err).Str("cache_key", cacheKey).Msg("failed to write trading-day cache")
	}
}

func (o *Oracle) fetchFromAPI(ctx context.Context, market string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.apiURL, nil)
	if err != nil {
		return false, err
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("tradingday: api returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, err
	}

	var parsed marketStatusResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return false, err
	}
	if !parsed.Success {
		return false, fmt.Errorf("tradingday: api success=false")
	}
	for _, m := range parsed.Data.Markets {
		if m.ID == market {
			if m.Status.IsOpen {
				return true, nil
			}
			return m.IsOpen, nil
		}
	}
	return false, fmt.Errorf("tradingday: market %q not found in api response", market)
}
