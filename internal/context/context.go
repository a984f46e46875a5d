// Package context computes the full template rendering context from
// the raw fan-out fetch map, the lunar-calendar facts, and the merged
// holiday list. It is the one place upstream JSON shapes are destructured
// into the stable vocabulary the templates and state store rely on.
package context

import (
	"strconv"
	"strings"
	"time"

	"github.com/moyuren/calendarsvc/internal/fanout"
	"github.com/moyuren/calendarsvc/internal/holiday"
	"github.com/moyuren/calendarsvc/internal/lunar"
	"github.com/moyuren/calendarsvc/internal/sources"
)

var weekCN = [...]string{"星期一", "星期二", "星期三", "星期四", "星期五", "星期六", "星期日"}
var weekEN = [...]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

var defaultGuideYi = []string{"摸鱼", "喝茶", "休息", "学习"}
var defaultGuideJi = []string{"加班", "开会", "焦虑", "提需求"}

var defaultNews = []NewsItem{
	{Num: 1, Text: "今日暂无新闻，适合摸鱼。"},
	{Num: 2, Text: "多喝热水，少熬夜。"},
	{Num: 3, Text: "保持微笑，好运自来。"},
	{Num: 4, Text: "代码要写，咖啡要喝。"},
	{Num: 5, Text: "下班之后，一切随意。"},
}

var defaultHistory = History{Title: "历史上的今天", Content: "暂无记录"}

// DateInfo is the `date` top-level key.
type DateInfo struct {
	YearMonth     string `json:"year_month"`
	Day           int    `json:"day"`
	WeekCN        string `json:"week_cn"`
	WeekEN        string `json:"week_en"`
	LunarYear     string `json:"lunar_year"`
	LunarDate     string `json:"lunar_date"`
	Zodiac        string `json:"zodiac"`
	Constellation string `json:"constellation"`
	MoonPhase     string `json:"moon_phase"`
	FestivalSolar string `json:"festival_solar,omitempty"`
	FestivalLunar string `json:"festival_lunar,omitempty"`
	LegalHoliday  string `json:"legal_holiday,omitempty"`
	IsHoliday     bool   `json:"is_holiday"`
}

// Weekend is the `weekend` top-level key.
type Weekend struct {
	DaysLeft  int  `json:"days_left"`
	IsWeekend bool `json:"is_weekend"`
}

// SolarTerm is the `solar_term` top-level key.
type SolarTerm struct {
	Name     string `json:"name"`
	IsToday  bool   `json:"is_today"`
	DaysLeft int    `json:"days_left"`
}

// Guide is the `guide` top-level key.
type Guide struct {
	Yi []string `json:"yi"`
	Ji []string `json:"ji"`
}

// History is the `history` top-level key (fun-content or its default).
type History struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// NewsItem is one row of `news_list`.
type NewsItem struct {
	Num  int    `json:"num"`
	Text string `json:"text"`
}

// NewsMeta is the `news_meta` top-level key.
type NewsMeta struct {
	Date      string `json:"date"`
	Updated   string `json:"updated"`
	UpdatedAt string `json:"updated_at"`
}

// StockIndices is the `stock_indices` top-level key.
type StockIndices struct {
	Indices []sources.StockItem `json:"indices"`
	Updated string              `json:"updated"`
	IsStale bool                `json:"is_stale"`
}

// Context is the full computed template context.
type Context struct {
	Date         DateInfo          `json:"date"`
	Weekend      Weekend           `json:"weekend"`
	SolarTerm    SolarTerm         `json:"solar_term"`
	Guide        Guide             `json:"guide"`
	History      History           `json:"history"`
	NewsList     []NewsItem        `json:"news_list"`
	NewsMeta     NewsMeta          `json:"news_meta"`
	Holidays     []holiday.Holiday `json:"holidays"`
	KfcContent   string            `json:"kfc_content,omitempty"`
	StockIndices StockIndices      `json:"stock_indices"`
}

// Compute builds the full Context from the fan-out results, business date,
// and the already-merged holiday list (built by the caller via
// holiday.Aggregate + holiday.MergeFestivals, since that needs multi-year
// fetches the fan-out map does not carry).
func Compute(businessDate time.Time, results map[string]fanout.Result, holidays []holiday.Holiday) Context {
	facts := lunar.Compute(businessDate)
	term := lunar.SolarTermInfo(businessDate)
	guide := lunar.GuideFor(businessDate)

	legal := ""
	isHoliday := false
	for _, h := range holidays {
		if h.DaysLeft == 0 && h.IsOffDay {
			legal = h.Name
			isHoliday = true
			break
		}
	}

	weekdayIdx := weekdayIndex(businessDate)

	ctx := Context{
		Date: DateInfo{
			YearMonth:     businessDate.Format("2006.01"),
			Day:           businessDate.Day(),
			WeekCN:        weekCN[weekdayIdx],
			WeekEN:        weekEN[weekdayIdx],
			LunarYear:     facts.LunarYear,
			LunarDate:     facts.LunarDate,
			Zodiac:        facts.Zodiac,
			Constellation: facts.Constellation,
			MoonPhase:     facts.MoonPhase,
			FestivalSolar: facts.FestivalSolar,
			FestivalLunar: facts.FestivalLunar,
			LegalHoliday:  legal,
			IsHoliday:     isHoliday,
		},
		Weekend:   computeWeekend(weekdayIdx),
		SolarTerm: SolarTerm{Name: term.Name, IsToday: term.IsToday, DaysLeft: term.DaysLeft},
		Guide:     buildGuide(guide),
		Holidays:  holidays,
	}

	ctx.History = computeHistory(results)
	ctx.NewsList, ctx.NewsMeta = computeNews(results)
	ctx.KfcContent = computeKfc(businessDate, results)
	ctx.StockIndices = computeStock(results)

	return ctx
}

// weekdayIndex maps time.Weekday (Sunday=0) onto a Monday=0..Sunday=6 index.
func weekdayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func computeWeekend(weekdayIdx int) Weekend {
	if weekdayIdx < 5 {
		return Weekend{DaysLeft: 5 - weekdayIdx, IsWeekend: false}
	}
	return Weekend{DaysLeft: 0, IsWeekend: true}
}

func buildGuide(g lunar.Guide) Guide {
	yi, ji := g.Yi, g.Ji
	if len(yi) == 0 {
		yi = defaultGuideYi
	}
	if len(ji) == 0 {
		ji = defaultGuideJi
	}
	return Guide{Yi: firstN(yi, 4), Ji: firstN(ji, 4)}
}

func firstN(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func computeHistory(results map[string]fanout.Result) History {
	payload := fanout.Payload(results, "fun_content", nil)
	switch fc := payload.(type) {
	case sources.FunContentPayload:
		return History{Title: fc.Title, Content: fc.Content}
	case map[string]any:
		// A payload reloaded from the daily cache arrives as generic JSON.
		title, _ := fc["title"].(string)
		content, _ := fc["content"].(string)
		if content != "" {
			return History{Title: title, Content: content}
		}
	}
	return defaultHistory
}

func computeNews(results map[string]fanout.Result) ([]NewsItem, NewsMeta) {
	payload := fanout.Payload(results, "news", nil)
	raw, ok := payload.(map[string]any)
	if !ok {
		return defaultNews, NewsMeta{}
	}

	data, _ := raw["data"].(map[string]any)

	var items []NewsItem
	if newsRaw, ok := data["news"].([]any); ok {
		for i, v := range newsRaw {
			if s, ok := v.(string); ok {
				items = append(items, NewsItem{Num: i + 1, Text: s})
			}
		}
	}
	if items == nil {
		// Legacy shape: a top-level list of {text} objects.
		if legacy, ok := raw["news"].([]any); ok {
			for i, v := range legacy {
				m, ok := v.(map[string]any)
				if !ok {
					continue
				}
				if text, ok := m["text"].(string); ok {
					items = append(items, NewsItem{Num: i + 1, Text: text})
				}
			}
		}
	}
	if items == nil {
		items = defaultNews
	}

	meta := NewsMeta{}
	updatedRaw, _ := raw["updated"].(string)
	if updatedRaw == "" {
		updatedRaw, _ = raw["api_updated"].(string)
	}
	if normalized, ok := Normalize(updatedRaw, time.Local); ok {
		meta.Updated = normalized
		meta.UpdatedAt = normalized
	}
	if dateRaw, ok := raw["date"].(string); ok {
		meta.Date = dateRaw
	}

	return items, meta
}

func computeKfc(businessDate time.Time, results map[string]fanout.Result) string {
	if businessDate.Weekday() != time.Thursday {
		return ""
	}
	payload := fanout.Payload(results, "kfc", nil)
	s, _ := payload.(string)
	return s
}

func computeStock(results map[string]fanout.Result) StockIndices {
	payload := fanout.Payload(results, "stock_index", nil)
	items, ok := payload.([]sources.StockItem)
	if !ok {
		return StockIndices{}
	}
	stale := false
	for _, it := range items {
		if it.IsStale {
			stale = true
			break
		}
	}
	return StockIndices{Indices: items, Updated: time.Now().Format(time.RFC3339), IsStale: stale}
}

// timezoneAbbreviations maps common abbreviations onto their UTC offset in
// minutes. Ambiguous abbreviations resolve to the zone most likely for
// this service's upstreams (CST is China Standard Time, not US Central).
var timezoneAbbreviations = map[string]int{
	"CST": 8 * 60, "CCT": 8 * 60, "BJT": 8 * 60,
	"UTC": 0, "GMT": 0, "Z": 0,
	"EST": -5 * 60, "EDT": -4 * 60,
	"CDT": -5 * 60,
	"MST": -7 * 60, "MDT": -6 * 60,
	"PST": -8 * 60, "PDT": -7 * 60,
	"JST": 9 * 60, "KST": 9 * 60,
	"IST": 5*60 + 30,
	"AEST": 10 * 60, "AEDT": 11 * 60,
}

var normalizeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
}

// Normalize accepts RFC3339/offset timestamps, local timestamps with a
// trailing UTC/GMT/abbreviation/numeric offset, and raw Unix
// seconds/milliseconds, returning the canonical "YYYY-MM-DDTHH:MM:SS±HH:MM"
// form. Unparseable input returns ("", false).
func Normalize(value string, defaultLoc *time.Location) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}

	if unixSeconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		t := fromUnixGuess(unixSeconds)
		return t.In(defaultLoc).Format("2006-01-02T15:04:05-07:00"), true
	}

	candidate := value
	if strings.HasSuffix(candidate, "Z") {
		candidate = strings.TrimSuffix(candidate, "Z") + "+00:00"
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05-07:00", "2006-01-02 15:04:05-07:00"} {
		if t, err := time.Parse(layout, candidate); err == nil {
			return t.Format("2006-01-02T15:04:05-07:00"), true
		}
	}

	body, offset, hasOffset := extractTrailingOffset(value)
	loc := defaultLoc
	if hasOffset {
		loc = time.FixedZone("", offset)
	}
	for _, layout := range normalizeLayouts {
		if t, err := time.ParseInLocation(layout, strings.TrimSpace(body), loc); err == nil {
			return t.Format("2006-01-02T15:04:05-07:00"), true
		}
	}

	return "", false
}

func fromUnixGuess(v int64) time.Time {
	// Values above this threshold are almost certainly milliseconds.
	const msThreshold = 1_000_000_000_000
	if v > msThreshold {
		return time.UnixMilli(v)
	}
	return time.Unix(v, 0)
}

// extractTrailingOffset strips a trailing "UTC±H[H][:MM]", "GMT±…",
// "±HHMM", "±HH:MM", or timezone-abbreviation suffix from value, returning
// the remaining body and the offset in seconds.
func extractTrailingOffset(value string) (body string, offsetSeconds int, ok bool) {
	fields := strings.Fields(value)
	if len(fields) < 2 {
		return value, 0, false
	}
	last := fields[len(fields)-1]
	body = strings.Join(fields[:len(fields)-1], " ")

	upper := strings.ToUpper(last)
	for _, prefix := range []string{"UTC", "GMT"} {
		if strings.HasPrefix(upper, prefix) {
			offset, ok := parseNumericOffset(strings.TrimPrefix(upper, prefix))
			if ok {
				return body, offset, true
			}
		}
	}
	if offset, ok := parseNumericOffset(last); ok {
		return body, offset, true
	}
	if minutes, ok := timezoneAbbreviations[upper]; ok {
		return body, minutes * 60, true
	}
	return value, 0, false
}

// parseNumericOffset parses "+8", "-05", "+05:30", "+0530" into seconds.
func parseNumericOffset(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	sign := 1
	switch s[0] {
	case '+':
		s = s[1:]
	case '-':
		sign = -1
		s = s[1:]
	}
	if s == "" {
		return 0, false
	}

	var hours, minutes int
	switch {
	case strings.Contains(s, ":"):
		parts := strings.SplitN(s, ":", 2)
		h, err1 := strconv.Atoi(parts[0])
		m, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil {
			return 0, false
		}
		hours, minutes = h, m
	case len(s) == 4:
		h, err1 := strconv.Atoi(s[:2])
		m, err2 := strconv.Atoi(s[2:])
		if err1 != nil || err2 != nil {
			return 0, false
		}
		hours, minutes = h, m
	default:
		h, err := strconv.Atoi(s)
		if err != nil {
			return 0, false
		}
		hours = h
	}
	if hours > 14 || minutes > 59 {
		return 0, false
	}
	return sign * (hours*3600 + minutes*60), true
}
