package context

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moyuren/calendarsvc/internal/fanout"
	"github.com/moyuren/calendarsvc/internal/lunar"
	"github.com/moyuren/calendarsvc/internal/sources"
)

func TestComputeWeekend_Weekday(t *testing.T) {
	// Monday
	w := computeWeekend(0)
	assert.Equal(t, 5, w.DaysLeft)
	assert.False(t, w.IsWeekend)
}

func TestComputeWeekend_Weekend(t *testing.T) {
	w := computeWeekend(5) // Saturday
	assert.Equal(t, 0, w.DaysLeft)
	assert.True(t, w.IsWeekend)
}

func TestBuildGuide_TruncatesToFour(t *testing.T) {
	g := buildGuide(lunar.Guide{
		Yi: []string{"a", "b", "c", "d", "e"},
		Ji: []string{"f", "g", "h", "i", "j"},
	})
	assert.Len(t, g.Yi, 4)
	assert.Len(t, g.Ji, 4)
}

func TestBuildGuide_DefaultsWhenEmpty(t *testing.T) {
	g := buildGuide(lunar.Guide{})
	assert.Equal(t, defaultGuideYi, g.Yi)
	assert.Equal(t, defaultGuideJi, g.Ji)
}

func TestComputeHistory_FallsBackToDefault(t *testing.T) {
	h := computeHistory(map[string]fanout.Result{})
	assert.Equal(t, defaultHistory, h)
}

func TestComputeHistory_UsesFunContentPayload(t *testing.T) {
	results := map[string]fanout.Result{
		"fun_content": {Source: "fun_content", Payload: sources.FunContentPayload{Title: "t", Content: "c"}},
	}
	h := computeHistory(results)
	assert.Equal(t, "t", h.Title)
	assert.Equal(t, "c", h.Content)
}

func TestComputeNews_DefaultsWhenMissing(t *testing.T) {
	list, meta := computeNews(map[string]fanout.Result{})
	assert.Equal(t, defaultNews, list)
	assert.Equal(t, NewsMeta{}, meta)
}

func TestComputeNews_NewShape(t *testing.T) {
	results := map[string]fanout.Result{
		"news": {Payload: map[string]any{
			"data": map[string]any{"news": []any{"a", "b"}},
		}},
	}
	list, _ := computeNews(results)
	require.Len(t, list, 2)
	assert.Equal(t, 1, list[0].Num)
	assert.Equal(t, "a", list[0].Text)
}

func TestComputeNews_LegacyShape(t *testing.T) {
	results := map[string]fanout.Result{
		"news": {Payload: map[string]any{
			"news": []any{map[string]any{"text": "legacy item"}},
		}},
	}
	list, _ := computeNews(results)
	require.Len(t, list, 1)
	assert.Equal(t, "legacy item", list[0].Text)
}

func TestComputeKfc_OnlyOnThursday(t *testing.T) {
	friday := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "", computeKfc(friday, map[string]fanout.Result{"kfc": {Payload: "v我50"}}))

	thursday := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "v我50", computeKfc(thursday, map[string]fanout.Result{"kfc": {Payload: "v我50"}}))
}

func TestNormalize_RFC3339(t *testing.T) {
	got, ok := Normalize("2026-07-29T10:00:00Z", time.UTC)
	require.True(t, ok)
	assert.Equal(t, "2026-07-29T10:00:00+00:00", got)
}

func TestNormalize_TrailingAbbreviation(t *testing.T) {
	got, ok := Normalize("2026-07-29 10:00:00 CST", time.UTC)
	require.True(t, ok)
	assert.Equal(t, "2026-07-29T10:00:00+08:00", got)
}

func TestNormalize_NumericOffsetSuffix(t *testing.T) {
	got, ok := Normalize("2026-07-29 10:00:00 +0530", time.UTC)
	require.True(t, ok)
	assert.Equal(t, "2026-07-29T10:00:00+05:30", got)
}

func TestNormalize_UnixSeconds(t *testing.T) {
	got, ok := Normalize("1785312000", time.UTC)
	require.True(t, ok)
	assert.Contains(t, got, "T")
}

func TestNormalize_Unparseable(t *testing.T) {
	_, ok := Normalize("not a date", time.UTC)
	assert.False(t, ok)
}

func TestNormalize_RoundTrip(t *testing.T) {
	// Re-parsing the normaliser's own output must yield the same instant.
	got, ok := Normalize("2026-03-05T09:30:00+08:00", time.UTC)
	require.True(t, ok)
	reparsed, err := time.Parse("2006-01-02T15:04:05-07:00", got)
	require.NoError(t, err)
	original, err := time.Parse(time.RFC3339, "2026-03-05T09:30:00+08:00")
	require.NoError(t, err)
	assert.True(t, reparsed.Equal(original))
}
