package audit

import (
	"database/sql"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestAppendAndRecent_OrderedNewestFirst(t *testing.T) {
	l, err := New(openTestDB(t), zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, l.Append(Record{Template: "moyuren", Trigger: TriggerScheduled, StartedAtMs: 100, FinishedAtMs: 200, Outcome: OutcomeOK, Filename: "a.jpg"}))
	require.NoError(t, l.Append(Record{Template: "moyuren", Trigger: TriggerManual, StartedAtMs: 300, FinishedAtMs: 400, Outcome: OutcomeBusy}))

	recent, err := l.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, OutcomeBusy, recent[0].Outcome)
	assert.Equal(t, OutcomeOK, recent[1].Outcome)
	assert.Equal(t, "a.jpg", recent[1].Filename)
	assert.Equal(t, "", recent[0].Filename)
}

func TestRecent_RespectsLimit(t *testing.T) {
	l, err := New(openTestDB(t), zerolog.Nop())
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Append(Record{Template: "moyuren", Trigger: TriggerScheduled, StartedAtMs: int64(i), FinishedAtMs: int64(i), Outcome: OutcomeOK}))
	}

	recent, err := l.Recent(2)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestAppend_GeneratesIDWhenEmpty(t *testing.T) {
	l, err := New(openTestDB(t), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, l.Append(Record{Template: "moyuren", Outcome: OutcomeOK}))

	recent, err := l.Recent(1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.NotEmpty(t, recent[0].ID)
}
