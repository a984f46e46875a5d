// Package audit implements the generation audit log: an append-only
// SQLite-backed record of every orchestrator run, purely additive
// observability that the generation pipeline never depends on.
package audit

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Trigger identifies what caused a generation run.
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
	TriggerStartup   Trigger = "startup"
)

// Outcome is the terminal state of a generation run.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeSkipped Outcome = "skipped"
	OutcomeBusy    Outcome = "busy"
	OutcomeFailed  Outcome = "failed"
)

// Record is one append-only audit row.
type Record struct {
	ID           string  `json:"id"`
	Template     string  `json:"template"`
	Trigger      Trigger `json:"trigger"`
	StartedAtMs  int64   `json:"started_at_ms"`
	FinishedAtMs int64   `json:"finished_at_ms"`
	Outcome      Outcome `json:"outcome"`
	Filename     string  `json:"filename,omitempty"`
	ErrorCode    string  `json:"error_code,omitempty"`
}

// Log appends and reads generation_runs rows in a SQLite database.
type Log struct {
	db  *sql.DB
	log zerolog.Logger
}

// New opens (creating if necessary) the generation_runs table in db.
func New(db *sql.DB, log zerolog.Logger) (*Log, error) {
	// "trigger" is a reserved word in SQLite and must stay quoted.
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS generation_runs (
		id TEXT PRIMARY KEY,
		template TEXT NOT NULL,
		"trigger" TEXT NOT NULL,
		started_at_ms INTEGER NOT NULL,
		finished_at_ms INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		filename TEXT,
		error_code TEXT
	)`)
	if err != nil {
		return nil, fmt.Errorf("audit: create generation_runs table: %w", err)
	}
	return &Log{db: db, log: log.With().Str("service", "audit_log").Logger()}, nil
}

// Append inserts record, generating an ID if record.ID is empty. Failures
// are logged at warn level and returned but must never be escalated by
// callers: the audit log is additive observability only.
func (l *Log) Append(record Record) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	_, err := l.db.Exec(
		`INSERT INTO generation_runs (id, template, "trigger", started_at_ms, finished_at_ms, outcome, filename, error_code)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.Template, string(record.Trigger), record.StartedAtMs, record.FinishedAtMs,
		string(record.Outcome), nullableString(record.Filename), nullableString(record.ErrorCode),
	)
	if err != nil {
		l.log.Warn().Err(err).Str("template", record.Template).Str("outcome", string(record.Outcome)).
			Msg("failed to append audit record")
		return fmt.Errorf("audit: append: %w", err)
	}
	return nil
}

// Recent returns up to limit most-recent records, newest first.
func (l *Log) Recent(limit int) ([]Record, error) {
	rows, err := l.db.Query(
		`SELECT id, template, "trigger", started_at_ms, finished_at_ms, outcome,
		        COALESCE(filename, ''), COALESCE(error_code, '')
		 FROM generation_runs ORDER BY started_at_ms DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("audit: query recent: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var trigger, outcome string
		if err := rows.Scan(&r.ID, &r.Template, &trigger, &r.StartedAtMs, &r.FinishedAtMs, &outcome, &r.Filename, &r.ErrorCode); err != nil {
			return nil, fmt.Errorf("audit: scan row: %w", err)
		}
		r.Trigger = Trigger(trigger)
		r.Outcome = Outcome(outcome)
		records = append(records, r)
	}
	return records, rows.Err()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
