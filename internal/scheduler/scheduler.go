// Package scheduler drives the generation orchestrator on configured daily
// fire-times or an hourly minute mark, with replace-by-id installation so a
// configuration reload never duplicates jobs.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/moyuren/calendarsvc/internal/audit"
)

// Mode selects how fire-times are interpreted.
type Mode string

const (
	ModeDaily  Mode = "daily"
	ModeHourly Mode = "hourly"
)

// Generator is the subset of the orchestrator a scheduled job needs.
type Generator interface {
	Generate(ctx context.Context, templateName string, trigger audit.Trigger) (string, error)
}

// Config describes one template's fire schedule.
type Config struct {
	Template     string
	Mode         Mode
	DailyTimes   []string // "HH:MM", required when Mode == ModeDaily
	MinuteOfHour int      // 0-59, required when Mode == ModeHourly
}

// Scheduler owns one cron.Cron instance and the entry IDs it has installed,
// keyed by job-id so that reconfiguration replaces rather than duplicates
// entries.
type Scheduler struct {
	cron    *cron.Cron
	gen     Generator
	log     zerolog.Logger
	entries map[string][]cron.EntryID
}

// New constructs a Scheduler bound to gen. The returned Scheduler's cron
// loop is not started until Start is called.
func New(gen Generator, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		gen:     gen,
		log:     log.With().Str("service", "scheduler").Logger(),
		entries: make(map[string][]cron.EntryID),
	}
}

// Start launches the underlying cron loop on its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop drains in-flight jobs and halts the cron loop.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Install registers (or replaces) the fire-times for cfg.Template. Calling
// Install again for the same template removes the previous entries first,
// so a configuration reload never duplicates jobs.
func (s *Scheduler) Install(cfg Config) error {
	specs, err := cronSpecs(cfg)
	if err != nil {
		return fmt.Errorf("scheduler: %s: %w", cfg.Template, err)
	}

	s.remove(cfg.Template)

	var ids []cron.EntryID
	for _, spec := range specs {
		template := cfg.Template
		id, err := s.cron.AddFunc(spec, func() { s.fire(template) })
		if err != nil {
			return fmt.Errorf("scheduler: %s: invalid cron spec %q: %w", cfg.Template, spec, err)
		}
		ids = append(ids, id)
	}
	s.entries[cfg.Template] = ids
	s.log.Info().Str("template", cfg.Template).Strs("specs", specs).Msg("installed schedule")
	return nil
}

// remove tears down every entry previously installed for template, if any.
func (s *Scheduler) remove(template string) {
	for _, id := range s.entries[template] {
		s.cron.Remove(id)
	}
	delete(s.entries, template)
}

// fire runs one generation for template, swallowing the error: a failed
// scheduled run is already captured in the audit log by the orchestrator
// itself and must not crash the cron loop.
func (s *Scheduler) fire(template string) {
	_, err := s.gen.Generate(context.Background(), template, audit.TriggerScheduled)
	if err != nil {
		s.log.Warn().Err(err).Str("template", template).Msg("scheduled generation failed")
	}
}

// cronSpecs expands cfg into one robfig/cron spec per configured fire-time.
// A missed fire is never made up: cron.Cron only ever schedules the next
// occurrence from wall-clock time, so a paused process simply skips
// whatever fire-times elapsed while it was down.
func cronSpecs(cfg Config) ([]string, error) {
	switch cfg.Mode {
	case ModeDaily:
		if len(cfg.DailyTimes) == 0 {
			return nil, fmt.Errorf("daily mode requires at least one daily_time")
		}
		specs := make([]string, 0, len(cfg.DailyTimes))
		for _, t := range cfg.DailyTimes {
			hour, minute, err := parseHHMM(t)
			if err != nil {
				return nil, err
			}
			specs = append(specs, fmt.Sprintf("%d %d * * *", minute, hour))
		}
		return specs, nil
	case ModeHourly:
		if cfg.MinuteOfHour < 0 || cfg.MinuteOfHour > 59 {
			return nil, fmt.Errorf("hourly mode requires minute_of_hour in [0,59], got %d", cfg.MinuteOfHour)
		}
		return []string{fmt.Sprintf("%d * * * *", cfg.MinuteOfHour)}, nil
	default:
		return nil, fmt.Errorf("unknown scheduler mode %q", cfg.Mode)
	}
}

func parseHHMM(s string) (hour, minute int, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid daily_time %q, want HH:MM", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in daily_time %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in daily_time %q", s)
	}
	return hour, minute, nil
}
