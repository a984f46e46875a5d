// Package orchestrator implements the generation control core: the
// single-flight pipeline that fetches, computes, renders, and publishes one
// calendar image, fires the cache cleanup and audit append off the
// critical path, and enforces the in-process plus cross-process double-lock
// discipline.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/moyuren/calendarsvc/internal/apperr"
	"github.com/moyuren/calendarsvc/internal/audit"
	"github.com/moyuren/calendarsvc/internal/cachecleaner"
	"github.com/moyuren/calendarsvc/internal/clock"
	calctx "github.com/moyuren/calendarsvc/internal/context"
	"github.com/moyuren/calendarsvc/internal/fanout"
	"github.com/moyuren/calendarsvc/internal/holiday"
	"github.com/moyuren/calendarsvc/internal/locking"
	"github.com/moyuren/calendarsvc/internal/lunar"
	"github.com/moyuren/calendarsvc/internal/render"
	"github.com/moyuren/calendarsvc/internal/sources"
	"github.com/moyuren/calendarsvc/internal/statestore"
)

// recentThreshold is the window within which a just-completed generation
// short-circuits a second concurrent request for the same template.
const recentThreshold = 10 * time.Second

// fileLockTimeout bounds acquisition of the cross-process advisory lock.
const fileLockTimeout = 5 * time.Second

// memLockTimeout bounds acquisition of the in-process single-flight slot.
const memLockTimeout = 100 * time.Millisecond

// TemplateResolver resolves a template name to its rendering descriptor,
// decoupling this package from internal/config's YAML shape.
type TemplateResolver interface {
	Resolve(name string) (render.TemplateDescriptor, bool)
	DefaultName() string
}

// Orchestrator wires together every component the generation pipeline
// depends on.
type Orchestrator struct {
	Clock          *clock.Clock
	Fetcher        *fanout.Fetcher
	HolidayFetcher *sources.HolidayYearFetcher
	Templates      TemplateResolver
	Renderer       *render.Renderer
	Store          *statestore.Store
	Cleaner        *cachecleaner.Cleaner
	Audit          *audit.Log
	Locks          *locking.Manager
	RetainDays     int

	sem *semaphore.Weighted
	log zerolog.Logger
}

// New constructs an Orchestrator.
func New(
	clk *clock.Clock,
	fetcher *fanout.Fetcher,
	holidayFetcher *sources.HolidayYearFetcher,
	templates TemplateResolver,
	renderer *render.Renderer,
	store *statestore.Store,
	cleaner *cachecleaner.Cleaner,
	auditLog *audit.Log,
	locks *locking.Manager,
	retainDays int,
	log zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		Clock: clk, Fetcher: fetcher, HolidayFetcher: holidayFetcher, Templates: templates,
		Renderer: renderer, Store: store, Cleaner: cleaner, Audit: auditLog, Locks: locks,
		RetainDays: retainDays,
		sem:        semaphore.NewWeighted(1),
		log:        log.With().Str("service", "orchestrator").Logger(),
	}
}

// Generate runs the full single-flight pipeline for templateName (empty
// selects the configured default) and returns the published filename.
func (o *Orchestrator) Generate(ctx context.Context, templateName string, trigger audit.Trigger) (filename string, err error) {
	if templateName == "" {
		templateName = o.Templates.DefaultName()
	}

	startedAt := time.Now()
	outcome := audit.OutcomeFailed
	errorCode := ""
	defer func() {
		o.recordAudit(templateName, trigger, startedAt, outcome, filename, errorCode)
	}()

	memCtx, cancel := context.WithTimeout(ctx, memLockTimeout)
	defer cancel()
	if acquireErr := o.sem.Acquire(memCtx, 1); acquireErr != nil {
		outcome, errorCode = audit.OutcomeBusy, string(apperr.CodeGenerationBusy)
		return "", apperr.New(apperr.CodeGenerationBusy, "another generation is already in progress")
	}
	defer o.sem.Release(1)

	lock, lockErr := o.Locks.AcquireLock(ctx, "generation", fileLockTimeout)
	if lockErr != nil {
		outcome, errorCode = audit.OutcomeBusy, string(apperr.CodeGenerationBusy)
		return "", apperr.Wrap(apperr.CodeGenerationBusy, "failed to acquire generation lock", lockErr)
	}
	defer lock.Release()

	if skipFilename, skip := o.recheckRecent(templateName); skip {
		outcome, filename = audit.OutcomeSkipped, skipFilename
		return skipFilename, nil
	}

	descriptor, ok := o.Templates.Resolve(templateName)
	if !ok {
		outcome, errorCode = audit.OutcomeFailed, string(apperr.CodeAPINotFound)
		return "", apperr.New(apperr.CodeAPINotFound, fmt.Sprintf("unknown template %q", templateName))
	}

	businessToday := o.Clock.BusinessToday()
	raw := o.Fetcher.Fetch(ctx)
	holidays := o.computeHolidays(businessToday)
	tmplCtx := calctx.Compute(businessToday, raw, holidays)
	if !descriptor.ShowKFC {
		tmplCtx.KfcContent = ""
	}
	if !descriptor.ShowStock {
		tmplCtx.StockIndices = calctx.StockIndices{}
	}

	producedFilename, renderErr := o.Renderer.Render(ctx, tmplCtx, descriptor)
	if renderErr != nil {
		outcome, errorCode = audit.OutcomeFailed, errorCodeOf(renderErr)
		return "", renderErr
	}

	now := o.Clock.DisplayNow()
	public := buildPublic(tmplCtx, businessToday, now)
	entry := statestore.TemplateEntry{Filename: producedFilename, Updated: now.Format(time.RFC3339), UpdatedAtMs: now.UnixMilli()}
	if updateErr := o.Store.Update(templateName, entry, templateData(tmplCtx), public); updateErr != nil {
		outcome, errorCode = audit.OutcomeFailed, errorCodeOf(updateErr)
		return "", updateErr
	}

	filename, outcome = producedFilename, audit.OutcomeOK
	o.scheduleCleanup()
	return filename, nil
}

// recheckRecent implements the double-check after the file-lock: if the
// state file already has a fresh (<10s) entry for templateName, another
// process just did the work.
func (o *Orchestrator) recheckRecent(templateName string) (string, bool) {
	state, exists, err := o.Store.Load()
	if err != nil || !exists {
		return "", false
	}
	if time.Since(time.UnixMilli(state.Public.UpdatedAtMs)) > recentThreshold {
		return "", false
	}
	entry, ok := state.Templates[templateName]
	if !ok || entry.Filename == "" {
		return "", false
	}
	return entry.Filename, true
}

// computeHolidays fetches the previous, current, and next year's raw
// holiday documents, tolerating per-year fetch failures, then merges in
// upcoming lunar and solar festivals. A total failure yields an empty
// list rather than blocking the pipeline.
func (o *Orchestrator) computeHolidays(businessToday time.Time) []holiday.Holiday {
	year := businessToday.Year()
	var raw []holiday.RawDay
	for _, y := range []int{year - 1, year, year + 1} {
		doc, err := o.HolidayFetcher.Fetch(y, year)
		if err != nil {
			o.log.Warn().Err(err).Int("year", y).Msg("holiday document unavailable")
			continue
		}
		for _, d := range doc.Days {
			date, err := time.ParseInLocation("2006-01-02", d.Date, businessToday.Location())
			if err != nil {
				continue
			}
			raw = append(raw, holiday.RawDay{Name: d.Name, Date: date, IsOffDay: d.IsOffDay})
		}
	}

	kept := holiday.Aggregate(raw, businessToday)
	kept = holiday.MergeFestivals(kept, toFestivals(lunar.UpcomingLunarFestivals(businessToday)))
	kept = holiday.MergeFestivals(kept, toFestivals(lunar.UpcomingSolarFestivals(businessToday)))
	return kept
}

func toFestivals(fs []lunar.Festival) []holiday.Festival {
	out := make([]holiday.Festival, 0, len(fs))
	for _, f := range fs {
		out = append(out, holiday.Festival{Name: f.Name, Date: f.Date, DaysLeft: f.DaysLeft})
	}
	return out
}

// scheduleCleanup launches the cache cleaner detached from the critical
// path; its result is logged only.
func (o *Orchestrator) scheduleCleanup() {
	if o.Cleaner == nil {
		return
	}
	go func() {
		if _, err := o.Cleaner.Cleanup(o.Clock.BusinessToday(), o.RetainDays); err != nil {
			o.log.Warn().Err(err).Msg("fire-and-forget cache cleanup failed")
		}
	}()
}

// recordAudit appends a terminal-state audit record detached from the
// critical path; a failure to append must never affect the caller.
func (o *Orchestrator) recordAudit(templateName string, trigger audit.Trigger, startedAt time.Time, outcome audit.Outcome, filename, errorCode string) {
	if o.Audit == nil {
		return
	}
	record := audit.Record{
		Template: templateName, Trigger: trigger,
		StartedAtMs: startedAt.UnixMilli(), FinishedAtMs: time.Now().UnixMilli(),
		Outcome: outcome, Filename: filename, ErrorCode: errorCode,
	}
	go func() {
		_ = o.Audit.Append(record)
	}()
}

// buildPublic stamps the shared state fields. date must carry the business
// day, never the display day, so it always agrees with the daily cache's
// validation key; the display timezone is used only for the user-visible
// updated timestamps.
func buildPublic(ctx calctx.Context, businessToday, now time.Time) statestore.Public {
	return statestore.Public{
		Date:            businessToday.Format("2006-01-02"),
		Updated:         now.Format(time.RFC3339),
		UpdatedAtMs:     now.UnixMilli(),
		Weekday:         ctx.Date.WeekCN,
		LunarDate:       ctx.Date.LunarDate,
		FunContent:      ctx.History,
		IsCrazyThursday: businessToday.Weekday() == time.Thursday,
		KfcContent:      ctx.KfcContent,
	}
}

func templateData(ctx calctx.Context) map[string]any {
	return map[string]any{
		"date_info":     ctx.Date,
		"weekend":       ctx.Weekend,
		"solar_term":    ctx.SolarTerm,
		"guide":         ctx.Guide,
		"news_list":     ctx.NewsList,
		"news_meta":     ctx.NewsMeta,
		"holidays":      ctx.Holidays,
		"kfc_content":   ctx.KfcContent,
		"stock_indices": ctx.StockIndices,
	}
}

// errorCodeOf extracts the wire error code from err if it (or something it
// wraps) is an *apperr.Error, else returns a generic internal code.
func errorCodeOf(err error) string {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return string(appErr.Code)
	}
	return string(apperr.CodeGenerationFailed)
}
