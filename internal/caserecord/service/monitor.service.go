package service

import (
	"context"
	"fmt"
	"time"

	"consultaprocessual/internal/caserecord/model"
	"consultaprocessual/internal/comunica"
	"consultaprocessual/internal/summarizer"
	"consultaprocessual/pkg/logger"
)

type CaseSource interface {
	ResolveSheets(ctx context.Context, filter string, configured []string) ([]string, bool, error)
	ListCases(ctx context.Context, sheets []string, explicit bool) ([]model.CaseRecord, error)
}

type CaseWriter interface {
	Apply(ctx context.Context, rec model.CaseRecord, upd model.Update) (bool, error)
}

type PublicationLookup interface {
	Lookup(ctx context.Context, caseNumber string, since time.Time) (*comunica.LookupResult, error)
}

// EventSink receives run progress. Publish must not block for long.
type EventSink interface {
	Publish(ev model.Event)
}

type Options struct {
	// Sheet restricts the run to one sheet.
	Sheet string
	// Sheets is the configured sheet order, used when Sheet is empty.
	Sheets     []string
	DryRun     bool
	SkipAI     bool
	MaxRetries int
}

type MonitorService struct {
	Source     CaseSource
	Writer     CaseWriter
	Lookup     PublicationLookup
	Summarizer summarizer.Summarizer
	Sink       EventSink

	now func() time.Time
}

func NewMonitorService(source CaseSource, writer CaseWriter, lookup PublicationLookup, sum summarizer.Summarizer, sink EventSink) *MonitorService {
	return &MonitorService{
		Source:     source,
		Writer:     writer,
		Lookup:     lookup,
		Summarizer: sum,
		Sink:       sink,
		now:        time.Now,
	}
}

// Run processes every selected case in sheet then row order, one at a time.
// Per-case failures end up in the report; only setup failures (sheet
// selection, missing columns) and cancellation return an error.
func (s *MonitorService) Run(ctx context.Context, opts Options) (*model.Report, error) {
	report := model.NewReport(s.now(), opts.Sheet, opts.DryRun, opts.SkipAI)

	// 1. Resolve and read every sheet up front so a bad header aborts before any lookup.
	sheets, explicit, err := s.Source.ResolveSheets(ctx, opts.Sheet, opts.Sheets)
	if err != nil {
		return report, err
	}
	cases, err := s.Source.ListCases(ctx, sheets, explicit)
	if err != nil {
		return report, err
	}
	logger.Sugar.Infow("Cases loaded", "runId", report.RunID, "sheets", sheets, "cases", len(cases),
		"dryRun", opts.DryRun, "skipAI", opts.SkipAI)
	s.publish(model.Event{Type: model.EventStarted, RunID: report.RunID, Report: report.Clone()})

	// 2. One case at a time; the lookup client paces the external calls.
	firstRow := make(map[string]int, len(cases))
	for i, rec := range cases {
		if err := ctx.Err(); err != nil {
			report.FinishedAt = s.now()
			return report, err
		}

		var res model.RunResult
		if row, dup := firstRow[rec.Key()]; dup {
			res = model.RunResult{
				Sheet:      rec.Sheet,
				Row:        rec.Row,
				CaseNumber: rec.CaseNumber,
				Outcome:    model.OutcomeError,
				Detail:     fmt.Sprintf("duplicate of row %d, skipped", row),
			}
			logger.Sugar.Warnw("Duplicate case row", "sheet", rec.Sheet, "row", rec.Row, "case", rec.CaseNumber, "firstRow", row)
		} else {
			firstRow[rec.Key()] = rec.Row
			logger.Sugar.Infow(fmt.Sprintf("[%d/%d] Checking case", i+1, len(cases)), "sheet", rec.Sheet, "row", rec.Row, "case", rec.CaseNumber)
			res = s.processCase(ctx, rec, opts)
		}

		report.Add(res)
		s.publish(model.Event{Type: model.EventResult, RunID: report.RunID, Result: &res, Counts: report.Counts()})
	}

	// 3. Close the report.
	report.FinishedAt = s.now()
	counts := report.Counts()
	logger.Sugar.Infow("Run finished", "runId", report.RunID, "total", counts.Total, "updated", counts.Updated,
		"unchanged", counts.Unchanged, "failed", counts.Failed, "elapsed", report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	s.publish(model.Event{Type: model.EventFinished, RunID: report.RunID, Counts: counts, Report: report.Clone()})
	return report, nil
}

func (s *MonitorService) processCase(ctx context.Context, rec model.CaseRecord, opts Options) model.RunResult {
	log := logger.Sugar.With("sheet", rec.Sheet, "row", rec.Row, "case", rec.CaseNumber)
	res := model.RunResult{Sheet: rec.Sheet, Row: rec.Row, CaseNumber: rec.CaseNumber}

	found, err := s.lookupWithRetry(ctx, rec, opts.MaxRetries)
	if err != nil {
		log.Errorw("Lookup failed", "error", err)
		res.Outcome = model.OutcomeError
		res.Detail = err.Error()
		return res
	}

	upd := model.Update{LastChecked: s.now()}
	pubs := found.Publications
	if len(pubs) == 0 {
		res.Outcome = model.OutcomeNoNewPublication
		if found.Total == 0 && rec.CurrentStatus == "" {
			upd.Status = model.StatusNoPublications
		}
		log.Infow("No new publications", "total", found.Total)
	} else {
		newest := pubs[len(pubs)-1]
		res.Outcome = model.OutcomeUpdated
		res.NewPublications = len(pubs)
		upd.Status = model.StatusUpdated
		upd.PublicationDate = newest.Date
		upd.PublicationType = newest.Type
		log.Infow("New publications", "count", len(pubs), "latest", newest.Date.Format("2006-01-02"), "type", newest.Type)

		if !opts.SkipAI && s.Summarizer != nil {
			analysis, err := s.Summarizer.Summarize(ctx, pubs)
			if err != nil {
				log.Warnw("Summary unavailable, keeping the previous one", "error", err)
				res.Detail = err.Error()
			} else {
				upd.Summary = analysis.Summary
				if analysis.Situation != "" {
					upd.Status = analysis.Situation
				}
				log.Infow("Summarized", "situation", analysis.Situation, "deadline", analysis.Deadline)
			}
		}
	}

	res.Update = &upd
	written, err := s.Writer.Apply(ctx, rec, upd)
	if err != nil {
		log.Errorw("Write failed", "error", err)
		res.Outcome = model.OutcomeError
		res.Detail = err.Error()
		return res
	}
	res.Written = written
	return res
}

// lookupWithRetry retries only RetryableLookupError, up to maxRetries extra
// attempts. Each attempt waits on the lookup client's pacer.
func (s *MonitorService) lookupWithRetry(ctx context.Context, rec model.CaseRecord, maxRetries int) (*comunica.LookupResult, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		found, err := s.Lookup.Lookup(ctx, rec.CaseNumber, rec.LastPublicationDate)
		if err == nil {
			return found, nil
		}
		lastErr = err
		if !comunica.IsRetryable(err) || ctx.Err() != nil {
			return nil, err
		}
		if attempt < maxRetries {
			logger.Sugar.Warnw("Lookup failed, retrying", "sheet", rec.Sheet, "row", rec.Row, "case", rec.CaseNumber,
				"attempt", attempt+1, "error", err)
		}
	}
	return nil, fmt.Errorf("giving up after %d attempts: %w", maxRetries+1, lastErr)
}

func (s *MonitorService) publish(ev model.Event) {
	if s.Sink != nil {
		s.Sink.Publish(ev)
	}
}
