package model

import (
	"time"

	"github.com/google/uuid"
)

type Report struct {
	RunID      string      `json:"run_id"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at,omitempty"`
	Sheet      string      `json:"sheet,omitempty"`
	DryRun     bool        `json:"dry_run"`
	SkipAI     bool        `json:"skip_ai"`
	Results    []RunResult `json:"results"`
}

type Counts struct {
	Total     int `json:"total"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
}

func NewReport(startedAt time.Time, sheet string, dryRun, skipAI bool) *Report {
	return &Report{
		RunID:     uuid.NewString(),
		StartedAt: startedAt,
		Sheet:     sheet,
		DryRun:    dryRun,
		SkipAI:    skipAI,
		Results:   []RunResult{},
	}
}

func (r *Report) Add(res RunResult) {
	r.Results = append(r.Results, res)
}

func (r *Report) Counts() Counts {
	c := Counts{Total: len(r.Results)}
	for _, res := range r.Results {
		switch res.Outcome {
		case OutcomeUpdated:
			c.Updated++
		case OutcomeNoNewPublication:
			c.Unchanged++
		case OutcomeError:
			c.Failed++
		}
	}
	return c
}

// AllFailed is true when at least one case ran and none succeeded.
func (r *Report) AllFailed() bool {
	c := r.Counts()
	return c.Total > 0 && c.Failed == c.Total
}

func (r *Report) Filter(outcome Outcome) []RunResult {
	out := []RunResult{}
	for _, res := range r.Results {
		if res.Outcome == outcome {
			out = append(out, res)
		}
	}
	return out
}

// Clone returns a deep enough copy to hand to another goroutine.
func (r *Report) Clone() *Report {
	cp := *r
	cp.Results = append([]RunResult(nil), r.Results...)
	return &cp
}

type EventType string

const (
	EventStarted  EventType = "STARTED"
	EventResult   EventType = "RESULT"
	EventFinished EventType = "FINISHED"
)

// Event is published while a run progresses.
type Event struct {
	Type   EventType  `json:"type"`
	RunID  string     `json:"runId"`
	Result *RunResult `json:"result,omitempty"`
	Counts Counts     `json:"counts"`
	Report *Report    `json:"report,omitempty"`
}
