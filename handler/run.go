package handlers

import (
	"encoding/json"
	"net/http"

	"consultaprocessual/internal/caserecord/model"
)

// Snapshots is implemented by socket.Hub.
type Snapshots interface {
	Snapshot(runID string) (*model.Report, bool)
}

type RunHandler struct {
	Runs Snapshots
}

type RunResponse struct {
	Report *model.Report `json:"report"`
	Counts model.Counts  `json:"counts"`
}

type ResultsResponse struct {
	RunID   string            `json:"runId"`
	Outcome string            `json:"outcome,omitempty"`
	Results []model.RunResult `json:"results"`
}

func NewRunHandler(runs Snapshots) *RunHandler {
	return &RunHandler{Runs: runs}
}

// GetRun returns the report of ?runId=, or of the current run.
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	report, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, RunResponse{Report: report, Counts: report.Counts()})
}

// GetResults lists the run's results, optionally filtered by ?outcome=.
func (h *RunHandler) GetResults(w http.ResponseWriter, r *http.Request) {
	report, ok := h.lookup(w, r)
	if !ok {
		return
	}

	outcome := r.URL.Query().Get("outcome")
	resp := ResultsResponse{RunID: report.RunID, Outcome: outcome, Results: report.Results}
	if outcome != "" {
		switch model.Outcome(outcome) {
		case model.OutcomeUpdated, model.OutcomeNoNewPublication, model.OutcomeError:
			resp.Results = report.Filter(model.Outcome(outcome))
		default:
			http.Error(w, "Invalid outcome. Must be updated, no_new_publication, or error", http.StatusBadRequest)
			return
		}
	}
	writeJSON(w, resp)
}

func (h *RunHandler) lookup(w http.ResponseWriter, r *http.Request) (*model.Report, bool) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return nil, false
	}
	report, ok := h.Runs.Snapshot(r.URL.Query().Get("runId"))
	if !ok {
		http.Error(w, "Run not found", http.StatusNotFound)
		return nil, false
	}
	return report, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
