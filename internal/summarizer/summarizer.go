package summarizer

import (
	"context"
	"errors"
	"fmt"

	"consultaprocessual/config"
	"consultaprocessual/internal/caserecord/model"
)

// Analysis is what a backend extracted from a case's latest publications.
type Analysis struct {
	Summary    string `json:"resumo"`
	Situation  string `json:"situacao"`
	Deadline   string `json:"prazo,omitempty"`
	NextAction string `json:"proxima_acao,omitempty"`
}

// Summarizer turns the new publications of one case into an Analysis.
type Summarizer interface {
	Name() string
	Summarize(ctx context.Context, pubs []model.Publication) (Analysis, error)
}

// HealthChecker is implemented by backends that can verify they are reachable
// and configured before a run.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// SummarizationError is a backend failure. It never aborts a run.
type SummarizationError struct {
	Provider string
	Err      error
}

func (e *SummarizationError) Error() string {
	return fmt.Sprintf("summarize with %s: %v", e.Provider, e.Err)
}

func (e *SummarizationError) Unwrap() error { return e.Err }

func IsSummarizationError(err error) bool {
	var s *SummarizationError
	return errors.As(err, &s)
}

// New builds the backend named by cfg.Provider.
func New(ctx context.Context, cfg config.AIConfig) (Summarizer, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGemini(ctx, cfg)
	case config.ProviderOllama:
		return NewOllama(cfg), nil
	}
	return nil, config.Errorf("unknown AI provider %q (use %s or %s)", cfg.Provider, config.ProviderGemini, config.ProviderOllama)
}

// finish validates a parsed response.
func finish(provider, raw string) (Analysis, error) {
	a, warning := ParseAnalysis(raw)
	if warning != "" {
		logWarning(provider, warning)
	}
	a.Summary = CleanSummary(a.Summary)
	if a.Summary == "" {
		return Analysis{}, &SummarizationError{Provider: provider, Err: errors.New("response has no summary")}
	}
	return a, nil
}

var emptyAnalysis = Analysis{Summary: "Sem publicações para analisar", Situation: "NORMAL"}
