package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"consultaprocessual/config"
	"consultaprocessual/internal/caserecord/model"
)

// Ollama summarizes with a model served by a local Ollama instance.
type Ollama struct {
	endpoint        string
	model           string
	client          *http.Client
	maxPublications int
}

func NewOllama(cfg config.AIConfig) *Ollama {
	endpoint := strings.TrimSuffix(cfg.Ollama.URL, "/")
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	timeout := cfg.Timeout.Std()
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Ollama{
		endpoint:        endpoint,
		model:           cfg.Ollama.Model,
		client:          &http.Client{Timeout: timeout},
		maxPublications: cfg.MaxPublications,
	}
}

func (o *Ollama) Name() string { return "ollama:" + o.model }

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

func (o *Ollama) Summarize(ctx context.Context, pubs []model.Publication) (Analysis, error) {
	if len(pubs) == 0 {
		return emptyAnalysis, nil
	}
	body, err := json.Marshal(ollamaGenerateRequest{
		Model:   o.model,
		Prompt:  buildPrompt(ollamaPrompt, pubs, o.maxPublications),
		Stream:  false,
		Options: ollamaOptions{Temperature: 0.1, NumPredict: 500},
	})
	if err != nil {
		return Analysis{}, &SummarizationError{Provider: o.Name(), Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return Analysis{}, &SummarizationError{Provider: o.Name(), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return Analysis{}, &SummarizationError{Provider: o.Name(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<12))
		return Analysis{}, &SummarizationError{Provider: o.Name(), Err: fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))}
	}

	var out ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Analysis{}, &SummarizationError{Provider: o.Name(), Err: fmt.Errorf("decode response: %w", err)}
	}
	return finish(o.Name(), out.Response)
}

// HealthCheck confirms the server answers and has the configured model.
// Names match when either contains the other, so "llama3.1" finds
// "llama3.1:8b-instruct-q4_K_M".
func (o *Ollama) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.endpoint+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("cannot reach Ollama at %s: %w", o.endpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama at %s answered HTTP %d", o.endpoint, resp.StatusCode)
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return fmt.Errorf("decode model list: %w", err)
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		if m.Name != "" && (strings.Contains(m.Name, o.model) || strings.Contains(o.model, m.Name)) {
			return nil
		}
		names = append(names, m.Name)
	}
	return fmt.Errorf("model %q not found in Ollama (available: %s)", o.model, strings.Join(names, ", "))
}
