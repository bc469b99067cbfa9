package summarizer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"consultaprocessual/config"
	"consultaprocessual/internal/caserecord/model"
	"consultaprocessual/pkg/logger"

	"google.golang.org/genai"
)

// Gemini summarizes with Google's hosted Gemini models.
type Gemini struct {
	client          *genai.Client
	model           string
	maxPublications int
}

func NewGemini(ctx context.Context, cfg config.AIConfig) (*Gemini, error) {
	if cfg.Gemini.APIKey == "" {
		return nil, config.Errorf("ai.gemini.api_key is required for the gemini provider")
	}
	name := cfg.Gemini.Model
	if name == "" {
		name = "gemini-2.0-flash"
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.Gemini.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if t := cfg.Timeout.Std(); t > 0 {
		cc.HTTPClient = &http.Client{Timeout: t}
	}
	if cfg.Gemini.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.Gemini.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &Gemini{client: client, model: name, maxPublications: cfg.MaxPublications}, nil
}

func (g *Gemini) Name() string { return "gemini:" + g.model }

func (g *Gemini) Summarize(ctx context.Context, pubs []model.Publication) (Analysis, error) {
	if len(pubs) == 0 {
		return emptyAnalysis, nil
	}
	prompt := buildPrompt(geminiPrompt, pubs, g.maxPublications)

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0.1),
		MaxOutputTokens:  2000,
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return Analysis{}, &SummarizationError{Provider: g.Name(), Err: err}
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return Analysis{}, &SummarizationError{Provider: g.Name(), Err: errors.New("response has no text")}
	}
	logger.Sugar.Debugw("Gemini response", "model", g.model, "chars", len(text))
	return finish(g.Name(), text)
}

// HealthCheck sends a tiny prompt to confirm the key and model work.
func (g *Gemini) HealthCheck(ctx context.Context) error {
	_, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text("Responda apenas: OK"), &genai.GenerateContentConfig{
		MaxOutputTokens: 10,
	})
	if err != nil {
		return fmt.Errorf("gemini model %s: %w", g.model, err)
	}
	return nil
}
