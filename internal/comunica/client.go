package comunica

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"consultaprocessual/internal/caserecord/model"
	"consultaprocessual/pkg/logger"
)

const (
	DefaultBaseURL  = "https://comunicaapi.pje.jus.br/api/v1"
	DefaultPageSize = 100
	DefaultMaxPages = 5

	maxErrorRunes = 200
)

// Pacer blocks until the next outbound request may be sent.
type Pacer interface {
	Wait(ctx context.Context) error
}

type noPacer struct{}

func (noPacer) Wait(ctx context.Context) error { return ctx.Err() }

// Client queries the Comunica PJe public API. It needs no authentication.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	pacer       Pacer
	userAgent   string
	pageSize    int
	maxPages    int
	verifyCheck bool
}

type Option func(*clientConfig) error

type clientConfig struct {
	httpClient  *http.Client
	timeout     time.Duration
	pacer       Pacer
	userAgent   string
	pageSize    int
	maxPages    int
	verifyCheck bool
}

func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("comunica: invalid base url: %w", err)
	}

	cfg := &clientConfig{
		pacer:     noPacer{},
		userAgent: "consultaprocessual/1.0",
		pageSize:  DefaultPageSize,
		maxPages:  DefaultMaxPages,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	httpClient := &http.Client{}
	if cfg.httpClient != nil {
		c := *cfg.httpClient
		httpClient = &c
	}
	if cfg.timeout > 0 {
		httpClient.Timeout = cfg.timeout
	}

	return &Client{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		httpClient:  httpClient,
		pacer:       cfg.pacer,
		userAgent:   cfg.userAgent,
		pageSize:    cfg.pageSize,
		maxPages:    cfg.maxPages,
		verifyCheck: cfg.verifyCheck,
	}, nil
}

func WithHTTPClient(c *http.Client) Option {
	return func(cfg *clientConfig) error {
		cfg.httpClient = c
		return nil
	}
}

func WithTimeout(d time.Duration) Option {
	return func(cfg *clientConfig) error {
		cfg.timeout = d
		return nil
	}
}

// WithPacer paces every HTTP request, including each page of a lookup.
func WithPacer(p Pacer) Option {
	return func(cfg *clientConfig) error {
		if p == nil {
			return errors.New("comunica: nil pacer")
		}
		cfg.pacer = p
		return nil
	}
}

func WithUserAgent(ua string) Option {
	return func(cfg *clientConfig) error {
		if ua != "" {
			cfg.userAgent = ua
		}
		return nil
	}
}

func WithPaging(pageSize, maxPages int) Option {
	return func(cfg *clientConfig) error {
		if pageSize < 1 || maxPages < 1 {
			return fmt.Errorf("comunica: page size and max pages must be positive, got %d and %d", pageSize, maxPages)
		}
		cfg.pageSize = pageSize
		cfg.maxPages = maxPages
		return nil
	}
}

// WithCheckDigitVerification rejects numbers whose check digits do not match.
func WithCheckDigitVerification(on bool) Option {
	return func(cfg *clientConfig) error {
		cfg.verifyCheck = on
		return nil
	}
}

type LookupResult struct {
	// Publications newer than the requested date, oldest first.
	Publications []model.Publication
	// Total is the number of publications the API holds for the case.
	Total              int
	RateLimitRemaining int
	RateLimitLimit     int
}

type lawyerItem struct {
	Advogado struct {
		Nome      string `json:"nome"`
		NumeroOAB string `json:"numero_oab"`
		UFOAB     string `json:"uf_oab"`
	} `json:"advogado"`
}

type recipientItem struct {
	Nome string `json:"nome"`
	Polo string `json:"polo"`
}

type item struct {
	ID                      int64           `json:"id"`
	DataDisponibilizacao    string          `json:"data_disponibilizacao"`
	DataDisponibilizacaoAlt string          `json:"datadisponibilizacao"`
	TipoComunicacao         string          `json:"tipoComunicacao"`
	SiglaTribunal           string          `json:"siglaTribunal"`
	NomeOrgao               string          `json:"nomeOrgao"`
	NomeClasse              string          `json:"nomeClasse"`
	Texto                   string          `json:"texto"`
	NumeroProcesso          string          `json:"numero_processo"`
	NumeroComMascara        string          `json:"numeroprocessocommascara"`
	MeioCompleto            string          `json:"meiocompleto"`
	Meio                    string          `json:"meio"`
	Hash                    string          `json:"hash"`
	Destinatarios           []recipientItem `json:"destinatarios"`
	DestinatarioAdvogados   []lawyerItem    `json:"destinatarioadvogados"`
}

type page struct {
	Count int    `json:"count"`
	Items []item `json:"items"`
}

// Lookup returns the publications of caseNumber dated strictly after since.
// A zero since returns every publication found within the page limit.
func (c *Client) Lookup(ctx context.Context, caseNumber string, since time.Time) (*LookupResult, error) {
	n, err := ParseCaseNumber(caseNumber)
	if err != nil {
		return nil, err
	}
	if c.verifyCheck && !n.ValidCheck() {
		return nil, &InvalidCaseNumberError{Number: caseNumber, Reason: fmt.Sprintf("check digits %s, expected %s", n.Check, n.ExpectedCheck())}
	}

	result := &LookupResult{RateLimitRemaining: -1, RateLimitLimit: -1}
	for p := 1; p <= c.maxPages; p++ {
		q := url.Values{
			"numeroProcesso": {n.Digits()},
			"pagina":         {strconv.Itoa(p)},
			"itensPorPagina": {strconv.Itoa(c.pageSize)},
		}
		var body page
		hdr, err := c.get(ctx, "/comunicacao?"+q.Encode(), caseNumber, &body)
		if err != nil {
			return nil, err
		}
		result.RateLimitRemaining = headerInt(hdr, "x-ratelimit-remaining", result.RateLimitRemaining)
		result.RateLimitLimit = headerInt(hdr, "x-ratelimit-limit", result.RateLimitLimit)
		if body.Count > result.Total {
			result.Total = body.Count
		}

		for _, it := range body.Items {
			pub := it.publication()
			if pub.Date.IsZero() {
				logger.Sugar.Warnw("Publication without a readable date", "case", caseNumber, "id", it.ID)
			}
			if since.IsZero() || pub.Date.After(since) {
				result.Publications = append(result.Publications, pub)
			}
		}

		fetched := (p-1)*c.pageSize + len(body.Items)
		if len(body.Items) < c.pageSize || (body.Count > 0 && fetched >= body.Count) {
			break
		}
		if p == c.maxPages {
			logger.Sugar.Warnw("Stopped paging at the configured limit", "case", caseNumber, "pages", p, "total", body.Count)
		}
	}
	if result.Total == 0 && len(result.Publications) > 0 {
		result.Total = len(result.Publications)
	}

	sort.SliceStable(result.Publications, func(i, j int) bool {
		a, b := result.Publications[i], result.Publications[j]
		if a.Date.Equal(b.Date) {
			return a.ID < b.ID
		}
		return a.Date.Before(b.Date)
	})

	if result.RateLimitRemaining >= 0 {
		logger.Sugar.Debugw("Lookup rate limit", "case", caseNumber,
			"remaining", result.RateLimitRemaining, "limit", result.RateLimitLimit)
		if result.RateLimitRemaining < 5 {
			logger.Sugar.Warnf("Comunica rate limit almost exhausted: %d requests left", result.RateLimitRemaining)
		}
	}
	return result, nil
}

func (it item) publication() model.Publication {
	pub := model.Publication{
		ID:         it.ID,
		CaseNumber: firstNonEmpty(it.NumeroProcesso, it.NumeroComMascara),
		Date:       parseAPIDate(firstNonEmpty(it.DataDisponibilizacao, it.DataDisponibilizacaoAlt)),
		Type:       strings.TrimSpace(it.TipoComunicacao),
		Court:      it.SiglaTribunal,
		Organ:      it.NomeOrgao,
		Class:      it.NomeClasse,
		Text:       CleanText(it.Texto),
		Medium:     firstNonEmpty(it.MeioCompleto, it.Meio),
		Hash:       it.Hash,
	}
	for _, l := range it.DestinatarioAdvogados {
		if l.Advogado.Nome == "" && l.Advogado.NumeroOAB == "" {
			continue
		}
		pub.Lawyers = append(pub.Lawyers, model.Lawyer{Name: l.Advogado.Nome, OAB: l.Advogado.NumeroOAB, State: l.Advogado.UFOAB})
	}
	for _, r := range it.Destinatarios {
		pub.Recipients = append(pub.Recipients, model.Recipient{Name: r.Nome, Pole: r.Polo})
	}
	return pub
}

// parseAPIDate keeps only the calendar day, in UTC.
func parseAPIDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if len(s) < 10 {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02", s[:10])
	if err != nil {
		return time.Time{}
	}
	return t
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func headerInt(h http.Header, key string, fallback int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(h.Get(key))); err == nil {
		return v
	}
	return fallback
}

type Court struct {
	Acronym string `json:"sigla"`
	Name    string `json:"nome"`
}

// Courts lists the courts the API publishes for. The endpoint nests courts
// by state, so every object carrying a "sigla" is collected.
func (c *Client) Courts(ctx context.Context) ([]Court, error) {
	var raw any
	if _, err := c.get(ctx, "/comunicacao/tribunal", "", &raw); err != nil {
		return nil, err
	}
	var courts []Court
	seen := make(map[string]bool)
	var walk func(v any)
	walk = func(v any) {
		switch t := v.(type) {
		case []any:
			for _, e := range t {
				walk(e)
			}
		case map[string]any:
			if sigla, ok := t["sigla"].(string); ok && sigla != "" && !seen[sigla] {
				seen[sigla] = true
				name, _ := t["nome"].(string)
				courts = append(courts, Court{Acronym: sigla, Name: name})
			}
			for _, e := range t {
				walk(e)
			}
		}
	}
	walk(raw)
	sort.Slice(courts, func(i, j int) bool { return courts[i].Acronym < courts[j].Acronym })
	return courts, nil
}

func (c *Client) get(ctx context.Context, path, caseNumber string, dst any) (http.Header, error) {
	if err := c.pacer.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("comunica: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	logger.Sugar.Debugw("Comunica request", "url", req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &RetryableLookupError{Number: caseNumber, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<12))
		msg := strings.TrimSpace(string(raw))
		if r := []rune(msg); len(r) > maxErrorRunes {
			msg = string(r[:maxErrorRunes])
		}
		if msg == "" {
			msg = resp.Status
		}
		switch {
		case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
			return resp.Header, &InvalidCaseNumberError{Number: caseNumber, Reason: fmt.Sprintf("rejected by the API (HTTP %d): %s", resp.StatusCode, msg)}
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return resp.Header, &RetryableLookupError{Number: caseNumber, StatusCode: resp.StatusCode, Err: errors.New(msg)}
		}
		return resp.Header, &APIError{operation: "comunica " + strings.SplitN(path, "?", 2)[0], statusCode: resp.StatusCode, message: msg}
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return resp.Header, &RetryableLookupError{Number: caseNumber, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return resp.Header, nil
}
