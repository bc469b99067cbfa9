package comunica

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingPacer struct{ calls int32 }

func (p *countingPacer) Wait(ctx context.Context) error {
	atomic.AddInt32(&p.calls, 1)
	return ctx.Err()
}

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) (*Client, *countingPacer) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	pacer := &countingPacer{}
	c, err := New(server.URL, append([]Option{WithHTTPClient(server.Client()), WithPacer(pacer)}, opts...)...)
	require.NoError(t, err)
	return c, pacer
}

const singlePublication = `{
  "status": "success",
  "count": 2,
  "items": [
    {
      "id": 202,
      "data_disponibilizacao": "2024-02-01",
      "tipoComunicacao": "Intimação",
      "siglaTribunal": "TJSP",
      "nomeOrgao": "1ª Vara Cível",
      "nomeClasse": "PROCEDIMENTO COMUM CÍVEL",
      "texto": "<p>Fica a parte autora intimada&nbsp;a se manifestar.</p>",
      "numeroprocessocommascara": "1234567-89.2024.8.26.0100",
      "meiocompleto": "Diário de Justiça Eletrônico Nacional",
      "hash": "abc",
      "destinatarios": [{"nome": "FULANO DE TAL", "polo": "A"}],
      "destinatarioadvogados": [{"advogado": {"nome": "Beltrana", "numero_oab": "12345", "uf_oab": "SP"}}]
    },
    {
      "id": 101,
      "datadisponibilizacao": "2023-12-15T00:00:00",
      "tipoComunicacao": "Edital",
      "texto": "antigo",
      "numero_processo": "12345678920248260100"
    }
  ]
}`

func TestLookupReturnsNewPublicationsOldestFirst(t *testing.T) {
	c, pacer := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/comunicacao", r.URL.Path)
		assert.Equal(t, "12345678920248260100", r.URL.Query().Get("numeroProcesso"))
		assert.Equal(t, "1", r.URL.Query().Get("pagina"))
		assert.Equal(t, "100", r.URL.Query().Get("itensPorPagina"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("x-ratelimit-remaining", "19")
		w.Header().Set("x-ratelimit-limit", "20")
		w.Write([]byte(singlePublication))
	})

	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	res, err := c.Lookup(context.Background(), "1234567-89.2024.8.26.0100", since)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 19, res.RateLimitRemaining)
	assert.Equal(t, 20, res.RateLimitLimit)
	require.Len(t, res.Publications, 1)

	pub := res.Publications[0]
	assert.Equal(t, int64(202), pub.ID)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), pub.Date)
	assert.Equal(t, "Intimação", pub.Type)
	assert.Equal(t, "Fica a parte autora intimada a se manifestar.", pub.Text)
	assert.Equal(t, "Diário de Justiça Eletrônico Nacional", pub.Medium)
	require.Len(t, pub.Lawyers, 1)
	assert.Equal(t, "SP", pub.Lawyers[0].State)
	assert.EqualValues(t, 1, atomic.LoadInt32(&pacer.calls))

	all, err := c.Lookup(context.Background(), "12345678920248260100", time.Time{})
	require.NoError(t, err)
	require.Len(t, all.Publications, 2)
	assert.Equal(t, int64(101), all.Publications[0].ID, "oldest first")
	assert.Equal(t, "12345678920248260100", all.Publications[0].CaseNumber)
}

func TestLookupPublicationOnSinceDateIsNotNew(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(singlePublication))
	})

	res, err := c.Lookup(context.Background(), "1234567-89.2024.8.26.0100", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, res.Publications)
	assert.Equal(t, 2, res.Total)
}

func TestLookupPaginatesUntilShortPage(t *testing.T) {
	var requests int32
	c, pacer := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		p, _ := strconv.Atoi(r.URL.Query().Get("pagina"))
		n := 2
		if p == 2 {
			n = 1
		}
		items := ""
		for i := 0; i < n; i++ {
			if i > 0 {
				items += ","
			}
			items += fmt.Sprintf(`{"id":%d,"data_disponibilizacao":"2024-03-%02d","tipoComunicacao":"Intimação"}`, p*10+i, p*10+i)
		}
		fmt.Fprintf(w, `{"count":0,"items":[%s]}`, items)
	}, WithPaging(2, 5))

	res, err := c.Lookup(context.Background(), "1234567-89.2024.8.26.0100", time.Time{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&requests))
	assert.EqualValues(t, 2, atomic.LoadInt32(&pacer.calls), "each page is paced")
	assert.Len(t, res.Publications, 3)
	assert.Equal(t, 3, res.Total)
}

func TestLookupStopsAtMaxPages(t *testing.T) {
	var requests int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&requests, 1)
		fmt.Fprintf(w, `{"count":100,"items":[{"id":%d,"data_disponibilizacao":"2024-03-01"}]}`, n)
	}, WithPaging(1, 3))

	res, err := c.Lookup(context.Background(), "1234567-89.2024.8.26.0100", time.Time{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt32(&requests))
	assert.Len(t, res.Publications, 3)
	assert.Equal(t, 100, res.Total)
}

func TestLookupMalformedNumberMakesNoRequest(t *testing.T) {
	var requests int32
	c, pacer := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
	})

	_, err := c.Lookup(context.Background(), "0000000-00.0000.0.00.0000", time.Time{})
	require.Error(t, err)
	assert.True(t, IsInvalidCaseNumber(err))
	assert.False(t, IsRetryable(err))
	assert.Zero(t, atomic.LoadInt32(&requests))
	assert.Zero(t, atomic.LoadInt32(&pacer.calls))
}

func TestLookupCheckDigitVerification(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"count":0,"items":[]}`))
	}, WithCheckDigitVerification(true))

	_, err := c.Lookup(context.Background(), "1234567-89.2024.8.26.0100", time.Time{})
	assert.True(t, IsInvalidCaseNumber(err))

	_, err = c.Lookup(context.Background(), "0001234-32.2023.5.02.0001", time.Time{})
	assert.NoError(t, err)
}

func TestLookupErrorClassification(t *testing.T) {
	cases := []struct {
		status    int
		retryable bool
		invalid   bool
	}{
		{http.StatusTooManyRequests, true, false},
		{http.StatusBadGateway, true, false},
		{http.StatusServiceUnavailable, true, false},
		{http.StatusUnprocessableEntity, false, true},
		{http.StatusBadRequest, false, true},
		{http.StatusNotFound, false, false},
	}
	for _, tc := range cases {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			w.Write([]byte(`{"message":"erro"}`))
		})
		_, err := c.Lookup(context.Background(), "1234567-89.2024.8.26.0100", time.Time{})
		require.Error(t, err, tc.status)
		assert.Equal(t, tc.retryable, IsRetryable(err), tc.status)
		assert.Equal(t, tc.invalid, IsInvalidCaseNumber(err), tc.status)
		if !tc.retryable && !tc.invalid {
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tc.status, apiErr.StatusCode())
		}
	}
}

func TestLookupErrorBodyTruncatedByRune(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(strings.Repeat("ç", 300)))
	})
	_, err := c.Lookup(context.Background(), "1234567-89.2024.8.26.0100", time.Time{})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, utf8.ValidString(apiErr.message))
	assert.Equal(t, maxErrorRunes, utf8.RuneCountInString(apiErr.message))
}

func TestWithTimeoutLeavesCallerClientAlone(t *testing.T) {
	shared := &http.Client{Timeout: time.Minute}
	c, err := New("http://localhost", WithHTTPClient(shared), WithTimeout(5*time.Second))
	require.NoError(t, err)

	assert.Equal(t, time.Minute, shared.Timeout)
	assert.Equal(t, 5*time.Second, c.httpClient.Timeout)
}

func TestLookupNetworkErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	c, err := New(url)
	require.NoError(t, err)
	_, err = c.Lookup(context.Background(), "1234567-89.2024.8.26.0100", time.Time{})
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestLookupHonoursCancelledContext(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"count":0,"items":[]}`))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Lookup(ctx, "1234567-89.2024.8.26.0100", time.Time{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsRetryable(err))
}

func TestCourts(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/comunicacao/tribunal", r.URL.Path)
		w.Write([]byte(`[
			{"uf":"SP","instituicoes":[{"sigla":"TJSP","nome":"Tribunal de Justiça de São Paulo"},{"sigla":"TRT2","nome":"TRT da 2ª Região"}]},
			{"uf":"RJ","instituicoes":[{"sigla":"TJRJ","nome":"Tribunal de Justiça do Rio de Janeiro"},{"sigla":"TRT2"}]}
		]`))
	})

	courts, err := c.Courts(context.Background())
	require.NoError(t, err)
	require.Len(t, courts, 3)
	assert.Equal(t, Court{Acronym: "TJRJ", Name: "Tribunal de Justiça do Rio de Janeiro"}, courts[0])
	assert.Equal(t, "TJSP", courts[1].Acronym)
	assert.Equal(t, "TRT2", courts[2].Acronym)
}
