package summarizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAnalysisValidJSON(t *testing.T) {
	a, warning := ParseAnalysis(`{"resumo": "ok", "situacao": "urgente", "prazo": null, "proxima_acao": null}`)
	assert.Empty(t, warning)
	assert.Equal(t, Analysis{Summary: "ok", Situation: "URGENTE"}, a)
}

func TestParseAnalysisJSONInsideFencesAndText(t *testing.T) {
	a, warning := ParseAnalysis("Resposta:\n```json\n{\"resumo\": \"ok\", \"situacao\": \"NORMAL\"}\n```")
	assert.Empty(t, warning)
	assert.Equal(t, "ok", a.Summary)
	assert.Equal(t, "NORMAL", a.Situation)
}

func TestParseAnalysisRepairsTrailingCommaAndSmartQuotes(t *testing.T) {
	a, warning := ParseAnalysis(`{"resumo": "ok", "situacao": "NORMAL",}`)
	assert.Empty(t, warning)
	assert.Equal(t, "ok", a.Summary)
	assert.Equal(t, "NORMAL", a.Situation)

	a, warning = ParseAnalysis(`{“resumo”: “Juiz homologou acordo”, “situacao”: “ACORDO”}`)
	assert.Empty(t, warning)
	assert.Equal(t, "Juiz homologou acordo", a.Summary)
	assert.Equal(t, "ACORDO", a.Situation)
}

func TestParseAnalysisBracesInsideStrings(t *testing.T) {
	a, _ := ParseAnalysis(`texto {"resumo": "valor {entre chaves} e \"aspas\"", "situacao": "PROVAS"} resto`)
	assert.Equal(t, `valor {entre chaves} e "aspas"`, a.Summary)
	assert.Equal(t, "PROVAS", a.Situation)
}

func TestParseAnalysisPlainTextFields(t *testing.T) {
	a, warning := ParseAnalysis("Resumo: algo\nSituacao: urgente\nPrazo: 5 dias\nProxima acao: protocolar")
	assert.Empty(t, warning)
	assert.Equal(t, Analysis{Summary: "algo", Situation: "URGENTE", Deadline: "5 dias", NextAction: "protocolar"}, a)

	a, _ = ParseAnalysis("Resumo: sentença publicada\nSituação: sentenca\nPrazo: nenhum")
	assert.Equal(t, "SENTENCA", a.Situation)
	assert.Empty(t, a.Deadline)
}

func TestParseAnalysisFallsBackToRawText(t *testing.T) {
	long := strings.Repeat("á", 300)
	a, warning := ParseAnalysis(long)
	assert.NotEmpty(t, warning)
	assert.Equal(t, 200, len([]rune(a.Summary)))
	assert.Equal(t, "NORMAL", a.Situation)

	a, warning = ParseAnalysis("   ")
	assert.NotEmpty(t, warning)
	assert.Empty(t, a.Summary)
}

func TestParseAnalysisUnrepairableJSON(t *testing.T) {
	a, warning := ParseAnalysis(`{"resumo": ok sem aspas}`)
	assert.Contains(t, warning, "invalid JSON")
	assert.Equal(t, `{"resumo": ok sem aspas}`, a.Summary)
}

func TestCleanSummary(t *testing.T) {
	cases := []struct{ in, want string }{
		{"", ""},
		{"Juiz concedeu mais prazo.", "Juiz concedeu mais prazo."},
		{`{"resumo": "Acordo homologado"}`, "Acordo homologado"},
		{`{"resumo": "Juiz condenou", "situacao": "SENTENCA"`, "Juiz condenou"},
		{`resumo: Audiência marcada, situacao: NORMAL`, "Audiência marcada"},
		{`"resumo": "Prazo de 15 dias"`, "Prazo de 15 dias"},
		{"O resumo do juiz foi publicado", "O resumo do juiz foi publicado"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CleanSummary(tc.in), tc.in)
	}
}
