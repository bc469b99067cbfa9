package summarizer

import (
	"fmt"
	"strings"

	"consultaprocessual/internal/caserecord/model"
)

const maxTextRunes = 1500

const geminiPrompt = `Atue como um Analista Jurídico Sênior que prepara relatórios executivos para clientes.
Analise as publicações do Diário de Justiça abaixo e extraia o essencial para uma planilha de acompanhamento.

PUBLICAÇÕES (da mais recente para a mais antiga):
%s

REGRAS PARA O CAMPO "resumo":
1. Não comece com frases genéricas ("Trata-se de...", "O processo refere-se a...", "Foi publicada decisão...").
2. Vá direto ao ato: o que o juiz decidiu e a consequência prática.
3. Inclua valores (dívida, custas, honorários, multas) e prazos específicos quando existirem.
4. Troque o juridiquês por linguagem de negócios (ex.: "Deferida a dilação de prazo" vira "Juiz concedeu mais tempo").
5. Se a publicação for só um despacho de expediente ("Junte-se", "Intime-se"), use as anteriores para explicar sobre o que é.
6. Nunca termine dizendo que o teor não foi disponibilizado; aproveite o que estiver no texto.

Responda em JSON:
{
    "resumo": "Texto objetivo, no máximo 600 caracteres.",
    "situacao": "Uma tag: PROVAS, ARQUIVADO, ACORDO, SENTENCA, RECURSAL ou NORMAL",
    "prazo": "Prazo em curso (ex.: '15 dias para manifestação') ou null",
    "proxima_acao": "Providência do advogado (ex.: 'Protocolar recurso até 02/03/2026') ou null"
}

Responda apenas o JSON.`

const ollamaPrompt = `Você é um assistente jurídico que analisa publicações do Diário de Justiça.

Analise as publicações de um processo judicial e faça um resumo objetivo.

REGRAS:
1. Seja conciso: no máximo 3 frases no resumo.
2. Diga se há PRAZO correndo para o advogado.
3. Diga se há AUDIÊNCIA marcada.
4. Classifique a situação: URGENTE, AGUARDANDO, ARQUIVADO, ACORDO, SENTENCA ou NORMAL.
5. Responda somente JSON válido.
6. Não invente nada que não esteja nas publicações.

PUBLICAÇÕES DO PROCESSO (da mais recente para a mais antiga):

%s

---

Responda exatamente neste formato JSON, sem texto antes ou depois:

{
    "resumo": "Resumo de até 3 frases do estado atual",
    "situacao": "URGENTE, AGUARDANDO, ARQUIVADO, ACORDO, SENTENCA ou NORMAL",
    "prazo": "O prazo, se houver, ou null",
    "proxima_acao": "O que fazer, se necessário, ou null"
}

JSON:`

// selectPublications keeps the newest max publications, newest first.
// pubs must be ordered oldest first.
func selectPublications(pubs []model.Publication, max int) []model.Publication {
	n := len(pubs)
	if max > 0 && n > max {
		n = max
	}
	out := make([]model.Publication, 0, n)
	for i := len(pubs) - 1; i >= len(pubs)-n; i-- {
		out = append(out, pubs[i])
	}
	return out
}

func formatPublications(pubs []model.Publication) string {
	parts := make([]string, 0, len(pubs))
	for i, p := range pubs {
		text := p.Text
		if r := []rune(text); len(r) > maxTextRunes {
			text = string(r[:maxTextRunes]) + "..."
		}
		date := "???"
		if !p.Date.IsZero() {
			date = p.Date.Format("02/01/2006")
		}
		parts = append(parts, fmt.Sprintf("[%d] Data: %s\nTipo: %s\nÓrgão: %s\nTeor: %s\n", i+1, date, p.Type, p.Organ, text))
	}
	return strings.Join(parts, "\n")
}

func buildPrompt(template string, pubs []model.Publication, max int) string {
	return fmt.Sprintf(template, formatPublications(selectPublications(pubs, max)))
}
