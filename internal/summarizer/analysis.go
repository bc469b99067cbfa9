package summarizer

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"consultaprocessual/pkg/logger"
)

const fallbackRunes = 200

var (
	openFence      = regexp.MustCompile("(?i)^```(?:json)?")
	trailingComma  = regexp.MustCompile(`,\s*([}\]])`)
	leadingBrace   = regexp.MustCompile(`^[{\s]*`)
	trailingBrace  = regexp.MustCompile(`}\s*$`)
	summaryKey     = regexp.MustCompile(`(?i)^"?resumo"?\s*[:\-]?\s*`)
	otherKey       = regexp.MustCompile(`(?i)"?(?:situa(?:c|ç)(?:a|ã)o|prazo|pr(?:o|ó)xima[_\s]?a(?:c|ç)(?:a|ã)o)"?\s*:`)
	smartQuotes    = strings.NewReplacer("“", `"`, "”", `"`, "‘", "'", "’", "'")
	nullishValues  = map[string]bool{"null": true, "none": true, "nenhum": true, "nenhuma": true, "n/a": true, "nao": true, "não": true}
	textFieldRules = []struct {
		field   string
		pattern *regexp.Regexp
	}{
		{"resumo", regexp.MustCompile(`(?i)resumo\s*[:\-]\s*(.+)`)},
		{"situacao", regexp.MustCompile(`(?i)situa(?:c|ç)(?:a|ã)o\s*[:\-]\s*(.+)`)},
		{"prazo", regexp.MustCompile(`(?i)prazo\s*[:\-]\s*(.+)`)},
		{"proxima_acao", regexp.MustCompile(`(?i)pr(?:o|ó)xima[_\s]?a(?:c|ç)(?:a|ã)o\s*[:\-]\s*(.+)`)},
	}
)

// ParseAnalysis reads a model response. It tries, in order: the first JSON
// object (after removing code fences), the same object with trailing commas
// and typographic quotes repaired, "key: value" lines, and finally the raw
// text truncated as the summary. warning is set when no structured form was
// found.
func ParseAnalysis(raw string) (a Analysis, warning string) {
	text := strings.TrimSpace(raw)
	text = strings.TrimSpace(openFence.ReplaceAllString(text, ""))
	text = strings.TrimSpace(strings.ReplaceAll(text, "```", ""))

	if obj := extractJSON(text); obj != "" {
		fields, err := decodeFields(obj)
		if err != nil {
			if repaired := extractJSON(repairJSON(text)); repaired != "" {
				if fields, rerr := decodeFields(repaired); rerr == nil {
					return fromFields(fields), ""
				}
			}
			return Analysis{Summary: truncateRunes(strings.TrimSpace(raw), fallbackRunes), Situation: "NORMAL"},
				fmt.Sprintf("invalid JSON: %v", err)
		}
		return fromFields(fields), ""
	}

	if fields := extractTextFields(text); len(fields) > 0 {
		return fromFields(fields), ""
	}

	if text == "" {
		return Analysis{Situation: "NORMAL"}, "empty response"
	}
	return Analysis{Summary: truncateRunes(text, fallbackRunes), Situation: "NORMAL"}, "response has no JSON"
}

// extractJSON returns the first balanced {...} object, skipping braces that
// appear inside strings.
func extractJSON(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

func repairJSON(text string) string {
	return trailingComma.ReplaceAllString(smartQuotes.Replace(text), "$1")
}

func decodeFields(obj string) (map[string]string, error) {
	var values map[string]any
	if err := json.Unmarshal([]byte(obj), &values); err != nil {
		return nil, err
	}
	fields := make(map[string]string, len(values))
	for k, v := range values {
		switch t := v.(type) {
		case nil:
		case string:
			fields[k] = strings.TrimSpace(t)
		default:
			b, _ := json.Marshal(t)
			fields[k] = string(b)
		}
	}
	return fields, nil
}

func extractTextFields(text string) map[string]string {
	fields := make(map[string]string)
	for _, rule := range textFieldRules {
		m := rule.pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		value := strings.TrimSpace(m[1])
		if nullishValues[strings.ToLower(value)] {
			value = ""
		}
		fields[rule.field] = value
	}
	return fields
}

func fromFields(fields map[string]string) Analysis {
	a := Analysis{
		Summary:    fields["resumo"],
		Situation:  strings.ToUpper(fields["situacao"]),
		Deadline:   fields["prazo"],
		NextAction: fields["proxima_acao"],
	}
	if a.Situation == "" {
		a.Situation = "NORMAL"
	}
	if nullishValues[strings.ToLower(a.Deadline)] {
		a.Deadline = ""
	}
	if nullishValues[strings.ToLower(a.NextAction)] {
		a.NextAction = ""
	}
	return a
}

// CleanSummary strips JSON residue a model sometimes leaves in the summary
// ("{"resumo": "...", "situacao": ...") so the cell holds plain text.
func CleanSummary(s string) string {
	text := strings.TrimSpace(s)
	if text == "" {
		return ""
	}
	lower := strings.ToLower(text)
	if !strings.HasPrefix(text, "{") && !strings.HasPrefix(lower, "resumo") && !strings.HasPrefix(lower, `"resumo"`) {
		return text
	}

	if fields, err := decodeFields(text); err == nil {
		if v, ok := fields["resumo"]; ok {
			return v
		}
	}

	text = leadingBrace.ReplaceAllString(text, "")
	text = trailingBrace.ReplaceAllString(text, "")
	text = summaryKey.ReplaceAllString(text, "")
	if loc := otherKey.FindStringIndex(text); loc != nil && loc[0] > 0 {
		text = strings.TrimRight(text[:loc[0]], " \t\r\n\",'")
	}
	return strings.Trim(strings.TrimSpace(text), `"'`)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func logWarning(provider, warning string) {
	logger.Sugar.Warnw("AI response was not structured", "provider", provider, "warning", warning)
}
