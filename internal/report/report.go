package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"consultaprocessual/internal/caserecord/model"

	"github.com/charmbracelet/lipgloss"
)

const maxDetail = 120

// Render writes the end-of-run summary: a header box with the aggregate
// counts, then one line per case grouped by sheet. Colours are dropped when w
// is not a terminal.
func Render(w io.Writer, r *model.Report) error {
	re := lipgloss.NewRenderer(w)
	var (
		title   = re.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
		muted   = re.NewStyle().Foreground(lipgloss.Color("#888888"))
		sheet   = re.NewStyle().Bold(true).Underline(true)
		updated = re.NewStyle().Foreground(lipgloss.Color("#3FB950"))
		same    = re.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
		failed  = re.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
		box     = re.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#444444")).Padding(0, 1)
	)

	c := r.Counts()
	var modes []string
	if r.DryRun {
		modes = append(modes, "dry run")
	}
	if r.SkipAI {
		modes = append(modes, "AI off")
	}
	if r.Sheet != "" {
		modes = append(modes, "sheet "+r.Sheet)
	}

	head := []string{
		title.Render("RUN " + r.RunID),
		fmt.Sprintf("%s  %s", r.StartedAt.Format("02/01/2006 15:04:05"), muted.Render(duration(r))),
	}
	if len(modes) > 0 {
		head = append(head, muted.Render(strings.Join(modes, " · ")))
	}
	head = append(head, fmt.Sprintf("%d cases  %s  %s  %s", c.Total,
		updated.Render(fmt.Sprintf("%d updated", c.Updated)),
		same.Render(fmt.Sprintf("%d unchanged", c.Unchanged)),
		failed.Render(fmt.Sprintf("%d failed", c.Failed))))

	var lines []string
	current := ""
	for _, res := range r.Results {
		if res.Sheet != current {
			current = res.Sheet
			lines = append(lines, "", sheet.Render(current))
		}
		var mark string
		switch res.Outcome {
		case model.OutcomeUpdated:
			mark = updated.Render("✔ updated  ")
		case model.OutcomeNoNewPublication:
			mark = same.Render("· unchanged")
		default:
			mark = failed.Render("✘ failed   ")
		}
		line := fmt.Sprintf("  %s  row %-4d %s", mark, res.Row, res.CaseNumber)
		if res.Update != nil && res.Outcome == model.OutcomeUpdated {
			line += muted.Render(fmt.Sprintf("  %s %s", res.Update.Status, res.Update.PublicationType))
		}
		if res.Detail != "" {
			line += "\n      " + muted.Render(truncate(res.Detail, maxDetail))
		}
		lines = append(lines, line)
	}
	if len(r.Results) == 0 {
		lines = append(lines, "", muted.Render("No cases found."))
	}

	_, err := fmt.Fprintln(w, box.Render(strings.Join(head, "\n"))+strings.Join(lines, "\n"))
	return err
}

func duration(r *model.Report) string {
	if r.FinishedAt.IsZero() {
		return "running"
	}
	return r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
}

func truncate(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n-1]) + "…"
}
