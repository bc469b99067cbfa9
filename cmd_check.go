package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"consultaprocessual/internal/ratelimit"
	"consultaprocessual/internal/summarizer"
	"consultaprocessual/pkg/logger"

	"github.com/spf13/cobra"
)

const checkTimeout = 30 * time.Second

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate configuration and test spreadsheet, AI and lookup API access",
	RunE:  runCheck,
}

// runCheck fails on anything that would stop a run. An unusable AI backend is
// only a warning since runs can go on with --no-ai.
func runCheck(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	ctx, cancel := context.WithTimeout(cmd.Context(), checkTimeout)
	defer cancel()

	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}
	defer logger.Sync()
	source := cfg.Path
	if source == "" {
		source = "built-in defaults"
	}
	fmt.Fprintf(out, "✔ config        %s (backend %s)\n", source, cfg.Spreadsheet.Backend)

	// Spreadsheet: tabs and the cases each one holds.
	book, closeBook, err := openWorkbook(ctx, cfg)
	if err != nil {
		return fmt.Errorf("spreadsheet: %w", err)
	}
	defer closeBook()
	repo := newRepository(book, cfg, true)
	sheets, explicit, err := repo.ResolveSheets(ctx, "", cfg.Spreadsheet.Sheets)
	if err != nil {
		return fmt.Errorf("spreadsheet: %w", err)
	}
	cases, err := repo.ListCases(ctx, sheets, explicit)
	if err != nil {
		return fmt.Errorf("spreadsheet: %w", err)
	}
	perSheet := make(map[string]int)
	for _, c := range cases {
		perSheet[c.Sheet]++
	}
	fmt.Fprintf(out, "✔ spreadsheet   %d tabs, %d cases\n", len(sheets), len(cases))
	for _, s := range sheets {
		fmt.Fprintf(out, "    %-24s %d\n", s, perSheet[s])
	}

	// AI backend.
	if err := cfg.Validate(true); err != nil {
		fmt.Fprintf(out, "! ai            %v (runs need --no-ai)\n", err)
	} else if sum, err := summarizer.New(ctx, cfg.AI); err != nil {
		fmt.Fprintf(out, "! ai            %v (runs need --no-ai)\n", err)
	} else if hc, ok := sum.(summarizer.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			fmt.Fprintf(out, "! ai            %s: %v (runs need --no-ai)\n", sum.Name(), err)
		} else {
			fmt.Fprintf(out, "✔ ai            %s\n", sum.Name())
		}
	} else {
		fmt.Fprintf(out, "✔ ai            %s (not probed)\n", sum.Name())
	}

	// Lookup API.
	client, err := newLookupClient(cfg, ratelimit.New(0))
	if err != nil {
		return err
	}
	courts, err := client.Courts(ctx)
	if err != nil {
		return fmt.Errorf("lookup api: %w", err)
	}
	acronyms := make([]string, 0, len(courts))
	for _, c := range courts {
		acronyms = append(acronyms, c.Acronym)
	}
	fmt.Fprintf(out, "✔ lookup api    %s, %d courts\n", cfg.Lookup.BaseURL, len(courts))
	if len(acronyms) > 0 {
		fmt.Fprintf(out, "    %s\n", strings.Join(preview(acronyms, 12), " "))
	}
	return nil
}

func preview(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return append(items[:n:n], fmt.Sprintf("(+%d)", len(items)-n))
}
