package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configPath string
	verbose    bool
}

var rootCmd = &cobra.Command{
	Use:   "consultaprocessual",
	Short: "Check tracked court cases for new publications and update the spreadsheet",
	Long: "consultaprocessual reads CNJ case numbers from the control spreadsheet, looks each one up\n" +
		"on the Comunica PJe API, summarizes new publications with Gemini or Ollama and writes\n" +
		"status, dates and summary back to the same row.",
	RunE:          runMonitor,
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&rootFlags.configPath, "config", "c", "", "config file (default config.yaml, then config.example.yaml)")
	pf.BoolVarP(&rootFlags.verbose, "verbose", "v", false, "debug logging")

	addRunFlags(rootCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errAllFailed) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}
