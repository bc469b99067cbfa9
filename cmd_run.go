package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"consultaprocessual/config"
	"consultaprocessual/config/database"
	"consultaprocessual/internal/caserecord/model"
	"consultaprocessual/internal/caserecord/repository"
	"consultaprocessual/internal/caserecord/service"
	"consultaprocessual/internal/comunica"
	"consultaprocessual/internal/ratelimit"
	"consultaprocessual/internal/report"
	"consultaprocessual/internal/summarizer"
	"consultaprocessual/pkg/logger"
	"consultaprocessual/router"
	"consultaprocessual/socket"
	"consultaprocessual/store"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// errAllFailed makes the process exit 1 after the report was printed.
var errAllFailed = errors.New("every case failed")

var runFlags struct {
	sheet        string
	dryRun       bool
	noAI         bool
	progressAddr string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process every tracked case (the default command)",
	RunE:  runMonitor,
}

func init() {
	addRunFlags(runCmd)
}

func addRunFlags(c *cobra.Command) {
	f := c.Flags()
	f.StringVarP(&runFlags.sheet, "sheet", "s", "", "process only this sheet (tab)")
	f.BoolVar(&runFlags.dryRun, "dry-run", false, "look up and summarize but do not write to the spreadsheet")
	f.BoolVar(&runFlags.noAI, "no-ai", false, "update status and dates only, no summaries")
	f.StringVar(&runFlags.progressAddr, "progress-addr", "", "serve live progress on this address, e.g. :8080 (overrides progress.addr)")
}

// openWorkbook is replaced in tests.
var openWorkbook = func(ctx context.Context, cfg *config.Config) (store.Workbook, func(), error) {
	switch cfg.Spreadsheet.Backend {
	case config.BackendPostgres:
		db, err := database.Connect(ctx, cfg.Spreadsheet.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return store.NewPostgres(db, cfg.Spreadsheet.Name), func() { closeDB(db) }, nil
	default:
		book, err := store.OpenGoogleSheets(ctx, cfg.Spreadsheet.CredentialsFile, cfg.Spreadsheet.ID, cfg.Spreadsheet.Name)
		if err != nil {
			return nil, nil, err
		}
		return book, func() {}, nil
	}
}

func closeDB(db *sql.DB) {
	if err := db.Close(); err != nil {
		logger.Sugar.Warnf("Failed to close database: %v", err)
	}
}

// loadConfig reads .env and the config file, then initialises the logger.
func loadConfig(aiEnabled bool) (*config.Config, error) {
	if err := config.LoadEnv(); err != nil {
		return nil, err
	}
	cfg, err := config.Load(rootFlags.configPath)
	if err != nil {
		return nil, err
	}
	if rootFlags.verbose {
		cfg.Logging.Level = "debug"
	}
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	if cfg.Path == "" {
		logger.Sugar.Warn("No config file found, using built-in defaults and environment")
	}
	if err := cfg.Validate(aiEnabled); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLookupClient(cfg *config.Config, pacer comunica.Pacer) (*comunica.Client, error) {
	return comunica.New(cfg.Lookup.BaseURL,
		comunica.WithTimeout(cfg.Lookup.Timeout.Std()),
		comunica.WithPacer(pacer),
		comunica.WithUserAgent(cfg.Lookup.UserAgent),
		comunica.WithPaging(cfg.Lookup.PageSize, cfg.Lookup.MaxPages),
		comunica.WithCheckDigitVerification(cfg.Lookup.VerifyCheckDigit),
	)
}

func newRepository(book store.Workbook, cfg *config.Config, dryRun bool) *repository.CaseRepository {
	return repository.NewCaseRepository(book, cfg.Columns, repository.Formats{
		Date:      cfg.Spreadsheet.DateFormat,
		Timestamp: cfg.Spreadsheet.TimestampFormat,
		Location:  cfg.Location(),
	}, dryRun)
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Configuration and logging; AI settings only matter when AI is on.
	cfg, err := loadConfig(!runFlags.noAI)
	if err != nil {
		return err
	}
	defer logger.Sync()

	// 2. External collaborators.
	book, closeBook, err := openWorkbook(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeBook()

	limiter := ratelimit.New(cfg.Lookup.Delay.Std())
	client, err := newLookupClient(cfg, limiter)
	if err != nil {
		return err
	}

	var sum summarizer.Summarizer
	if !runFlags.noAI {
		if sum, err = summarizer.New(ctx, cfg.AI); err != nil {
			return err
		}
		logger.Sugar.Infow("AI summaries enabled", "provider", sum.Name())
	}

	repo := newRepository(book, cfg, runFlags.dryRun)
	svc := service.NewMonitorService(repo, repo, client, sum, nil)

	// 3. The run, plus the progress server beside it when requested.
	g, gctx := errgroup.WithContext(ctx)
	runCtx, finish := context.WithCancel(gctx)
	defer finish()

	addr := runFlags.progressAddr
	if addr == "" {
		addr = cfg.Progress.Addr
	}
	if addr != "" {
		hub := socket.NewHub()
		svc.Sink = hub
		srv := &http.Server{
			Addr:              addr,
			Handler:           router.Setup(hub, cfg.Progress.JWTSecret),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			hub.Run(runCtx)
			return nil
		})
		g.Go(func() error {
			logger.Sugar.Infof("Progress server listening on %s", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-runCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	var rep *model.Report
	g.Go(func() error {
		defer finish()
		var runErr error
		rep, runErr = svc.Run(runCtx, service.Options{
			Sheet:      runFlags.sheet,
			Sheets:     cfg.Spreadsheet.Sheets,
			DryRun:     runFlags.dryRun,
			SkipAI:     runFlags.noAI,
			MaxRetries: cfg.Lookup.MaxRetries,
		})
		return runErr
	})
	err = g.Wait()

	calls, waited := limiter.Stats()
	logger.Sugar.Debugw("Lookup pacing", "requests", calls, "waited", waited.Round(time.Millisecond))

	// 4. Report and exit status.
	if rep != nil && (err == nil || len(rep.Results) > 0) {
		if rerr := report.Render(cmd.OutOrStdout(), rep); rerr != nil {
			logger.Sugar.Warnf("Failed to print report: %v", rerr)
		}
	}
	if err != nil {
		return err
	}
	if rep.AllFailed() {
		return errAllFailed
	}
	return nil
}
