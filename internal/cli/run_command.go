package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"truckbuild/internal/auth"
	"truckbuild/internal/board"
	"truckbuild/internal/buildsvc"
	"truckbuild/internal/config"
	"truckbuild/internal/logging"
	"truckbuild/internal/pipeline"
	"truckbuild/internal/runstore"
	"truckbuild/internal/specsource"
)

func runRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "config file path (default: ./truckbuild.toml when present)")
	specsDir := fs.String("specs-dir", "", "spec bucket override")
	outputDir := fs.String("output-dir", "", "artifact bucket override")
	runsDir := fs.String("runs-dir", "", "runs directory override")
	concurrency := fs.Int("concurrency", 0, "concurrent job limit override")
	attempts := fs.Int("attempts", 0, "per-stage attempt limit override")
	insecure := fs.Bool("insecure", false, "disable TLS certificate verification (debug only)")
	noBoard := fs.Bool("no-board", false, "disable the live board; log stage transitions instead")
	jsonOut := fs.Bool("json", false, "print the run summary as JSON")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	cfg.SpecDir = firstNonEmpty(strings.TrimSpace(*specsDir), cfg.SpecDir)
	cfg.OutputDir = firstNonEmpty(strings.TrimSpace(*outputDir), cfg.OutputDir)
	cfg.RunsDir = firstNonEmpty(strings.TrimSpace(*runsDir), cfg.RunsDir)
	if *concurrency > 0 {
		cfg.Concurrency = *concurrency
	}
	if *attempts > 0 {
		cfg.StageAttempts = *attempts
	}
	if *insecure {
		cfg.SkipTLSVerify = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	items, err := pipeline.ItemsFromDir(cfg.SpecDir)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("no spec spreadsheets in %s", cfg.SpecDir)
	}
	vmsFilter, err := specsource.ReadVMSFilter(cfg.SpecDir)
	if err != nil {
		return err
	}

	runDir, runID, err := runstore.NewRunDir(cfg.RunsDir)
	if err != nil {
		return err
	}
	lock, err := runstore.AcquireRunLock(runDir)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	interactive := stdoutIsTTY() && !*noBoard && !*jsonOut
	log, closeLog, err := logging.New(runDir, interactive)
	if err != nil {
		return err
	}
	defer closeLog()

	log.Info("run starting",
		zap.String("run_id", runID),
		zap.Int("jobs", len(items)),
		zap.Int("concurrency", cfg.Concurrency),
		zap.String("tls", cfg.TLSMode()))
	if cfg.SkipTLSVerify {
		log.Warn("TLS certificate verification is DISABLED")
	}

	client, err := buildsvc.New(buildsvc.Options{
		BaseURL:       cfg.BaseURL,
		AuthURL:       cfg.AuthURL,
		SkipTLSVerify: cfg.SkipTLSVerify,
		CABundle:      cfg.CABundle,
		Timeout:       cfg.HTTPTimeout,
		RequestRate:   cfg.RequestRate,
		RequestBurst:  cfg.RequestBurst,
	})
	if err != nil {
		return err
	}
	sink, err := runstore.NewArtifactStore(cfg.OutputDir)
	if err != nil {
		return err
	}
	if err := runstore.SaveRunMeta(runDir, runstore.RunMeta{
		RunID:     runID,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		SpecDir:   cfg.SpecDir,
		OutputDir: cfg.OutputDir,
		Total:     len(items),
	}); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := board.New(interactive, len(items), log)
	summary, runErr := pipeline.Run(ctx, pipeline.Options{
		RunID:   runID,
		Items:   items,
		Config:  cfg,
		Builder: client,
		Tokens:  auth.NewTokenManager(client),
		Specs:   pipeline.SpreadsheetReader{VMSFilter: vmsFilter},
		Sink:    sink,
		Board:   b,
		Log:     log,
	})
	b.Stop()
	if runErr != nil {
		return runErr
	}

	if err := runstore.SaveSummary(runDir, summary); err != nil {
		log.Error("saving run summary failed", zap.Error(err))
	}
	log.Info("run finished",
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("cancelled", summary.Cancelled))

	if *jsonOut {
		if err := printJSON(summary); err != nil {
			return err
		}
	} else {
		printRunReport(os.Stdout, summary)
	}

	if n := summary.Failed + summary.Cancelled; n > 0 {
		return fmt.Errorf("%d of %d jobs did not succeed", n, summary.Total)
	}
	return nil
}
