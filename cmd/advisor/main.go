package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"etoro-advisor-go/internal/analysis"
	"etoro-advisor-go/internal/commentary"
	"etoro-advisor-go/internal/config"
	"etoro-advisor-go/internal/database"
	"etoro-advisor-go/internal/etoro"
	"etoro-advisor-go/internal/logger"
	"etoro-advisor-go/internal/models"
	"etoro-advisor-go/internal/pipeline"
	"etoro-advisor-go/internal/reportsink"
	"etoro-advisor-go/internal/store"
	"go.uber.org/zap"
)

func main() {
	runType := models.RunTypeMarketOpen
	if len(os.Args) > 1 {
		runType = os.Args[1]
	}
	if !models.ValidRunType(runType) {
		fmt.Fprintf(os.Stderr, "invalid run type %q, use %q or %q\n",
			runType, models.RunTypeMarketOpen, models.RunTypeMarketClose)
		os.Exit(1)
	}

	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	// Initialize collaborators
	restClient := etoro.NewRestClient(&cfg.Etoro, log)
	st := store.NewStore(db)
	engine := analysis.NewEngine(analysis.Params{
		ShortWindow:      cfg.Analysis.ShortWindow,
		LongWindow:       cfg.Analysis.LongWindow,
		StrengthWindow:   cfg.Analysis.StrengthWindow,
		MomentumLookback: cfg.Analysis.MomentumLookback,
		KeyLevelWindow:   cfg.Analysis.KeyLevelWindow,
	}, log)
	generator := commentary.NewClaudeGenerator(&cfg.LLM, log)
	sink := reportsink.NewFileSink(cfg.Report.OutputDir, log)

	// Setup context so a shutdown signal cancels in-flight collaborator calls.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, cancelling run...")
		cancel()
	}()

	// Execute one pipeline run
	run := pipeline.NewPipeline(log, &cfg, restClient, st, engine, generator, sink)
	summary, err := run.Run(ctx, runType)
	if err != nil {
		stage, reason := "unknown", err.Error()
		if summary != nil {
			stage, reason = summary.FailureStage, summary.FailureReason
		}
		log.Error("Run failed",
			zap.String("stage", stage),
			zap.String("reason", reason),
		)
		os.Exit(1)
	}

	log.Info("Run completed",
		zap.String("run_id", summary.RunID),
		zap.Int("instruments_analysed", summary.InstrumentsAnalysed),
		zap.Int("instruments_skipped", summary.InstrumentsSkipped),
		zap.Int("recommendations", summary.RecommendationsMade),
		zap.Bool("degraded", summary.Degraded),
		zap.Int("errors", len(summary.Errors)),
		zap.Duration("duration", summary.Duration),
	)
}
