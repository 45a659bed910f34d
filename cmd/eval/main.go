package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/kuwago-ai/datagate/internal/config"
	"github.com/kuwago-ai/datagate/internal/eval"
	"github.com/kuwago-ai/datagate/internal/injection"
	"github.com/kuwago-ai/datagate/internal/logger"
	"github.com/kuwago-ai/datagate/internal/pii"
)

func main() {
	var (
		configPath = flag.String("config", "", "Configuration file path")
		inputFile  = flag.String("input", "", "Input dataset file (CSV, Parquet, or JSON)")
		batchSize  = flag.Int("batch-size", 1000, "Batch size for processing")
		workers    = flag.Int("workers", 4, "Number of worker goroutines")
	)
	flag.Parse()

	if *inputFile == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --input dataset.csv --batch-size 500\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --input dataset.parquet --workers 8\n", os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting datagate evaluation",
		zap.String("input", *inputFile),
		zap.Int("batch_size", *batchSize),
		zap.Int("workers", *workers))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, cancelling evaluation")
		cancel()
	}()

	redactor, err := pii.New(cfg.Privacy, log)
	if err != nil {
		log.Fatal("Failed to create redactor", zap.Error(err))
	}

	pipeline := eval.NewPipeline(injection.New(), redactor, &eval.Config{
		BatchSize:   *batchSize,
		WorkerCount: *workers,
	}, log.Logger)

	report, err := pipeline.ProcessFile(ctx, *inputFile)
	if err != nil {
		log.Fatal("Evaluation failed", zap.Error(err))
	}

	log.Info("Evaluation complete",
		zap.Int64("total", report.Total),
		zap.Int64("skipped", report.Skipped),
		zap.Int64("true_positives", report.TruePositives),
		zap.Int64("false_positives", report.FalsePositives),
		zap.Int64("false_negatives", report.FalseNegatives),
		zap.Int64("pii_hits", report.PIIHits),
		zap.Duration("duration", report.Duration))

	fmt.Printf("\nSamples:   %d (%d skipped)\n", report.Total, report.Skipped)
	fmt.Printf("Recall:    %.4f\n", report.Recall())
	fmt.Printf("Precision: %.4f\n", report.Precision())
	fmt.Printf("Accuracy:  %.4f\n", report.Accuracy())
	fmt.Printf("PII hits:  %d\n", report.PIIHits)
}
