// Package eval replays labeled prompt datasets (CSV, JSON lines, Parquet)
// through the injection detector and the redactor, reporting recall,
// precision, and PII hit counts. The detector is tuned for recall; this is
// the tool that shows what that trade-off costs on a given corpus.
package eval

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kuwago-ai/datagate/internal/injection"
	"github.com/kuwago-ai/datagate/internal/pii"
	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"
)

// Pipeline evaluates the detector and redactor against dataset files.
type Pipeline struct {
	detector *injection.Detector
	redactor *pii.Redactor
	config   *Config
	logger   *zap.Logger
}

// NewPipeline creates an evaluation pipeline.
func NewPipeline(detector *injection.Detector, redactor *pii.Redactor, cfg *Config, logger *zap.Logger) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	return &Pipeline{
		detector: detector,
		redactor: redactor,
		config:   cfg,
		logger:   logger,
	}
}

// DetectFileFormat identifies a dataset format from its extension.
func DetectFileFormat(filePath string) FileFormat {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".csv":
		return FormatCSV
	case ".parquet":
		return FormatParquet
	case ".json", ".jsonl":
		return FormatJSON
	default:
		return FormatUnknown
	}
}

// ProcessFile evaluates one dataset file.
func (p *Pipeline) ProcessFile(ctx context.Context, filePath string) (*Report, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	format := DetectFileFormat(filePath)
	p.logger.Info("Starting evaluation",
		zap.String("file", filePath),
		zap.String("format", string(format)),
		zap.Int("workers", p.config.WorkerCount))

	start := time.Now()
	report := &Report{}

	var err error
	switch format {
	case FormatCSV:
		err = p.processCSV(ctx, filePath, report)
	case FormatParquet:
		err = p.processParquet(ctx, filePath, report)
	case FormatJSON:
		err = p.processJSON(ctx, filePath, report)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", filepath.Ext(filePath))
	}
	if err != nil {
		return report, err
	}

	report.Duration = time.Since(start)

	p.logger.Info("Evaluation completed",
		zap.Int64("total", report.Total),
		zap.Float64("recall", report.Recall()),
		zap.Float64("precision", report.Precision()),
		zap.Float64("accuracy", report.Accuracy()),
		zap.Int64("pii_hits", report.PIIHits),
		zap.Duration("duration", report.Duration))

	return report, nil
}

// processSamples fans samples out to workers and accumulates the confusion
// counts with atomics.
func (p *Pipeline) processSamples(ctx context.Context, next func() (*Sample, error), report *Report) error {
	samples := make(chan *Sample, p.config.BatchSize)

	var wg sync.WaitGroup
	for i := 0; i < p.config.WorkerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sample := range samples {
				p.evaluate(sample, report)
			}
		}()
	}

	var readErr error
	for {
		if ctx.Err() != nil {
			readErr = ctx.Err()
			break
		}

		sample, err := next()
		if err == io.EOF {
			break
		}
		if err != nil {
			p.logger.Warn("Failed to read record", zap.Error(err))
			atomic.AddInt64(&report.Skipped, 1)
			continue
		}
		if sample == nil || strings.TrimSpace(sample.Text) == "" {
			atomic.AddInt64(&report.Skipped, 1)
			continue
		}

		samples <- sample
	}

	close(samples)
	wg.Wait()

	return readErr
}

// evaluate classifies one sample and updates the report
func (p *Pipeline) evaluate(sample *Sample, report *Report) {
	atomic.AddInt64(&report.Total, 1)

	signal := p.detector.Detect(sample.Text)
	adversarial := sample.Label == 1

	switch {
	case adversarial && signal.IsInjection:
		atomic.AddInt64(&report.TruePositives, 1)
	case adversarial && !signal.IsInjection:
		atomic.AddInt64(&report.FalseNegatives, 1)
	case !adversarial && signal.IsInjection:
		atomic.AddInt64(&report.FalsePositives, 1)
	default:
		atomic.AddInt64(&report.TrueNegatives, 1)
	}

	if p.redactor != nil && p.redactor.ContainsPII(sample.Text) {
		atomic.AddInt64(&report.PIIHits, 1)
	}
}

// processCSV evaluates a CSV dataset with columns text, label_text, label
func (p *Pipeline) processCSV(ctx context.Context, filePath string, report *Report) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = 3 // text, label_text, label

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read CSV header: %w", err)
	}
	p.logger.Info("CSV header detected", zap.Strings("columns", header))

	return p.processSamples(ctx, func() (*Sample, error) {
		record, err := reader.Read()
		if err != nil {
			return nil, err
		}
		if len(record) != 3 {
			return nil, nil
		}

		label := 0
		if record[2] == "1" || strings.ToLower(record[2]) == "true" {
			label = 1
		}

		return &Sample{
			Text:      strings.TrimSpace(record[0]),
			LabelText: strings.TrimSpace(record[1]),
			Label:     label,
		}, nil
	}, report)
}

// processParquet evaluates a Parquet dataset
func (p *Pipeline) processParquet(ctx context.Context, filePath string, report *Report) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open Parquet file: %w", err)
	}
	defer file.Close()

	reader := parquet.NewReader(file)
	defer reader.Close()

	return p.processSamples(ctx, func() (*Sample, error) {
		var sample Sample
		if err := reader.Read(&sample); err != nil {
			return nil, err
		}
		return &sample, nil
	}, report)
}

// processJSON evaluates a JSON lines dataset
func (p *Pipeline) processJSON(ctx context.Context, filePath string, report *Report) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open JSON file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)

	return p.processSamples(ctx, func() (*Sample, error) {
		var sample Sample
		if err := decoder.Decode(&sample); err != nil {
			return nil, err
		}
		return &sample, nil
	}, report)
}
