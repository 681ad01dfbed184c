// Package clean implements the two cleaning stages of the pipeline: Prune,
// a streaming first pass over the raw dataset that drops unusable columns
// and rows, and Clean, the per-year imputation and sanity-clipping pass
// that consumes the partitioner's output files.
package clean

import (
	"context"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/cumulus/pkg/config"
	"github.com/ajitpratap0/cumulus/pkg/csvio"
	"github.com/ajitpratap0/cumulus/pkg/metrics"
	"github.com/ajitpratap0/cumulus/pkg/pipeerrors"
	"github.com/ajitpratap0/cumulus/pkg/progress"
)

// PruneResult reports the totals of a prune run.
type PruneResult struct {
	RowsRead    int64
	RowsWritten int64
	Elapsed     time.Duration
}

// Prune streams the raw weather CSV once, keeping only the configured
// columns and dropping rows where both humidity and temperature are empty.
// Dropping those rows early keeps the expansion stage from duplicating
// unusable readings.
func Prune(ctx context.Context, cfg config.PruneConfig, logger *zap.Logger) (result *PruneResult, err error) {
	start := time.Now()
	log := logger.With(zap.String("stage", "prune"))

	log.Info("starting initial cleaning",
		zap.String("input", cfg.Input),
		zap.String("output", cfg.Output),
		zap.Strings("keep_columns", cfg.KeepColumns))

	reader, err := csvio.Open(cfg.Input)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := reader.Close(); closeErr != nil && err == nil {
			err = pipeerrors.Wrap(closeErr, pipeerrors.ErrorTypeIO, "failed to close input")
		}
	}()

	keep := make(map[string]bool, len(cfg.KeepColumns))
	for _, col := range cfg.KeepColumns {
		keep[col] = true
	}

	// Kept columns preserve their input file order
	header := reader.Header()
	var keptIdx []int
	var keptHeader csvio.Header
	for i, col := range header {
		if keep[col] {
			keptIdx = append(keptIdx, i)
			keptHeader = append(keptHeader, col)
		}
	}
	if len(keptIdx) == 0 {
		return nil, pipeerrors.New(pipeerrors.ErrorTypeConfig,
			"none of the configured keep_columns are present in the input").
			WithDetail("columns", []string(header))
	}

	humidityIdx := keptHeader.Index("humidity")
	temperatureIdx := keptHeader.Index("temperature")

	writer, err := csvio.Create(cfg.Output, keptHeader)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := writer.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	reporter := progress.NewReporter(log, "prune", cfg.ChunkSize)
	var written int64

	projected := make([]string, len(keptIdx))
	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		row, readErr := reader.Next()
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return nil, pipeerrors.Wrap(readErr, pipeerrors.ErrorTypeData, "failed to read input row")
		}
		reporter.Increment(1)
		metrics.RowsProcessed.WithLabelValues("prune").Inc()

		for i, idx := range keptIdx {
			projected[i] = row[idx]
		}

		// Drop rows missing both humidity and temperature
		if humidityIdx >= 0 && temperatureIdx >= 0 &&
			projected[humidityIdx] == "" && projected[temperatureIdx] == "" {
			continue
		}

		if writeErr := writer.Write(projected); writeErr != nil {
			return nil, writeErr
		}
		written++
	}

	result = &PruneResult{
		RowsRead:    reporter.Processed(),
		RowsWritten: written,
		Elapsed:     time.Since(start),
	}

	reporter.Final(
		zap.Int64("rows_written", written),
		zap.Int64("rows_removed", result.RowsRead-written),
		zap.String("output", cfg.Output))

	return result, nil
}
