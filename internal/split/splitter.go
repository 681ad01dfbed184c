package split

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

// Summary reports the final totals of a split run. A nonzero bad-row count
// is not itself a failure signal.
type Summary struct {
	RowsProcessed int64
	BadRows       int64
	Elapsed       time.Duration
}

// Splitter drives a single forward pass over the input rows, routing each
// row to its year's segment writer via the cache and diverting unroutable
// rows to the quarantine sink.
type Splitter struct {
	cfg    config.SplitConfig
	logger *zap.Logger
}

// New creates a Splitter for the given configuration.
func New(cfg config.SplitConfig, logger *zap.Logger) *Splitter {
	return &Splitter{
		cfg:    cfg,
		logger: logger.With(zap.String("stage", "split")),
	}
}

// Run executes the split pass. It fails before processing any row when the
// partition column is absent from the header. Cache and sink teardown is
// guaranteed on every exit path; previously opened segments are always left
// flushed, closed, and independently reopenable.
func (s *Splitter) Run(ctx context.Context) (summary *Summary, err error) {
	start := time.Now()

	s.logger.Info("starting split",
		zap.String("input", s.cfg.Input),
		zap.String("out_dir", s.cfg.OutDir),
		zap.Int("max_open", s.cfg.MaxOpen),
		zap.Int("max_rows_per_file", s.cfg.MaxRowsPerFile))

	reader, err := csvio.Open(s.cfg.Input)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := reader.Close(); closeErr != nil && err == nil {
			err = pipeerrors.Wrap(closeErr, pipeerrors.ErrorTypeIO, "failed to close input")
		}
	}()

	header := reader.Header()
	dtIdx := header.Index(s.cfg.DatetimeColumn)
	if dtIdx < 0 {
		return nil, pipeerrors.Newf(pipeerrors.ErrorTypeConfig,
			"missing required column %q", s.cfg.DatetimeColumn).
			WithDetail("columns", []string(header))
	}

	cache := NewWriterCache(s.cfg.OutDir, s.cfg.Prefix, header,
		s.cfg.MaxOpen, s.cfg.MaxRowsPerFile, s.logger)

	var sink *BadRowSink
	if s.cfg.BadRows != "" {
		sink, err = NewBadRowSink(s.cfg.BadRows, header)
		if err != nil {
			return nil, err
		}
	}

	// Teardown runs on every exit path, normal completion or abort.
	defer func() {
		if closeErr := cache.CloseAll(); closeErr != nil && err == nil {
			err = closeErr
		}
		if sink != nil {
			if closeErr := sink.Close(); closeErr != nil && err == nil {
				err = closeErr
			}
		}
	}()

	reporter := progress.NewReporter(s.logger, "split", s.cfg.ProgressEvery)
	var dropped int64 // bad rows discarded because no sink is configured

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
		metrics.RowsProcessed.WithLabelValues("split").Inc()

		year, parseErr := ParseYear(row[dtIdx])
		if parseErr != nil {
			metrics.BadRows.Inc()
			if sink != nil {
				if sinkErr := sink.Write(row, parseErr); sinkErr != nil {
					return nil, sinkErr
				}
			} else {
				dropped++
			}
			continue
		}

		writer, acqErr := cache.Acquire(year)
		if acqErr != nil {
			return nil, acqErr
		}
		if writeErr := writer.Write(row); writeErr != nil {
			return nil, writeErr
		}
		cache.RecordRow(year)
	}

	// The sink is the source of truth for quarantined rows; dropped only
	// counts rows discarded without one.
	badRows := dropped
	if sink != nil {
		badRows += sink.Count()
	}

	summary = &Summary{
		RowsProcessed: reporter.Processed(),
		BadRows:       badRows,
		Elapsed:       time.Since(start),
	}

	reporter.Final(
		zap.Int64("bad_rows", badRows),
		zap.String("out_dir", s.cfg.OutDir))

	return summary, nil
}
