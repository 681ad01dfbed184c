// Package expand synthesizes load by duplicating a cleaned dataset with
// per-copy sensor noise. Each copy models a different sensor at the same
// locations whose calibration differs slightly from the others, so the
// expanded dataset stresses downstream stages with realistic variance
// instead of byte-identical repeats.
package expand

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/ajitpratap0/cumulus/pkg/config"
	"github.com/ajitpratap0/cumulus/pkg/csvio"
	"github.com/ajitpratap0/cumulus/pkg/metrics"
	"github.com/ajitpratap0/cumulus/pkg/pipeerrors"
)

// noiseScales maps numeric columns to the relative standard deviation of
// their per-sensor calibration noise.
var noiseScales = map[string]float64{
	"temperature": 0.02,
	"dew_point":   0.02,
	"wind_chill":  0.02,
	"pressure":    0.005,
	"humidity":    0.02,
	"wind_speed":  0.05,
}

// columnScale binds a column index to its noise scale. Scales are kept in
// column order so RNG draws happen in a fixed sequence and a fixed seed
// reproduces the output byte for byte.
type columnScale struct {
	index int
	scale float64
}

// Result reports the totals of an expansion run.
type Result struct {
	Copies       int
	RowsWritten  int64
	BytesWritten int64
	Elapsed      time.Duration
}

// countingWriter tracks bytes written to the underlying writer so progress
// can report a write rate even when the output is gzip-buffered.
type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

// Run duplicates the input dataset. The number of copies comes from
// cfg.Copies when set, otherwise from the ratio of cfg.TargetSizeGB to the
// input file size. Each copy streams the input again rather than holding
// the dataset in memory; the expanded output is the largest artifact in the
// pipeline and must not be size-bounded by RAM.
func Run(ctx context.Context, cfg config.ExpandConfig, logger *zap.Logger) (result *Result, err error) {
	start := time.Now()
	log := logger.With(zap.String("stage", "expand"))

	copies, inputSize, err := resolveCopies(cfg)
	if err != nil {
		return nil, err
	}

	log.Info("starting data expansion",
		zap.String("input", cfg.Input),
		zap.String("output", cfg.Output),
		zap.Int64("input_bytes", inputSize),
		zap.Int("copies", copies),
		zap.Bool("compress", cfg.Compress))

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // synthetic noise, not crypto

	// Capture the header and resolve noisy columns before opening the output
	header, scales, err := inspectInput(cfg.Input)
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(cfg.Output); dir != "" {
		if mkErr := os.MkdirAll(dir, 0o750); mkErr != nil {
			return nil, pipeerrors.Wrap(mkErr, pipeerrors.ErrorTypeIO, "failed to create output directory")
		}
	}
	file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) //nolint:gosec // G304
	if err != nil {
		return nil, pipeerrors.Wrap(err, pipeerrors.ErrorTypeIO, "failed to create output file").
			WithDetail("path", cfg.Output)
	}

	counter := &countingWriter{w: file}
	var sink io.Writer = counter
	var gz *gzip.Writer
	if cfg.Compress {
		gz = gzip.NewWriter(counter)
		sink = gz
	}
	writer := csv.NewWriter(sink)

	defer func() {
		writer.Flush()
		if flushErr := writer.Error(); flushErr != nil && err == nil {
			err = pipeerrors.Wrap(flushErr, pipeerrors.ErrorTypeIO, "failed to flush output")
		}
		if gz != nil {
			if gzErr := gz.Close(); gzErr != nil && err == nil {
				err = pipeerrors.Wrap(gzErr, pipeerrors.ErrorTypeIO, "failed to close gzip writer")
			}
		}
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = pipeerrors.Wrap(closeErr, pipeerrors.ErrorTypeIO, "failed to close output file")
		}
	}()

	if err := writer.Write(header); err != nil {
		return nil, pipeerrors.Wrap(err, pipeerrors.ErrorTypeIO, "failed to write header")
	}

	var total int64
	for sensor := 0; sensor < copies; sensor++ {
		sensorStart := time.Now()

		written, copyErr := writeCopy(ctx, cfg.Input, writer, rng, scales)
		total += written
		if copyErr != nil {
			return nil, copyErr
		}

		writer.Flush()
		if flushErr := writer.Error(); flushErr != nil {
			return nil, pipeerrors.Wrap(flushErr, pipeerrors.ErrorTypeIO, "failed to flush output")
		}

		elapsed := time.Since(start).Seconds()
		rate := 0.0
		if elapsed > 0 {
			rate = float64(counter.n) / 1e6 / elapsed
		}
		log.Info("sensor copy complete",
			zap.Int("sensor", sensor+1),
			zap.Int("of", copies),
			zap.Int64("rows_written", total),
			zap.Duration("copy_elapsed", time.Since(sensorStart)),
			zap.Float64("mb_per_sec", rate))
	}

	result = &Result{
		Copies:       copies,
		RowsWritten:  total,
		BytesWritten: counter.n,
		Elapsed:      time.Since(start),
	}

	log.Info("expansion complete",
		zap.Int64("rows_written", total),
		zap.Int64("bytes_written", counter.n),
		zap.Duration("elapsed", result.Elapsed))

	return result, nil
}

// resolveCopies determines the number of sensor copies and returns the
// input size in bytes.
func resolveCopies(cfg config.ExpandConfig) (int, int64, error) {
	stat, err := os.Stat(cfg.Input)
	if err != nil {
		return 0, 0, pipeerrors.Wrap(err, pipeerrors.ErrorTypeIO, "failed to stat input file").
			WithDetail("path", cfg.Input)
	}
	if stat.Size() == 0 {
		return 0, 0, pipeerrors.New(pipeerrors.ErrorTypeData, "input file is empty")
	}

	if cfg.Copies > 0 {
		return cfg.Copies, stat.Size(), nil
	}

	sizeGB := float64(stat.Size()) / (1 << 30)
	copies := int(cfg.TargetSizeGB / sizeGB)
	if copies < 1 {
		copies = 1
	}
	return copies, stat.Size(), nil
}

// inspectInput captures the input header and resolves the noisy columns,
// ordered by column index.
func inspectInput(path string) (csvio.Header, []columnScale, error) {
	reader, err := csvio.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = reader.Close() }()

	header := reader.Header()
	var scales []columnScale
	for i, col := range header {
		if scale, ok := noiseScales[col]; ok {
			scales = append(scales, columnScale{index: i, scale: scale})
		}
	}
	return header, scales, nil
}

// writeCopy streams the input once, writing one noisy copy of every row.
func writeCopy(ctx context.Context, input string, writer *csv.Writer, rng *rand.Rand, scales []columnScale) (int64, error) {
	reader, err := csvio.Open(input)
	if err != nil {
		return 0, err
	}
	defer func() { _ = reader.Close() }()

	var written int64
	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return written, ctxErr
		}
		row, readErr := reader.Next()
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return written, nil
			}
			return written, pipeerrors.Wrap(readErr, pipeerrors.ErrorTypeData, "failed to read input row")
		}

		for _, cs := range scales {
			row[cs.index] = perturb(row[cs.index], cs.scale, rng)
		}
		if err := writer.Write(row); err != nil {
			return written, pipeerrors.Wrap(err, pipeerrors.ErrorTypeIO, "failed to write row")
		}
		written++
		metrics.RowsProcessed.WithLabelValues("expand").Inc()
	}
}

// perturb applies relative Gaussian noise to a numeric value, rounded to
// two decimals. Blank or non-numeric values pass through unchanged.
func perturb(value string, scale float64, rng *rand.Rand) string {
	if value == "" {
		return value
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return value
	}
	noisy := v * (1 + rng.NormFloat64()*scale)
	noisy = math.Round(noisy*100) / 100
	return strconv.FormatFloat(noisy, 'f', -1, 64)
}
