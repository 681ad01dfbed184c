// Package progress provides periodic progress reporting for long batch runs.
// Reporting is purely observational: it is driven by the processing loop at a
// fixed row cadence and never affects row handling.
package progress

import (
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/ajitpratap0/cumulus/pkg/metrics"
)

// Reporter tracks rows processed by a single stage loop and logs progress
// every Interval rows. Counters are explicit state owned by the stage, not
// process-wide globals.
type Reporter struct {
	logger   *zap.Logger
	stage    string
	interval int64

	processed int64
	start     time.Time
	tracker   *metrics.ThroughputTracker
	proc      *process.Process
}

// NewReporter creates a reporter for the named stage logging every interval
// rows. An interval of 0 disables periodic logging; totals still accumulate.
func NewReporter(logger *zap.Logger, stage string, interval int) *Reporter {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		proc = nil
	}
	return &Reporter{
		logger:   logger,
		stage:    stage,
		interval: int64(interval),
		start:    time.Now(),
		tracker:  metrics.NewThroughputTracker(stage),
		proc:     proc,
	}
}

// Increment records n processed rows and emits a progress line when the
// cadence boundary is crossed.
func (r *Reporter) Increment(n int64) {
	r.processed += n
	r.tracker.Increment(n)

	if r.interval <= 0 {
		return
	}
	if r.processed%r.interval == 0 {
		r.report()
	}
}

// Processed returns the total rows seen so far.
func (r *Reporter) Processed() int64 {
	return r.processed
}

// Elapsed returns time since the reporter was created.
func (r *Reporter) Elapsed() time.Duration {
	return time.Since(r.start)
}

// Rate returns the overall rows-per-second since start.
func (r *Reporter) Rate() float64 {
	elapsed := r.Elapsed().Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(r.processed) / elapsed
}

func (r *Reporter) report() {
	fields := []zap.Field{
		zap.Int64("rows", r.processed),
		zap.Float64("rows_per_sec", r.tracker.GetAndReset()),
		zap.Duration("elapsed", r.Elapsed()),
	}
	if r.proc != nil {
		if mem, err := r.proc.MemoryInfo(); err == nil {
			fields = append(fields, zap.Uint64("rss_bytes", mem.RSS))
		}
	}
	r.logger.Info("progress", fields...)
}

// Final logs the end-of-run summary with any extra fields the stage wants
// to attach (bad row counts, output paths).
func (r *Reporter) Final(extra ...zap.Field) {
	fields := []zap.Field{
		zap.Int64("rows_processed", r.processed),
		zap.Duration("elapsed", r.Elapsed()),
		zap.Float64("rows_per_sec", r.Rate()),
	}
	fields = append(fields, extra...)
	r.logger.Info("stage complete", fields...)
}
