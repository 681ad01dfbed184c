// Package timings scans batch job log files and sums the execution times
// they report, grouped by job class.
package timings

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/cumulus/pkg/pipeerrors"
)

// Job classes recognized by filename.
const (
	ClassClean     = "clean"
	ClassHeatIndex = "heat_index"
	ClassHeatWaves = "heat_waves"
)

var classPatterns = []struct {
	class   string
	pattern *regexp.Regexp
}{
	{ClassClean, regexp.MustCompile(`^clean_job_.*\.out$`)},
	{ClassHeatIndex, regexp.MustCompile(`^analysis_HI_.*\.out$`)},
	{ClassHeatWaves, regexp.MustCompile(`^analysis_HW_.*\.out$`)},
}

// Log lines written by the jobs themselves. Both forms appear in the wild.
var timePatterns = []*regexp.Regexp{
	regexp.MustCompile(`Time Taken:\s+([\d.]+)\s+seconds`),
	regexp.MustCompile(`Total Execution Time:\s+([\d.]+)\s+seconds`),
}

// ClassTotal is the accumulated time of one job class.
type ClassTotal struct {
	Class   string  `json:"class"`
	Jobs    int     `json:"jobs"`
	Seconds float64 `json:"seconds"`
}

// Report is the result of a log directory scan.
type Report struct {
	Classes      []ClassTotal `json:"classes"`
	TotalSeconds float64      `json:"total_seconds"`
	Unmatched    int          `json:"unmatched_files"`
}

// TotalDuration returns the grand total as a time.Duration.
func (r *Report) TotalDuration() time.Duration {
	return time.Duration(r.TotalSeconds * float64(time.Second))
}

// Scan walks logDir for job output files and sums the reported execution
// times per class. Files whose names match no class, or that report no
// time, are counted as unmatched rather than failing the scan.
func Scan(ctx context.Context, logDir string, logger *zap.Logger) (*Report, error) {
	log := logger.With(zap.String("stage", "timings"))

	entries, err := os.ReadDir(logDir)
	if err != nil {
		return nil, pipeerrors.Wrap(err, pipeerrors.ErrorTypeIO, "failed to read log directory").
			WithDetail("path", logDir)
	}

	totals := map[string]*ClassTotal{
		ClassClean:     {Class: ClassClean},
		ClassHeatIndex: {Class: ClassHeatIndex},
		ClassHeatWaves: {Class: ClassHeatWaves},
	}
	report := &Report{}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() {
			continue
		}
		class := classify(entry.Name())
		if class == "" {
			continue
		}
		seconds, found, err := extractSeconds(filepath.Join(logDir, entry.Name()))
		if err != nil {
			return nil, err
		}
		if !found {
			report.Unmatched++
			log.Warn("no execution time found in log", zap.String("file", entry.Name()))
			continue
		}
		totals[class].Jobs++
		totals[class].Seconds += seconds
		report.TotalSeconds += seconds
	}

	for _, class := range []string{ClassClean, ClassHeatIndex, ClassHeatWaves} {
		report.Classes = append(report.Classes, *totals[class])
	}

	log.Info("timing scan complete",
		zap.Int("files", countJobs(report)),
		zap.Float64("total_seconds", report.TotalSeconds),
		zap.Duration("total", report.TotalDuration()))
	return report, nil
}

// Render formats the report the way the job summaries are read by hand.
func (r *Report) Render() string {
	var b strings.Builder
	fmt.Fprintln(&b, "=== Batch Job Timing Summary ===")
	for _, c := range r.Classes {
		fmt.Fprintf(&b, "%-12s %4d jobs  %12.2f s\n", c.Class, c.Jobs, c.Seconds)
	}
	fmt.Fprintf(&b, "%-12s %4d jobs  %12.2f s  (%.2f min, %.2f h)\n",
		"total", countJobs(r), r.TotalSeconds, r.TotalSeconds/60, r.TotalSeconds/3600)
	if r.Unmatched > 0 {
		fmt.Fprintf(&b, "unmatched files: %d\n", r.Unmatched)
	}
	return b.String()
}

func classify(name string) string {
	for _, cp := range classPatterns {
		if cp.pattern.MatchString(name) {
			return cp.class
		}
	}
	return ""
}

// extractSeconds returns the sum of every reported time in one log file.
// Retried jobs append a fresh summary line per attempt.
func extractSeconds(path string) (float64, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false, pipeerrors.Wrap(err, pipeerrors.ErrorTypeIO, "failed to read log file").
			WithDetail("path", path)
	}

	var sum float64
	var found bool
	for _, pattern := range timePatterns {
		for _, match := range pattern.FindAllStringSubmatch(string(data), -1) {
			seconds, err := strconv.ParseFloat(match[1], 64)
			if err != nil {
				continue
			}
			sum += seconds
			found = true
		}
	}
	return sum, found, nil
}

func countJobs(r *Report) int {
	var n int
	for _, c := range r.Classes {
		n += c.Jobs
	}
	return n
}
