// Package report aggregates the per-file analysis outputs into final
// artifacts: merged heat wave and heat index CSVs, a human-readable text
// summary, and a machine-readable JSON summary.
package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	gojson "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ajitpratap0/cumulus/internal/stats"
	"github.com/ajitpratap0/cumulus/pkg/pipeerrors"
)

// Output file names of the aggregation stage.
const (
	HeatWavesFile = "FINAL_heat_waves.csv"
	HeatIndexFile = "FINAL_heat_index.csv"
	TextReport    = "FINAL_summary_report.txt"
	JSONReport    = "FINAL_summary_report.json"
)

// Summary is the machine-readable form of the final report.
type Summary struct {
	GeneratedAt string           `json:"generated_at"`
	HeatWaves   HeatWaveSummary  `json:"heat_waves"`
	HeatIndex   HeatIndexSummary `json:"heat_index"`
}

// HeatWaveSummary aggregates the merged heat wave records.
type HeatWaveSummary struct {
	Total          int            `json:"total"`
	StatesAffected int            `json:"states_affected"`
	LongestDays    int            `json:"longest_days"`
	AvgDuration    float64        `json:"avg_duration_days"`
	HottestAvgTemp float64        `json:"hottest_avg_temp"`
	ByState        map[string]int `json:"by_state"`
}

// HeatIndexSummary aggregates the merged monthly heat index records.
type HeatIndexSummary struct {
	MonthlyRecords int                `json:"monthly_records"`
	OverallMax     float64            `json:"overall_max"`
	OverallMin     float64            `json:"overall_min"`
	OverallAvg     float64            `json:"overall_avg"`
	AvgByState     map[string]float64 `json:"avg_by_state"`
}

// Generate merges every heat_waves_*.csv and heat_index_*.csv under
// analysisDir and renders the final artifacts into outDir. Rows with
// unparsable numeric fields are dropped rather than failing the merge;
// upstream jobs occasionally leave truncated files behind.
func Generate(ctx context.Context, analysisDir, outDir string, logger *zap.Logger) (*Summary, error) {
	start := time.Now()
	log := logger.With(zap.String("stage", "report"))

	log.Info("starting aggregation", zap.String("analysis_dir", analysisDir))

	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return nil, pipeerrors.Wrap(err, pipeerrors.ErrorTypeIO, "failed to create output directory")
	}

	waves, err := mergeHeatWaves(ctx, analysisDir, log)
	if err != nil {
		return nil, err
	}
	if err := writeWavesCSV(filepath.Join(outDir, HeatWavesFile), waves); err != nil {
		return nil, err
	}

	monthly, err := mergeHeatIndex(ctx, analysisDir, log)
	if err != nil {
		return nil, err
	}
	if err := writeMonthlyCSV(filepath.Join(outDir, HeatIndexFile), monthly); err != nil {
		return nil, err
	}

	summary := buildSummary(waves, monthly)

	if err := renderText(filepath.Join(outDir, TextReport), waves, monthly, summary); err != nil {
		return nil, err
	}
	if err := renderJSON(filepath.Join(outDir, JSONReport), summary); err != nil {
		return nil, err
	}

	log.Info("aggregation complete",
		zap.Int("heat_waves", len(waves)),
		zap.Int("monthly_records", len(monthly)),
		zap.Duration("elapsed", time.Since(start)),
		zap.String("out_dir", outDir))

	return summary, nil
}

// buildSummary computes the aggregates shared by the text and JSON reports.
func buildSummary(waves []stats.HeatWave, monthly []stats.MonthlyStat) *Summary {
	summary := &Summary{
		GeneratedAt: time.Now().UTC().Format("2006-01-02 15:04:05"),
		HeatWaves:   HeatWaveSummary{ByState: make(map[string]int)},
		HeatIndex:   HeatIndexSummary{AvgByState: make(map[string]float64)},
	}

	if len(waves) > 0 {
		states := make(map[string]bool)
		var durationSum int
		for _, w := range waves {
			states[w.State] = true
			summary.HeatWaves.ByState[w.State]++
			durationSum += w.DurationDays
			if w.DurationDays > summary.HeatWaves.LongestDays {
				summary.HeatWaves.LongestDays = w.DurationDays
			}
			if w.AvgTemperature > summary.HeatWaves.HottestAvgTemp {
				summary.HeatWaves.HottestAvgTemp = w.AvgTemperature
			}
		}
		summary.HeatWaves.Total = len(waves)
		summary.HeatWaves.StatesAffected = len(states)
		summary.HeatWaves.AvgDuration = round1(float64(durationSum) / float64(len(waves)))
	}

	if len(monthly) > 0 {
		summary.HeatIndex.MonthlyRecords = len(monthly)
		summary.HeatIndex.OverallMin = monthly[0].Min
		summary.HeatIndex.OverallMax = monthly[0].Max

		type sumCount struct {
			sum   float64
			count int
		}
		byState := make(map[string]*sumCount)
		var avgSum float64
		for _, m := range monthly {
			if m.Min < summary.HeatIndex.OverallMin {
				summary.HeatIndex.OverallMin = m.Min
			}
			if m.Max > summary.HeatIndex.OverallMax {
				summary.HeatIndex.OverallMax = m.Max
			}
			avgSum += m.Avg
			sc, ok := byState[m.State]
			if !ok {
				sc = &sumCount{}
				byState[m.State] = sc
			}
			sc.sum += m.Avg
			sc.count++
		}
		summary.HeatIndex.OverallAvg = round2(avgSum / float64(len(monthly)))
		for state, sc := range byState {
			summary.HeatIndex.AvgByState[state] = round2(sc.sum / float64(sc.count))
		}
	}

	return summary
}

// renderText writes the human-readable report.
func renderText(path string, waves []stats.HeatWave, monthly []stats.MonthlyStat, summary *Summary) error {
	var b strings.Builder
	rule := strings.Repeat("=", 51)
	sep := strings.Repeat("-", 30)

	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, "       MALAYSIA CLIMATE RISK ANALYSIS REPORT")
	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "Generated on: %s UTC\n", summary.GeneratedAt)

	fmt.Fprintf(&b, "\n%s\n1. HEAT WAVES ANALYSIS\n%s\n", sep, sep)
	if len(waves) > 0 {
		fmt.Fprintf(&b, "Total Heat Waves Detected: %d\n", summary.HeatWaves.Total)
		fmt.Fprintf(&b, "States Affected: %d\n", summary.HeatWaves.StatesAffected)
		fmt.Fprintf(&b, "Longest Heat Wave: %d days\n", summary.HeatWaves.LongestDays)
		fmt.Fprintf(&b, "Avg Heat Wave Duration: %.1f days\n", summary.HeatWaves.AvgDuration)
		fmt.Fprintf(&b, "Hottest Wave Avg Temp: %.2f°C\n", summary.HeatWaves.HottestAvgTemp)

		fmt.Fprintln(&b, "\nTop 5 Longest Heat Waves:")
		for _, w := range topWavesByDuration(waves, 5) {
			fmt.Fprintf(&b, "  - %s: %d days (%s to %s) @ %g°C\n",
				w.State, w.DurationDays,
				w.StartDate.Format("2006-01-02"), w.EndDate.Format("2006-01-02"),
				w.AvgTemperature)
		}

		fmt.Fprintln(&b, "\nHeat Waves by State (Count):")
		for _, sc := range sortedCounts(summary.HeatWaves.ByState, 10) {
			fmt.Fprintf(&b, "  - %s: %d\n", sc.state, sc.count)
		}
	} else {
		fmt.Fprintln(&b, "No heat waves detected.")
	}

	fmt.Fprintf(&b, "\n%s\n2. HEAT INDEX ANALYSIS (Monthly)\n%s\n", sep, sep)
	if len(monthly) > 0 {
		fmt.Fprintf(&b, "Total Monthly Records: %d\n", summary.HeatIndex.MonthlyRecords)
		fmt.Fprintf(&b, "Overall Max Heat Index: %.2f°C\n", summary.HeatIndex.OverallMax)
		fmt.Fprintf(&b, "Overall Min Heat Index: %.2f°C\n", summary.HeatIndex.OverallMin)
		fmt.Fprintf(&b, "Overall Avg Heat Index: %.2f°C\n", summary.HeatIndex.OverallAvg)

		fmt.Fprintln(&b, "\nTop 5 Hottest Months (Max Heat Index):")
		for _, m := range topMonthsByMax(monthly, 5) {
			fmt.Fprintf(&b, "  - %s (%d-%02d): Max %g°C\n", m.State, m.Year, m.Month, m.Max)
		}

		fmt.Fprintln(&b, "\nAverage Heat Index by State:")
		for _, sa := range sortedAverages(summary.HeatIndex.AvgByState) {
			fmt.Fprintf(&b, "  - %s: %.2f°C\n", sa.state, sa.avg)
		}
	} else {
		fmt.Fprintln(&b, "No heat index data found.")
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		return pipeerrors.Wrap(err, pipeerrors.ErrorTypeIO, "failed to write text report").
			WithDetail("path", path)
	}
	return nil
}

// renderJSON writes the machine-readable report.
func renderJSON(path string, summary *Summary) error {
	data, err := gojson.MarshalIndent(summary, "", "  ")
	if err != nil {
		return pipeerrors.Wrap(err, pipeerrors.ErrorTypeInternal, "failed to marshal summary")
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return pipeerrors.Wrap(err, pipeerrors.ErrorTypeIO, "failed to write JSON report").
			WithDetail("path", path)
	}
	return nil
}

func topWavesByDuration(waves []stats.HeatWave, n int) []stats.HeatWave {
	sorted := make([]stats.HeatWave, len(waves))
	copy(sorted, waves)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].DurationDays > sorted[j].DurationDays
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func topMonthsByMax(monthly []stats.MonthlyStat, n int) []stats.MonthlyStat {
	sorted := make([]stats.MonthlyStat, len(monthly))
	copy(sorted, monthly)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Max > sorted[j].Max
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

type stateCount struct {
	state string
	count int
}

func sortedCounts(byState map[string]int, n int) []stateCount {
	counts := make([]stateCount, 0, len(byState))
	for state, count := range byState {
		counts = append(counts, stateCount{state, count})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].count != counts[j].count {
			return counts[i].count > counts[j].count
		}
		return counts[i].state < counts[j].state
	})
	if len(counts) > n {
		counts = counts[:n]
	}
	return counts
}

type stateAvg struct {
	state string
	avg   float64
}

func sortedAverages(byState map[string]float64) []stateAvg {
	averages := make([]stateAvg, 0, len(byState))
	for state, avg := range byState {
		averages = append(averages, stateAvg{state, avg})
	}
	sort.Slice(averages, func(i, j int) bool {
		if averages[i].avg != averages[j].avg {
			return averages[i].avg > averages[j].avg
		}
		return averages[i].state < averages[j].state
	})
	return averages
}
