package report

import (
	"context"
	"errors"
	"io"
	"math"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/cumulus/internal/stats"
	"github.com/ajitpratap0/cumulus/pkg/csvio"
	"github.com/ajitpratap0/cumulus/pkg/pipeerrors"
)

var (
	wavesHeader = csvio.Header{
		"state", "start_date", "end_date", "duration_days", "avg_temperature",
	}
	monthlyHeader = csvio.Header{
		"state", "year", "month",
		"min_heat_index", "max_heat_index", "avg_heat_index", "sample_count",
	}
)

// mergeHeatWaves loads every heat_waves_*.csv under dir and returns the
// records sorted by state and start date.
func mergeHeatWaves(ctx context.Context, dir string, log *zap.Logger) ([]stats.HeatWave, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "heat_waves_*.csv"))
	if err != nil {
		return nil, pipeerrors.Wrap(err, pipeerrors.ErrorTypeIO, "failed to glob heat wave files")
	}
	sort.Strings(paths)

	var waves []stats.HeatWave
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fileWaves, dropped, err := readWaveFile(path)
		if err != nil {
			return nil, err
		}
		if dropped > 0 {
			log.Warn("dropped malformed heat wave rows",
				zap.String("file", filepath.Base(path)), zap.Int("dropped", dropped))
		}
		waves = append(waves, fileWaves...)
	}

	sort.Slice(waves, func(i, j int) bool {
		if waves[i].State != waves[j].State {
			return waves[i].State < waves[j].State
		}
		return waves[i].StartDate.Before(waves[j].StartDate)
	})

	log.Info("merged heat wave files", zap.Int("files", len(paths)), zap.Int("waves", len(waves)))
	return waves, nil
}

func readWaveFile(path string) ([]stats.HeatWave, int, error) {
	reader, err := csvio.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = reader.Close() }()

	header := reader.Header()
	cols, err := columnIndices(header, path, "state", "start_date", "end_date", "duration_days", "avg_temperature")
	if err != nil {
		return nil, 0, err
	}

	var waves []stats.HeatWave
	var dropped int
	for {
		row, readErr := reader.Next()
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return nil, 0, pipeerrors.Wrap(readErr, pipeerrors.ErrorTypeData, "failed to read analysis file").
				WithDetail("path", path)
		}
		start, ok1 := parseDay(row[cols[1]])
		end, ok2 := parseDay(row[cols[2]])
		duration, err1 := strconv.Atoi(row[cols[3]])
		avg, err2 := strconv.ParseFloat(row[cols[4]], 64)
		if !ok1 || !ok2 || err1 != nil || err2 != nil {
			dropped++
			continue
		}
		waves = append(waves, stats.HeatWave{
			State:          row[cols[0]],
			StartDate:      start,
			EndDate:        end,
			DurationDays:   duration,
			AvgTemperature: avg,
		})
	}
	return waves, dropped, nil
}

// mergeHeatIndex loads every heat_index_*.csv under dir and re-aggregates
// records that landed in separate files for the same state and month. Split
// months come from the partitioner's rollover segments; min of mins, max of
// maxes and a sample-count-weighted mean recover the whole-month figures.
func mergeHeatIndex(ctx context.Context, dir string, log *zap.Logger) ([]stats.MonthlyStat, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "heat_index_*.csv"))
	if err != nil {
		return nil, pipeerrors.Wrap(err, pipeerrors.ErrorTypeIO, "failed to glob heat index files")
	}
	sort.Strings(paths)

	type monthKey struct {
		state string
		year  int
		month int
	}
	type monthAgg struct {
		min     float64
		max     float64
		avgSum  float64 // avg * count, summed across partial records
		samples int64
	}

	buckets := make(map[monthKey]*monthAgg)
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		records, dropped, err := readMonthlyFile(path)
		if err != nil {
			return nil, err
		}
		if dropped > 0 {
			log.Warn("dropped malformed heat index rows",
				zap.String("file", filepath.Base(path)), zap.Int("dropped", dropped))
		}
		for _, m := range records {
			key := monthKey{m.State, m.Year, m.Month}
			agg, ok := buckets[key]
			if !ok {
				buckets[key] = &monthAgg{
					min:     m.Min,
					max:     m.Max,
					avgSum:  m.Avg * float64(m.Count),
					samples: m.Count,
				}
				continue
			}
			if m.Min < agg.min {
				agg.min = m.Min
			}
			if m.Max > agg.max {
				agg.max = m.Max
			}
			agg.avgSum += m.Avg * float64(m.Count)
			agg.samples += m.Count
		}
	}

	monthly := make([]stats.MonthlyStat, 0, len(buckets))
	for key, agg := range buckets {
		stat := stats.MonthlyStat{
			State: key.state,
			Year:  key.year,
			Month: key.month,
			Min:   round2(agg.min),
			Max:   round2(agg.max),
			Count: agg.samples,
		}
		if agg.samples > 0 {
			stat.Avg = round2(agg.avgSum / float64(agg.samples))
		}
		monthly = append(monthly, stat)
	}
	sort.Slice(monthly, func(i, j int) bool {
		a, b := monthly[i], monthly[j]
		if a.State != b.State {
			return a.State < b.State
		}
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		return a.Month < b.Month
	})

	log.Info("merged heat index files", zap.Int("files", len(paths)), zap.Int("months", len(monthly)))
	return monthly, nil
}

func readMonthlyFile(path string) ([]stats.MonthlyStat, int, error) {
	reader, err := csvio.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = reader.Close() }()

	header := reader.Header()
	cols, err := columnIndices(header, path,
		"state", "year", "month", "min_heat_index", "max_heat_index", "avg_heat_index", "sample_count")
	if err != nil {
		return nil, 0, err
	}

	var records []stats.MonthlyStat
	var dropped int
	for {
		row, readErr := reader.Next()
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return nil, 0, pipeerrors.Wrap(readErr, pipeerrors.ErrorTypeData, "failed to read analysis file").
				WithDetail("path", path)
		}
		year, err1 := strconv.Atoi(row[cols[1]])
		month, err2 := strconv.Atoi(row[cols[2]])
		min, err3 := strconv.ParseFloat(row[cols[3]], 64)
		max, err4 := strconv.ParseFloat(row[cols[4]], 64)
		avg, err5 := strconv.ParseFloat(row[cols[5]], 64)
		count, err6 := strconv.ParseInt(row[cols[6]], 10, 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil || err6 != nil {
			dropped++
			continue
		}
		records = append(records, stats.MonthlyStat{
			State: row[cols[0]],
			Year:  year,
			Month: month,
			Min:   min,
			Max:   max,
			Avg:   avg,
			Count: count,
		})
	}
	return records, dropped, nil
}

func writeWavesCSV(path string, waves []stats.HeatWave) error {
	writer, err := csvio.Create(path, wavesHeader)
	if err != nil {
		return err
	}
	for _, w := range waves {
		row := []string{
			w.State,
			w.StartDate.Format("2006-01-02"),
			w.EndDate.Format("2006-01-02"),
			strconv.Itoa(w.DurationDays),
			strconv.FormatFloat(w.AvgTemperature, 'f', -1, 64),
		}
		if err := writer.Write(row); err != nil {
			_ = writer.Close()
			return err
		}
	}
	return writer.Close()
}

func writeMonthlyCSV(path string, monthly []stats.MonthlyStat) error {
	writer, err := csvio.Create(path, monthlyHeader)
	if err != nil {
		return err
	}
	for _, m := range monthly {
		row := []string{
			m.State,
			strconv.Itoa(m.Year),
			strconv.Itoa(m.Month),
			strconv.FormatFloat(m.Min, 'f', -1, 64),
			strconv.FormatFloat(m.Max, 'f', -1, 64),
			strconv.FormatFloat(m.Avg, 'f', -1, 64),
			strconv.FormatInt(m.Count, 10),
		}
		if err := writer.Write(row); err != nil {
			_ = writer.Close()
			return err
		}
	}
	return writer.Close()
}

func columnIndices(header csvio.Header, path string, names ...string) ([]int, error) {
	indices := make([]int, len(names))
	for i, name := range names {
		idx := header.Index(name)
		if idx < 0 {
			return nil, pipeerrors.Newf(pipeerrors.ErrorTypeData,
				"column %q missing from analysis file", name).
				WithDetail("path", path)
		}
		indices[i] = idx
	}
	return indices, nil
}

func parseDay(value string) (time.Time, bool) {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
