package stats

import (
	"context"
	"errors"
	"io"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/cumulus/pkg/config"
	"github.com/ajitpratap0/cumulus/pkg/csvio"
	"github.com/ajitpratap0/cumulus/pkg/pipeerrors"
)

// heatWaveHeader is the output contract of the heat wave stage; the report
// stage merges files with exactly these columns. The header is written even
// when no waves are found.
var heatWaveHeader = csvio.Header{
	"state", "start_date", "end_date", "duration_days", "avg_temperature",
}

// HeatWave is one detected streak of consecutive hot days in a state.
type HeatWave struct {
	State          string
	StartDate      time.Time
	EndDate        time.Time
	DurationDays   int
	AvgTemperature float64
}

// dayTemp is one day's mean temperature.
type dayTemp struct {
	day  time.Time
	mean float64
}

// HeatWaves detects heat waves in a cleaned observation file and writes
// them to cfg.Output. A heat wave is a run of consecutive calendar days
// whose daily mean temperature meets cfg.HeatWaveThreshold for at least
// cfg.HeatWaveMinDays days. A below-threshold day or a gap in the calendar
// terminates a run; a qualifying day right after a gap starts a new one.
func HeatWaves(ctx context.Context, cfg config.AnalysisConfig, logger *zap.Logger) ([]HeatWave, error) {
	start := time.Now()
	log := logger.With(
		zap.String("stage", "heat-waves"),
		zap.String("input", cfg.Input))

	log.Info("starting heat wave detection",
		zap.Float64("threshold", cfg.HeatWaveThreshold),
		zap.Int("min_days", cfg.HeatWaveMinDays))

	daily, err := dailyMeans(ctx, cfg.Input)
	if err != nil {
		return nil, err
	}

	states := make([]string, 0, len(daily))
	for state := range daily {
		states = append(states, state)
	}
	sort.Strings(states)

	var waves []HeatWave
	for _, state := range states {
		days := daily[state]
		sort.Slice(days, func(i, j int) bool { return days[i].day.Before(days[j].day) })
		waves = append(waves, detectWaves(state, days, cfg.HeatWaveThreshold, cfg.HeatWaveMinDays)...)
	}

	if err := writeWaves(cfg.Output, waves); err != nil {
		return nil, err
	}

	log.Info("heat wave detection complete",
		zap.Int("states", len(states)),
		zap.Int("waves", len(waves)),
		zap.Duration("elapsed", time.Since(start)),
		zap.String("output", cfg.Output))

	return waves, nil
}

// dailyMeans aggregates hourly observations into per-state daily mean
// temperatures. Rows with an unparsable datetime or temperature are
// dropped.
func dailyMeans(ctx context.Context, path string) (map[string][]dayTemp, error) {
	reader, err := csvio.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()

	idx, err := requireColumns(reader.Header(), "datetime", "state", "temperature")
	if err != nil {
		return nil, err
	}
	dtIdx, stateIdx, tempIdx := idx[0], idx[1], idx[2]

	type sumCount struct {
		sum   float64
		count int64
	}
	type stateDay struct {
		state string
		day   time.Time
	}
	acc := make(map[stateDay]*sumCount)

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

		t, ok := parseDatetime(row[dtIdx])
		if !ok {
			continue
		}
		temp, tErr := strconv.ParseFloat(row[tempIdx], 64)
		if tErr != nil {
			continue
		}

		key := stateDay{
			state: row[stateIdx],
			day:   time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC),
		}
		sc, exists := acc[key]
		if !exists {
			sc = &sumCount{}
			acc[key] = sc
		}
		sc.sum += temp
		sc.count++
	}

	daily := make(map[string][]dayTemp)
	for key, sc := range acc {
		daily[key.state] = append(daily[key.state], dayTemp{
			day:  key.day,
			mean: sc.sum / float64(sc.count),
		})
	}
	return daily, nil
}

// detectWaves scans one state's date-sorted daily means for qualifying
// consecutive-day runs.
func detectWaves(state string, days []dayTemp, threshold float64, minDays int) []HeatWave {
	var waves []HeatWave
	var run []dayTemp

	flush := func() {
		if len(run) >= minDays {
			sum := 0.0
			for _, d := range run {
				sum += d.mean
			}
			first, last := run[0].day, run[len(run)-1].day
			waves = append(waves, HeatWave{
				State:          state,
				StartDate:      first,
				EndDate:        last,
				DurationDays:   int(last.Sub(first).Hours()/24) + 1,
				AvgTemperature: round2(sum / float64(len(run))),
			})
		}
		run = nil
	}

	for _, d := range days {
		hot := d.mean >= threshold
		consecutive := len(run) > 0 && d.day.Sub(run[len(run)-1].day) == 24*time.Hour

		switch {
		case hot && (len(run) == 0 || consecutive):
			run = append(run, d)
		case hot:
			// Qualifying day after a calendar gap starts a new run
			flush()
			run = []dayTemp{d}
		default:
			flush()
		}
	}
	flush()

	return waves
}

// writeWaves writes detected waves using the stage's output contract.
func writeWaves(path string, waves []HeatWave) error {
	writer, err := csvio.Create(path, heatWaveHeader)
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
