package stats

import (
	"context"
	"errors"
	"io"
	"math"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/cumulus/pkg/config"
	"github.com/ajitpratap0/cumulus/pkg/csvio"
	"github.com/ajitpratap0/cumulus/pkg/pipeerrors"
)

// heatIndexHeader is the output contract of the monthly heat index stage;
// the report stage re-aggregates files with exactly these columns.
var heatIndexHeader = csvio.Header{
	"state", "year", "month",
	"min_heat_index", "max_heat_index", "avg_heat_index", "sample_count",
}

// HeatIndex calculates the apparent temperature using the Rothfusz
// regression (NWS formula). Input and output are Celsius; humidity is
// relative, 0-100.
func HeatIndex(tempC, humidity float64) float64 {
	tempF := tempC*9/5 + 32

	// Simple formula for lower temperatures
	hiF := 0.5 * (tempF + 61.0 + (tempF-68.0)*1.2 + humidity*0.094)

	// At 80°F and above the full regression applies
	if hiF >= 80 {
		hiF = -42.379 +
			2.04901523*tempF +
			10.14333127*humidity -
			0.22475541*tempF*humidity -
			0.00683783*tempF*tempF -
			0.05481717*humidity*humidity +
			0.00122874*tempF*tempF*humidity +
			0.00085282*tempF*humidity*humidity -
			0.00000199*tempF*tempF*humidity*humidity

		if humidity < 13 && tempF >= 80 && tempF <= 112 {
			hiF -= (13 - humidity) / 4 * math.Sqrt((17-math.Abs(tempF-95))/17)
		} else if humidity > 85 && tempF >= 80 && tempF <= 87 {
			hiF += (humidity - 85) / 10 * (87 - tempF) / 5
		}
	}

	return (hiF - 32) * 5 / 9
}

// MonthlyStat is one (state, year, month) heat index aggregate.
type MonthlyStat struct {
	State string
	Year  int
	Month int
	Min   float64
	Max   float64
	Avg   float64
	Count int64
}

// monthKey identifies one aggregation bucket.
type monthKey struct {
	state string
	year  int
	month int
}

type monthAgg struct {
	min   float64
	max   float64
	sum   float64
	count int64
}

// MonthlyHeatIndex computes per-state monthly heat index statistics from a
// cleaned observation file and writes them to cfg.Output. Rows with an
// unparsable datetime or missing temperature or humidity are dropped.
func MonthlyHeatIndex(ctx context.Context, cfg config.AnalysisConfig, logger *zap.Logger) ([]MonthlyStat, error) {
	start := time.Now()
	log := logger.With(
		zap.String("stage", "heat-index"),
		zap.String("input", cfg.Input))

	log.Info("starting monthly heat index analysis")

	reader, err := csvio.Open(cfg.Input)
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()

	idx, err := requireColumns(reader.Header(), "datetime", "state", "temperature", "humidity")
	if err != nil {
		return nil, err
	}
	dtIdx, stateIdx, tempIdx, humIdx := idx[0], idx[1], idx[2], idx[3]

	buckets := make(map[monthKey]*monthAgg)
	var rows, dropped int64

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
		rows++

		t, ok := parseDatetime(row[dtIdx])
		if !ok {
			dropped++
			continue
		}
		temp, tErr := strconv.ParseFloat(row[tempIdx], 64)
		hum, hErr := strconv.ParseFloat(row[humIdx], 64)
		if tErr != nil || hErr != nil {
			dropped++
			continue
		}

		hi := HeatIndex(temp, hum)
		key := monthKey{state: row[stateIdx], year: t.Year(), month: int(t.Month())}
		agg, exists := buckets[key]
		if !exists {
			agg = &monthAgg{min: hi, max: hi}
			buckets[key] = agg
		} else {
			if hi < agg.min {
				agg.min = hi
			}
			if hi > agg.max {
				agg.max = hi
			}
		}
		agg.sum += hi
		agg.count++
	}

	stats := make([]MonthlyStat, 0, len(buckets))
	for key, agg := range buckets {
		stats = append(stats, MonthlyStat{
			State: key.state,
			Year:  key.year,
			Month: key.month,
			Min:   round2(agg.min),
			Max:   round2(agg.max),
			Avg:   round2(agg.sum / float64(agg.count)),
			Count: agg.count,
		})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].State != stats[j].State {
			return stats[i].State < stats[j].State
		}
		if stats[i].Year != stats[j].Year {
			return stats[i].Year < stats[j].Year
		}
		return stats[i].Month < stats[j].Month
	})

	if err := writeMonthlyStats(cfg.Output, stats); err != nil {
		return nil, err
	}

	log.Info("monthly heat index analysis complete",
		zap.Int64("rows", rows),
		zap.Int64("rows_dropped", dropped),
		zap.Int("monthly_records", len(stats)),
		zap.Duration("elapsed", time.Since(start)),
		zap.String("output", cfg.Output))

	return stats, nil
}

// writeMonthlyStats writes the aggregates using the stage's output contract.
func writeMonthlyStats(path string, stats []MonthlyStat) error {
	writer, err := csvio.Create(path, heatIndexHeader)
	if err != nil {
		return err
	}
	for _, s := range stats {
		row := []string{
			s.State,
			strconv.Itoa(s.Year),
			strconv.Itoa(s.Month),
			strconv.FormatFloat(s.Min, 'f', -1, 64),
			strconv.FormatFloat(s.Max, 'f', -1, 64),
			strconv.FormatFloat(s.Avg, 'f', -1, 64),
			strconv.FormatInt(s.Count, 10),
		}
		if err := writer.Write(row); err != nil {
			_ = writer.Close()
			return err
		}
	}
	return writer.Close()
}
