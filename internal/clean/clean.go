package clean

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/cumulus/pkg/config"
	"github.com/ajitpratap0/cumulus/pkg/csvio"
	"github.com/ajitpratap0/cumulus/pkg/metrics"
	"github.com/ajitpratap0/cumulus/pkg/pipeerrors"
)

// segmentNameRe matches the partitioner's file-naming contract:
// weather_<year> with an optional _part_<NN> segment suffix.
var segmentNameRe = regexp.MustCompile(`^weather_(\d{4})(?:_part_(\d+))?`)

// sanityLimit is a physical plausibility range enforced by clipping.
type sanityLimit struct {
	min, max float64
}

// sanityLimits maps (case-insensitive) column names to their plausible
// physical ranges.
var sanityLimits = map[string]sanityLimit{
	"humidity":            {0, 100},
	"temperature":         {-60, 60},
	"wind_speed":          {0, 150},
	"pressure":            {800, 1100},
	"precipitation_rate":  {0, 500},
	"precipitation_total": {0, 500},
	"uv_index":            {0, 15},
	"visibility":          {0, 100},
}

// CleanResult reports the outcome of cleaning one per-year file.
type CleanResult struct {
	Rows           int
	DroppedColumns []string
	ClippedValues  int
	Output         string
	Elapsed        time.Duration
}

// OutputName derives the cleaned file name from a partition segment name,
// preserving the year and segment index: weather_2019_part_03.csv becomes
// clean_2019_part_03.csv. Inputs outside the naming contract map to
// clean.csv.
func OutputName(inputPath string) string {
	base := filepath.Base(inputPath)

	name := "clean"
	if m := segmentNameRe.FindStringSubmatch(base); m != nil {
		name += "_" + m[1]
		if m[2] != "" {
			part, _ := strconv.Atoi(m[2])
			name += fmt.Sprintf("_part_%02d", part)
		}
	}
	return name + ".csv"
}

// Clean loads one per-year partition file, drops sparse columns, imputes
// missing values, and clips physically implausible readings. Per-year files
// are bounded by the partitioner's rollover budget, so whole-file loading
// is safe here, unlike in the split stage.
//
// Imputation order: forward fill, then backward fill for gaps at the start,
// then zero for anything still missing.
func Clean(ctx context.Context, cfg config.CleanConfig, logger *zap.Logger) (*CleanResult, error) {
	timer := metrics.NewTimer("clean")
	log := logger.With(
		zap.String("stage", "clean"),
		zap.String("input", cfg.Input))

	log.Info("starting clean job")

	header, rows, err := loadAll(ctx, cfg.Input)
	if err != nil {
		return nil, err
	}

	header, rows, dropped := dropSparseColumns(header, rows, cfg.SparseThreshold)
	if len(dropped) > 0 {
		log.Info("dropped sparse columns", zap.Strings("columns", dropped))
	}

	imputed := imputeMissing(rows)
	if imputed > 0 {
		log.Info("imputed missing values", zap.Int("count", imputed))
	}

	clipped := clipToSanityLimits(header, rows)
	if clipped > 0 {
		log.Info("clipped abnormal values", zap.Int("count", clipped))
	}

	output := filepath.Join(cfg.OutDir, OutputName(cfg.Input))
	writer, err := csvio.Create(output, header)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			_ = writer.Close()
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	result := &CleanResult{
		Rows:           len(rows),
		DroppedColumns: dropped,
		ClippedValues:  clipped,
		Output:         output,
		Elapsed:        timer.Stop(),
	}

	log.Info("clean job complete",
		zap.Int("rows", result.Rows),
		zap.Duration("elapsed", result.Elapsed),
		zap.String("output", output))

	return result, nil
}

// loadAll reads an entire CSV file into memory.
func loadAll(ctx context.Context, path string) (csvio.Header, [][]string, error) {
	reader, err := csvio.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = reader.Close() }()

	var rows [][]string
	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		row, readErr := reader.Next()
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return nil, nil, pipeerrors.Wrap(readErr, pipeerrors.ErrorTypeData, "failed to read input row")
		}
		rows = append(rows, row)
	}
	return reader.Header(), rows, nil
}

// dropSparseColumns removes columns whose non-empty ratio falls below the
// threshold, returning the remaining header, projected rows, and the names
// of the dropped columns.
func dropSparseColumns(header csvio.Header, rows [][]string, threshold float64) (csvio.Header, [][]string, []string) {
	if len(rows) == 0 {
		return header, rows, nil
	}

	nonEmpty := make([]int, len(header))
	for _, row := range rows {
		for i, v := range row {
			if v != "" {
				nonEmpty[i]++
			}
		}
	}

	limit := threshold * float64(len(rows))
	var keptIdx []int
	var dropped []string
	keptHeader := make(csvio.Header, 0, len(header))
	for i, col := range header {
		if float64(nonEmpty[i]) >= limit {
			keptIdx = append(keptIdx, i)
			keptHeader = append(keptHeader, col)
		} else {
			dropped = append(dropped, col)
		}
	}
	if len(dropped) == 0 {
		return header, rows, nil
	}

	for r, row := range rows {
		projected := make([]string, len(keptIdx))
		for i, idx := range keptIdx {
			projected[i] = row[idx]
		}
		rows[r] = projected
	}
	return keptHeader, rows, dropped
}

// imputeMissing fills empty cells per column: forward fill, then backward
// fill, then "0" as the safety net. Returns the number of filled cells.
func imputeMissing(rows [][]string) int {
	if len(rows) == 0 {
		return 0
	}

	filled := 0
	width := len(rows[0])

	for col := 0; col < width; col++ {
		// Forward fill
		last := ""
		for r := range rows {
			if rows[r][col] == "" {
				if last != "" {
					rows[r][col] = last
					filled++
				}
			} else {
				last = rows[r][col]
			}
		}
		// Backward fill for gaps at the start
		last = ""
		for r := len(rows) - 1; r >= 0; r-- {
			if rows[r][col] == "" {
				if last != "" {
					rows[r][col] = last
					filled++
				}
			} else {
				last = rows[r][col]
			}
		}
		// Safety net: anything left becomes zero
		for r := range rows {
			if rows[r][col] == "" {
				rows[r][col] = "0"
				filled++
			}
		}
	}
	return filled
}

// clipToSanityLimits forces numeric values into their physically plausible
// ranges. Column matching is case-insensitive; non-numeric values are left
// untouched. Returns the number of clipped cells.
func clipToSanityLimits(header csvio.Header, rows [][]string) int {
	clipped := 0
	for i, col := range header {
		limit, ok := sanityLimits[strings.ToLower(col)]
		if !ok {
			continue
		}
		for r := range rows {
			v, err := strconv.ParseFloat(rows[r][i], 64)
			if err != nil {
				continue
			}
			switch {
			case v < limit.min:
				rows[r][i] = formatFloat(limit.min)
				clipped++
			case v > limit.max:
				rows[r][i] = formatFloat(limit.max)
				clipped++
			}
		}
	}
	return clipped
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
