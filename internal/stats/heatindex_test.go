package stats

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ajitpratap0/cumulus/pkg/config"
)

func writeInput(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clean_2020.csv")
	content := strings.Join(lines, "\n") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func analysisConfig(input, output string) config.AnalysisConfig {
	cfg := config.Default().Analysis
	cfg.Input = input
	cfg.Output = output
	return cfg
}

func TestHeatIndexLowTemperature(t *testing.T) {
	// Below 80°F only the simple formula applies, so the apparent
	// temperature stays close to the actual one.
	hi := HeatIndex(20.0, 50.0)
	assert.InDelta(t, 19.36, hi, 0.01)
}

func TestHeatIndexHotHumid(t *testing.T) {
	// 35°C at 60% humidity is firmly in regression territory; the
	// apparent temperature is far above the actual reading.
	hi := HeatIndex(35.0, 60.0)
	assert.InDelta(t, 45.05, hi, 0.2)
	assert.Greater(t, hi, 35.0)
}

func TestHeatIndexHumidityMonotonicWhenHot(t *testing.T) {
	dry := HeatIndex(35.0, 10.0)
	moderate := HeatIndex(35.0, 50.0)
	humid := HeatIndex(35.0, 90.0)
	assert.Less(t, dry, moderate)
	assert.Less(t, moderate, humid)
}

func TestMonthlyHeatIndexAggregation(t *testing.T) {
	input := writeInput(t,
		"datetime,state,temperature,humidity",
		"2020-01-01 10:00:00,Selangor,30.0,80",
		"2020-01-15 14:00:00,Selangor,34.0,70",
		"2020-02-01 12:00:00,Selangor,31.0,75",
		"2020-01-05 12:00:00,Johor,29.0,85",
		"not-a-date,Johor,29.0,85",
		"2020-01-06 12:00:00,Johor,n/a,85",
	)
	output := filepath.Join(t.TempDir(), "heat_index_2020.csv")

	stats, err := MonthlyHeatIndex(context.Background(), analysisConfig(input, output), zap.NewNop())
	require.NoError(t, err)

	// Malformed rows are dropped, leaving three buckets sorted by
	// state, year, month
	require.Len(t, stats, 3)
	assert.Equal(t, "Johor", stats[0].State)
	assert.Equal(t, 1, stats[0].Month)
	assert.Equal(t, int64(1), stats[0].Count)

	assert.Equal(t, "Selangor", stats[1].State)
	assert.Equal(t, 1, stats[1].Month)
	assert.Equal(t, int64(2), stats[1].Count)
	assert.LessOrEqual(t, stats[1].Min, stats[1].Avg)
	assert.LessOrEqual(t, stats[1].Avg, stats[1].Max)

	assert.Equal(t, 2, stats[2].Month)

	records := readCSV(t, output)
	require.Len(t, records, 4)
	assert.Equal(t,
		[]string{"state", "year", "month", "min_heat_index", "max_heat_index", "avg_heat_index", "sample_count"},
		records[0])
	assert.Equal(t, "Johor", records[1][0])
}

func TestMonthlyHeatIndexMissingColumn(t *testing.T) {
	input := writeInput(t,
		"datetime,state,temperature",
		"2020-01-01 10:00:00,Selangor,30.0",
	)
	output := filepath.Join(t.TempDir(), "heat_index.csv")

	_, err := MonthlyHeatIndex(context.Background(), analysisConfig(input, output), zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "humidity")
}
