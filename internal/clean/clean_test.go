package clean

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

func writeFile(t *testing.T, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
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

func TestOutputName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"weather_2019.csv", "clean_2019.csv"},
		{"weather_2019_part_03.csv", "clean_2019_part_03.csv"},
		{"/data/splits/weather_2021_part_00.csv", "clean_2021_part_00.csv"},
		{"weather_2021_part_12.csv", "clean_2021_part_12.csv"},
		{"something_else.csv", "clean.csv"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, OutputName(tt.input), "input %s", tt.input)
	}
}

func TestPruneKeepsConfiguredColumnsInFileOrder(t *testing.T) {
	input := writeFile(t, "raw.csv",
		"station_id,temperature,noise,datetime,humidity",
		"S1,30.5,x,2020-01-01 00:00:00,80",
		"S2,29.0,y,2020-01-02 00:00:00,75",
	)
	output := filepath.Join(t.TempDir(), "pruned.csv")

	cfg := config.Default().Prune
	cfg.Input = input
	cfg.Output = output

	result, err := Prune(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.RowsRead)
	assert.Equal(t, int64(2), result.RowsWritten)

	records := readCSV(t, output)
	require.Len(t, records, 3)
	// Column order follows the input file, not the keep list
	assert.Equal(t, []string{"temperature", "datetime", "humidity"}, records[0])
	assert.Equal(t, []string{"30.5", "2020-01-01 00:00:00", "80"}, records[1])
}

func TestPruneDropsRowsMissingBothReadings(t *testing.T) {
	input := writeFile(t, "raw.csv",
		"datetime,temperature,humidity",
		"2020-01-01 00:00:00,30.5,80",
		"2020-01-02 00:00:00,,",    // both missing, dropped
		"2020-01-03 00:00:00,,70",  // humidity present, kept
		"2020-01-04 00:00:00,28.1,", // temperature present, kept
	)
	output := filepath.Join(t.TempDir(), "pruned.csv")

	cfg := config.Default().Prune
	cfg.Input = input
	cfg.Output = output

	result, err := Prune(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, int64(4), result.RowsRead)
	assert.Equal(t, int64(3), result.RowsWritten)

	records := readCSV(t, output)
	require.Len(t, records, 4)
	assert.Equal(t, "2020-01-03 00:00:00", records[2][0])
}

func TestPruneNoKeepColumnsPresent(t *testing.T) {
	input := writeFile(t, "raw.csv",
		"a,b,c",
		"1,2,3",
	)
	cfg := config.Default().Prune
	cfg.Input = input
	cfg.Output = filepath.Join(t.TempDir(), "pruned.csv")

	_, err := Prune(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keep_columns")
}

func TestCleanDropsSparseColumns(t *testing.T) {
	// visibility is empty in 3 of 4 rows, below the 0.5 threshold
	input := writeFile(t, "weather_2020.csv",
		"datetime,temperature,visibility",
		"2020-01-01 00:00:00,30.0,10",
		"2020-01-02 00:00:00,31.0,",
		"2020-01-03 00:00:00,29.5,",
		"2020-01-04 00:00:00,30.2,",
	)
	outDir := t.TempDir()

	cfg := config.Default().Clean
	cfg.Input = input
	cfg.OutDir = outDir

	result, err := Clean(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{"visibility"}, result.DroppedColumns)

	records := readCSV(t, filepath.Join(outDir, "clean_2020.csv"))
	assert.Equal(t, []string{"datetime", "temperature"}, records[0])
	require.Len(t, records, 5)
}

func TestCleanImputesForwardThenBackward(t *testing.T) {
	input := writeFile(t, "weather_2020.csv",
		"datetime,temperature",
		"2020-01-01 00:00:00,",     // filled backward from 30.0
		"2020-01-02 00:00:00,30.0",
		"2020-01-03 00:00:00,",     // filled forward from 30.0
		"2020-01-04 00:00:00,31.5",
	)
	outDir := t.TempDir()

	cfg := config.Default().Clean
	cfg.Input = input
	cfg.OutDir = outDir

	_, err := Clean(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)

	records := readCSV(t, filepath.Join(outDir, "clean_2020.csv"))
	require.Len(t, records, 5)
	assert.Equal(t, "30.0", records[1][1])
	assert.Equal(t, "30.0", records[3][1])
	assert.Equal(t, "31.5", records[4][1])
}

func TestCleanZeroFillsFullyEmptyColumn(t *testing.T) {
	input := writeFile(t, "weather_2020.csv",
		"datetime,temperature,humidity",
		"2020-01-01 00:00:00,30.0,",
		"2020-01-02 00:00:00,31.0,",
	)
	outDir := t.TempDir()

	cfg := config.Default().Clean
	cfg.Input = input
	cfg.OutDir = outDir
	cfg.SparseThreshold = 0 // keep every column so the zero fill is visible

	_, err := Clean(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)

	records := readCSV(t, filepath.Join(outDir, "clean_2020.csv"))
	assert.Equal(t, "0", records[1][2])
	assert.Equal(t, "0", records[2][2])
}

func TestCleanClipsImplausibleReadings(t *testing.T) {
	input := writeFile(t, "weather_2020_part_01.csv",
		"datetime,Temperature,humidity,wind_speed",
		"2020-01-01 00:00:00,75.0,120,-5",
		"2020-01-02 00:00:00,-80.0,50,200",
		"2020-01-03 00:00:00,30.0,80,20",
	)
	outDir := t.TempDir()

	cfg := config.Default().Clean
	cfg.Input = input
	cfg.OutDir = outDir

	result, err := Clean(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 5, result.ClippedValues)

	records := readCSV(t, filepath.Join(outDir, "clean_2020_part_01.csv"))
	require.Len(t, records, 4)
	// Column matching is case-insensitive
	assert.Equal(t, "60", records[1][1])
	assert.Equal(t, "100", records[1][2])
	assert.Equal(t, "0", records[1][3])
	assert.Equal(t, "-60", records[2][1])
	assert.Equal(t, "150", records[2][3])
	// In-range values are untouched
	assert.Equal(t, []string{"2020-01-03 00:00:00", "30.0", "80", "20"}, records[3])
}

func TestCleanEmptyFileWritesHeaderOnly(t *testing.T) {
	input := writeFile(t, "weather_2020.csv",
		"datetime,temperature",
	)
	outDir := t.TempDir()

	cfg := config.Default().Clean
	cfg.Input = input
	cfg.OutDir = outDir

	result, err := Clean(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Rows)

	records := readCSV(t, filepath.Join(outDir, "clean_2020.csv"))
	require.Len(t, records, 1)
	assert.Equal(t, []string{"datetime", "temperature"}, records[0])
}
