package report

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	gojson "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ajitpratap0/cumulus/pkg/pipeerrors"
)

func writeAnalysisFile(t *testing.T, dir, name string, lines ...string) {
	t.Helper()
	content := strings.Join(lines, "\n") + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
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

func TestGenerateMergesAndSortsHeatWaves(t *testing.T) {
	analysisDir := t.TempDir()
	outDir := t.TempDir()

	writeAnalysisFile(t, analysisDir, "heat_waves_2020.csv",
		"state,start_date,end_date,duration_days,avg_temperature",
		"Selangor,2020-03-05,2020-03-08,4,36.5",
		"Johor,2020-04-01,2020-04-03,3,35.8",
	)
	writeAnalysisFile(t, analysisDir, "heat_waves_2021.csv",
		"state,start_date,end_date,duration_days,avg_temperature",
		"Selangor,2021-02-01,2021-02-03,3,36.1",
		"Johor,2021-05-10,2021-05-15,not-a-number,36.0", // dropped
	)

	summary, err := Generate(context.Background(), analysisDir, outDir, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.HeatWaves.Total)
	assert.Equal(t, 2, summary.HeatWaves.StatesAffected)
	assert.Equal(t, 4, summary.HeatWaves.LongestDays)
	assert.InDelta(t, 36.5, summary.HeatWaves.HottestAvgTemp, 0.001)
	assert.Equal(t, 2, summary.HeatWaves.ByState["Selangor"])

	records := readCSV(t, filepath.Join(outDir, HeatWavesFile))
	require.Len(t, records, 4)
	// Sorted by state, then start date
	assert.Equal(t, "Johor", records[1][0])
	assert.Equal(t, "Selangor", records[2][0])
	assert.Equal(t, "2020-03-05", records[2][1])
	assert.Equal(t, "2021-02-01", records[3][1])
}

func TestGenerateReaggregatesSplitMonths(t *testing.T) {
	analysisDir := t.TempDir()
	outDir := t.TempDir()

	// The same state and month landed in two rollover segments; the merge
	// must recover the whole-month aggregate.
	writeAnalysisFile(t, analysisDir, "heat_index_2020_part_00.csv",
		"state,year,month,min_heat_index,max_heat_index,avg_heat_index,sample_count",
		"Selangor,2020,3,30,40,34,100",
	)
	writeAnalysisFile(t, analysisDir, "heat_index_2020_part_01.csv",
		"state,year,month,min_heat_index,max_heat_index,avg_heat_index,sample_count",
		"Selangor,2020,3,28,38,36,300",
		"Johor,2020,3,29,35,32,50",
	)

	summary, err := Generate(context.Background(), analysisDir, outDir, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.HeatIndex.MonthlyRecords)

	records := readCSV(t, filepath.Join(outDir, HeatIndexFile))
	require.Len(t, records, 3)

	// Selangor March: min of mins, max of maxes, weighted mean
	// (34*100 + 36*300) / 400 = 35.5
	selangor := records[2]
	assert.Equal(t, "Selangor", selangor[0])
	assert.Equal(t, "28", selangor[3])
	assert.Equal(t, "40", selangor[4])
	assert.Equal(t, "35.5", selangor[5])
	assert.Equal(t, "400", selangor[6])
}

func TestGenerateRendersReports(t *testing.T) {
	analysisDir := t.TempDir()
	outDir := t.TempDir()

	writeAnalysisFile(t, analysisDir, "heat_waves_2020.csv",
		"state,start_date,end_date,duration_days,avg_temperature",
		"Selangor,2020-03-05,2020-03-08,4,36.5",
	)
	writeAnalysisFile(t, analysisDir, "heat_index_2020.csv",
		"state,year,month,min_heat_index,max_heat_index,avg_heat_index,sample_count",
		"Selangor,2020,3,30,40,34,100",
	)

	_, err := Generate(context.Background(), analysisDir, outDir, zap.NewNop())
	require.NoError(t, err)

	text, err := os.ReadFile(filepath.Join(outDir, TextReport))
	require.NoError(t, err)
	assert.Contains(t, string(text), "HEAT WAVES ANALYSIS")
	assert.Contains(t, string(text), "Total Heat Waves Detected: 1")
	assert.Contains(t, string(text), "Overall Max Heat Index: 40.00")

	data, err := os.ReadFile(filepath.Join(outDir, JSONReport))
	require.NoError(t, err)
	var decoded Summary
	require.NoError(t, gojson.Unmarshal(data, &decoded))
	assert.Equal(t, 1, decoded.HeatWaves.Total)
	assert.InDelta(t, 34.0, decoded.HeatIndex.OverallAvg, 0.001)
}

func TestGenerateFailsOnCorruptAnalysisFile(t *testing.T) {
	// An unterminated quote is a CSV read error, not a bad value: the
	// merge must abort instead of silently truncating the file there.
	t.Run("heat waves", func(t *testing.T) {
		analysisDir := t.TempDir()
		writeAnalysisFile(t, analysisDir, "heat_waves_2020.csv",
			"state,start_date,end_date,duration_days,avg_temperature",
			"Selangor,2020-03-05,2020-03-08,4,36.5",
			`Johor,"2020-04-01,2020-04-03,3,35.8`,
		)

		_, err := Generate(context.Background(), analysisDir, t.TempDir(), zap.NewNop())
		require.Error(t, err)
		assert.True(t, pipeerrors.IsType(err, pipeerrors.ErrorTypeData))
	})

	t.Run("heat index", func(t *testing.T) {
		analysisDir := t.TempDir()
		writeAnalysisFile(t, analysisDir, "heat_index_2020.csv",
			"state,year,month,min_heat_index,max_heat_index,avg_heat_index,sample_count",
			"Selangor,2020,3,30,40,34,100",
			`Johor,"2020,3,29,35,32,50`,
		)

		_, err := Generate(context.Background(), analysisDir, t.TempDir(), zap.NewNop())
		require.Error(t, err)
		assert.True(t, pipeerrors.IsType(err, pipeerrors.ErrorTypeData))
	})
}

func TestGenerateEmptyAnalysisDir(t *testing.T) {
	summary, err := Generate(context.Background(), t.TempDir(), t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	assert.Zero(t, summary.HeatWaves.Total)
	assert.Zero(t, summary.HeatIndex.MonthlyRecords)
}
