package timings

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeLog(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestScanSumsPerClass(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "clean_job_2019.out", "starting\nTime Taken: 120.5 seconds\n")
	writeLog(t, dir, "clean_job_2020.out", "Time Taken: 79.5 seconds\n")
	writeLog(t, dir, "analysis_HI_2019.out", "Total Execution Time: 300.0 seconds\n")
	writeLog(t, dir, "analysis_HW_2019.out", "Total Execution Time: 60.25 seconds\n")
	writeLog(t, dir, "unrelated.txt", "Time Taken: 999 seconds\n") // ignored

	report, err := Scan(context.Background(), dir, zap.NewNop())
	require.NoError(t, err)

	require.Len(t, report.Classes, 3)
	assert.Equal(t, ClassClean, report.Classes[0].Class)
	assert.Equal(t, 2, report.Classes[0].Jobs)
	assert.InDelta(t, 200.0, report.Classes[0].Seconds, 0.001)

	assert.Equal(t, ClassHeatIndex, report.Classes[1].Class)
	assert.InDelta(t, 300.0, report.Classes[1].Seconds, 0.001)

	assert.Equal(t, ClassHeatWaves, report.Classes[2].Class)
	assert.InDelta(t, 60.25, report.Classes[2].Seconds, 0.001)

	assert.InDelta(t, 560.75, report.TotalSeconds, 0.001)
	assert.Zero(t, report.Unmatched)
}

func TestScanSumsRetriedJobs(t *testing.T) {
	dir := t.TempDir()
	// A retried job appends a second summary line to the same file
	writeLog(t, dir, "clean_job_2019.out",
		"Time Taken: 10.0 seconds\nretrying\nTime Taken: 20.0 seconds\n")

	report, err := Scan(context.Background(), dir, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Classes[0].Jobs)
	assert.InDelta(t, 30.0, report.Classes[0].Seconds, 0.001)
}

func TestScanCountsFilesWithoutTimes(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "clean_job_2019.out", "job crashed before reporting\n")
	writeLog(t, dir, "analysis_HI_2019.out", "Total Execution Time: 5.0 seconds\n")

	report, err := Scan(context.Background(), dir, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Unmatched)
	assert.Equal(t, 0, report.Classes[0].Jobs)
	assert.InDelta(t, 5.0, report.TotalSeconds, 0.001)
}

func TestScanMissingDirectory(t *testing.T) {
	_, err := Scan(context.Background(), filepath.Join(t.TempDir(), "nope"), zap.NewNop())
	require.Error(t, err)
}

func TestRender(t *testing.T) {
	report := &Report{
		Classes: []ClassTotal{
			{Class: ClassClean, Jobs: 2, Seconds: 200},
			{Class: ClassHeatIndex, Jobs: 1, Seconds: 300},
			{Class: ClassHeatWaves, Jobs: 1, Seconds: 60},
		},
		TotalSeconds: 560,
	}

	out := report.Render()
	assert.Contains(t, out, "clean")
	assert.Contains(t, out, "560.00 s")
	assert.Contains(t, out, "9.33 min")
}
