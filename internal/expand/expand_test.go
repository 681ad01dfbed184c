package expand

import (
	"context"
	"encoding/csv"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
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

func expandConfig(input, output string) config.ExpandConfig {
	cfg := config.Default().Expand
	cfg.Input = input
	cfg.Output = output
	cfg.Seed = 42
	return cfg
}

func TestExpandWritesRequestedCopies(t *testing.T) {
	input := writeInput(t,
		"datetime,state,temperature,humidity",
		"2020-01-01 00:00:00,Selangor,30.5,80",
		"2020-01-02 00:00:00,Johor,29.1,75",
	)
	output := filepath.Join(t.TempDir(), "expanded.csv")

	cfg := expandConfig(input, output)
	cfg.Copies = 3

	result, err := Run(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Copies)
	assert.Equal(t, int64(6), result.RowsWritten)
	assert.Positive(t, result.BytesWritten)

	f, err := os.Open(output)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	// One header plus every copy of every row
	require.Len(t, records, 7)
	assert.Equal(t, []string{"datetime", "state", "temperature", "humidity"}, records[0])
	// Non-numeric columns survive every copy unchanged
	for _, rec := range records[1:] {
		assert.Contains(t, []string{"Selangor", "Johor"}, rec[1])
	}
}

func TestExpandNoiseStaysNearOriginal(t *testing.T) {
	input := writeInput(t,
		"datetime,temperature,pressure",
		"2020-01-01 00:00:00,30.0,1010.0",
	)
	output := filepath.Join(t.TempDir(), "expanded.csv")

	cfg := expandConfig(input, output)
	cfg.Copies = 50

	_, err := Run(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)

	f, err := os.Open(output)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 51)

	for _, rec := range records[1:] {
		temp, err := strconv.ParseFloat(rec[1], 64)
		require.NoError(t, err)
		// 2% relative sigma; 10 sigma bounds catch a broken scale, not noise
		assert.InDelta(t, 30.0, temp, 6.0)

		pressure, err := strconv.ParseFloat(rec[2], 64)
		require.NoError(t, err)
		assert.InDelta(t, 1010.0, pressure, 50.5)
	}
}

func TestExpandSeedIsReproducible(t *testing.T) {
	// Several noisy columns per row: the noise must be applied in a fixed
	// column order, or identical seeds diverge through RNG draw ordering
	input := writeInput(t,
		"datetime,state,temperature,pressure,humidity,wind_speed",
		"2020-01-01 00:00:00,Selangor,30.0,1013.2,78.0,12.5",
		"2020-01-02 00:00:00,Johor,29.5,1010.3,81.0,8.2",
		"2020-01-03 00:00:00,Penang,31.2,1011.8,74.5,15.0",
	)
	dir := t.TempDir()

	run := func(name string) []byte {
		cfg := expandConfig(input, filepath.Join(dir, name))
		cfg.Copies = 2
		_, err := Run(context.Background(), cfg, zap.NewNop())
		require.NoError(t, err)
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		return data
	}

	assert.Equal(t, run("a.csv"), run("b.csv"))
}

func TestInspectInputOrdersScalesByColumn(t *testing.T) {
	input := writeInput(t,
		"humidity,datetime,temperature,pressure",
		"80,2020-01-01 00:00:00,30.0,1010.0",
	)

	_, scales, err := inspectInput(input)
	require.NoError(t, err)
	require.Len(t, scales, 3)
	assert.Equal(t, []columnScale{
		{index: 0, scale: 0.02},
		{index: 2, scale: 0.02},
		{index: 3, scale: 0.005},
	}, scales)
}

func TestExpandGzipOutput(t *testing.T) {
	input := writeInput(t,
		"datetime,temperature",
		"2020-01-01 00:00:00,30.0",
	)
	output := filepath.Join(t.TempDir(), "expanded.csv.gz")

	cfg := expandConfig(input, output)
	cfg.Copies = 2
	cfg.Compress = true

	_, err := Run(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)

	f, err := os.Open(output)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	records, err := csv.NewReader(gz).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
}

func TestExpandEmptyInputFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	cfg := expandConfig(path, filepath.Join(t.TempDir(), "out.csv"))
	_, err := Run(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
}

func TestPerturbPassesThroughNonNumeric(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	assert.Equal(t, "", perturb("", 0.02, rng))
	assert.Equal(t, "n/a", perturb("n/a", 0.02, rng))

	// Numeric values come back with at most two decimals
	out := perturb("30.123456", 0.02, rng)
	if i := strings.IndexByte(out, '.'); i >= 0 {
		assert.LessOrEqual(t, len(out)-i-1, 2)
	}
}

func TestResolveCopiesFromTargetSize(t *testing.T) {
	input := writeInput(t,
		"datetime,temperature",
		"2020-01-01 00:00:00,30.0",
	)

	cfg := config.Default().Expand
	cfg.Input = input
	cfg.TargetSizeGB = 1e-12 // far below the input size

	copies, size, err := resolveCopies(cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, copies, "copies never drop below one")
	assert.Positive(t, size)
}
