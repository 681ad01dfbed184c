// Package config provides the unified configuration system for Cumulus.
// It defines a single PipelineConfig structure shared by all pipeline stages,
// ensuring consistent configuration across the entire system.
//
// The configuration is organized into per-stage sections:
//   - Split: year partitioning of the raw dataset
//   - Prune: first-pass column pruning of the raw dataset
//   - Clean: per-year imputation and sanity clipping
//   - Expand: synthetic sensor duplication
//   - Analysis: heat index and heat wave parameters
//   - Logging: log level and encoding
//
// Example usage:
//
//	cfg := config.Default()
//	cfg.Split.MaxOpen = 16
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
)

// PipelineConfig is the single configuration structure shared by every
// Cumulus stage. Each stage reads only its own section; the Logging section
// applies to all of them.
type PipelineConfig struct {
	Split    SplitConfig    `yaml:"split" json:"split"`
	Prune    PruneConfig    `yaml:"prune" json:"prune"`
	Clean    CleanConfig    `yaml:"clean" json:"clean"`
	Expand   ExpandConfig   `yaml:"expand" json:"expand"`
	Analysis AnalysisConfig `yaml:"analysis" json:"analysis"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
}

// SplitConfig controls the streaming year partitioner.
type SplitConfig struct {
	// Input is the path to the raw CSV
	Input string `yaml:"input" json:"input"`
	// OutDir is the directory partition segments are written to
	OutDir string `yaml:"out_dir" json:"out_dir"`
	// DatetimeColumn is the partition column name
	DatetimeColumn string `yaml:"datetime_column" json:"datetime_column"`
	// Prefix is the output file name prefix
	Prefix string `yaml:"prefix" json:"prefix"`
	// MaxOpen bounds the number of simultaneously open output files
	MaxOpen int `yaml:"max_open" json:"max_open"`
	// MaxRowsPerFile triggers segment rollover; 0 disables rollover
	MaxRowsPerFile int `yaml:"max_rows_per_file" json:"max_rows_per_file"`
	// BadRows is an optional path for quarantined rows; empty drops them
	BadRows string `yaml:"bad_rows" json:"bad_rows"`
	// ProgressEvery is the row cadence of progress logging
	ProgressEvery int `yaml:"progress_every" json:"progress_every"`
}

// PruneConfig controls the first-pass column pruning stage.
type PruneConfig struct {
	Input  string `yaml:"input" json:"input"`
	Output string `yaml:"output" json:"output"`
	// KeepColumns lists the columns retained from the raw dataset
	KeepColumns []string `yaml:"keep_columns" json:"keep_columns"`
	// ChunkSize is the row cadence of progress logging
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`
}

// CleanConfig controls the per-year cleaning stage.
type CleanConfig struct {
	Input  string `yaml:"input" json:"input"`
	OutDir string `yaml:"out_dir" json:"out_dir"`
	// SparseThreshold drops columns whose empty ratio exceeds it
	SparseThreshold float64 `yaml:"sparse_threshold" json:"sparse_threshold"`
}

// ExpandConfig controls the synthetic sensor duplication stage.
type ExpandConfig struct {
	Input  string `yaml:"input" json:"input"`
	Output string `yaml:"output" json:"output"`
	// TargetSizeGB sizes the expanded dataset; ignored when Copies is set
	TargetSizeGB float64 `yaml:"target_size_gb" json:"target_size_gb"`
	// Copies forces an explicit number of sensor copies
	Copies int `yaml:"copies" json:"copies"`
	// ChunkSize is the number of rows buffered between progress reports
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`
	// Compress gzips the output file
	Compress bool `yaml:"compress" json:"compress"`
	// Seed fixes the noise generator for reproducible runs; 0 uses wall clock
	Seed int64 `yaml:"seed" json:"seed"`
}

// AnalysisConfig controls the derived-statistics stages.
type AnalysisConfig struct {
	Input  string `yaml:"input" json:"input"`
	Output string `yaml:"output" json:"output"`
	// HeatWaveThreshold is the daily mean temperature that qualifies, in Celsius
	HeatWaveThreshold float64 `yaml:"heat_wave_threshold" json:"heat_wave_threshold"`
	// HeatWaveMinDays is the minimum streak length counted as a wave
	HeatWaveMinDays int `yaml:"heat_wave_min_days" json:"heat_wave_min_days"`
}

// LoggingConfig controls the zap logger for all stages.
type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Encoding string `yaml:"encoding" json:"encoding"`
}

// Default returns a PipelineConfig with the documented defaults applied.
func Default() *PipelineConfig {
	return &PipelineConfig{
		Split: SplitConfig{
			DatetimeColumn: "datetime",
			Prefix:         "weather",
			MaxOpen:        8,
			MaxRowsPerFile: 0,
			ProgressEvery:  500000,
		},
		Prune: PruneConfig{
			KeepColumns: []string{
				"datetime", "place", "city", "state",
				"temperature", "pressure", "dew_point", "humidity",
				"wind_speed", "wind_chill",
			},
			ChunkSize: 500000,
		},
		Clean: CleanConfig{
			SparseThreshold: 0.5,
		},
		Expand: ExpandConfig{
			TargetSizeGB: 10,
			ChunkSize:    500000,
		},
		Analysis: AnalysisConfig{
			HeatWaveThreshold: 35.0,
			HeatWaveMinDays:   3,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Encoding: "console",
		},
	}
}

// Validate checks the configuration for invalid values. Stage inputs and
// outputs are validated by the stages themselves since only one stage runs
// per invocation.
func (c *PipelineConfig) Validate() error {
	if c.Split.MaxOpen < 1 {
		return fmt.Errorf("split.max_open must be at least 1, got %d", c.Split.MaxOpen)
	}
	if c.Split.MaxRowsPerFile < 0 {
		return fmt.Errorf("split.max_rows_per_file must not be negative, got %d", c.Split.MaxRowsPerFile)
	}
	if c.Split.DatetimeColumn == "" {
		return fmt.Errorf("split.datetime_column must not be empty")
	}
	if c.Split.Prefix == "" {
		return fmt.Errorf("split.prefix must not be empty")
	}
	if c.Clean.SparseThreshold < 0 || c.Clean.SparseThreshold > 1 {
		return fmt.Errorf("clean.sparse_threshold must be within [0, 1], got %g", c.Clean.SparseThreshold)
	}
	if c.Expand.TargetSizeGB <= 0 && c.Expand.Copies <= 0 {
		return fmt.Errorf("expand requires a positive target_size_gb or copies")
	}
	if c.Analysis.HeatWaveMinDays < 1 {
		return fmt.Errorf("analysis.heat_wave_min_days must be at least 1, got %d", c.Analysis.HeatWaveMinDays)
	}
	return nil
}
