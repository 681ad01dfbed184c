package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/cumulus/internal/clean"
	"github.com/ajitpratap0/cumulus/internal/expand"
	"github.com/ajitpratap0/cumulus/internal/report"
	"github.com/ajitpratap0/cumulus/internal/split"
	"github.com/ajitpratap0/cumulus/internal/stats"
	"github.com/ajitpratap0/cumulus/internal/timings"
	"github.com/ajitpratap0/cumulus/pkg/config"
	"github.com/ajitpratap0/cumulus/pkg/logger"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	var configFile string
	cfg := config.Default()

	root := &cobra.Command{
		Use:   "cumulus",
		Short: "Cumulus - Streaming weather data pipeline",
		Long: `Cumulus is a batch pipeline for large weather observation datasets.
It partitions raw CSV data by year with a bounded file-handle cache, then
cleans, expands and analyzes the partitions to produce climate risk reports.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				loaded, err := config.Load(configFile)
				if err != nil {
					return err
				}
				// Subcommands hold the same pointer; replace contents, not the pointer.
				*cfg = *loaded
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return logger.Init(logger.Config{
				Level:    cfg.Logging.Level,
				Encoding: cfg.Logging.Encoding,
			})
		},
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to YAML pipeline configuration")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Cumulus v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(newSplitCmd(cfg))
	root.AddCommand(newPruneCmd(cfg))
	root.AddCommand(newCleanCmd(cfg))
	root.AddCommand(newExpandCmd(cfg))
	root.AddCommand(newHeatIndexCmd(cfg))
	root.AddCommand(newHeatWavesCmd(cfg))
	root.AddCommand(newReportCmd())
	root.AddCommand(newTimingsCmd())

	if err := root.Execute(); err != nil {
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

// signalContext returns a context cancelled on SIGINT or SIGTERM so a long
// partitioning run still closes its open segment files.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newSplitCmd(cfg *config.PipelineConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "split",
		Short: "Partition a raw CSV by year",
		Long: `Split streams the raw observation CSV once and routes every row to a
per-year segment file, keeping at most max-open files open at a time.
Rows whose datetime cannot be parsed go to the bad-rows file, or are
dropped when none is configured.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			applyFlagOverrides(cmd, map[string]func(){
				"input":             func() { cfg.Split.Input, _ = cmd.Flags().GetString("input") },
				"out-dir":           func() { cfg.Split.OutDir, _ = cmd.Flags().GetString("out-dir") },
				"datetime-column":   func() { cfg.Split.DatetimeColumn, _ = cmd.Flags().GetString("datetime-column") },
				"prefix":            func() { cfg.Split.Prefix, _ = cmd.Flags().GetString("prefix") },
				"max-open":          func() { cfg.Split.MaxOpen, _ = cmd.Flags().GetInt("max-open") },
				"max-rows-per-file": func() { cfg.Split.MaxRowsPerFile, _ = cmd.Flags().GetInt("max-rows-per-file") },
				"bad-rows":          func() { cfg.Split.BadRows, _ = cmd.Flags().GetString("bad-rows") },
			})
			if cfg.Split.Input == "" || cfg.Split.OutDir == "" {
				return fmt.Errorf("split requires --input and --out-dir")
			}

			ctx, cancel := signalContext()
			defer cancel()

			summary, err := split.New(cfg.Split, logger.Get()).Run(ctx)
			if err != nil {
				return err
			}
			logger.Info("split finished",
				zap.Int64("rows", summary.RowsProcessed),
				zap.Int64("bad_rows", summary.BadRows),
				zap.Duration("elapsed", summary.Elapsed))
			return nil
		},
	}
	cmd.Flags().String("input", "", "raw CSV input file")
	cmd.Flags().String("out-dir", "", "directory for year segment files")
	cmd.Flags().String("datetime-column", "", "name of the partition column")
	cmd.Flags().String("prefix", "", "output file name prefix")
	cmd.Flags().Int("max-open", 0, "maximum simultaneously open segment files")
	cmd.Flags().Int("max-rows-per-file", 0, "rows per segment before rollover (0 disables)")
	cmd.Flags().String("bad-rows", "", "file for rows with unparsable datetimes")
	return cmd
}

func newPruneCmd(cfg *config.PipelineConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Drop unused columns and empty observations from a raw CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			applyFlagOverrides(cmd, map[string]func(){
				"input":  func() { cfg.Prune.Input, _ = cmd.Flags().GetString("input") },
				"output": func() { cfg.Prune.Output, _ = cmd.Flags().GetString("output") },
			})
			if cfg.Prune.Input == "" || cfg.Prune.Output == "" {
				return fmt.Errorf("prune requires --input and --output")
			}

			ctx, cancel := signalContext()
			defer cancel()

			_, err := clean.Prune(ctx, cfg.Prune, logger.Get())
			return err
		},
	}
	cmd.Flags().String("input", "", "raw CSV input file")
	cmd.Flags().String("output", "", "pruned CSV output file")
	return cmd
}

func newCleanCmd(cfg *config.PipelineConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Impute and sanity-clip one year segment",
		RunE: func(cmd *cobra.Command, args []string) error {
			applyFlagOverrides(cmd, map[string]func(){
				"input":   func() { cfg.Clean.Input, _ = cmd.Flags().GetString("input") },
				"out-dir": func() { cfg.Clean.OutDir, _ = cmd.Flags().GetString("out-dir") },
			})
			if cfg.Clean.Input == "" || cfg.Clean.OutDir == "" {
				return fmt.Errorf("clean requires --input and --out-dir")
			}

			ctx, cancel := signalContext()
			defer cancel()

			_, err := clean.Clean(ctx, cfg.Clean, logger.Get())
			return err
		},
	}
	cmd.Flags().String("input", "", "year segment CSV to clean")
	cmd.Flags().String("out-dir", "", "directory for the cleaned file")
	return cmd
}

func newExpandCmd(cfg *config.PipelineConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expand",
		Short: "Duplicate observations with synthetic sensor noise",
		RunE: func(cmd *cobra.Command, args []string) error {
			applyFlagOverrides(cmd, map[string]func(){
				"input":    func() { cfg.Expand.Input, _ = cmd.Flags().GetString("input") },
				"output":   func() { cfg.Expand.Output, _ = cmd.Flags().GetString("output") },
				"copies":   func() { cfg.Expand.Copies, _ = cmd.Flags().GetInt("copies") },
				"compress": func() { cfg.Expand.Compress, _ = cmd.Flags().GetBool("compress") },
				"seed":     func() { cfg.Expand.Seed, _ = cmd.Flags().GetInt64("seed") },
			})
			if cfg.Expand.Input == "" || cfg.Expand.Output == "" {
				return fmt.Errorf("expand requires --input and --output")
			}

			ctx, cancel := signalContext()
			defer cancel()

			_, err := expand.Run(ctx, cfg.Expand, logger.Get())
			return err
		},
	}
	cmd.Flags().String("input", "", "cleaned CSV input file")
	cmd.Flags().String("output", "", "expanded CSV output file")
	cmd.Flags().Int("copies", 0, "explicit number of sensor copies (overrides target size)")
	cmd.Flags().Bool("compress", false, "gzip the output file")
	cmd.Flags().Int64("seed", 0, "noise generator seed for reproducible runs")
	return cmd
}

func newHeatIndexCmd(cfg *config.PipelineConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "heat-index",
		Short: "Compute monthly heat index statistics per state",
		RunE: func(cmd *cobra.Command, args []string) error {
			applyFlagOverrides(cmd, map[string]func(){
				"input":  func() { cfg.Analysis.Input, _ = cmd.Flags().GetString("input") },
				"output": func() { cfg.Analysis.Output, _ = cmd.Flags().GetString("output") },
			})
			if cfg.Analysis.Input == "" || cfg.Analysis.Output == "" {
				return fmt.Errorf("heat-index requires --input and --output")
			}

			ctx, cancel := signalContext()
			defer cancel()

			_, err := stats.MonthlyHeatIndex(ctx, cfg.Analysis, logger.Get())
			return err
		},
	}
	cmd.Flags().String("input", "", "cleaned CSV input file")
	cmd.Flags().String("output", "", "monthly heat index CSV output file")
	return cmd
}

func newHeatWavesCmd(cfg *config.PipelineConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "heat-waves",
		Short: "Detect heat waves per state",
		RunE: func(cmd *cobra.Command, args []string) error {
			applyFlagOverrides(cmd, map[string]func(){
				"input":     func() { cfg.Analysis.Input, _ = cmd.Flags().GetString("input") },
				"output":    func() { cfg.Analysis.Output, _ = cmd.Flags().GetString("output") },
				"threshold": func() { cfg.Analysis.HeatWaveThreshold, _ = cmd.Flags().GetFloat64("threshold") },
				"min-days":  func() { cfg.Analysis.HeatWaveMinDays, _ = cmd.Flags().GetInt("min-days") },
			})
			if cfg.Analysis.Input == "" || cfg.Analysis.Output == "" {
				return fmt.Errorf("heat-waves requires --input and --output")
			}

			ctx, cancel := signalContext()
			defer cancel()

			_, err := stats.HeatWaves(ctx, cfg.Analysis, logger.Get())
			return err
		},
	}
	cmd.Flags().String("input", "", "cleaned CSV input file")
	cmd.Flags().String("output", "", "heat wave CSV output file")
	cmd.Flags().Float64("threshold", 0, "daily mean temperature qualifying as hot, in Celsius")
	cmd.Flags().Int("min-days", 0, "minimum consecutive hot days counted as a wave")
	return cmd
}

func newReportCmd() *cobra.Command {
	var analysisDir, outDir string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Aggregate analysis outputs into final reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			if analysisDir == "" || outDir == "" {
				return fmt.Errorf("report requires --analysis-dir and --out-dir")
			}

			ctx, cancel := signalContext()
			defer cancel()

			_, err := report.Generate(ctx, analysisDir, outDir, logger.Get())
			return err
		},
	}
	cmd.Flags().StringVar(&analysisDir, "analysis-dir", "", "directory with heat_waves_*.csv and heat_index_*.csv")
	cmd.Flags().StringVar(&outDir, "out-dir", "", "directory for the final report files")
	return cmd
}

func newTimingsCmd() *cobra.Command {
	var logDir string
	cmd := &cobra.Command{
		Use:   "timings",
		Short: "Sum batch job execution times from log files",
		RunE: func(cmd *cobra.Command, args []string) error {
			if logDir == "" {
				return fmt.Errorf("timings requires --log-dir")
			}

			ctx, cancel := signalContext()
			defer cancel()

			rep, err := timings.Scan(ctx, logDir, logger.Get())
			if err != nil {
				return err
			}
			fmt.Print(rep.Render())
			return nil
		},
	}
	cmd.Flags().StringVar(&logDir, "log-dir", "", "directory containing job .out log files")
	return cmd
}

// applyFlagOverrides applies only the flags the user actually set, so a
// config file value survives unless overridden on the command line.
func applyFlagOverrides(cmd *cobra.Command, overrides map[string]func()) {
	for name, apply := range overrides {
		if cmd.Flags().Changed(name) {
			apply()
		}
	}
}
