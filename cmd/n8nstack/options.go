package main

import (
	"context"
	"log/slog"

	"n8nstack/internal/config"
	"n8nstack/internal/logging"
	"n8nstack/internal/metrics"

	"github.com/spf13/cobra"
)

// globalFlags are the root persistent flags shared by every subcommand.
type globalFlags struct {
	debug         bool
	noInteraction bool
	configFile    string
	secretFile    string
	logFormat     string
	metricsFile   string
}

func (g *globalFlags) bind(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.BoolVar(&g.debug, "debug", false, "Enable debug logging")
	f.BoolVar(&g.noInteraction, "no-interaction", false, "Plain output without colors")
	f.StringVar(&g.configFile, "config", "", "Config file (default ./"+config.DefaultFile+" when present)")
	f.StringVar(&g.secretFile, "secret-file", "", "Credentials dotenv file (default ./"+config.DefaultSecretFile+" when present)")
	f.StringVar(&g.logFormat, "log-format", logging.FormatText, "Log format: text or json")
	f.StringVar(&g.metricsFile, "metrics-file", "", "Write Prometheus textfile metrics for this run")
}

// loadConfig resolves and validates the config, then reapplies logging from
// it unless --debug already forced the level.
func (g *globalFlags) loadConfig(ctx context.Context, sections ...config.Section) (config.Config, error) {
	cfg, err := config.Load(ctx, config.Sources{File: g.configFile, SecretFile: g.secretFile})
	if err != nil {
		return config.Config{}, err
	}
	if g.metricsFile != "" {
		cfg.MetricsFile = g.metricsFile
	}
	if err := cfg.Validate(sections...); err != nil {
		return config.Config{}, err
	}

	if !g.debug {
		format := cfg.Log.Format
		if g.logFormat != logging.FormatText {
			format = g.logFormat
		}
		if err := logging.Configure(cfg.Log.Level, format); err != nil {
			return config.Config{}, err
		}
	}
	return cfg, nil
}

// flushMetrics writes rec to the configured textfile, if any. Failures are
// logged only; metrics never change the exit code.
func flushMetrics(cfg config.Config, rec *metrics.Recorder) {
	if cfg.MetricsFile == "" {
		return
	}
	if err := rec.WriteTextfile(cfg.MetricsFile); err != nil {
		slog.Warn("write metrics textfile", "path", cfg.MetricsFile, "err", err)
	}
}
