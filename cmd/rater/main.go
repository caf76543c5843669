package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	appName = "rater"
	version = "v1.2.0"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Multi-factor crypto token rating engine",
		Version: version,
		Long: `rater scores tokens 1-10 from technical, momentum, volume, and risk
signals, with multi-timeframe alignment, streak tracking, exhaustion
detection, and a calibrated confidence estimate.`,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.yaml (defaults apply when omitted)")
	rootCmd.PersistentFlags().String("log-level", "", "Override log level (trace|debug|info|warn|error)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newRateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger builds the process logger. Pretty console output on TTYs or when
// forced by config; JSON otherwise.
func newLogger(level string, pretty bool) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if pretty || term.IsTerminal(int(os.Stderr.Fd())) {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(lvl).With().Timestamp().Str("app", appName).Logger()
}
