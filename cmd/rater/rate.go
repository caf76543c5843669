package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tokenwatch/rater/internal/config"
	"github.com/tokenwatch/rater/internal/engine"
)

func newRateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rate [input.json]",
		Short: "Compute one rating from a JSON input snapshot",
		Long: `Reads an engine input document (technical, momentum, volume, risk,
context) from the given file or stdin and prints the rating result as JSON.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runRate,
	}
	cmd.Flags().Bool("pretty", false, "Indent the JSON output")
	return cmd
}

func runRate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	logger := newLogger(cfg.Log.Level, cfg.Log.Pretty)

	var reader io.Reader = os.Stdin
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		reader = f
	}

	var in engine.Input
	if err := json.NewDecoder(reader).Decode(&in); err != nil {
		return fmt.Errorf("decode input: %w", err)
	}

	eng, err := engine.New(cfg.Engine, engine.Deps{Logger: logger})
	if err != nil {
		return err
	}

	result, err := eng.CalculateRating(context.Background(), in)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	if pretty, _ := cmd.Flags().GetBool("pretty"); pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(result)
}
