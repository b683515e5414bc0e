package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/triage-ai/errgate/internal/config"
	"github.com/triage-ai/errgate/internal/gate"
	"github.com/triage-ai/errgate/internal/logging"
)

var (
	throttle   time.Duration
	maxLines   int
	ignored    []string
	configPath string
	jsonOutput bool
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "errgate-replay [capture.jsonl]",
	Short: "Replay a capture of diagnostic events through a gate",
	Long: `Replays a JSONL capture through an event gate on a simulated clock and
reports which events would be forwarded.

Each line is an object with offset_ms, message, stack_trace and severity.
Reads stdin when no file is given.`,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := gateConfig(cmd)
		if err != nil {
			return err
		}

		in := cmd.InOrStdin()
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()
			in = f
		}

		logger, err := logging.New(logLevel, "stderr")
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		result, err := replay(in, cfg, logger)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), result)
		}
		return writeText(cmd.OutOrStdout(), result)
	},
}

func init() {
	rootCmd.Flags().DurationVar(&throttle, "throttle", 0, "minimum time between forwarded events")
	rootCmd.Flags().IntVar(&maxLines, "max-lines", gate.DefaultMaxTraceLines, "maximum trace lines kept per event")
	rootCmd.Flags().StringArrayVar(&ignored, "ignore", nil, "trace line prefix to drop (repeatable)")
	rootCmd.Flags().StringVar(&configPath, "config", "", "TOML file with a [gate] section")
	rootCmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "warn", "log level for drop diagnostics (debug shows every drop)")
}

// gateConfig layers defaults, the config file and explicitly set flags.
func gateConfig(cmd *cobra.Command) (gate.Config, error) {
	cfg := gate.DefaultConfig()
	if configPath != "" {
		if err := config.ApplyFile(configPath, &cfg); err != nil {
			return gate.Config{}, err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("throttle") {
		cfg.ThrottleInterval = throttle
	}
	if flags.Changed("max-lines") {
		cfg.MaxTraceLines = maxLines
	}
	if flags.Changed("ignore") {
		cfg.IgnoredPrefixes = ignored
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
