package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/xaenox/voice-intent-bot/pkg/config"
	"go.uber.org/zap"
)

const defaultConfigPath = "config.yaml"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "voicebot",
		Short:        "Voice IVR with a trainable intent classifier",
		Long:         "voicebot answers Twilio voice calls, classifies what callers say and escalates to a human agent when asked.",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringP("config", "c", defaultConfigPath, "path to config file")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newTrainCmd())
	cmd.AddCommand(newPredictCmd())
	cmd.AddCommand(newCallCmd())
	return cmd
}

// loadConfig reads the --config file. The default path may be absent, in
// which case defaults and the environment are used.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	if !cmd.Flags().Changed("config") {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zc.Level = level
	return zc.Build()
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
