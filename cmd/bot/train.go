package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/xaenox/voice-intent-bot/internal/classifier"
)

func newTrainCmd() *cobra.Command {
	var modelDir string

	cmd := &cobra.Command{
		Use:   "train [data-file]",
		Short: "Train the intent model from an \"intent: sentence\" file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer logger.Sync()

			dataFile := cfg.Classifier.TrainingData
			if len(args) == 1 {
				dataFile = args[0]
			}
			if modelDir == "" {
				modelDir = cfg.Classifier.ModelDir
			}

			svc := classifier.NewService(modelDir, trainOptions(cfg.Classifier), cfg.Classifier.Threshold, logger)
			stats, err := svc.TrainFile(dataFile)
			if err != nil {
				return fmt.Errorf("train: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Trained %d intents on %d samples (maxlen %d), saved to %s\n",
				stats.NumIntents, stats.Samples, stats.MaxLen, modelDir)
			return nil
		},
	}
	cmd.Flags().StringVar(&modelDir, "model-dir", "", "directory for the model files (overrides classifier.model_dir)")
	return cmd
}
