package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newPredictCmd() *cobra.Command {
	var threshold float64

	cmd := &cobra.Command{
		Use:   "predict <text>...",
		Short: "Classify a sentence with the configured backend",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if threshold > 0 {
				cfg.Classifier.Threshold = threshold
			}
			logger, err := newLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer logger.Sync()

			clf, err := newClassifier(cfg, logger)
			if err != nil {
				return err
			}
			if err := requireModel(clf, cfg.Classifier.ModelDir); err != nil {
				return err
			}

			pred, err := clf.Classify(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("predict: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "intent: %s\nconfidence: %.4f\n", pred.Intent, pred.Confidence)
			return nil
		},
	}
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "minimum confidence to name an intent (overrides classifier.threshold)")
	return cmd
}
