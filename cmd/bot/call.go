package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/xaenox/voice-intent-bot/internal/telephony"
)

func newCallCmd() *cobra.Command {
	var to, from, baseURL string

	cmd := &cobra.Command{
		Use:   "call",
		Short: "Place an outbound call that runs the voice dialogue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Twilio.AccountSID == "" || cfg.Twilio.AuthToken == "" {
				return errors.New("call: twilio.account_sid and twilio.auth_token are required")
			}
			logger, err := newLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if to == "" {
				to = cfg.Twilio.ToNumber
			}
			if from == "" {
				from = cfg.Twilio.FromNumber
			}
			if baseURL == "" {
				baseURL = cfg.Server.PublicURL
			}

			client := telephony.NewClient(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, logger)
			sid, err := client.PlaceCall(cmd.Context(), to, from, baseURL)
			if err != nil {
				return fmt.Errorf("call: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Call initiated. SID: %s\n", sid)
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "number to call (overrides twilio.to_number)")
	cmd.Flags().StringVar(&from, "from", "", "caller id (overrides twilio.from_number)")
	cmd.Flags().StringVar(&baseURL, "url", "", "public base URL of the webhook server (overrides server.public_url)")
	return cmd
}
