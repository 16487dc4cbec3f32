package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/xaenox/voice-intent-bot/internal/bot"
	"github.com/xaenox/voice-intent-bot/internal/storage"
	"github.com/xaenox/voice-intent-bot/internal/telephony"
	"github.com/xaenox/voice-intent-bot/internal/voice"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Answer Twilio voice webhooks",
		Long:  "Starts the HTTP server that Twilio calls for /voice, /gather and the recording callbacks.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, port)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides server.port)")
	return cmd
}

func runServe(cmd *cobra.Command, port int) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.Port = port
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink, err := newTranscriptSink(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize transcript storage", zap.Error(err))
		return err
	}
	var store storage.Storage = storage.NewMemoryStorage(sink, logger)
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to persist pending transcripts", zap.Error(err))
		}
	}()

	clf, err := newClassifier(cfg, logger)
	if err != nil {
		return err
	}

	b, err := bot.New(clf, store, store, newNotifier(cfg.Telegram, logger), dialogueOptions(cfg.Dialogue), logger)
	if err != nil {
		return err
	}

	var recordings voice.RecordingFetcher
	if cfg.Twilio.AccountSID != "" && cfg.Twilio.AuthToken != "" {
		recordings = telephony.NewClient(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, logger)
	} else {
		logger.Warn("Twilio credentials missing, call recordings will not be downloaded")
	}

	srv, err := voice.NewServer(voice.Config{
		Port:              cfg.Server.Port,
		PublicURL:         cfg.Server.PublicURL,
		AuthToken:         cfg.Twilio.AuthToken,
		ValidateSignature: cfg.Server.ValidateSignature,
		RecordingsDir:     cfg.Server.RecordingsDir,
		TranscriptsDir:    cfg.Server.TranscriptionsDir,
		MaxSpeechLength:   cfg.Server.MaxSpeechLength,
		Speech: voice.Speech{
			Voice:         cfg.Server.Voice,
			Language:      cfg.Server.Language,
			Hints:         cfg.Server.Hints,
			GatherTimeout: cfg.Server.GatherTimeout,
		},
	}, b, recordings, logger)
	if err != nil {
		return err
	}

	reaper, err := storage.NewReaper(store, cfg.Dialogue.SessionTTL, cfg.Dialogue.ReapInterval, logger)
	if err != nil {
		return err
	}
	reaper.Start(ctx)
	defer reaper.Stop()

	return srv.Start(ctx)
}
