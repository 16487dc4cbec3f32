package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/xaenox/voice-intent-bot/internal/bot"
	"github.com/xaenox/voice-intent-bot/internal/classifier"
	"github.com/xaenox/voice-intent-bot/internal/notify"
	"github.com/xaenox/voice-intent-bot/internal/storage"
	"github.com/xaenox/voice-intent-bot/pkg/config"
	"go.uber.org/zap"
)

func trainOptions(cfg config.ClassifierConfig) classifier.TrainOptions {
	return classifier.TrainOptions{
		EmbeddingDim: cfg.EmbeddingDim,
		HiddenUnits:  cfg.HiddenUnits,
		Epochs:       cfg.Epochs,
		BatchSize:    cfg.BatchSize,
		LearningRate: cfg.LearningRate,
		Seed:         cfg.Seed,
	}
}

// newLocalService loads the saved model, training one from the configured
// data file when none is saved yet.
func newLocalService(cfg config.ClassifierConfig, logger *zap.Logger) *classifier.Service {
	svc := classifier.NewService(cfg.ModelDir, trainOptions(cfg), cfg.Threshold, logger)
	if svc.Load(cfg.ModelDir) {
		return svc
	}

	if _, err := os.Stat(cfg.TrainingData); err != nil {
		logger.Warn("No intent model and no training data, calls will end with an error notice",
			zap.String("model_dir", cfg.ModelDir),
			zap.String("training_data", cfg.TrainingData))
		return svc
	}
	if _, err := svc.TrainFile(cfg.TrainingData); err != nil {
		logger.Error("Failed to train intent model", zap.Error(err), zap.String("training_data", cfg.TrainingData))
	}
	return svc
}

func newClassifier(cfg *config.Config, logger *zap.Logger) (classifier.IntentClassifier, error) {
	switch cfg.Classifier.Backend {
	case "openai":
		if cfg.OpenAI.APIKey == "" {
			return nil, errors.New("openai backend needs openai.api_key or OPENAI_API_KEY")
		}
		examples, err := classifier.ReadExamplesFile(cfg.Classifier.TrainingData)
		if err != nil {
			return nil, err
		}
		labels := classifier.Intents(examples)
		logger.Info("Using OpenAI intent backend", zap.String("model", cfg.OpenAI.Model), zap.Int("intents", len(labels)))
		return classifier.NewGPTClassifier(classifier.GPTOptions{
			APIKey:      cfg.OpenAI.APIKey,
			BaseURL:     cfg.OpenAI.BaseURL,
			Model:       cfg.OpenAI.Model,
			MaxTokens:   cfg.OpenAI.MaxTokens,
			Temperature: cfg.OpenAI.Temperature,
			Threshold:   cfg.Classifier.Threshold,
		}, labels, logger), nil
	default:
		return newLocalService(cfg.Classifier, logger), nil
	}
}

func newTranscriptSink(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.TranscriptSink, error) {
	switch cfg.Transcripts.Backend {
	case "postgres":
		logger.Info("Using PostgreSQL transcript storage")
		return storage.NewPostgresSink(ctx, storage.DatabaseConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		}, logger)
	case "none":
		logger.Info("Transcripts are not persisted")
		return nil, nil
	default:
		logger.Info("Using file transcript storage", zap.String("dir", cfg.Transcripts.Dir))
		return storage.NewFileSink(cfg.Transcripts.Dir)
	}
}

func newNotifier(cfg config.TelegramConfig, logger *zap.Logger) notify.Notifier {
	if cfg.Token == "" {
		return notify.Nop{}
	}
	n, err := notify.NewTelegramNotifier(cfg.Token, cfg.ChatID, logger)
	if err != nil {
		logger.Warn("Escalations will not be posted to Telegram", zap.Error(err))
		return notify.Nop{}
	}
	return n
}

func dialogueOptions(cfg config.DialogueConfig) bot.Options {
	return bot.Options{
		Script:             cfg.Script,
		AgentNumber:        cfg.AgentNumber,
		MinConfidence:      cfg.MinConfidence,
		EscalationKeywords: cfg.EscalationKeywords,
		ExitKeywords:       cfg.ExitKeywords,
	}
}

func requireModel(clf classifier.IntentClassifier, dir string) error {
	if svc, ok := clf.(*classifier.Service); ok && !svc.Loaded() {
		return fmt.Errorf("no trained model in %s, run train first", dir)
	}
	return nil
}
