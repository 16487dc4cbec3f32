package notify

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xaenox/voice-intent-bot/internal/models"
	"github.com/xaenox/voice-intent-bot/internal/storage"
	"go.uber.org/zap"
)

// Telegram rejects longer messages.
const maxMessageLen = 4096

// Notifier tells human operators that a call is being transferred to them.
type Notifier interface {
	NotifyEscalation(ctx context.Context, callID, utterance string, entries []models.LogEntry) error
}

type Nop struct{}

func (Nop) NotifyEscalation(context.Context, string, string, []models.LogEntry) error { return nil }

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts escalations to an operator chat.
type TelegramNotifier struct {
	api    sender
	chatID int64
	logger *zap.Logger
}

func NewTelegramNotifier(token string, chatID int64, logger *zap.Logger) (*TelegramNotifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	logger.Info("Telegram escalation notifier ready",
		zap.String("bot", api.Self.UserName),
		zap.Int64("chat_id", chatID))
	return &TelegramNotifier{api: api, chatID: chatID, logger: logger}, nil
}

func (n *TelegramNotifier) NotifyEscalation(ctx context.Context, callID, utterance string, entries []models.LogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	text := escalationText(callID, utterance, entries)
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.api.Send(msg); err != nil {
		n.logger.Error("Failed to send escalation message",
			zap.Error(err),
			zap.String("call_id", callID),
			zap.Int64("chat_id", n.chatID))
		return fmt.Errorf("sending escalation for %s: %w", callID, err)
	}
	return nil
}

func escalationText(callID, utterance string, entries []models.LogEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📞 Call %s is being transferred to an operator\n", callID)
	fmt.Fprintf(&b, "Caller said: %q\n", utterance)
	if len(entries) > 0 {
		b.WriteString("\nTranscript:\n")
		b.WriteString(storage.FormatTranscript(entries))
	}

	text := b.String()
	if len(text) > maxMessageLen {
		// keep the most recent part of the conversation
		cut := len(text) - maxMessageLen + len("…")
		for cut < len(text) && !utf8.RuneStart(text[cut]) {
			cut++
		}
		text = "…" + text[cut:]
	}
	return text
}
