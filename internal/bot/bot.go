package bot

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/xaenox/voice-intent-bot/internal/classifier"
	"github.com/xaenox/voice-intent-bot/internal/models"
	"github.com/xaenox/voice-intent-bot/internal/notify"
	"github.com/xaenox/voice-intent-bot/internal/storage"
	"go.uber.org/zap"
)

// Bot runs the scripted voice dialogue. Turns of one call arrive one at a
// time; turns of different calls may run concurrently.
type Bot struct {
	classifier    classifier.IntentClassifier
	sessions      storage.SessionStore
	logs          storage.LogStore
	notifier      notify.Notifier
	script        []string
	agentNumber   string
	minConfidence float64
	escalation    classifier.KeywordSet
	exit          classifier.KeywordSet
	logger        *zap.Logger
	now           func() time.Time
}

func New(clf classifier.IntentClassifier, sessions storage.SessionStore, logs storage.LogStore, notifier notify.Notifier, opts Options, logger *zap.Logger) (*Bot, error) {
	opts = opts.withDefaults()
	if strings.TrimSpace(opts.Script[0]) == "" {
		return nil, errors.New("bot: script has no first prompt")
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}

	return &Bot{
		classifier:    clf,
		sessions:      sessions,
		logs:          logs,
		notifier:      notifier,
		script:        opts.Script,
		agentNumber:   opts.AgentNumber,
		minConfidence: opts.MinConfidence,
		escalation:    classifier.NewKeywordSet(opts.EscalationKeywords...),
		exit:          classifier.NewKeywordSet(opts.ExitKeywords...),
		logger:        logger,
		now:           time.Now,
	}, nil
}

// FirstPrompt is the entry point of the script and the only repeat target.
func (b *Bot) FirstPrompt() string {
	return b.script[0]
}

func (b *Bot) newSession(callID string) models.Session {
	return models.Session{
		CallID:          callID,
		QuestionCursor:  0,
		LastPrompt:      b.FirstPrompt(),
		GatherStartedAt: b.now(),
	}
}

// StartCall creates the session for a new call and asks the first question.
func (b *Bot) StartCall(ctx context.Context, callID string) models.Turn {
	sess := b.newSession(callID)
	if err := b.sessions.SaveSession(ctx, &sess); err != nil {
		b.logger.Error("Failed to save session", zap.Error(err), zap.String("call_id", callID))
	}
	b.record(ctx, callID, models.SpeakerSystem, sess.LastPrompt)

	b.logger.Info("Started call. Asked first question.", zap.String("call_id", callID))
	return models.Turn{Action: models.ActionContinue, Prompt: sess.LastPrompt, Session: sess}
}

// Process runs one turn against the stored session and persists the outcome.
func (b *Bot) Process(ctx context.Context, callID, speech string) models.Turn {
	sess, err := b.sessions.GetSession(ctx, callID)
	switch {
	case errors.Is(err, storage.ErrSessionNotFound):
		fresh := b.newSession(callID)
		sess = &fresh
		b.record(ctx, callID, models.SpeakerSystem, fresh.LastPrompt)
	case err != nil:
		b.logger.Error("Failed to load session", zap.Error(err), zap.String("call_id", callID))
		b.record(ctx, callID, models.SpeakerSystem, ErrorNotice)
		b.flush(ctx, callID)
		return models.Turn{Action: models.ActionEnd, Notice: ErrorNotice, Session: models.Session{CallID: callID}}
	}

	turn := b.HandleTurn(ctx, callID, speech, *sess)

	if turn.Action.Ends() {
		err = b.sessions.DeleteSession(ctx, callID)
	} else {
		err = b.sessions.SaveSession(ctx, &turn.Session)
	}
	if err != nil {
		b.logger.Error("Failed to update session", zap.Error(err), zap.String("call_id", callID))
	}
	return turn
}

// HandleTurn decides the reaction to one utterance. speech must already be
// normalized; an empty string means the caller said nothing before the
// gather timed out. The session is taken by value and the updated copy is
// returned in the turn.
func (b *Bot) HandleTurn(ctx context.Context, callID, speech string, sess models.Session) models.Turn {
	now := b.now()
	if !sess.GatherStartedAt.IsZero() {
		b.logger.Info("Gather API time",
			zap.String("call_id", callID),
			zap.Duration("elapsed", now.Sub(sess.GatherStartedAt)))
	}

	if speech == "" {
		if sess.QuestionCursor == 0 && !sess.FirstQuestionRepeated {
			sess.FirstQuestionRepeated = true
			sess.GatherStartedAt = now
			prompt := b.FirstPrompt()
			b.record(ctx, callID, models.SpeakerSystem, RepeatNotice+" "+prompt)
			return models.Turn{Action: models.ActionRepeat, Notice: RepeatNotice, Prompt: prompt, Session: sess}
		}
		return b.end(ctx, callID, sess, NoInputNotice)
	}

	b.record(ctx, callID, models.SpeakerUser, speech)

	if keyword, ok := b.escalation.Match(speech); ok {
		return b.escalate(ctx, callID, speech, keyword, sess)
	}

	if _, ok := b.exit.Match(speech); ok {
		return b.end(ctx, callID, sess, GoodbyeNotice)
	}

	pred, err := b.classifier.Classify(ctx, speech)
	if err != nil {
		b.logger.Error("Intent prediction error",
			zap.Error(err),
			zap.String("kind", classifier.Kind(err)),
			zap.String("call_id", callID))
		return b.end(ctx, callID, sess, ErrorNotice)
	}

	b.logger.Info("Classified utterance",
		zap.String("call_id", callID),
		zap.String("intent", pred.Intent),
		zap.Float64("confidence", pred.Confidence))

	sess.GatherStartedAt = now
	if pred.Understood && pred.Intent != "" && pred.Confidence > b.minConfidence {
		sess.LastPrompt = pred.Intent
		b.record(ctx, callID, models.SpeakerSystem, pred.Intent)
		return models.Turn{Action: models.ActionContinue, Prompt: pred.Intent, Session: sess}
	}

	prompt := sess.LastPrompt
	if prompt == "" {
		prompt = b.FirstPrompt()
	}
	b.record(ctx, callID, models.SpeakerSystem, NotUnderstoodNotice+" "+prompt)
	return models.Turn{Action: models.ActionContinue, Notice: NotUnderstoodNotice, Prompt: prompt, Session: sess}
}

func (b *Bot) end(ctx context.Context, callID string, sess models.Session, notice string) models.Turn {
	b.record(ctx, callID, models.SpeakerSystem, notice)
	b.flush(ctx, callID)
	return models.Turn{Action: models.ActionEnd, Notice: notice, Session: sess}
}

func (b *Bot) escalate(ctx context.Context, callID, speech, keyword string, sess models.Session) models.Turn {
	entries, err := b.logs.Entries(ctx, callID)
	if err != nil {
		b.logger.Error("Failed to read call log", zap.Error(err), zap.String("call_id", callID))
	}
	b.flush(ctx, callID)

	if err := b.notifier.NotifyEscalation(ctx, callID, speech, entries); err != nil {
		b.logger.Warn("Operators were not notified", zap.Error(err), zap.String("call_id", callID))
	}

	b.logger.Info("Escalating call to agent",
		zap.String("call_id", callID),
		zap.String("keyword", keyword),
		zap.String("destination", b.agentNumber))
	return models.Turn{Action: models.ActionEscalate, Notice: TransferNotice, Dial: b.agentNumber, Session: sess}
}

func (b *Bot) record(ctx context.Context, callID string, speaker models.Speaker, text string) {
	entry := models.LogEntry{At: b.now(), Speaker: speaker, Text: text}
	if err := b.logs.Append(ctx, callID, entry); err != nil {
		b.logger.Error("Failed to append call log",
			zap.Error(err),
			zap.String("call_id", callID),
			zap.String("speaker", string(speaker)))
	}
}

func (b *Bot) flush(ctx context.Context, callID string) {
	if err := b.logs.Flush(ctx, callID); err != nil {
		b.logger.Error("Failed to persist transcript", zap.Error(err), zap.String("call_id", callID))
	}
}

// NormalizeSpeech trims and lowercases recognized speech and caps it at
// maxLen characters.
func NormalizeSpeech(raw string, maxLen int) string {
	speech := strings.ToLower(strings.TrimSpace(raw))
	if maxLen > 0 {
		if r := []rune(speech); len(r) > maxLen {
			speech = string(r[:maxLen])
		}
	}
	return speech
}
