package bot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/voice-intent-bot/internal/classifier"
	"github.com/xaenox/voice-intent-bot/internal/models"
	"github.com/xaenox/voice-intent-bot/internal/storage"
	"go.uber.org/zap"
)

type fakeClassifier struct {
	pred  models.Prediction
	err   error
	calls int
}

func (f *fakeClassifier) Classify(ctx context.Context, text string) (models.Prediction, error) {
	f.calls++
	return f.pred, f.err
}

type memorySink struct {
	mu      sync.Mutex
	written map[string][][]models.LogEntry
}

func (m *memorySink) WriteTranscript(ctx context.Context, callID string, entries []models.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.written[callID] = append(m.written[callID], entries)
	return nil
}

func (m *memorySink) Close() error { return nil }

type fakeNotifier struct {
	callID    string
	utterance string
	entries   []models.LogEntry
	err       error
}

func (f *fakeNotifier) NotifyEscalation(ctx context.Context, callID, utterance string, entries []models.LogEntry) error {
	f.callID, f.utterance, f.entries = callID, utterance, entries
	return f.err
}

type fixture struct {
	bot      *Bot
	clf      *fakeClassifier
	store    *storage.MemoryStorage
	sink     *memorySink
	notifier *fakeNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clf:      &fakeClassifier{},
		sink:     &memorySink{written: make(map[string][][]models.LogEntry)},
		notifier: &fakeNotifier{},
	}
	f.store = storage.NewMemoryStorage(f.sink, zap.NewNop())
	b, err := New(f.clf, f.store, f.store, f.notifier, Options{AgentNumber: "+15550100"}, zap.NewNop())
	require.NoError(t, err)
	f.bot = b
	return f
}

func (f *fixture) firstTurn() models.Session {
	return models.Session{CallID: "CA1", LastPrompt: DefaultScript[0]}
}

func TestHandleTurn_EmptySpeechRepeatsFirstQuestion(t *testing.T) {
	f := newFixture(t)

	turn := f.bot.HandleTurn(context.Background(), "CA1", "", f.firstTurn())

	assert.Equal(t, models.ActionRepeat, turn.Action)
	assert.Equal(t, DefaultScript[0], turn.Prompt)
	assert.Equal(t, RepeatNotice, turn.Notice)
	assert.True(t, turn.Session.FirstQuestionRepeated)
	assert.Zero(t, f.clf.calls)

	entries, _ := f.store.Entries(context.Background(), "CA1")
	require.Len(t, entries, 1)
	assert.Equal(t, models.SpeakerSystem, entries[0].Speaker)
	assert.Empty(t, f.sink.written, "log stays open")
}

func TestHandleTurn_EmptySpeechAfterRepeatEnds(t *testing.T) {
	f := newFixture(t)
	sess := f.firstTurn()
	sess.FirstQuestionRepeated = true

	turn := f.bot.HandleTurn(context.Background(), "CA1", "", sess)

	assert.Equal(t, models.ActionEnd, turn.Action)
	assert.Equal(t, NoInputNotice, turn.Notice)
	require.Len(t, f.sink.written["CA1"], 1)
}

func TestHandleTurn_EscalatesBeforeClassifying(t *testing.T) {
	f := newFixture(t)
	f.clf.pred = models.Prediction{Intent: "Cancel order", Confidence: 0.99, Understood: true}

	turn := f.bot.HandleTurn(context.Background(), "CA1", "I want to speak to a human agent", f.firstTurn())

	assert.Equal(t, models.ActionEscalate, turn.Action)
	assert.Equal(t, TransferNotice, turn.Notice)
	assert.Equal(t, "+15550100", turn.Dial)
	assert.Zero(t, f.clf.calls)

	require.Len(t, f.sink.written["CA1"], 1)
	last := f.sink.written["CA1"][0]
	assert.Equal(t, models.SpeakerUser, last[len(last)-1].Speaker)

	assert.Equal(t, "CA1", f.notifier.callID)
	assert.Equal(t, "I want to speak to a human agent", f.notifier.utterance)
	assert.NotEmpty(t, f.notifier.entries)
}

func TestHandleTurn_EscalationBeatsExitKeyword(t *testing.T) {
	f := newFixture(t)

	turn := f.bot.HandleTurn(context.Background(), "CA1", "quit this and get me an operator", f.firstTurn())
	assert.Equal(t, models.ActionEscalate, turn.Action)
}

func TestHandleTurn_EscalationNotifierFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("telegram down")

	turn := f.bot.HandleTurn(context.Background(), "CA1", "customer service please", f.firstTurn())
	assert.Equal(t, models.ActionEscalate, turn.Action)
}

func TestHandleTurn_ExitKeyword(t *testing.T) {
	f := newFixture(t)

	turn := f.bot.HandleTurn(context.Background(), "CA1", "goodbye", f.firstTurn())

	assert.Equal(t, models.ActionEnd, turn.Action)
	assert.Equal(t, GoodbyeNotice, turn.Notice)
	assert.Zero(t, f.clf.calls)
	require.Len(t, f.sink.written["CA1"], 1)
}

func TestHandleTurn_ConfidentIntentContinues(t *testing.T) {
	f := newFixture(t)
	f.clf.pred = models.Prediction{Intent: "Cancel order", Confidence: 0.92, Understood: true}

	turn := f.bot.HandleTurn(context.Background(), "CA1", "cancel my order", f.firstTurn())

	assert.Equal(t, models.ActionContinue, turn.Action)
	assert.Equal(t, "Cancel order", turn.Prompt)
	assert.Empty(t, turn.Notice)
	assert.Equal(t, "Cancel order", turn.Session.LastPrompt)

	entries, _ := f.store.Entries(context.Background(), "CA1")
	require.Len(t, entries, 2)
	assert.Equal(t, models.LogEntry{At: entries[0].At, Speaker: models.SpeakerUser, Text: "cancel my order"}, entries[0])
	assert.Equal(t, "Cancel order", entries[1].Text)
}

func TestHandleTurn_UnclearIntentRepeatsLastPrompt(t *testing.T) {
	f := newFixture(t)
	f.clf.pred = models.Prediction{Intent: "", Confidence: 0.4}
	sess := f.firstTurn()
	sess.LastPrompt = "Refund policy"

	turn := f.bot.HandleTurn(context.Background(), "CA1", "mumble", sess)

	assert.Equal(t, models.ActionContinue, turn.Action)
	assert.Equal(t, "Refund policy", turn.Prompt)
	assert.Equal(t, NotUnderstoodNotice, turn.Notice)
	assert.Equal(t, "Refund policy", turn.Session.LastPrompt)
	assert.Equal(t, 0, turn.Session.QuestionCursor)
}

func TestHandleTurn_ConfidenceGate(t *testing.T) {
	tests := []struct {
		name string
		pred models.Prediction
		want string
	}{
		{"exactly at gate", models.Prediction{Intent: "Invoice", Confidence: 0.8, Understood: true}, DefaultScript[0]},
		{"sentinel intent", models.Prediction{Intent: classifier.NotUnderstood, Confidence: 0.82}, DefaultScript[0]},
		{"above gate", models.Prediction{Intent: "Invoice", Confidence: 0.81, Understood: true}, "Invoice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.clf.pred = tt.pred
			turn := f.bot.HandleTurn(context.Background(), "CA1", "where is my invoice", f.firstTurn())
			assert.Equal(t, models.ActionContinue, turn.Action)
			assert.Equal(t, tt.want, turn.Prompt)
		})
	}
}

func TestHandleTurn_ClassifierErrorEndsCall(t *testing.T) {
	errs := []error{
		classifier.ErrModelNotLoaded,
		&classifier.RuntimeError{Op: "inference", Err: errors.New("bad shape")},
	}
	for _, clfErr := range errs {
		t.Run(classifier.Kind(clfErr), func(t *testing.T) {
			f := newFixture(t)
			f.clf.err = clfErr

			turn := f.bot.HandleTurn(context.Background(), "CA1", "cancel my order", f.firstTurn())

			assert.Equal(t, models.ActionEnd, turn.Action)
			assert.Equal(t, ErrorNotice, turn.Notice)
			assert.Equal(t, 1, f.clf.calls, "never retried")
			require.Len(t, f.sink.written["CA1"], 1)
		})
	}
}

func TestHandleTurn_GatherTimestamp(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	f.bot.now = func() time.Time { return now }
	f.clf.pred = models.Prediction{Intent: "Invoice", Confidence: 0.95, Understood: true}

	sess := f.firstTurn()
	sess.GatherStartedAt = now.Add(-3 * time.Second)
	turn := f.bot.HandleTurn(context.Background(), "CA1", "invoice", sess)
	assert.Equal(t, now, turn.Session.GatherStartedAt)
}

func TestProcess_FullCall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	start := f.bot.StartCall(ctx, "CA7")
	assert.Equal(t, models.ActionContinue, start.Action)
	assert.Equal(t, DefaultScript[0], start.Prompt)

	turn := f.bot.Process(ctx, "CA7", "")
	assert.Equal(t, models.ActionRepeat, turn.Action)

	stored, err := f.store.GetSession(ctx, "CA7")
	require.NoError(t, err)
	assert.True(t, stored.FirstQuestionRepeated)

	f.clf.pred = models.Prediction{Intent: "Cancel order", Confidence: 0.9, Understood: true}
	turn = f.bot.Process(ctx, "CA7", "cancel my order")
	assert.Equal(t, "Cancel order", turn.Prompt)

	stored, err = f.store.GetSession(ctx, "CA7")
	require.NoError(t, err)
	assert.Equal(t, "Cancel order", stored.LastPrompt)

	turn = f.bot.Process(ctx, "CA7", "")
	assert.Equal(t, models.ActionEnd, turn.Action, "first question was already repeated")

	_, err = f.store.GetSession(ctx, "CA7")
	assert.ErrorIs(t, err, storage.ErrSessionNotFound)

	require.Len(t, f.sink.written["CA7"], 1)
	texts := make([]string, 0)
	for _, e := range f.sink.written["CA7"][0] {
		texts = append(texts, e.Text)
	}
	assert.Equal(t, []string{
		DefaultScript[0],
		RepeatNotice + " " + DefaultScript[0],
		"cancel my order",
		"Cancel order",
		NoInputNotice,
	}, texts)
}

func TestProcess_UnknownCallStartsFresh(t *testing.T) {
	f := newFixture(t)

	turn := f.bot.Process(context.Background(), "CA404", "")
	assert.Equal(t, models.ActionRepeat, turn.Action)
	assert.Equal(t, "CA404", turn.Session.CallID)

	entries, err := f.store.Entries(context.Background(), "CA404")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.SpeakerSystem, entries[0].Speaker)
	assert.Equal(t, DefaultScript[0], entries[0].Text)
}

func TestProcess_UnknownCallTranscriptStartsWithFirstPrompt(t *testing.T) {
	f := newFixture(t)
	f.clf.pred = models.Prediction{Intent: "Cancel order", Confidence: 0.95, Understood: true}

	f.bot.Process(context.Background(), "CA405", "cancel my order")
	f.bot.Process(context.Background(), "CA405", "goodbye")

	require.Len(t, f.sink.written["CA405"], 1)
	first := f.sink.written["CA405"][0][0]
	assert.Equal(t, models.SpeakerSystem, first.Speaker)
	assert.Equal(t, DefaultScript[0], first.Text)
}

func TestProcess_TurnAfterFlushStartsNewLog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bot.Process(ctx, "CA1", "goodbye")
	f.bot.Process(ctx, "CA1", "exit")

	require.Len(t, f.sink.written["CA1"], 2)
	assert.Equal(t, "goodbye", f.sink.written["CA1"][0][1].Text)
	assert.Equal(t, "exit", f.sink.written["CA1"][1][1].Text)
}

func TestNew_RejectsEmptyFirstPrompt(t *testing.T) {
	store := storage.NewMemoryStorage(nil, zap.NewNop())
	_, err := New(&fakeClassifier{}, store, store, nil, Options{Script: []string{" "}}, zap.NewNop())
	assert.Error(t, err)
}

func TestNormalizeSpeech(t *testing.T) {
	assert.Equal(t, "cancel my order", NormalizeSpeech("  Cancel My Order ", 256))
	assert.Equal(t, "abc", NormalizeSpeech("ABCDEF", 3))
	assert.Equal(t, "ünï", NormalizeSpeech("ÜNÏCODE", 3))
	assert.Equal(t, "", NormalizeSpeech("   ", 256))
}
