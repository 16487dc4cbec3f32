package classifier

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/xaenox/voice-intent-bot/internal/models"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

const (
	// DefaultThreshold is the minimum confidence for Predict to name an intent.
	DefaultThreshold = 0.85

	// NotUnderstood is returned as the intent when confidence is below threshold.
	NotUnderstood = "I could not understand"
)

// Service trains and serves the local intent model. Predict reads an
// immutable snapshot and is safe for concurrent use; Train, Load and Save
// are serialized and publish new snapshots atomically.
type Service struct {
	mu        sync.Mutex
	current   atomic.Pointer[Artifacts]
	modelDir  string
	opts      TrainOptions
	threshold float64
	logger    *zap.Logger
}

// NewService creates a service without a model. When modelDir is not empty,
// Train persists every new bundle there.
func NewService(modelDir string, opts TrainOptions, threshold float64, logger *zap.Logger) *Service {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Service{
		modelDir:  modelDir,
		opts:      opts.withDefaults(),
		threshold: threshold,
		logger:    logger,
	}
}

// Train fits a new model on examples and replaces the current one.
func (s *Service) Train(examples []models.TrainingExample) (*Artifacts, error) {
	texts := make([]string, 0, len(examples))
	labels := make([]string, 0, len(examples))
	for _, ex := range examples {
		if !validExample(ex) {
			continue
		}
		texts = append(texts, ex.Text)
		labels = append(labels, ex.Label)
	}
	if len(texts) == 0 {
		return nil, ErrEmptyTrainingSet
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	labelIndex := NewLabelIndex(labels)
	y := make([]int, len(labels))
	for i, l := range labels {
		y[i], _ = labelIndex.ID(l)
	}

	vocab := BuildVocabulary(texts)
	seqs := make([][]int, len(texts))
	maxLen := 1
	for i, t := range texts {
		seqs[i] = vocab.Encode(t)
		maxLen = max(maxLen, len(seqs[i]))
	}

	rng := rand.New(rand.NewSource(s.opts.Seed))
	net := newNetwork(vocab.Len()+1, labelIndex.Len(), s.opts, rng)
	loss := net.fit(PadAll(seqs, maxLen), y, s.opts, rng)

	art := &Artifacts{
		Weights:    net,
		Vocabulary: vocab,
		Labels:     labelIndex,
		MaxLen:     maxLen,
		Samples:    len(texts),
	}

	if s.modelDir != "" {
		if err := SaveArtifacts(art, s.modelDir); err != nil {
			return nil, err
		}
	}
	s.current.Store(art)

	s.logger.Info("Trained intent model",
		zap.Int("samples", art.Samples),
		zap.Int("intents", labelIndex.Len()),
		zap.Int("vocabulary", vocab.Len()),
		zap.Int("maxlen", maxLen),
		zap.Float64("final_loss", loss))
	return art, nil
}

// TrainFile trains on an "intent: sentence" file.
func (s *Service) TrainFile(path string) (Stats, error) {
	examples, err := ReadExamplesFile(path)
	if err != nil {
		return Stats{}, err
	}
	art, err := s.Train(examples)
	if err != nil {
		return Stats{}, err
	}
	return art.Stats(), nil
}

// Predict classifies text. Below threshold the intent is NotUnderstood.
func (s *Service) Predict(text string, threshold float64) (pred models.Prediction, err error) {
	art := s.current.Load()
	if art == nil {
		return models.Prediction{}, ErrModelNotLoaded
	}

	defer func() {
		if r := recover(); r != nil {
			pred = models.Prediction{}
			err = &RuntimeError{Op: "inference", Err: fmt.Errorf("%v", r)}
		}
	}()

	seq := Pad(art.Vocabulary.Encode(text), art.MaxLen)
	probs, err := art.Weights.Probabilities(seq)
	if err != nil {
		return models.Prediction{}, &RuntimeError{Op: "inference", Err: err}
	}

	best := floats.MaxIdx(probs)
	pred = models.Prediction{Intent: NotUnderstood, Confidence: probs[best]}
	if pred.Confidence >= threshold {
		pred.Intent = art.Labels.Label(best)
		pred.Understood = true
	}
	return pred, nil
}

// Classify implements IntentClassifier with the configured threshold.
func (s *Service) Classify(ctx context.Context, text string) (models.Prediction, error) {
	return s.Predict(text, s.threshold)
}

// Load replaces the current model with the bundle in dir. It returns false,
// keeping the current model, when the bundle is missing or broken.
func (s *Service) Load(dir string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	art, err := LoadArtifacts(dir)
	if err != nil {
		s.logger.Info("No usable intent model", zap.String("dir", dir), zap.Error(err))
		return false
	}
	s.current.Store(art)
	s.logger.Info("Loaded intent model",
		zap.String("dir", dir),
		zap.Int("intents", art.Labels.Len()),
		zap.Int("maxlen", art.MaxLen))
	return true
}

// Save persists the current model to dir.
func (s *Service) Save(dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	art := s.current.Load()
	if art == nil {
		return ErrModelNotLoaded
	}
	return SaveArtifacts(art, dir)
}

// Loaded reports whether a model is available.
func (s *Service) Loaded() bool {
	return s.current.Load() != nil
}

// Labels returns the intents known to the current model.
func (s *Service) Labels() []string {
	art := s.current.Load()
	if art == nil {
		return nil
	}
	return art.Labels.Labels()
}
