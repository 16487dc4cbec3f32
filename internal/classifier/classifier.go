package classifier

import (
	"context"
	"strings"

	"github.com/xaenox/voice-intent-bot/internal/models"
)

// IntentClassifier maps an utterance to an intent.
type IntentClassifier interface {
	Classify(ctx context.Context, text string) (models.Prediction, error)
}

// KeywordSet matches utterances by case-insensitive substring.
type KeywordSet []string

func NewKeywordSet(words ...string) KeywordSet {
	set := make(KeywordSet, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			set = append(set, w)
		}
	}
	return set
}

// Match returns the first keyword contained in text.
func (k KeywordSet) Match(text string) (string, bool) {
	text = strings.ToLower(text)
	for _, keyword := range k {
		if strings.Contains(text, keyword) {
			return keyword, true
		}
	}
	return "", false
}
