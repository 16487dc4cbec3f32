package classifier

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xaenox/voice-intent-bot/internal/models"
)

// ParseExamples reads "intent: sentence" lines. Lines without a colon or
// with an empty intent or sentence are skipped.
func ParseExamples(r io.Reader) ([]models.TrainingExample, error) {
	var examples []models.TrainingExample
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		label, text, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		ex := models.TrainingExample{Label: strings.TrimSpace(label), Text: strings.TrimSpace(text)}
		if !validExample(ex) {
			continue
		}
		examples = append(examples, ex)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading training data: %w", err)
	}
	return examples, nil
}

// ReadExamplesFile parses a training file from disk.
func ReadExamplesFile(path string) ([]models.TrainingExample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening training data: %w", err)
	}
	defer f.Close()
	return ParseExamples(f)
}

func validExample(ex models.TrainingExample) bool {
	return strings.TrimSpace(ex.Label) != "" && strings.TrimSpace(ex.Text) != ""
}

// Intents returns the distinct labels of the valid examples, sorted.
func Intents(examples []models.TrainingExample) []string {
	labels := make([]string, 0, len(examples))
	for _, ex := range examples {
		if validExample(ex) {
			labels = append(labels, ex.Label)
		}
	}
	return NewLabelIndex(labels).Labels()
}
