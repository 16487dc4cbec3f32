package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/xaenox/voice-intent-bot/internal/models"
	"go.uber.org/zap"
)

type GPTResponse struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// GPTOptions configures the chat-model backend.
type GPTOptions struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	Threshold   float64
}

// GPTClassifier asks a chat model to pick one intent from a closed label set.
type GPTClassifier struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float64
	threshold   float64
	labels      []string
	logger      *zap.Logger
}

func NewGPTClassifier(opts GPTOptions, labels []string, logger *zap.Logger) *GPTClassifier {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	return &GPTClassifier{
		client:      openai.NewClientWithConfig(cfg),
		model:       opts.Model,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
		threshold:   opts.Threshold,
		labels:      labels,
		logger:      logger,
	}
}

func (c *GPTClassifier) prompt(text string) string {
	return fmt.Sprintf(`Classify the caller utterance into exactly one of these intents:
%s

Return the response as a JSON object with this structure:
{
    "intent": "one intent from the list, verbatim",
    "confidence": 0.0
}
where confidence is your probability between 0 and 1 that the intent is correct.

Utterance: %s`, "- "+strings.Join(c.labels, "\n- "), text)
}

func (c *GPTClassifier) Classify(ctx context.Context, text string) (models.Prediction, error) {
	if len(c.labels) == 0 {
		return models.Prediction{}, ErrModelNotLoaded
	}

	resp, err := c.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: c.prompt(text),
				},
			},
			MaxTokens:   c.maxTokens,
			Temperature: float32(c.temperature),
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		},
	)
	if err != nil {
		c.logger.Error("Failed to get GPT response", zap.Error(err))
		return models.Prediction{}, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	if len(resp.Choices) == 0 {
		return models.Prediction{}, fmt.Errorf("%w: empty completion", ErrBackend)
	}

	var gptResponse GPTResponse
	response := strings.TrimSpace(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(response), &gptResponse); err != nil {
		c.logger.Error("Failed to parse GPT response",
			zap.Error(err),
			zap.String("response", response))
		return models.Prediction{}, &RuntimeError{Op: "decode", Err: err}
	}

	pred := models.Prediction{Intent: NotUnderstood, Confidence: gptResponse.Confidence}
	if pred.Confidence >= c.threshold && c.known(gptResponse.Intent) {
		pred.Intent = gptResponse.Intent
		pred.Understood = true
	}
	return pred, nil
}

func (c *GPTClassifier) known(intent string) bool {
	for _, l := range c.labels {
		if l == intent {
			return true
		}
	}
	return false
}
