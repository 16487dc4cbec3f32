package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chatServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			fmt.Fprint(w, `{"error":{"message":"boom","type":"server_error"}}`)
			return
		}
		body, _ := json.Marshal(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-test",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		})
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestGPT(srv *httptest.Server) *GPTClassifier {
	return NewGPTClassifier(GPTOptions{
		APIKey:  "test",
		BaseURL: srv.URL + "/v1",
		Model:   "gpt-test",
	}, []string{"Cancel order", "Refund policy"}, zap.NewNop())
}

func TestGPTClassifier_Classify(t *testing.T) {
	srv := chatServer(t, http.StatusOK, `{"intent":"Cancel order","confidence":0.93}`)

	pred, err := newTestGPT(srv).Classify(context.Background(), "cancel my order")
	require.NoError(t, err)
	assert.True(t, pred.Understood)
	assert.Equal(t, "Cancel order", pred.Intent)
	assert.InDelta(t, 0.93, pred.Confidence, 1e-9)
}

func TestGPTClassifier_UnknownIntent(t *testing.T) {
	srv := chatServer(t, http.StatusOK, `{"intent":"Order pizza","confidence":0.99}`)

	pred, err := newTestGPT(srv).Classify(context.Background(), "pizza")
	require.NoError(t, err)
	assert.False(t, pred.Understood)
	assert.Equal(t, NotUnderstood, pred.Intent)
}

func TestGPTClassifier_LowConfidence(t *testing.T) {
	srv := chatServer(t, http.StatusOK, `{"intent":"Refund policy","confidence":0.4}`)

	pred, err := newTestGPT(srv).Classify(context.Background(), "hmm")
	require.NoError(t, err)
	assert.False(t, pred.Understood)
}

func TestGPTClassifier_Errors(t *testing.T) {
	srv := chatServer(t, http.StatusInternalServerError, "")
	_, err := newTestGPT(srv).Classify(context.Background(), "cancel")
	assert.ErrorIs(t, err, ErrBackend)
	assert.Equal(t, "backend", Kind(err))

	srv = chatServer(t, http.StatusOK, "not json")
	_, err = newTestGPT(srv).Classify(context.Background(), "cancel")
	assert.Equal(t, "runtime", Kind(err))

	empty := NewGPTClassifier(GPTOptions{APIKey: "test"}, nil, zap.NewNop())
	_, err = empty.Classify(context.Background(), "cancel")
	assert.ErrorIs(t, err, ErrModelNotLoaded)
}
