package openrouter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/spectrumpost/internal/llm"
)

func completionServer(t *testing.T, content string, captured *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if captured != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "cmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "test-model",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 1, "total_tokens": 11},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCompleteSendsOptions(t *testing.T) {
	var body map[string]any
	srv := completionServer(t, " 2 \n", &body)

	c, err := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL + "/v1", Model: "test-model"}, nil)
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), "pick one", llm.Options{MaxTokens: 10, Temperature: 0.3})
	require.NoError(t, err)
	assert.Equal(t, "2", out)

	assert.Equal(t, "test-model", body["model"])
	assert.EqualValues(t, 10, body["max_tokens"])
	assert.InDelta(t, 0.3, body["temperature"], 1e-9)
	msgs, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 1)
	assert.Equal(t, "user", msgs[0].(map[string]any)["role"])
}

func TestCompleteBlankIsError(t *testing.T) {
	srv := completionServer(t, "   ", nil)
	c, err := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL + "/v1/"}, nil)
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), "x", llm.Options{})
	assert.ErrorIs(t, err, llm.ErrEmptyResponse)
}

func TestCompleteHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"auth"}}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL + "/v1"}, nil)
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), "x", llm.Options{})
	require.Error(t, err)
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(Config{}, nil)
	assert.Error(t, err)
}
