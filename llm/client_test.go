package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chatOK(t *testing.T, content string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotEmpty(t, req.Messages)

		resp := chatResponse{ID: "cmpl-1", Model: req.Model}
		resp.Choices = append(resp.Choices, struct {
			Index   int     `json:"index"`
			Message Message `json:"message"`
			Finish  string  `json:"finish_reason"`
		}{Message: Message{Role: "assistant", Content: content}, Finish: "stop"})
		resp.Usage.TotalTokens = 10

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}
}

func TestClient_Complete(t *testing.T) {
	srv := httptest.NewServer(chatOK(t, "Paris."))
	defer srv.Close()

	c := NewClient(ClientConfig{
		BaseURL: srv.URL,
		APIKey:  "sk-test",
		Model:   "gpt-4.1",
	}, zap.NewNop())

	answer, err := c.Complete(context.Background(), "What is the capital of France?")
	require.NoError(t, err)
	assert.Equal(t, "Paris.", answer)
}

func TestClient_RetriesOn500(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		chatOK(t, "eventually")(w, r)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{
		BaseURL:    srv.URL,
		APIKey:     "sk-test",
		Model:      "gpt-4.1",
		MaxRetries: 5,
	}, zap.NewNop())

	answer, err := c.Complete(context.Background(), "retry please")
	require.NoError(t, err)
	assert.Equal(t, "eventually", answer)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_NoRetryOn400(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad prompt"}}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{
		BaseURL:    srv.URL,
		APIKey:     "sk-test",
		Model:      "gpt-4.1",
		MaxRetries: 5,
	}, zap.NewNop())

	_, err := c.Complete(context.Background(), "x")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"cmpl-1","choices":[]}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, APIKey: "sk-test", Model: "gpt-4.1"}, zap.NewNop())

	_, err := c.Complete(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestClient_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(chatOK(t, "never"))
	defer srv.Close()

	c := NewClient(ClientConfig{
		BaseURL:           srv.URL,
		APIKey:            "sk-test",
		Model:             "gpt-4.1",
		RequestsPerSecond: 0.001,
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	// Burn the single burst token, then cancel while waiting for the next.
	_, err := c.Complete(ctx, "first")
	require.NoError(t, err)
	cancel()

	_, err = c.Complete(ctx, "second")
	require.Error(t, err)
}
