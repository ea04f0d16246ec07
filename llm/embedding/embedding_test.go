package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/docqa/types"
)

func newEmbedServer(t *testing.T, dims int, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"nope"}}`))
			return
		}

		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openAIEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		inputs, ok := req.Input.([]any)
		require.True(t, ok)

		resp := openAIEmbedResponse{Object: "list", Model: req.Model}
		for i := range inputs {
			vec := make([]float64, dims)
			vec[0] = float64(i + 1)
			resp.Data = append(resp.Data, struct {
				Object    string    `json:"object"`
				Index     int       `json:"index"`
				Embedding []float64 `json:"embedding"`
			}{Object: "embedding", Index: i, Embedding: vec})
		}
		resp.Usage.TotalTokens = len(inputs) * 4

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestOpenAIProvider_Embed(t *testing.T) {
	srv := newEmbedServer(t, 1536, http.StatusOK)
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, APIKey: "test-key"})

	resp, err := p.Embed(context.Background(), &EmbeddingRequest{
		Input: []string{"first chunk", "second chunk"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Embeddings, 2)
	assert.Equal(t, "openai-embedding", resp.Provider)
	assert.Equal(t, "text-embedding-3-small", resp.Model)
	assert.Len(t, resp.Embeddings[0].Embedding, 1536)
	assert.Equal(t, 1.0, resp.Embeddings[0].Embedding[0])
	assert.Equal(t, 2.0, resp.Embeddings[1].Embedding[0])
	assert.Equal(t, 8, resp.Usage.TotalTokens)
}

func TestOpenAIProvider_Defaults(t *testing.T) {
	p := NewOpenAIProvider(OpenAIConfig{})
	assert.Equal(t, 1536, p.Dimensions())
	assert.Equal(t, 100, p.MaxBatchSize())
	assert.Equal(t, "openai-embedding", p.Name())
}

func TestOpenAIProvider_EmbedQuery(t *testing.T) {
	srv := newEmbedServer(t, 8, http.StatusOK)
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, APIKey: "test-key", Dimensions: 8})

	vec, err := p.EmbedQuery(context.Background(), "what is the policy?")
	require.NoError(t, err)
	assert.Len(t, vec, 8)
}

func TestOpenAIProvider_EmbedDocuments(t *testing.T) {
	srv := newEmbedServer(t, 8, http.StatusOK)
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, APIKey: "test-key", Dimensions: 8})

	vecs, err := p.EmbedDocuments(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, 3.0, vecs[2][0])
}

func TestOpenAIProvider_HTTPErrorMapping(t *testing.T) {
	tests := []struct {
		status    int
		wantCode  types.ErrorCode
		retryable bool
	}{
		{http.StatusUnauthorized, types.ErrUnauthorized, false},
		{http.StatusTooManyRequests, types.ErrRateLimited, true},
		{http.StatusBadRequest, types.ErrInvalidRequest, false},
		{http.StatusInternalServerError, types.ErrUpstreamError, true},
	}

	for _, tt := range tests {
		srv := newEmbedServer(t, 8, tt.status)
		p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, APIKey: "test-key"})

		_, err := p.Embed(context.Background(), &EmbeddingRequest{Input: []string{"x"}})
		require.Error(t, err)

		var te *types.Error
		require.True(t, errors.As(err, &te), "status %d should map to types.Error", tt.status)
		assert.Equal(t, tt.wantCode, te.Code)
		assert.Equal(t, tt.retryable, te.Retryable)
		assert.Equal(t, tt.status, te.HTTPStatus)
		srv.Close()
	}
}
