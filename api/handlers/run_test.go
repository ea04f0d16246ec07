package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/docqa/api"
	"github.com/BaSui01/docqa/ingest"
	"github.com/BaSui01/docqa/rag"
	"github.com/BaSui01/docqa/types"
)

type fakeDownloader struct {
	data []byte
	err  error
}

func (f *fakeDownloader) Fetch(ctx context.Context, url string) ([]byte, error) {
	return f.data, f.err
}

type fakeAnswerer struct {
	calls int
}

func (f *fakeAnswerer) Run(ctx context.Context, blocks []types.RawBlock, questions []string) []string {
	f.calls++
	answers := make([]string, len(questions))
	for i, q := range questions {
		answers[i] = "answer to " + q
	}
	return answers
}

func postRun(t *testing.T, h *RunHandler, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/run", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.HandleRun(rec, req)
	return rec
}

func TestHandleRun_Success(t *testing.T) {
	dl := &fakeDownloader{data: []byte("The grace period is thirty days.")}
	answerer := &fakeAnswerer{}
	h := NewRunHandler(dl, ingest.TextExtractor{}, answerer, zap.NewNop())

	rec := postRun(t, h, api.RunRequest{
		Documents: "https://example.com/policy.txt",
		Questions: []string{"what is the grace period?", "what about claims?"},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp api.RunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{
		"answer to what is the grace period?",
		"answer to what about claims?",
	}, resp.Answers)
	assert.Equal(t, 1, answerer.calls)
}

func TestHandleRun_IngestionFailureFillsSentinels(t *testing.T) {
	dl := &fakeDownloader{err: types.NewError(types.ErrDocumentUnreadable, "host returned status 404")}
	answerer := &fakeAnswerer{}
	h := NewRunHandler(dl, ingest.TextExtractor{}, answerer, zap.NewNop())

	rec := postRun(t, h, api.RunRequest{
		Documents: "https://example.com/missing.txt",
		Questions: []string{"q1", "q2", "q3"},
	})

	// Document-level failure is not an HTTP failure.
	require.Equal(t, http.StatusOK, rec.Code)
	var resp api.RunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Answers, 3)
	for _, a := range resp.Answers {
		assert.Equal(t, rag.IngestionFailedSentinel, a)
	}
	assert.Equal(t, 0, answerer.calls)
}

func TestHandleRun_ExtractionFailureFillsSentinels(t *testing.T) {
	dl := &fakeDownloader{data: []byte{0xff, 0xfe}}
	h := NewRunHandler(dl, ingest.TextExtractor{}, &fakeAnswerer{}, zap.NewNop())

	rec := postRun(t, h, api.RunRequest{
		Documents: "https://example.com/doc.bin",
		Questions: []string{"q"},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp api.RunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{rag.IngestionFailedSentinel}, resp.Answers)
}

func TestHandleRun_Validation(t *testing.T) {
	h := NewRunHandler(&fakeDownloader{}, ingest.TextExtractor{}, &fakeAnswerer{}, zap.NewNop())

	rec := postRun(t, h, api.RunRequest{Questions: []string{"q"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postRun(t, h, api.RunRequest{Documents: "https://example.com/doc"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/run", strings.NewReader("{not json"))
	rec = httptest.NewRecorder()
	h.HandleRun(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/run", nil)
	rec = httptest.NewRecorder()
	h.HandleRun(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleRun_TooManyQuestions(t *testing.T) {
	h := NewRunHandler(&fakeDownloader{}, ingest.TextExtractor{}, &fakeAnswerer{}, zap.NewNop())

	questions := make([]string, defaultMaxQuestions+1)
	for i := range questions {
		questions[i] = "q"
	}
	rec := postRun(t, h, api.RunRequest{Documents: "https://example.com/doc", Questions: questions})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWriteError_MapsCodes(t *testing.T) {
	cases := map[types.ErrorCode]int{
		types.ErrInvalidRequest:     http.StatusBadRequest,
		types.ErrUnauthorized:       http.StatusUnauthorized,
		types.ErrDocumentUnreadable: http.StatusBadGateway,
		types.ErrUpstreamTimeout:    http.StatusGatewayTimeout,
		types.ErrServiceUnavailable: http.StatusServiceUnavailable,
		types.ErrInternalError:      http.StatusInternalServerError,
	}
	for code, wantStatus := range cases {
		rec := httptest.NewRecorder()
		WriteError(rec, types.NewError(code, "boom"), zap.NewNop())
		assert.Equal(t, wantStatus, rec.Code, "code: %s", code)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, string(code), resp.Error.Code)
	}
}

func TestHealthHandler_Ready(t *testing.T) {
	h := NewHealthHandler(zap.NewNop())
	h.RegisterCheck(NewPingCheck("redis", func(ctx context.Context) error { return nil }))

	rec := httptest.NewRecorder()
	h.HandleReady(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	h.RegisterCheck(NewPingCheck("broken", func(ctx context.Context) error {
		return errors.New("connection refused")
	}))
	rec = httptest.NewRecorder()
	h.HandleReady(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "unhealthy", status.Status)
	assert.Equal(t, "fail", status.Checks["broken"].Status)
}

func TestHealthHandler_Liveness(t *testing.T) {
	h := NewHealthHandler(zap.NewNop())
	rec := httptest.NewRecorder()
	h.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
