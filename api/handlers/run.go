package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/docqa/api"
	"github.com/BaSui01/docqa/ingest"
	"github.com/BaSui01/docqa/rag"
	"github.com/BaSui01/docqa/types"
)

// Downloader fetches the raw document bytes for a URL.
type Downloader interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Answerer runs the answering pipeline over extracted document blocks.
type Answerer interface {
	Run(ctx context.Context, blocks []types.RawBlock, questions []string) []string
}

const defaultMaxQuestions = 100

// RunHandler serves POST /v1/run: download the document, extract its
// blocks, and answer every question. Ingestion failure never fails the
// request; each answer slot gets the ingestion sentinel instead.
type RunHandler struct {
	fetcher      Downloader
	extractor    ingest.Extractor
	pipeline     Answerer
	maxQuestions int
	logger       *zap.Logger
}

// NewRunHandler creates the run handler.
func NewRunHandler(fetcher Downloader, extractor ingest.Extractor, pipeline Answerer, logger *zap.Logger) *RunHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunHandler{
		fetcher:      fetcher,
		extractor:    extractor,
		pipeline:     pipeline,
		maxQuestions: defaultMaxQuestions,
		logger:       logger.With(zap.String("component", "run_handler")),
	}
}

// HandleRun handles POST /v1/run.
func (h *RunHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest,
			"method not allowed", h.logger)
		return
	}

	var req api.RunRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Documents == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			"documents must be a document URL", h.logger)
		return
	}
	if len(req.Questions) == 0 {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			"questions must be a non-empty list", h.logger)
		return
	}
	if len(req.Questions) > h.maxQuestions {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			"too many questions in one request", h.logger)
		return
	}

	start := time.Now()
	blocks, err := h.ingestDocument(r.Context(), req.Documents)
	if err != nil {
		// Document-level failure short-circuits the batch: every answer
		// slot carries the ingestion sentinel, and the request succeeds.
		h.logger.Warn("document ingestion failed",
			zap.String("document", req.Documents),
			zap.Error(err),
		)
		answers := make([]string, len(req.Questions))
		for i := range answers {
			answers[i] = rag.IngestionFailedSentinel
		}
		WriteJSON(w, http.StatusOK, api.RunResponse{Answers: answers})
		return
	}

	answers := h.pipeline.Run(r.Context(), blocks, req.Questions)

	h.logger.Info("run completed",
		zap.String("document", req.Documents),
		zap.Int("questions", len(req.Questions)),
		zap.Duration("duration", time.Since(start)),
	)
	WriteJSON(w, http.StatusOK, api.RunResponse{Answers: answers})
}

func (h *RunHandler) ingestDocument(ctx context.Context, url string) ([]types.RawBlock, error) {
	data, err := h.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return h.extractor.Extract(data)
}
