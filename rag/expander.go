package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/docqa/internal/cache"
)

// Completer is the generation collaborator contract: one prompt in, one
// completion out.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

const expansionPromptTemplate = `Generate %d alternative phrasings of the following question to improve document retrieval recall. Keep the meaning identical. Respond with a JSON array of strings and nothing else.

Question: %s`

// Expander widens retrieval recall by asking the generation model for
// paraphrases of a question. Results are cached globally by question
// content; every failure mode degrades to the original question alone.
type Expander struct {
	llm    Completer
	store  cache.Store
	count  int
	ttl    time.Duration
	logger *zap.Logger
}

// NewExpander creates a query expander requesting count paraphrases.
func NewExpander(llm Completer, store cache.Store, count int, ttl time.Duration, logger *zap.Logger) *Expander {
	if count <= 0 {
		count = 3
	}
	if store == nil {
		store = cache.NewMemoryStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Expander{
		llm:    llm,
		store:  store,
		count:  count,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "expander")),
	}
}

// Expand returns the question followed by its paraphrases. The result is
// always non-empty and always starts with the original question.
func (e *Expander) Expand(ctx context.Context, question string) []string {
	key := cache.Key("expansion", question)

	if cached, err := e.store.Get(ctx, key); err == nil {
		var expansions []string
		if err := json.Unmarshal([]byte(cached), &expansions); err == nil && len(expansions) > 0 {
			return expansions
		}
	}

	prompt := fmt.Sprintf(expansionPromptTemplate, e.count, question)
	response, err := e.llm.Complete(ctx, prompt)
	if err != nil {
		e.logger.Warn("expansion call failed, using original question only", zap.Error(err))
		return []string{question}
	}

	paraphrases, err := parseExpansionList(response)
	if err != nil {
		e.logger.Warn("malformed expansion response, using original question only",
			zap.Error(err))
		return []string{question}
	}

	expansions := make([]string, 0, len(paraphrases)+1)
	expansions = append(expansions, question)
	for _, p := range paraphrases {
		p = strings.TrimSpace(p)
		if p != "" && p != question {
			expansions = append(expansions, p)
		}
	}

	if encoded, err := json.Marshal(expansions); err == nil {
		if err := e.store.Put(ctx, key, string(encoded), e.ttl); err != nil {
			e.logger.Warn("failed to cache expansion", zap.Error(err))
		}
	}

	return expansions
}

// parseExpansionList extracts a JSON string array from a model response,
// tolerating surrounding prose and markdown code fences.
func parseExpansionList(response string) ([]string, error) {
	start := strings.Index(response, "[")
	end := strings.LastIndex(response, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in response")
	}

	var list []string
	if err := json.Unmarshal([]byte(response[start:end+1]), &list); err != nil {
		return nil, fmt.Errorf("parse expansion array: %w", err)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("empty expansion array")
	}
	return list, nil
}
