// Package llm provides the chat-completion client used for query expansion
// and answer generation, plus subpackages for embeddings, reranking, and
// retry policies.
package llm
