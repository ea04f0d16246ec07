// Package rag implements the retrieval-augmented answering core: document
// segmentation, embedding with batch fallback, a brute-force cosine vector
// index, query expansion, cross-encoder reranking, and the per-question
// orchestration pipeline with hard wall-clock budgets.
package rag
