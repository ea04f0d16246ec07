// Package api defines the request and response shapes of the document
// question-answering HTTP surface.
package api

// RunRequest is the body of POST /v1/run: one document URL and the
// questions to answer against it.
type RunRequest struct {
	// Documents is the URL of the document to answer against.
	Documents string `json:"documents"`
	// Questions are answered independently; answers are returned in the
	// same order.
	Questions []string `json:"questions"`
}

// RunResponse carries one answer per question, positionally aligned with
// the request. Per-question failures appear as sentinel answer strings,
// never as HTTP errors.
type RunResponse struct {
	Answers []string `json:"answers"`
}
