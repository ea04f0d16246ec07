// Package types holds the shared domain types of the docqa service: the
// structured error model and extracted document content blocks.
package types
