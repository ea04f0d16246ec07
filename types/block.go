package types

import "strings"

// BlockKind distinguishes narrative text from tabular content.
type BlockKind string

const (
	BlockText  BlockKind = "text"  // narrative paragraph
	BlockTable BlockKind = "table" // pre-rendered table, atomic for indexing
)

// RawBlock is one extracted unit of document content, produced by the
// extraction layer and consumed by the segmenter. Table blocks carry their
// rows pre-rendered as markdown and are never split downstream.
type RawBlock struct {
	Kind BlockKind `json:"kind"`
	Text string    `json:"text"`
}

// TextBlock creates a narrative block.
func TextBlock(text string) RawBlock {
	return RawBlock{Kind: BlockText, Text: text}
}

// TableBlock renders a row-major grid as a markdown table block.
func TableBlock(rows [][]string) RawBlock {
	var sb strings.Builder
	for _, row := range rows {
		sb.WriteString("| ")
		sb.WriteString(strings.Join(row, " | "))
		sb.WriteString(" |\n")
	}
	return RawBlock{Kind: BlockTable, Text: strings.TrimRight(sb.String(), "\n")}
}
