package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode/utf8"

	"github.com/BaSui01/docqa/types"
)

// Extractor turns raw document bytes into content blocks. Format-specific
// extraction (PDF, DOCX, spreadsheets) plugs in behind this interface; the
// built-in extractor handles plain text and markdown.
type Extractor interface {
	Extract(data []byte) ([]types.RawBlock, error)
}

// TextExtractor extracts blocks from plain text or markdown: paragraphs
// split on blank lines, contiguous pipe-prefixed lines grouped into atomic
// table blocks.
type TextExtractor struct{}

// Extract splits the document into paragraph and table blocks.
func (TextExtractor) Extract(data []byte) ([]types.RawBlock, error) {
	if !utf8.Valid(data) {
		return nil, types.NewError(types.ErrDocumentUnreadable, "document is not valid UTF-8 text")
	}

	var blocks []types.RawBlock
	var paragraph []string
	var table []string

	flushParagraph := func() {
		if len(paragraph) > 0 {
			blocks = append(blocks, types.TextBlock(strings.Join(paragraph, "\n")))
			paragraph = nil
		}
	}
	flushTable := func() {
		if len(table) > 0 {
			blocks = append(blocks, types.RawBlock{
				Kind: types.BlockTable,
				Text: strings.Join(table, "\n"),
			})
			table = nil
		}
	}

	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			flushParagraph()
			flushTable()
		case strings.HasPrefix(trimmed, "|"):
			flushParagraph()
			table = append(table, trimmed)
		default:
			flushTable()
			paragraph = append(paragraph, trimmed)
		}
	}
	flushParagraph()
	flushTable()

	return blocks, nil
}

// Fingerprint returns the content hash of the raw document bytes, used to
// key downloaded documents before extraction.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
