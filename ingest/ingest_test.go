package ingest

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/docqa/testutil"
	"github.com/BaSui01/docqa/types"
)

func TestFetcher_DownloadsDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("the document body"))
	}))
	defer srv.Close()

	f := NewFetcher(FetcherConfig{}, zap.NewNop())
	body, err := f.Fetch(testutil.TestContext(t), srv.URL+"/doc.txt")
	require.NoError(t, err)
	assert.Equal(t, "the document body", string(body))
}

func TestFetcher_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewFetcher(FetcherConfig{}, zap.NewNop())
	_, err := f.Fetch(testutil.TestContext(t), srv.URL)
	require.Error(t, err)

	var typed *types.Error
	require.True(t, errors.As(err, &typed))
	assert.Equal(t, types.ErrDocumentUnreadable, typed.Code)
}

func TestFetcher_RejectsBadURLs(t *testing.T) {
	f := NewFetcher(FetcherConfig{}, zap.NewNop())
	for _, raw := range []string{
		"",
		"not a url",
		"ftp://example.com/doc",
		"file:///etc/passwd",
	} {
		_, err := f.Fetch(testutil.TestContext(t), raw)
		require.Error(t, err, "url: %q", raw)

		var typed *types.Error
		require.True(t, errors.As(err, &typed))
		assert.Equal(t, types.ErrDocumentUnreadable, typed.Code)
	}
}

func TestFetcher_BodySizeCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 2048)))
	}))
	defer srv.Close()

	f := NewFetcher(FetcherConfig{MaxBodyBytes: 1024}, zap.NewNop())
	_, err := f.Fetch(testutil.TestContext(t), srv.URL)
	assert.Error(t, err)
}

func TestFetcher_ContextTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	f := NewFetcher(FetcherConfig{}, zap.NewNop())
	ctx := testutil.TestContextWithTimeout(t, 10*time.Millisecond)
	_, err := f.Fetch(ctx, srv.URL)
	assert.Error(t, err)
}

func TestRewriteGoogleDriveURL(t *testing.T) {
	cases := map[string]string{
		"https://drive.google.com/file/d/abc123/view?usp=sharing": "https://drive.google.com/uc?export=download&id=abc123",
		"https://drive.google.com/file/d/abc123":                  "https://drive.google.com/uc?export=download&id=abc123",
		"https://drive.google.com/open?id=xyz":                    "https://drive.google.com/open?id=xyz",
		"https://example.com/file/d/abc123/view":                  "https://example.com/file/d/abc123/view",
	}
	for in, want := range cases {
		assert.Equal(t, want, RewriteGoogleDriveURL(in), "input: %s", in)
	}
}

func TestTextExtractor_ParagraphsAndTables(t *testing.T) {
	doc := strings.Join([]string{
		"First paragraph line one.",
		"First paragraph line two.",
		"",
		"| plan | premium |",
		"| basic | 100 |",
		"",
		"Closing paragraph.",
	}, "\n")

	blocks, err := TextExtractor{}.Extract([]byte(doc))
	require.NoError(t, err)
	require.Len(t, blocks, 3)

	assert.Equal(t, types.BlockText, blocks[0].Kind)
	assert.Equal(t, "First paragraph line one.\nFirst paragraph line two.", blocks[0].Text)

	assert.Equal(t, types.BlockTable, blocks[1].Kind)
	assert.Equal(t, "| plan | premium |\n| basic | 100 |", blocks[1].Text)

	assert.Equal(t, types.BlockText, blocks[2].Kind)
}

func TestTextExtractor_TableInterruptsParagraph(t *testing.T) {
	doc := "Intro text.\n| a | b |\nOutro text."

	blocks, err := TextExtractor{}.Extract([]byte(doc))
	require.NoError(t, err)
	require.Len(t, blocks, 3)
	assert.Equal(t, types.BlockText, blocks[0].Kind)
	assert.Equal(t, types.BlockTable, blocks[1].Kind)
	assert.Equal(t, types.BlockText, blocks[2].Kind)
}

func TestTextExtractor_EmptyAndInvalidInput(t *testing.T) {
	blocks, err := TextExtractor{}.Extract(nil)
	require.NoError(t, err)
	assert.Empty(t, blocks)

	blocks, err = TextExtractor{}.Extract([]byte("   \n\n  \n"))
	require.NoError(t, err)
	assert.Empty(t, blocks)

	_, err = TextExtractor{}.Extract([]byte{0xff, 0xfe, 0xfd})
	require.Error(t, err)
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint([]byte("same content"))
	b := Fingerprint([]byte("same content"))
	c := Fingerprint([]byte("other content"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
