package crawler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_MainContent(t *testing.T) {
	extraction, err := NewExtractor().Extract([]byte(articleHTML), "https://example.com/a")
	require.NoError(t, err)

	assert.Equal(t, "Test Page", extraction.Title)
	assert.Contains(t, extraction.Markdown, "# Heading")
	assert.Contains(t, extraction.Markdown, "quick brown fox")
	assert.NotContains(t, extraction.Markdown, "Home")
	assert.NotContains(t, extraction.Markdown, "Copyright")
}

func TestExtract_ScoresContainersWithoutSemanticTags(t *testing.T) {
	long := strings.Repeat("Readable sentence about an interesting subject. ", 10)
	html := `<html><head><meta property="og:title" content="OG Title"><title>Fallback</title></head><body>
<div class="menu"><a href="/1">Link one</a> <a href="/2">Link two</a> <a href="/3">Link three</a></div>
<div id="story"><p>` + long + `</p><p>` + long + `</p></div>
<script>var tracking = "ignored";</script>
</body></html>`

	extraction, err := NewExtractor().Extract([]byte(html), "https://example.com/b")
	require.NoError(t, err)

	assert.Equal(t, "OG Title", extraction.Title)
	assert.Contains(t, extraction.Markdown, "Readable sentence")
	assert.NotContains(t, extraction.Markdown, "Link one")
	assert.NotContains(t, extraction.Markdown, "tracking")
}

func TestExtract_FallsBackToBody(t *testing.T) {
	extraction, err := NewExtractor().Extract([]byte(`<html><body><p>Tiny page.</p></body></html>`), "https://example.com/c")
	require.NoError(t, err)
	assert.Equal(t, "Tiny page.", extraction.Markdown)
}

func TestExtract_Empty(t *testing.T) {
	pages := []string{
		``,
		`<html><body></body></html>`,
		`<html><body><script>app.mount()</script><nav><a href="/">Home</a></nav></body></html>`,
		`<html><body><p>   </p><div>---</div></body></html>`,
	}

	for _, page := range pages {
		_, err := NewExtractor().Extract([]byte(page), "https://example.com/d")
		assert.ErrorIs(t, err, ErrExtractionEmpty, page)
	}
}
