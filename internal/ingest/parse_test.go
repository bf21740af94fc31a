package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseTextFile(t *testing.T) {
	path := writeTemp(t, "notes.txt", "line one\r\nline two\n")

	doc, err := Parse(path)
	require.NoError(t, err)

	assert.Equal(t, "notes", doc.Title)
	assert.Equal(t, TypeText, doc.Type)
	require.Len(t, doc.Pages, 1)
	assert.Equal(t, "line one\nline two\n", doc.Pages[0].Text)
}

func TestParseMarkdownKeepsHeadings(t *testing.T) {
	path := writeTemp(t, "guide.md", "# Setup\nInstall the tools.\n")

	doc, err := Parse(path)
	require.NoError(t, err)
	assert.Contains(t, doc.Pages[0].Text, "# Setup")
}

func TestParseHTMLExtractsBlocks(t *testing.T) {
	html := `<!doctype html>
<html>
<head><title>Benefits Overview</title><style>p { color: red }</style></head>
<body>
<nav>Home | About</nav>
<script>console.log("tracking")</script>
<h1>Benefits</h1>
<p>Employees receive health insurance.</p>
<ul><li>Dental included</li></ul>
</body>
</html>`
	path := writeTemp(t, "benefits.html", html)

	doc, err := Parse(path)
	require.NoError(t, err)

	assert.Equal(t, "Benefits Overview", doc.Title)
	assert.Equal(t, TypeHTML, doc.Type)

	text := doc.Text()
	assert.Contains(t, text, "Benefits")
	assert.Contains(t, text, "Employees receive health insurance.")
	assert.Contains(t, text, "Dental included")
	assert.NotContains(t, text, "console.log")
	assert.NotContains(t, text, "Home | About")
}

func TestParseEmptyFileFails(t *testing.T) {
	path := writeTemp(t, "empty.txt", "   \n  ")

	_, err := Parse(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no text extracted")
}

func TestParseBrokenPDFFails(t *testing.T) {
	path := writeTemp(t, "fake.pdf", "%PDF-1.7 but truncated garbage")

	_, err := Parse(path)
	require.Error(t, err)
}
