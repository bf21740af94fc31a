package ingest

import (
	"bytes"
	"path/filepath"
	"strings"
)

// File types the pipeline understands.
const (
	TypePDF     = "pdf"
	TypeDOCX    = "docx"
	TypeText    = "txt"
	TypeHTML    = "html"
	TypeUnknown = "unknown"
)

var extTypes = map[string]string{
	".pdf":  TypePDF,
	".docx": TypeDOCX,
	".txt":  TypeText,
	".md":   TypeText,
	".html": TypeHTML,
	".htm":  TypeHTML,
}

// DetectType classifies a file by extension, with a magic-byte check to
// catch mislabeled PDFs and DOCX (zip) containers.
func DetectType(path string, head []byte) string {
	if bytes.HasPrefix(head, []byte("%PDF")) {
		return TypePDF
	}
	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := extTypes[ext]; ok {
		return t
	}
	// DOCX is a zip archive; only trust the magic when the extension agrees.
	if bytes.HasPrefix(head, []byte("PK\x03\x04")) && ext == ".docx" {
		return TypeDOCX
	}
	return TypeUnknown
}
