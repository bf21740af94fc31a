package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/docqa/backend/pkg/logger"
)

// Page is the text of one source page. Formats without page structure
// yield a single page numbered 1.
type Page struct {
	Number int
	Text   string
}

// ParsedDocument is the format-independent output of a parser.
type ParsedDocument struct {
	Title string
	Type  string
	Pages []Page
}

// Text joins all pages into one string.
func (d *ParsedDocument) Text() string {
	parts := make([]string, 0, len(d.Pages))
	for _, p := range d.Pages {
		if t := strings.TrimSpace(p.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Parse reads and extracts text from a file, dispatching on the detected
// type. Unknown types are attempted as plain text.
func Parse(path string) (*ParsedDocument, error) {
	head := make([]byte, 8)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	n, _ := f.Read(head)
	f.Close()

	ftype := DetectType(path, head[:n])
	logger.Debug("File type detected", zap.String("file", filepath.Base(path)), zap.String("type", ftype))

	var doc *ParsedDocument
	switch ftype {
	case TypePDF:
		doc, err = parsePDF(path)
	case TypeDOCX:
		doc, err = parseDOCX(path)
	case TypeHTML:
		doc, err = parseHTML(path)
	default:
		doc, err = parseText(path)
		ftype = TypeText
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}

	doc.Type = ftype
	if doc.Title == "" {
		base := filepath.Base(path)
		doc.Title = strings.TrimSuffix(base, filepath.Ext(base))
	}

	if strings.TrimSpace(doc.Text()) == "" {
		return nil, fmt.Errorf("parse %s: no text extracted", filepath.Base(path))
	}
	return doc, nil
}
