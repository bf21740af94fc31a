package ingest

import (
	"fmt"

	"github.com/ledongthuc/pdf"
)

// parsePDF extracts per-page text so downstream chunks can carry page
// ranges. Pages that fail to decode are skipped rather than failing the
// whole document.
func parsePDF(path string) (*ParsedDocument, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	doc := &ParsedDocument{}
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		doc.Pages = append(doc.Pages, Page{Number: i, Text: text})
	}

	if len(doc.Pages) == 0 {
		return nil, fmt.Errorf("no readable pages")
	}
	return doc, nil
}
