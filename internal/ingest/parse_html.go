package ingest

import (
	"fmt"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// blockSelectors are the elements treated as paragraph boundaries when
// flattening HTML to text.
const blockSelectors = "h1, h2, h3, h4, h5, h6, p, li, td, th, pre, blockquote"

func parseHTML(path string) (*ParsedDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open html: %w", err)
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	doc.Find("script, style, nav, header, footer, noscript").Remove()

	title := strings.TrimSpace(doc.Find("title").First().Text())

	var blocks []string
	doc.Find(blockSelectors).Each(func(_ int, sel *goquery.Selection) {
		// Skip containers whose text comes entirely from nested blocks.
		if sel.Find(blockSelectors).Length() > 0 {
			return
		}
		if text := normalizeSpace(sel.Text()); text != "" {
			blocks = append(blocks, text)
		}
	})

	if len(blocks) == 0 {
		if text := normalizeSpace(doc.Find("body").Text()); text != "" {
			blocks = append(blocks, text)
		}
	}

	return &ParsedDocument{
		Title: title,
		Pages: []Page{{Number: 1, Text: strings.Join(blocks, "\n")}},
	}, nil
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
