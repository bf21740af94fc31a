package ingest

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// parseDOCX pulls paragraph text out of the word/document.xml part of the
// OOXML container. Formatting and embedded objects are dropped.
func parseDOCX(path string) (*ParsedDocument, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open docx: %w", err)
	}
	defer zr.Close()

	var docPart *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docPart = f
			break
		}
	}
	if docPart == nil {
		return nil, fmt.Errorf("missing word/document.xml")
	}

	rc, err := docPart.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open document part: %w", err)
	}
	defer rc.Close()

	paragraphs, err := extractDOCXParagraphs(rc)
	if err != nil {
		return nil, err
	}

	text := strings.Join(paragraphs, "\n")
	return &ParsedDocument{Pages: []Page{{Number: 1, Text: text}}}, nil
}

func extractDOCXParagraphs(r io.Reader) ([]string, error) {
	decoder := xml.NewDecoder(r)

	var paragraphs []string
	var current strings.Builder
	inParagraph := false

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode document xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				inParagraph = true
				current.Reset()
			case "tab":
				if inParagraph {
					current.WriteByte('\t')
				}
			case "br":
				if inParagraph {
					current.WriteByte('\n')
				}
			}
		case xml.EndElement:
			if t.Name.Local == "p" && inParagraph {
				if text := strings.TrimSpace(current.String()); text != "" {
					paragraphs = append(paragraphs, text)
				}
				inParagraph = false
			}
		case xml.CharData:
			if inParagraph {
				current.Write(t)
			}
		}
	}
	return paragraphs, nil
}
