package ingest

import (
	"fmt"
	"os"
	"strings"
)

func parseText(path string) (*ParsedDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	return &ParsedDocument{Pages: []Page{{Number: 1, Text: text}}}, nil
}
