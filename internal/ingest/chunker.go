package ingest

import (
	"strings"

	prose "github.com/jdkato/prose/v2"
)

// ChunkOptions bound the chunk sizes. Defaults match the retrieval layer's
// assumptions about passage length.
type ChunkOptions struct {
	MaxChars int
	MinChars int
	Overlap  int
}

func (o ChunkOptions) withDefaults() ChunkOptions {
	if o.MaxChars == 0 {
		o.MaxChars = 1200
	}
	if o.MinChars == 0 {
		o.MinChars = 500
	}
	if o.Overlap == 0 {
		o.Overlap = 150
	}
	return o
}

// TextChunk is one chunk of content with its structural metadata. Page
// numbers are zero for formats without pages.
type TextChunk struct {
	Text           string
	PageStart      int64
	PageEnd        int64
	SectionTitle   string
	ArticleNo      int64
	HierarchyLevel int64
}

// BuildChunks converts sections into chunks. With structural markers each
// section chunks independently so no chunk spans two sections; without them
// the whole document is windowed by sentences.
func BuildChunks(doc *ParsedDocument, sections []Section, opts ChunkOptions) []TextChunk {
	opts = opts.withDefaults()

	if !HasStructure(sections) {
		return windowChunks(doc, opts)
	}

	var chunks []TextChunk
	for _, sec := range sections {
		chunks = append(chunks, chunkSection(sec, opts)...)
	}
	return chunks
}

// chunkSection merges a section's blocks greedily up to MaxChars. Oversized
// sections split at sub-item boundaries first; only a single overlong block
// falls back to sentence windows.
func chunkSection(sec Section, opts ChunkOptions) []TextChunk {
	var chunks []TextChunk
	var buf []string
	var size int
	pageStart, pageEnd := 0, 0

	flush := func() {
		text := strings.TrimSpace(strings.Join(buf, "\n"))
		if text != "" {
			chunks = append(chunks, TextChunk{
				Text:           text,
				PageStart:      int64(pageStart),
				PageEnd:        int64(pageEnd),
				SectionTitle:   sec.Title,
				ArticleNo:      sec.ArticleNo,
				HierarchyLevel: sec.HierarchyLevel,
			})
		}
		buf, size = nil, 0
	}

	for _, block := range sec.Blocks {
		text := strings.TrimSpace(block.Text)
		if text == "" {
			continue
		}

		if len(text) > opts.MaxChars {
			// A single block too large for any chunk: emit what we have and
			// window the block by sentences.
			flush()
			for _, part := range splitBySentences(text, opts) {
				chunks = append(chunks, TextChunk{
					Text:           part,
					PageStart:      int64(block.Page),
					PageEnd:        int64(block.Page),
					SectionTitle:   sec.Title,
					ArticleNo:      sec.ArticleNo,
					HierarchyLevel: sec.HierarchyLevel,
				})
			}
			continue
		}

		if size+len(text)+1 > opts.MaxChars && len(buf) > 0 {
			flush()
		}
		if len(buf) == 0 {
			pageStart = block.Page
		}
		buf = append(buf, text)
		size += len(text) + 1
		pageEnd = block.Page
	}
	flush()

	return mergeShortTail(chunks, opts)
}

// mergeShortTail folds a trailing chunk shorter than MinChars into its
// predecessor when the pair still fits under MaxChars.
func mergeShortTail(chunks []TextChunk, opts ChunkOptions) []TextChunk {
	n := len(chunks)
	if n < 2 {
		return chunks
	}

	last, prev := chunks[n-1], chunks[n-2]
	if len(last.Text) >= opts.MinChars || len(prev.Text)+len(last.Text)+1 > opts.MaxChars {
		return chunks
	}

	prev.Text = prev.Text + "\n" + last.Text
	if last.PageEnd > prev.PageEnd {
		prev.PageEnd = last.PageEnd
	}
	chunks[n-2] = prev

	return chunks[:n-1]
}

// windowChunks is the unstructured fallback: greedy sentence windows with a
// character overlap between consecutive chunks.
func windowChunks(doc *ParsedDocument, opts ChunkOptions) []TextChunk {
	var chunks []TextChunk

	for _, page := range doc.Pages {
		text := strings.TrimSpace(page.Text)
		if text == "" {
			continue
		}
		for _, part := range splitBySentences(text, opts) {
			chunks = append(chunks, TextChunk{
				Text:      part,
				PageStart: int64(page.Number),
				PageEnd:   int64(page.Number),
			})
		}
	}
	return chunks
}

// splitBySentences windows text at sentence boundaries, carrying roughly
// Overlap characters of trailing sentences into the next window. Falls back
// to hard character cuts when sentence segmentation yields nothing usable.
func splitBySentences(text string, opts ChunkOptions) []string {
	sentences := segmentSentences(text)
	if len(sentences) == 0 {
		return hardSplit(text, opts)
	}

	var parts []string
	var buf []string
	var size int

	for _, s := range sentences {
		if len(s) > opts.MaxChars {
			if len(buf) > 0 {
				parts = append(parts, strings.Join(buf, " "))
				buf, size = nil, 0
			}
			parts = append(parts, hardSplit(s, opts)...)
			continue
		}

		if size+len(s)+1 > opts.MaxChars {
			parts = append(parts, strings.Join(buf, " "))
			// Seed the next window with trailing sentences as overlap.
			var carry []string
			carrySize := 0
			for i := len(buf) - 1; i >= 0 && carrySize < opts.Overlap; i-- {
				carry = append([]string{buf[i]}, carry...)
				carrySize += len(buf[i]) + 1
			}
			buf, size = carry, carrySize
		}
		buf = append(buf, s)
		size += len(s) + 1
	}
	if len(buf) > 0 {
		parts = append(parts, strings.Join(buf, " "))
	}
	return parts
}

func segmentSentences(text string) []string {
	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return nil
	}

	var sentences []string
	for _, s := range doc.Sentences() {
		if t := strings.TrimSpace(s.Text); t != "" {
			sentences = append(sentences, t)
		}
	}
	return sentences
}

// hardSplit cuts on rune boundaries with overlap. Last resort for text with
// no usable sentence structure.
func hardSplit(text string, opts ChunkOptions) []string {
	runes := []rune(text)
	var parts []string

	start := 0
	for start < len(runes) {
		end := start + opts.MaxChars
		if end > len(runes) {
			end = len(runes)
		}
		part := strings.TrimSpace(string(runes[start:end]))
		if part != "" {
			parts = append(parts, part)
		}
		if end == len(runes) {
			break
		}
		start = end - opts.Overlap
		if start < 0 {
			start = 0
		}
	}
	return parts
}
