package ingest

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Block is one line or paragraph with its source page and, for sub-items,
// its list depth.
type Block struct {
	Text  string
	Page  int
	Level int64
}

// Section is a contiguous run of blocks under one structural marker.
// Chunks never cross section boundaries.
type Section struct {
	Title          string
	ArticleNo      int64
	HierarchyLevel int64
	Blocks         []Block
}

// Structural markers. Documents in this corpus are mostly policy texts with
// either "제N조 (제목)" or "Article N (Title)" numbering; markdown headings
// cover converted files.
var (
	articleKoRe = regexp.MustCompile(`^제(\d+)조\s*(?:\(([^)]+)\))?`)
	articleEnRe = regexp.MustCompile(`^(?i:article)\s+(\d+)\s*(?:\(([^)]+)\)|[.:]\s*(.*))?`)
	headingRe   = regexp.MustCompile(`^#{1,6}\s+(.+)$`)

	itemPatterns = []struct {
		re    *regexp.Regexp
		level int64
	}{
		{regexp.MustCompile(`^\d+\.\s`), 2},
		{regexp.MustCompile(`^[가-힣]\.\s`), 3},
		{regexp.MustCompile(`^[a-z]\.\s`), 3},
		{regexp.MustCompile(`^\d+\)\s`), 4},
		{regexp.MustCompile(`^[가-힣a-z]\)\s`), 4},
	}
)

// parseArticle recognizes an article header line and returns its rendered
// title, number, and the remainder of the line after the header.
func parseArticle(line string) (title string, number int64, rest string, ok bool) {
	if m := articleKoRe.FindStringSubmatch(line); m != nil {
		number, _ = strconv.ParseInt(m[1], 10, 64)
		title = fmt.Sprintf("제%s조", m[1])
		if m[2] != "" {
			title += fmt.Sprintf(" (%s)", m[2])
		}
		return title, number, strings.TrimSpace(line[len(m[0]):]), true
	}
	if m := articleEnRe.FindStringSubmatch(line); m != nil {
		number, _ = strconv.ParseInt(m[1], 10, 64)
		title = fmt.Sprintf("Article %s", m[1])
		name := m[2]
		if name == "" {
			name = strings.TrimSpace(m[3])
		}
		if name != "" {
			title += fmt.Sprintf(" (%s)", name)
		}
		return title, number, "", true
	}
	return "", 0, "", false
}

func itemLevel(line string) (int64, bool) {
	for _, p := range itemPatterns {
		if p.re.MatchString(line) {
			return p.level, true
		}
	}
	return 0, false
}

// AnalyzeStructure groups a parsed document into sections by article and
// heading markers. Content before the first marker lands in an untitled
// preamble section.
func AnalyzeStructure(doc *ParsedDocument) []Section {
	var sections []Section
	current := Section{}

	flush := func() {
		if len(current.Blocks) > 0 || current.Title != "" {
			sections = append(sections, current)
		}
	}

	for _, page := range doc.Pages {
		for _, rawLine := range strings.Split(page.Text, "\n") {
			line := strings.TrimSpace(rawLine)
			if line == "" {
				continue
			}

			if title, number, rest, ok := parseArticle(line); ok {
				flush()
				current = Section{Title: title, ArticleNo: number, HierarchyLevel: 1}
				current.Blocks = append(current.Blocks, Block{Text: title, Page: page.Number, Level: 1})
				if rest != "" {
					current.Blocks = append(current.Blocks, Block{Text: rest, Page: page.Number})
				}
				continue
			}

			if m := headingRe.FindStringSubmatch(line); m != nil {
				flush()
				title := strings.TrimSpace(m[1])
				current = Section{Title: title, HierarchyLevel: 1}
				current.Blocks = append(current.Blocks, Block{Text: title, Page: page.Number, Level: 1})
				continue
			}

			if level, ok := itemLevel(line); ok {
				current.Blocks = append(current.Blocks, Block{Text: line, Page: page.Number, Level: level})
				continue
			}

			current.Blocks = append(current.Blocks, Block{Text: line, Page: page.Number})
		}
	}
	flush()

	return sections
}

// HasStructure reports whether any section carries a structural marker. When
// false, the pipeline falls back to fixed-size windows.
func HasStructure(sections []Section) bool {
	for _, s := range sections {
		if s.Title != "" {
			return true
		}
	}
	return false
}
