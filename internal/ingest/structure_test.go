package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func docFromPages(pages ...string) *ParsedDocument {
	doc := &ParsedDocument{Title: "test", Type: TypeText}
	for i, text := range pages {
		doc.Pages = append(doc.Pages, Page{Number: i + 1, Text: text})
	}
	return doc
}

func TestAnalyzeStructureKoreanArticles(t *testing.T) {
	doc := docFromPages("제1조 (목적)\n이 규정은 휴가 사용의 기준을 정한다.\n제2조 (적용범위)\n전 직원에게 적용한다.")

	sections := AnalyzeStructure(doc)
	require.Len(t, sections, 2)

	assert.Equal(t, "제1조 (목적)", sections[0].Title)
	assert.Equal(t, int64(1), sections[0].ArticleNo)
	assert.Equal(t, int64(1), sections[0].HierarchyLevel)

	assert.Equal(t, "제2조 (적용범위)", sections[1].Title)
	assert.Equal(t, int64(2), sections[1].ArticleNo)
	assert.True(t, HasStructure(sections))
}

func TestAnalyzeStructureEnglishArticles(t *testing.T) {
	doc := docFromPages("Article 1 (Purpose)\nThis policy defines leave rules.\nArticle 12: Termination\nNotice periods apply.")

	sections := AnalyzeStructure(doc)
	require.Len(t, sections, 2)

	assert.Equal(t, "Article 1 (Purpose)", sections[0].Title)
	assert.Equal(t, int64(1), sections[0].ArticleNo)
	assert.Equal(t, "Article 12 (Termination)", sections[1].Title)
	assert.Equal(t, int64(12), sections[1].ArticleNo)
}

func TestAnalyzeStructureMarkdownHeadings(t *testing.T) {
	doc := docFromPages("# Onboarding Guide\nWelcome text.\n## First Week\nSchedule details.")

	sections := AnalyzeStructure(doc)
	require.Len(t, sections, 2)
	assert.Equal(t, "Onboarding Guide", sections[0].Title)
	assert.Equal(t, "First Week", sections[1].Title)
}

func TestAnalyzeStructurePreamble(t *testing.T) {
	doc := docFromPages("Revision history and notices.\n제1조 (목적)\n본문.")

	sections := AnalyzeStructure(doc)
	require.Len(t, sections, 2)

	// Content before the first marker lands in an untitled section.
	assert.Equal(t, "", sections[0].Title)
	assert.Equal(t, int64(0), sections[0].ArticleNo)
	assert.Equal(t, "제1조 (목적)", sections[1].Title)
}

func TestAnalyzeStructureItemLevels(t *testing.T) {
	doc := docFromPages("제3조 (절차)\n1. 신청서를 제출한다.\n가. 부서장 승인\n1) 세부 단계\n일반 본문 줄.")

	sections := AnalyzeStructure(doc)
	require.Len(t, sections, 1)

	blocks := sections[0].Blocks
	require.Len(t, blocks, 5)
	assert.Equal(t, int64(1), blocks[0].Level)
	assert.Equal(t, int64(2), blocks[1].Level)
	assert.Equal(t, int64(3), blocks[2].Level)
	assert.Equal(t, int64(4), blocks[3].Level)
	assert.Equal(t, int64(0), blocks[4].Level)
}

func TestAnalyzeStructureUnstructured(t *testing.T) {
	doc := docFromPages("Plain prose without any markers.\nJust paragraphs of text.")

	sections := AnalyzeStructure(doc)
	require.Len(t, sections, 1)
	assert.False(t, HasStructure(sections))
}

func TestParseArticleVariants(t *testing.T) {
	title, number, rest, ok := parseArticle("제15조 (연차휴가) 연차는 다음과 같다.")
	require.True(t, ok)
	assert.Equal(t, "제15조 (연차휴가)", title)
	assert.Equal(t, int64(15), number)
	assert.Equal(t, "연차는 다음과 같다.", rest)

	_, _, _, ok = parseArticle("제도 개선에 대한 내용")
	assert.False(t, ok)

	title, number, _, ok = parseArticle("article 3. Working Hours")
	require.True(t, ok)
	assert.Equal(t, "Article 3 (Working Hours)", title)
	assert.Equal(t, int64(3), number)
}
