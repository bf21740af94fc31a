package ingest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildChunksNeverSpansSections(t *testing.T) {
	var sb strings.Builder
	for i := 1; i <= 4; i++ {
		fmt.Fprintf(&sb, "제%d조 (조항%d)\n", i, i)
		sb.WriteString(strings.Repeat(fmt.Sprintf("조항 %d의 본문 내용입니다. ", i), 20))
		sb.WriteString("\n")
	}
	doc := docFromPages(sb.String())

	sections := AnalyzeStructure(doc)
	require.Len(t, sections, 4)

	chunks := BuildChunks(doc, sections, ChunkOptions{})
	require.NotEmpty(t, chunks)

	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Text), 1200)
		require.NotEmpty(t, c.SectionTitle)
		// A chunk carries exactly one section's metadata and content.
		for i, sec := range sections {
			if sec.Title == c.SectionTitle {
				assert.Equal(t, sec.ArticleNo, c.ArticleNo)
				assert.NotContains(t, c.Text, fmt.Sprintf("조항 %d의", (i+1)%4+1))
			}
		}
	}
}

func TestBuildChunksMergesSmallSections(t *testing.T) {
	doc := docFromPages("제1조 (목적)\n짧은 본문.\n추가 문장.")

	sections := AnalyzeStructure(doc)
	chunks := BuildChunks(doc, sections, ChunkOptions{})

	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Text, "제1조 (목적)")
	assert.Contains(t, chunks[0].Text, "짧은 본문.")
	assert.Contains(t, chunks[0].Text, "추가 문장.")
}

func TestBuildChunksOversizedBlockSplits(t *testing.T) {
	longBlock := strings.TrimSpace(strings.Repeat("This sentence fills the block with workplace policy wording. ", 60))
	doc := docFromPages("# Policy\n" + longBlock)

	sections := AnalyzeStructure(doc)
	chunks := BuildChunks(doc, sections, ChunkOptions{})

	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Text), 1200)
		assert.Equal(t, "Policy", c.SectionTitle)
	}
}

func TestBuildChunksPageRange(t *testing.T) {
	doc := docFromPages(
		"제1조 (목적)\n첫 페이지 본문.",
		"둘째 페이지 본문.",
	)

	sections := AnalyzeStructure(doc)
	chunks := BuildChunks(doc, sections, ChunkOptions{})

	require.Len(t, chunks, 1)
	assert.Equal(t, int64(1), chunks[0].PageStart)
	assert.Equal(t, int64(2), chunks[0].PageEnd)
}

func TestBuildChunksUnstructuredFallback(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("Plain prose with no markers whatsoever in it. ", 80))
	doc := docFromPages(text)

	sections := AnalyzeStructure(doc)
	require.False(t, HasStructure(sections))

	chunks := BuildChunks(doc, sections, ChunkOptions{})
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Text), 1200)
		assert.Empty(t, c.SectionTitle)
		assert.Equal(t, int64(1), c.PageStart)
	}
}

func TestChunkSectionFlushesBeforeCapOverflow(t *testing.T) {
	sec := Section{
		Title:     "제3조 (수당)",
		ArticleNo: 3,
		Blocks: []Block{
			{Text: strings.Repeat("가", 400), Page: 1},
			{Text: strings.Repeat("나", 1150), Page: 1},
		},
	}

	chunks := chunkSection(sec, ChunkOptions{}.withDefaults())

	require.Len(t, chunks, 2)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Text), 1200)
	}
	assert.Contains(t, chunks[0].Text, "가")
	assert.Contains(t, chunks[1].Text, "나")
}

func TestMergeShortTail(t *testing.T) {
	opts := ChunkOptions{}.withDefaults()

	merged := mergeShortTail([]TextChunk{
		{Text: strings.Repeat("a", 600), PageStart: 1, PageEnd: 1},
		{Text: strings.Repeat("b", 80), PageStart: 2, PageEnd: 2},
	}, opts)
	require.Len(t, merged, 1)
	assert.Contains(t, merged[0].Text, strings.Repeat("a", 600))
	assert.Contains(t, merged[0].Text, strings.Repeat("b", 80))
	assert.Equal(t, int64(2), merged[0].PageEnd)

	// No merge when the pair would exceed the cap.
	kept := mergeShortTail([]TextChunk{
		{Text: strings.Repeat("a", 1150)},
		{Text: strings.Repeat("b", 80)},
	}, opts)
	assert.Len(t, kept, 2)

	// No merge when the tail already meets the minimum.
	kept = mergeShortTail([]TextChunk{
		{Text: strings.Repeat("a", 600)},
		{Text: strings.Repeat("b", 550)},
	}, opts)
	assert.Len(t, kept, 2)
}

func TestSplitBySentencesOverlap(t *testing.T) {
	var sentences []string
	for i := 0; i < 30; i++ {
		sentences = append(sentences, fmt.Sprintf("Sentence number %d carries some policy detail.", i))
	}
	text := strings.Join(sentences, " ")

	parts := splitBySentences(text, ChunkOptions{MaxChars: 400, MinChars: 100, Overlap: 100})
	require.Greater(t, len(parts), 1)

	// Consecutive windows share trailing sentences.
	for i := 1; i < len(parts); i++ {
		prevTail := parts[i-1][len(parts[i-1])-40:]
		assert.Contains(t, parts[i], strings.TrimSpace(prevTail))
	}
}

func TestHardSplitBounds(t *testing.T) {
	text := strings.Repeat("한", 3000)
	parts := hardSplit(text, ChunkOptions{MaxChars: 1200, MinChars: 500, Overlap: 150})

	require.Greater(t, len(parts), 1)
	total := 0
	for _, p := range parts {
		runes := []rune(p)
		assert.LessOrEqual(t, len(runes), 1200)
		total += len(runes)
	}
	// Overlap means the concatenation is longer than the source.
	assert.GreaterOrEqual(t, total, 3000)
}
