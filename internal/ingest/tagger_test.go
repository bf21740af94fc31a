package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTagsJSONArray(t *testing.T) {
	tags := parseTags(`["HR Policy", "leave", "vacation"]`, 6)
	assert.Equal(t, []string{"hr-policy", "leave", "vacation"}, tags)
}

func TestParseTagsCodeFence(t *testing.T) {
	tags := parseTags("```json\n[\"onboarding\", \"benefits\"]\n```", 6)
	assert.Equal(t, []string{"onboarding", "benefits"}, tags)
}

func TestParseTagsCommaFallback(t *testing.T) {
	tags := parseTags("security, compliance, audit", 6)
	assert.Equal(t, []string{"security", "compliance", "audit"}, tags)
}

func TestParseTagsDedupAndCap(t *testing.T) {
	tags := parseTags(`["a", "A", "b", "c", "d"]`, 3)
	assert.Equal(t, []string{"a", "b", "c"}, tags)
}

func TestParseTagsEmpty(t *testing.T) {
	assert.Empty(t, parseTags("", 6))
	assert.Empty(t, parseTags("[]", 6))
}
