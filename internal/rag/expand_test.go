package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandReturnsOriginalFirst(t *testing.T) {
	mock := &mockCompleter{responses: []string{
		"1. vacation days entitlement\n2. annual leave allowance\n3. paid time off amount",
	}}
	e := NewExpander(mock, 3)

	result := e.Expand(context.Background(), "how many annual leave days", nil)

	require.Len(t, result, 4)
	assert.Equal(t, "how many annual leave days", result[0])
	assert.Equal(t, "vacation days entitlement", result[1])
}

func TestExpandFallbackOnError(t *testing.T) {
	mock := &mockCompleter{err: errors.New("upstream down")}
	e := NewExpander(mock, 3)

	result := e.Expand(context.Background(), "original query", nil)
	assert.Equal(t, []string{"original query"}, result)
}

func TestExpandDeduplicatesAgainstOriginal(t *testing.T) {
	mock := &mockCompleter{responses: []string{
		"1. original query here\n2. a different phrasing",
	}}
	e := NewExpander(mock, 3)

	result := e.Expand(context.Background(), "original query here", nil)

	require.Len(t, result, 2)
	assert.Equal(t, "a different phrasing", result[1])
}

func TestParseExpansionsFormats(t *testing.T) {
	content := "1. numbered variant one\n- bulleted variant two\nbare line variant three"
	variants := parseExpansions(content, 5)

	assert.Equal(t, []string{
		"numbered variant one",
		"bulleted variant two",
		"bare line variant three",
	}, variants)
}

func TestParseExpansionsFiltersLength(t *testing.T) {
	long := make([]rune, 120)
	for i := range long {
		long[i] = 'x'
	}
	content := "1. ok\n2. " + string(long) + "\n3. good sized variant"

	variants := parseExpansions(content, 5)
	assert.Equal(t, []string{"good sized variant"}, variants)
}

func TestParseExpansionsRespectsCap(t *testing.T) {
	content := "1. variant one\n2. variant two\n3. variant three\n4. variant four"
	variants := parseExpansions(content, 2)
	assert.Len(t, variants, 2)
}

func TestTruncateList(t *testing.T) {
	items := []string{"a", "b", "c", "d"}
	assert.Equal(t, items, truncateList(items, 10))

	truncated := truncateList(items, 2)
	require.Len(t, truncated, 3)
	assert.Equal(t, "and 2 more", truncated[2])
}
