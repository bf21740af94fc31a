package utils

import (
	"crypto/sha256"
	"fmt"
	"io"
	"sort"
	"strings"
)

// HashBytes returns the hex-encoded SHA-256 of the given content.
func HashBytes(content []byte) string {
	hash := sha256.Sum256(content)
	return fmt.Sprintf("%x", hash)
}

// HashReader hashes a stream without buffering it fully in memory.
func HashReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("failed to hash content: %w", err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// HashString returns the hex-encoded SHA-256 of a string.
func HashString(input string) string {
	return HashBytes([]byte(input))
}

// DocID derives a stable document id from the content hash and its scope.
// Identical bytes uploaded under a different owner or visibility produce a
// different id.
func DocID(contentHash, owner, visibility string) string {
	return "doc_" + HashString(contentHash+"|"+owner+"|"+visibility)[:16]
}

// ChunkID derives a chunk id from its document and ordinal.
func ChunkID(docID string, ordinal int) string {
	return fmt.Sprintf("%s_%04d", docID, ordinal)
}

// CacheKey builds a short digest over a question and a candidate id set.
// The id set is sorted so the key does not depend on candidate order.
func CacheKey(question string, chunkIDs []string) string {
	ids := make([]string, len(chunkIDs))
	copy(ids, chunkIDs)
	sort.Strings(ids)
	return HashString(question + "|" + strings.Join(ids, ","))[:16]
}
