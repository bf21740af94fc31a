package models

import "time"

// Document is the registry row for one ingested document. The triple
// (ContentHash, Owner, Visibility) is unique: re-uploading the same bytes
// under the same scope is a no-op.
type Document struct {
	ID          string    `json:"doc_id"`
	ContentHash string    `json:"content_hash"`
	Title       string    `json:"title"`
	DocType     string    `json:"doc_type"`
	Visibility  string    `json:"visibility"`
	Owner       string    `json:"owner"`
	Team        string    `json:"team,omitempty"`
	Tags        []string  `json:"tags"`
	ChunkCount  int       `json:"chunk_count"`
	SourceFile  string    `json:"source_file,omitempty"`
	UploadedAt  time.Time `json:"uploaded_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// QueryRecord is one answered question, kept for history listings.
type QueryRecord struct {
	ID        string    `json:"query_id"`
	UserID    string    `json:"user_id,omitempty"`
	QueryText string    `json:"query"`
	Intent    string    `json:"intent,omitempty"`
	Response  string    `json:"response,omitempty"`
	Sources   []string  `json:"sources,omitempty"`
	LatencyMs int64     `json:"latency_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// ChunkFeedback holds the cumulative vote tallies for one chunk.
type ChunkFeedback struct {
	ChunkID   string    `json:"chunk_id"`
	Positive  int64     `json:"positive"`
	Negative  int64     `json:"negative"`
	UpdatedAt time.Time `json:"updated_at"`
}
