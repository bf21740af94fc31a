package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/docqa/backend/internal/storage/models"
	"github.com/docqa/backend/pkg/logger"
)

// Client is the document registry. Vectors live in Milvus; this keeps the
// per-document metadata, dedup index, query history and feedback tallies.
type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		content_hash TEXT NOT NULL,
		title TEXT NOT NULL,
		doc_type TEXT NOT NULL,
		visibility TEXT NOT NULL,
		owner TEXT NOT NULL,
		team TEXT,
		tags_json TEXT,
		chunk_count INTEGER DEFAULT 0,
		source_file TEXT,
		uploaded_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		UNIQUE(content_hash, owner, visibility)
	);
	CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents(owner);
	CREATE INDEX IF NOT EXISTS idx_documents_visibility ON documents(visibility);
	CREATE INDEX IF NOT EXISTS idx_documents_type ON documents(doc_type);

	CREATE TABLE IF NOT EXISTS query_history (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		query_text TEXT NOT NULL,
		intent TEXT,
		response TEXT,
		sources_json TEXT,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_query_user ON query_history(user_id);
	CREATE INDEX IF NOT EXISTS idx_query_created ON query_history(created_at);

	CREATE TABLE IF NOT EXISTS chunk_feedback (
		chunk_id TEXT PRIMARY KEY,
		positive INTEGER NOT NULL DEFAULT 0,
		negative INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL
	);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// UpsertDocument inserts a registry row, or refreshes the existing row when
// the (content_hash, owner, visibility) triple already exists.
func (c *Client) UpsertDocument(doc *models.Document) error {
	tagsJSON, err := json.Marshal(doc.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}

	query := `
		INSERT INTO documents (id, content_hash, title, doc_type, visibility, owner, team, tags_json, chunk_count, source_file, uploaded_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(content_hash, owner, visibility) DO UPDATE SET
			title = excluded.title,
			tags_json = excluded.tags_json,
			chunk_count = excluded.chunk_count,
			source_file = excluded.source_file,
			updated_at = excluded.updated_at
	`

	_, err = c.db.Exec(
		query,
		doc.ID,
		doc.ContentHash,
		doc.Title,
		doc.DocType,
		doc.Visibility,
		doc.Owner,
		doc.Team,
		string(tagsJSON),
		doc.ChunkCount,
		doc.SourceFile,
		doc.UploadedAt.Unix(),
		doc.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}

	logger.Debug("Document registered", zap.String("doc_id", doc.ID), zap.String("title", doc.Title))
	return nil
}

const documentColumns = `id, content_hash, title, doc_type, visibility, owner, team, tags_json, chunk_count, source_file, uploaded_at, updated_at`

func scanDocument(row interface{ Scan(...any) error }) (*models.Document, error) {
	var doc models.Document
	var team, tagsJSON, sourceFile sql.NullString
	var uploadedAt, updatedAt int64

	err := row.Scan(
		&doc.ID,
		&doc.ContentHash,
		&doc.Title,
		&doc.DocType,
		&doc.Visibility,
		&doc.Owner,
		&team,
		&tagsJSON,
		&doc.ChunkCount,
		&sourceFile,
		&uploadedAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	doc.Team = team.String
	doc.SourceFile = sourceFile.String
	doc.UploadedAt = time.Unix(uploadedAt, 0)
	doc.UpdatedAt = time.Unix(updatedAt, 0)
	if tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &doc.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode tags: %w", err)
		}
	}
	return &doc, nil
}

// FindByHash looks up a document by its dedup triple. Returns nil without
// error when no row matches.
func (c *Client) FindByHash(contentHash, owner, visibility string) (*models.Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM documents WHERE content_hash = ? AND owner = ? AND visibility = ?`, documentColumns)

	doc, err := scanDocument(c.db.QueryRow(query, contentHash, owner, visibility))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up document by hash: %w", err)
	}
	return doc, nil
}

// FindByTitle locates the previous generation of a re-uploaded document:
// same title and scope, any content hash. Returns nil when absent.
func (c *Client) FindByTitle(title, owner, visibility string) (*models.Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM documents WHERE title = ? AND owner = ? AND visibility = ?`, documentColumns)

	doc, err := scanDocument(c.db.QueryRow(query, title, owner, visibility))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up document by title: %w", err)
	}
	return doc, nil
}

func (c *Client) GetDocument(id string) (*models.Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM documents WHERE id = ?`, documentColumns)

	doc, err := scanDocument(c.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// ListDocuments returns the documents visible to owner: public documents,
// the owner's own uploads, and (when team is set) team-scoped documents.
func (c *Client) ListDocuments(owner, team string) ([]*models.Document, error) {
	clauses := []string{"visibility = 'public'", "owner = ?"}
	args := []any{owner}
	if team != "" {
		clauses = append(clauses, "(visibility = 'org' AND team = ?)")
		args = append(args, team)
	}

	query := fmt.Sprintf(
		`SELECT %s FROM documents WHERE %s ORDER BY uploaded_at DESC`,
		documentColumns,
		strings.Join(clauses, " OR "),
	)

	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (c *Client) DeleteDocument(id string) error {
	result, err := c.db.Exec(`DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	affected, _ := result.RowsAffected()
	logger.Debug("Document deleted", zap.String("doc_id", id), zap.Int64("rows", affected))
	return nil
}

func (c *Client) InsertQueryRecord(rec *models.QueryRecord) error {
	sourcesJSON, err := json.Marshal(rec.Sources)
	if err != nil {
		return fmt.Errorf("failed to encode sources: %w", err)
	}

	_, err = c.db.Exec(
		`INSERT INTO query_history (id, user_id, query_text, intent, response, sources_json, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.UserID,
		rec.QueryText,
		rec.Intent,
		rec.Response,
		string(sourcesJSON),
		rec.LatencyMs,
		rec.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert query record: %w", err)
	}
	return nil
}

func (c *Client) ListQueryHistory(userID string, limit int) ([]*models.QueryRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := c.db.Query(
		`SELECT id, user_id, query_text, intent, response, sources_json, latency_ms, created_at
		 FROM query_history WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list query history: %w", err)
	}
	defer rows.Close()

	var records []*models.QueryRecord
	for rows.Next() {
		var rec models.QueryRecord
		var userID, intent, response, sourcesJSON sql.NullString
		var createdAt int64

		err := rows.Scan(&rec.ID, &userID, &rec.QueryText, &intent, &response, &sourcesJSON, &rec.LatencyMs, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan query record: %w", err)
		}

		rec.UserID = userID.String
		rec.Intent = intent.String
		rec.Response = response.String
		rec.CreatedAt = time.Unix(createdAt, 0)
		if sourcesJSON.String != "" {
			if err := json.Unmarshal([]byte(sourcesJSON.String), &rec.Sources); err != nil {
				return nil, fmt.Errorf("failed to decode sources: %w", err)
			}
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// RecordVote applies one feedback vote and returns the resulting tallies.
func (c *Client) RecordVote(chunkID string, positive bool) (*models.ChunkFeedback, error) {
	posDelta, negDelta := 0, 1
	if positive {
		posDelta, negDelta = 1, 0
	}

	_, err := c.db.Exec(
		`INSERT INTO chunk_feedback (chunk_id, positive, negative, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(chunk_id) DO UPDATE SET
			positive = positive + excluded.positive,
			negative = negative + excluded.negative,
			updated_at = excluded.updated_at`,
		chunkID, posDelta, negDelta, time.Now().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record vote: %w", err)
	}

	return c.GetFeedback(chunkID)
}

func (c *Client) GetFeedback(chunkID string) (*models.ChunkFeedback, error) {
	var fb models.ChunkFeedback
	var updatedAt int64

	err := c.db.QueryRow(
		`SELECT chunk_id, positive, negative, updated_at FROM chunk_feedback WHERE chunk_id = ?`,
		chunkID,
	).Scan(&fb.ChunkID, &fb.Positive, &fb.Negative, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.ChunkFeedback{ChunkID: chunkID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feedback: %w", err)
	}

	fb.UpdatedAt = time.Unix(updatedAt, 0)
	return &fb, nil
}

// GetFeedbackBatch fetches tallies for a candidate set in one query. Chunks
// with no votes are absent from the result.
func (c *Client) GetFeedbackBatch(chunkIDs []string) (map[string]*models.ChunkFeedback, error) {
	if len(chunkIDs) == 0 {
		return map[string]*models.ChunkFeedback{}, nil
	}

	placeholders := strings.Repeat("?,", len(chunkIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(chunkIDs))
	for i, id := range chunkIDs {
		args[i] = id
	}

	rows, err := c.db.Query(
		fmt.Sprintf(`SELECT chunk_id, positive, negative, updated_at FROM chunk_feedback WHERE chunk_id IN (%s)`, placeholders),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get feedback batch: %w", err)
	}
	defer rows.Close()

	result := make(map[string]*models.ChunkFeedback, len(chunkIDs))
	for rows.Next() {
		var fb models.ChunkFeedback
		var updatedAt int64
		if err := rows.Scan(&fb.ChunkID, &fb.Positive, &fb.Negative, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		fb.UpdatedAt = time.Unix(updatedAt, 0)
		result[fb.ChunkID] = &fb
	}
	return result, rows.Err()
}
