package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/docqa/backend/internal/metrics"
	"github.com/docqa/backend/internal/storage/models"
	"github.com/docqa/backend/internal/storage/sqlite"
	"github.com/docqa/backend/internal/vector/milvus"
	"github.com/docqa/backend/pkg/config"
	"github.com/docqa/backend/pkg/logger"
	"github.com/docqa/backend/pkg/utils"
)

// Embedder produces embeddings for a batch of chunk texts.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex is the slice of the vector store the pipeline writes to.
type VectorIndex interface {
	Upsert(ctx context.Context, chunks []milvus.Chunk) error
	DeleteByDocID(ctx context.Context, docID string) error
}

// TagSource generates topic tags for a document.
type TagSource interface {
	Tags(ctx context.Context, title, sample string) []string
}

// InventoryInvalidator drops cached corpus views after the corpus changes.
type InventoryInvalidator interface {
	InvalidateInventory(ctx context.Context) error
}

// Options carry the per-upload scope of an ingestion job.
type Options struct {
	DocType    string
	Visibility string
	Owner      string
	Team       string
}

// Pipeline runs uploads through parse, chunk, tag, embed, and index. One
// upload job covers the files staged under <uploadDir>/<jobID>.
type Pipeline struct {
	embedder Embedder
	index    VectorIndex
	registry *sqlite.Client
	tagger   TagSource
	jobs     *JobStore
	cache    InventoryInvalidator
	cfg      config.IngestConfig
}

func NewPipeline(
	embedder Embedder,
	index VectorIndex,
	registry *sqlite.Client,
	tagger TagSource,
	jobs *JobStore,
	cache InventoryInvalidator,
	cfg config.IngestConfig,
) *Pipeline {
	return &Pipeline{
		embedder: embedder,
		index:    index,
		registry: registry,
		tagger:   tagger,
		jobs:     jobs,
		cache:    cache,
		cfg:      cfg,
	}
}

func (p *Pipeline) Jobs() *JobStore {
	return p.jobs
}

// ProcessJob runs the pipeline over every staged file. Per-file failures
// are recorded on the job and quarantine the file; they do not stop the
// remaining files.
func (p *Pipeline) ProcessJob(ctx context.Context, jobID string, opts Options) {
	p.jobs.Start(jobID)

	jobDir := filepath.Join(p.cfg.UploadDir, jobID)
	files, err := stagedFiles(jobDir)
	if err != nil {
		p.jobs.AddError(jobID, fmt.Sprintf("failed to list staged files: %v", err))
		p.jobs.Finish(jobID)
		return
	}

	logger.Info("Ingestion started",
		zap.String("job_id", jobID),
		zap.Int("files", len(files)),
	)

	for _, path := range files {
		if err := p.processFile(ctx, jobID, path, opts); err != nil {
			p.jobs.AddError(jobID, fmt.Sprintf("%s: %v", filepath.Base(path), err))
			p.quarantine(path)
		}
	}

	p.jobs.Finish(jobID)

	if p.cache != nil {
		if err := p.cache.InvalidateInventory(ctx); err != nil {
			logger.Warn("Failed to invalidate inventory cache", zap.Error(err))
		}
	}

	// Remove the staging directory if everything was moved out.
	if entries, err := os.ReadDir(jobDir); err == nil && len(entries) == 0 {
		os.Remove(jobDir)
	}
}

func (p *Pipeline) processFile(ctx context.Context, jobID, path string, opts Options) error {
	name := filepath.Base(path)

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open: %w", err)
	}
	contentHash, err := utils.HashReader(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("failed to hash: %w", err)
	}

	// Content dedup: the same bytes in the same scope are already indexed.
	existing, err := p.registry.FindByHash(contentHash, opts.Owner, opts.Visibility)
	if err != nil {
		return err
	}
	if existing != nil {
		logger.Info("Duplicate upload skipped",
			zap.String("job_id", jobID),
			zap.String("file", name),
			zap.String("doc_id", existing.ID),
		)
		p.jobs.IncSkipped(jobID, existing.ID)
		metrics.DocumentsSkipped.Inc()
		os.Remove(path)
		return nil
	}

	doc, err := Parse(path)
	if err != nil {
		return err
	}

	sections := AnalyzeStructure(doc)
	chunks := BuildChunks(doc, sections, ChunkOptions{
		MaxChars: p.cfg.ChunkMaxChars,
		MinChars: p.cfg.ChunkMinChars,
		Overlap:  p.cfg.ChunkOverlap,
	})
	if len(chunks) == 0 {
		return fmt.Errorf("no chunks produced")
	}

	logger.Info("Document chunked",
		zap.String("file", name),
		zap.Int("sections", len(sections)),
		zap.Int("chunks", len(chunks)),
		zap.Bool("structured", HasStructure(sections)),
	)

	tags := p.tagger.Tags(ctx, doc.Title, sampleText(doc, 2000))
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}

	docID := utils.DocID(contentHash, opts.Owner, opts.Visibility)
	docType := opts.DocType
	if docType == "" {
		docType = doc.Type
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	embeddings, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding failed: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return fmt.Errorf("embedding count mismatch: got %d, expected %d", len(embeddings), len(chunks))
	}

	vectorChunks := make([]milvus.Chunk, len(chunks))
	for i, c := range chunks {
		vectorChunks[i] = milvus.Chunk{
			ID:             utils.ChunkID(docID, i+1),
			Embedding:      embeddings[i],
			Content:        c.Text,
			DocID:          docID,
			DocTitle:       doc.Title,
			DocType:        docType,
			Visibility:     opts.Visibility,
			Owner:          opts.Owner,
			Team:           opts.Team,
			Tags:           tags,
			TagsJSON:       string(tagsJSON),
			SectionTitle:   c.SectionTitle,
			ArticleNo:      c.ArticleNo,
			HierarchyLevel: c.HierarchyLevel,
			PageStart:      c.PageStart,
			PageEnd:        c.PageEnd,
		}
	}

	if err := p.index.Upsert(ctx, vectorChunks); err != nil {
		return fmt.Errorf("index upsert failed: %w", err)
	}

	// A re-upload of a changed document gets a new content-derived ID. The
	// previous generation is dropped only after the new one is fully
	// indexed, so retrieval never sees a half-indexed document.
	prev, err := p.registry.FindByTitle(doc.Title, opts.Owner, opts.Visibility)
	if err != nil {
		return err
	}

	now := time.Now()
	record := &models.Document{
		ID:          docID,
		ContentHash: contentHash,
		Title:       doc.Title,
		DocType:     docType,
		Visibility:  opts.Visibility,
		Owner:       opts.Owner,
		Team:        opts.Team,
		Tags:        tags,
		ChunkCount:  len(chunks),
		SourceFile:  name,
		UploadedAt:  now,
		UpdatedAt:   now,
	}
	if err := p.registry.UpsertDocument(record); err != nil {
		return err
	}

	if prev != nil && prev.ID != docID {
		if err := p.index.DeleteByDocID(ctx, prev.ID); err != nil {
			logger.Warn("Failed to delete previous generation",
				zap.String("doc_id", prev.ID),
				zap.Error(err),
			)
		} else if err := p.registry.DeleteDocument(prev.ID); err != nil {
			logger.Warn("Failed to delete previous registry row",
				zap.String("doc_id", prev.ID),
				zap.Error(err),
			)
		}
	}

	if err := p.publish(path, opts.Visibility); err != nil {
		logger.Warn("Failed to publish source file", zap.String("file", name), zap.Error(err))
	}

	logger.Info("Document ingested",
		zap.String("job_id", jobID),
		zap.String("doc_id", docID),
		zap.String("file", name),
		zap.Int("chunks", len(chunks)),
		zap.Strings("tags", tags),
	)

	p.jobs.IncProcessed(jobID, docID)
	metrics.DocumentsIngested.Inc()
	metrics.ChunksIndexed.Add(float64(len(chunks)))
	return nil
}

// publish moves the ingested source file into the served docs tree.
func (p *Pipeline) publish(path, visibility string) error {
	dstDir := filepath.Join(p.cfg.DocsDir, visibility)
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return err
	}
	return os.Rename(path, filepath.Join(dstDir, filepath.Base(path)))
}

// quarantine moves a failed file aside for inspection instead of leaving it
// in the staging directory.
func (p *Pipeline) quarantine(path string) {
	if p.cfg.QuarantineDir == "" {
		return
	}
	if err := os.MkdirAll(p.cfg.QuarantineDir, 0o755); err != nil {
		logger.Warn("Failed to create quarantine dir", zap.Error(err))
		return
	}
	dst := filepath.Join(p.cfg.QuarantineDir, filepath.Base(path))
	if err := os.Rename(path, dst); err != nil {
		logger.Warn("Failed to quarantine file", zap.String("file", path), zap.Error(err))
	}
}

func stagedFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// sampleText returns the first maxChars of the document for tag generation.
func sampleText(doc *ParsedDocument, maxChars int) string {
	text := doc.Text()
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return strings.TrimSpace(string(runes[:maxChars]))
}
