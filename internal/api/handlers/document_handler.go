package handlers

import (
	"context"
	"os"
	"path/filepath"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docqa/backend/internal/ingest"
	"github.com/docqa/backend/internal/storage/sqlite"
	"github.com/docqa/backend/internal/vector/milvus"
	"github.com/docqa/backend/pkg/config"
	"github.com/docqa/backend/pkg/logger"
)

// validVisibilities are the access scopes an upload may declare.
var validVisibilities = map[string]bool{
	"public":  true,
	"private": true,
	"org":     true,
}

type DocumentHandler struct {
	pipeline *ingest.Pipeline
	registry *sqlite.Client
	index    *milvus.Client
	cache    ingest.InventoryInvalidator
	cfg      config.IngestConfig
}

func NewDocumentHandler(
	pipeline *ingest.Pipeline,
	registry *sqlite.Client,
	index *milvus.Client,
	cache ingest.InventoryInvalidator,
	cfg config.IngestConfig,
) *DocumentHandler {
	return &DocumentHandler{
		pipeline: pipeline,
		registry: registry,
		index:    index,
		cache:    cache,
		cfg:      cfg,
	}
}

// UploadDocuments stages the multipart files under a fresh job directory and
// kicks off ingestion in the background. The response carries the job ID for
// status polling; processing outcomes never block the upload request.
func (h *DocumentHandler) UploadDocuments(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		logger.Error("Failed to parse multipart form", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid multipart form",
		})
	}

	files := form.File["files"]
	if len(files) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "at least one file is required",
		})
	}

	visibility := c.FormValue("visibility", "private")
	if !validVisibilities[visibility] {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "visibility must be public, private, or org",
		})
	}

	owner := c.FormValue("user_id")
	if owner == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id is required",
		})
	}

	opts := ingest.Options{
		DocType:    c.FormValue("doc_type"),
		Visibility: visibility,
		Owner:      owner,
		Team:       c.FormValue("team"),
	}

	jobID := uuid.NewString()
	jobDir := filepath.Join(h.cfg.UploadDir, jobID)
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		logger.Error("Failed to create staging directory", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to stage upload",
		})
	}

	for _, file := range files {
		dest := filepath.Join(jobDir, filepath.Base(file.Filename))
		if err := c.SaveFile(file, dest); err != nil {
			logger.Error("Failed to save uploaded file",
				zap.String("file", file.Filename),
				zap.Error(err),
			)
			os.RemoveAll(jobDir)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to stage upload",
			})
		}
	}

	h.pipeline.Jobs().Create(jobID, len(files))

	go h.pipeline.ProcessJob(context.Background(), jobID, opts)

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"job_id": jobID,
		"total":  len(files),
		"status": ingest.JobPending,
	})
}

func (h *DocumentHandler) GetJobStatus(c *fiber.Ctx) error {
	jobID := c.Params("id")
	if jobID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "job id is required",
		})
	}

	return c.JSON(h.pipeline.Jobs().Get(jobID))
}

// ListDocuments returns the documents visible to the caller: public ones,
// their own, and their team's org-scoped ones.
func (h *DocumentHandler) ListDocuments(c *fiber.Ctx) error {
	owner := c.Query("user_id")
	team := c.Query("team")

	docs, err := h.registry.ListDocuments(owner, team)
	if err != nil {
		logger.Error("Failed to list documents", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list documents",
		})
	}

	return c.JSON(fiber.Map{
		"documents": docs,
		"count":     len(docs),
	})
}

// DeleteDocument removes a document's chunks from the vector index and its
// registry row, then drops the cached inventory.
func (h *DocumentHandler) DeleteDocument(c *fiber.Ctx) error {
	docID := c.Params("id")
	if docID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "document id is required",
		})
	}

	doc, err := h.registry.GetDocument(docID)
	if err != nil {
		logger.Error("Failed to look up document", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete document",
		})
	}
	if doc == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "document not found",
		})
	}

	if err := h.index.DeleteByDocID(c.Context(), docID); err != nil {
		logger.Error("Failed to delete chunks from index",
			zap.String("doc_id", docID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete document",
		})
	}

	if err := h.registry.DeleteDocument(docID); err != nil {
		logger.Error("Failed to delete document record",
			zap.String("doc_id", docID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete document",
		})
	}

	if h.cache != nil {
		if err := h.cache.InvalidateInventory(c.Context()); err != nil {
			logger.Warn("Failed to invalidate inventory cache", zap.Error(err))
		}
	}

	logger.Info("Document deleted", zap.String("doc_id", docID), zap.String("title", doc.Title))

	return c.JSON(fiber.Map{
		"deleted": docID,
	})
}
