package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/docqa/backend/internal/metrics"
	"github.com/docqa/backend/internal/storage/models"
	"github.com/docqa/backend/internal/storage/sqlite"
	"github.com/docqa/backend/pkg/logger"
	"github.com/docqa/backend/pkg/utils"
)

// InventoryCache caches rendered inventory views per user scope.
type InventoryCache interface {
	GetInventory(ctx context.Context, userKey string, inventory interface{}) (bool, error)
	SetInventory(ctx context.Context, userKey string, inventory interface{}, ttl time.Duration) error
}

// DocContext is the corpus snapshot handed to intent classification and
// decomposition so the model knows what documents exist.
type DocContext struct {
	Titles  []string `json:"titles"`
	Summary string   `json:"summary"`
}

// Inventory renders the set of documents visible to a caller. Views are
// cached briefly; ingestion invalidates them.
type Inventory struct {
	registry *sqlite.Client
	cache    InventoryCache
	ttl      time.Duration
}

func NewInventory(registry *sqlite.Client, cache InventoryCache, ttl time.Duration) *Inventory {
	if ttl == 0 {
		ttl = 10 * time.Minute
	}
	return &Inventory{registry: registry, cache: cache, ttl: ttl}
}

// Context returns the document context for a scope, from cache when fresh.
// Registry failures yield an empty context rather than failing the query.
func (inv *Inventory) Context(ctx context.Context, scope Scope) DocContext {
	key := utils.HashString(scope.Owner + "|" + scope.Team)[:16]

	if inv.cache != nil {
		var cached DocContext
		if ok, err := inv.cache.GetInventory(ctx, key, &cached); err == nil && ok {
			metrics.CacheHits.WithLabelValues("inventory").Inc()
			return cached
		}
		metrics.CacheMisses.WithLabelValues("inventory").Inc()
	}

	docs, err := inv.registry.ListDocuments(scope.Owner, scope.Team)
	if err != nil {
		logger.Warn("Failed to list documents for inventory", zap.Error(err))
		return DocContext{}
	}

	dc := renderContext(docs)

	if inv.cache != nil {
		if err := inv.cache.SetInventory(ctx, key, dc, inv.ttl); err != nil {
			logger.Warn("Failed to cache inventory", zap.Error(err))
		}
	}
	return dc
}

func renderContext(docs []*models.Document) DocContext {
	if len(docs) == 0 {
		return DocContext{Summary: "No documents are available yet."}
	}

	var sb strings.Builder
	sb.WriteString("Available documents:\n")

	titles := make([]string, 0, len(docs))
	for _, d := range docs {
		titles = append(titles, d.Title)
		fmt.Fprintf(&sb, "- %s (%s", d.Title, d.DocType)
		if len(d.Tags) > 0 {
			fmt.Fprintf(&sb, "; tags: %s", strings.Join(d.Tags, ", "))
		}
		sb.WriteString(")\n")
	}

	return DocContext{Titles: titles, Summary: strings.TrimRight(sb.String(), "\n")}
}
