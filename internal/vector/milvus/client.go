package milvus

import (
	"context"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/docqa/backend/pkg/logger"
)

// Client wraps the Milvus collection that holds chunk embeddings. All
// structural metadata is stored as flat scalar fields so retrieval filters
// can use boolean expressions over them.
type Client struct {
	client         client.Client
	collectionName string
	vectorDim      int
}

// Chunk is one indexed unit of a document. Tags is the list form; in the
// collection it is stored both as a comma-joined string (filterable) and as
// a JSON array string (canonical).
type Chunk struct {
	ID             string
	Embedding      []float32
	Content        string
	DocID          string
	DocTitle       string
	DocType        string
	Visibility     string
	Owner          string
	Team           string
	Tags           []string
	TagsJSON       string
	SectionTitle   string
	ArticleNo      int64
	HierarchyLevel int64
	PageStart      int64
	PageEnd        int64
}

// SearchResult is one retrieval hit with its cosine similarity in [0, 1].
type SearchResult struct {
	ChunkID        string
	Content        string
	DocID          string
	DocTitle       string
	DocType        string
	Visibility     string
	Tags           []string
	SectionTitle   string
	ArticleNo      int64
	HierarchyLevel int64
	PageStart      int64
	PageEnd        int64
	Similarity     float64
}

var outputFields = []string{
	"chunk_id", "content", "doc_id", "doc_title", "doc_type", "visibility",
	"tags", "section_title", "article_no", "hierarchy_level", "page_start", "page_end",
}

func NewClient(endpoint, apiKey, collectionName string, vectorDim int) (*Client, error) {
	cfg := client.Config{Address: endpoint}
	if apiKey != "" {
		cfg.APIKey = apiKey
	}

	c, err := client.NewClient(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return &Client{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}, nil
}

func (m *Client) Close() error {
	return m.client.Close()
}

func (m *Client) EnsureCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if has {
		logger.Info("Collection already exists", zap.String("collection", m.collectionName))
		return m.client.LoadCollection(ctx, m.collectionName, false)
	}

	varchar := func(name string, maxLen int) *entity.Field {
		return &entity.Field{
			Name:       name,
			DataType:   entity.FieldTypeVarChar,
			TypeParams: map[string]string{"max_length": fmt.Sprintf("%d", maxLen)},
		}
	}

	schema := &entity.Schema{
		CollectionName: m.collectionName,
		Description:    "Document chunk embeddings with structural metadata",
		Fields: []*entity.Field{
			{
				Name:       "chunk_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:       "embedding",
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": fmt.Sprintf("%d", m.vectorDim)},
			},
			varchar("content", 4096),
			varchar("doc_id", 64),
			varchar("doc_title", 512),
			varchar("doc_type", 64),
			varchar("visibility", 16),
			varchar("owner", 128),
			varchar("team", 128),
			varchar("tags", 1024),
			varchar("tags_json", 1024),
			varchar("section_title", 512),
			{Name: "article_no", DataType: entity.FieldTypeInt64},
			{Name: "hierarchy_level", DataType: entity.FieldTypeInt64},
			{Name: "page_start", DataType: entity.FieldTypeInt64},
			{Name: "page_end", DataType: entity.FieldTypeInt64},
		},
	}

	err = m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.COSINE, 1024)
	if err != nil {
		return fmt.Errorf("failed to build index definition: %w", err)
	}
	err = m.client.CreateIndex(ctx, m.collectionName, "embedding", idx, false)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	err = m.client.LoadCollection(ctx, m.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", m.collectionName))
	return nil
}

// Upsert writes chunks into the collection. Existing chunk IDs are replaced,
// which lets re-ingestion swap a document's generation in place.
func (m *Client) Upsert(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	n := len(chunks)
	chunkIDs := make([]string, n)
	embeddings := make([][]float32, n)
	contents := make([]string, n)
	docIDs := make([]string, n)
	docTitles := make([]string, n)
	docTypes := make([]string, n)
	visibilities := make([]string, n)
	owners := make([]string, n)
	teams := make([]string, n)
	tags := make([]string, n)
	tagsJSON := make([]string, n)
	sectionTitles := make([]string, n)
	articleNos := make([]int64, n)
	hierarchyLevels := make([]int64, n)
	pageStarts := make([]int64, n)
	pageEnds := make([]int64, n)

	for i, chunk := range chunks {
		chunkIDs[i] = chunk.ID
		embeddings[i] = chunk.Embedding
		contents[i] = chunk.Content
		docIDs[i] = chunk.DocID
		docTitles[i] = chunk.DocTitle
		docTypes[i] = chunk.DocType
		visibilities[i] = chunk.Visibility
		owners[i] = chunk.Owner
		teams[i] = chunk.Team
		tags[i] = strings.Join(chunk.Tags, ",")
		tagsJSON[i] = chunk.TagsJSON
		sectionTitles[i] = chunk.SectionTitle
		articleNos[i] = chunk.ArticleNo
		hierarchyLevels[i] = chunk.HierarchyLevel
		pageStarts[i] = chunk.PageStart
		pageEnds[i] = chunk.PageEnd
	}

	_, err := m.client.Upsert(
		ctx,
		m.collectionName,
		"",
		entity.NewColumnVarChar("chunk_id", chunkIDs),
		entity.NewColumnFloatVector("embedding", m.vectorDim, embeddings),
		entity.NewColumnVarChar("content", contents),
		entity.NewColumnVarChar("doc_id", docIDs),
		entity.NewColumnVarChar("doc_title", docTitles),
		entity.NewColumnVarChar("doc_type", docTypes),
		entity.NewColumnVarChar("visibility", visibilities),
		entity.NewColumnVarChar("owner", owners),
		entity.NewColumnVarChar("team", teams),
		entity.NewColumnVarChar("tags", tags),
		entity.NewColumnVarChar("tags_json", tagsJSON),
		entity.NewColumnVarChar("section_title", sectionTitles),
		entity.NewColumnInt64("article_no", articleNos),
		entity.NewColumnInt64("hierarchy_level", hierarchyLevels),
		entity.NewColumnInt64("page_start", pageStarts),
		entity.NewColumnInt64("page_end", pageEnds),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert chunks: %w", err)
	}

	err = m.client.Flush(ctx, m.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Info("Chunks indexed", zap.Int("count", n))
	return nil
}

// Search runs one ANN query. expr is a Milvus boolean expression over the
// scalar fields; empty means no filter.
func (m *Client) Search(ctx context.Context, queryEmbedding []float32, topK int, expr string) ([]SearchResult, error) {
	sp, err := entity.NewIndexIvfFlatSearchParam(16)
	if err != nil {
		return nil, fmt.Errorf("failed to build search params: %w", err)
	}

	searchResult, err := m.client.Search(
		ctx,
		m.collectionName,
		[]string{},
		expr,
		outputFields,
		[]entity.Vector{entity.FloatVector(queryEmbedding)},
		"embedding",
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]SearchResult, 0, topK)
	for _, sr := range searchResult {
		cols := make(map[string]entity.Column, len(sr.Fields))
		for _, col := range sr.Fields {
			cols[col.Name()] = col
		}

		for i := 0; i < sr.ResultCount; i++ {
			r := SearchResult{
				ChunkID:        getString(cols, "chunk_id", i),
				Content:        getString(cols, "content", i),
				DocID:          getString(cols, "doc_id", i),
				DocTitle:       getString(cols, "doc_title", i),
				DocType:        getString(cols, "doc_type", i),
				Visibility:     getString(cols, "visibility", i),
				SectionTitle:   getString(cols, "section_title", i),
				ArticleNo:      getInt64(cols, "article_no", i),
				HierarchyLevel: getInt64(cols, "hierarchy_level", i),
				PageStart:      getInt64(cols, "page_start", i),
				PageEnd:        getInt64(cols, "page_end", i),
				Similarity:     similarityFromScore(sr.Scores[i]),
			}
			if raw := getString(cols, "tags", i); raw != "" {
				r.Tags = strings.Split(raw, ",")
			}
			results = append(results, r)
		}
	}

	logger.Debug("Vector search completed",
		zap.Int("top_k", topK),
		zap.Int("results", len(results)),
		zap.String("filter", expr),
	)

	return results, nil
}

// DeleteByDocID removes every chunk of one document.
func (m *Client) DeleteByDocID(ctx context.Context, docID string) error {
	expr := fmt.Sprintf(`doc_id == "%s"`, docID)
	err := m.client.Delete(ctx, m.collectionName, "", expr)
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}

	logger.Info("Document chunks deleted", zap.String("doc_id", docID))
	return nil
}

// similarityFromScore maps a COSINE score to [0, 1]. Embeddings are
// unit-normalized upstream, so negative scores only appear as noise.
func similarityFromScore(score float32) float64 {
	s := float64(score)
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

func getString(cols map[string]entity.Column, name string, i int) string {
	col, ok := cols[name]
	if !ok {
		return ""
	}
	v, err := col.Get(i)
	if err != nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func getInt64(cols map[string]entity.Column, name string, i int) int64 {
	col, ok := cols[name]
	if !ok {
		return 0
	}
	v, err := col.Get(i)
	if err != nil {
		return 0
	}
	n, _ := v.(int64)
	return n
}
