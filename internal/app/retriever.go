package app

import (
	"context"
	"fmt"
	"strings"

	"askcorpus/internal/vectorindex"
)

const defaultTopK = 5

// RetrievedPassage is one ranked hit for a query. Passages are
// query-scoped values and are never persisted.
type RetrievedPassage struct {
	ChunkID    uint
	DocumentID uint
	Ordinal    int
	Content    string
	Score      float32
	Rank       int
}

// Retriever embeds a query and resolves the nearest chunks owned by the
// requesting user back to their stored text.
type Retriever struct {
	embedder Embedder
	index    *vectorindex.Index
	chunks   ChunkStore
	topK     int
}

func NewRetriever(embedder Embedder, index *vectorindex.Index, chunks ChunkStore, topK int) *Retriever {
	if topK <= 0 {
		topK = defaultTopK
	}
	return &Retriever{
		embedder: embedder,
		index:    index,
		chunks:   chunks,
		topK:     topK,
	}
}

// Retrieve returns up to k passages ranked by similarity, restricted to
// the owner's documents. An empty result is a valid answer, not an
// error.
func (r *Retriever) Retrieve(ctx context.Context, ownerID uint, query string, k int) ([]RetrievedPassage, error) {
	query = strings.TrimSpace(query)
	if ownerID == 0 || query == "" {
		return nil, ErrInvalidInput
	}
	if k <= 0 {
		k = r.topK
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, upstream("embedder", true, err)
	}

	hits, err := r.index.Search(vector, k, vectorindex.Filter{OwnerID: ownerID})
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]uint, len(hits))
	for i, hit := range hits {
		ids[i] = hit.ChunkID
	}
	rows, err := r.chunks.GetByIDs(ids)
	if err != nil {
		return nil, fmt.Errorf("load chunks failed: %w", err)
	}
	contentByID := make(map[uint]string, len(rows))
	for _, row := range rows {
		contentByID[row.ID] = row.Content
	}

	passages := make([]RetrievedPassage, 0, len(hits))
	for _, hit := range hits {
		content, ok := contentByID[hit.ChunkID]
		if !ok {
			// chunk row deleted between search and load
			continue
		}
		passages = append(passages, RetrievedPassage{
			ChunkID:    hit.ChunkID,
			DocumentID: hit.Meta.DocumentID,
			Ordinal:    hit.Meta.Ordinal,
			Content:    content,
			Score:      hit.Score,
			Rank:       len(passages) + 1,
		})
	}
	return passages, nil
}
