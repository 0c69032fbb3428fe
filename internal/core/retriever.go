package core

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"physicalai.dev/textbook-chat/internal/docstore"
)

// SearchStore answers vector-similarity lookups over the indexed
// textbook.
type SearchStore interface {
	Search(ctx context.Context, queryVec []float32, k int) ([]docstore.ScoredChunk, error)
}

// Retriever turns a query into scored textbook chunks. When the reader
// highlighted a passage, that passage leads a second retrieval pass and
// the result sets merge keeping the higher score per chunk.
type Retriever struct {
	embedder      Embedder
	store         SearchStore
	topK          int
	threshold     float32
	searchTimeout time.Duration
}

func NewRetriever(embedder Embedder, store SearchStore, topK int, threshold float32, searchTimeout time.Duration) *Retriever {
	if topK <= 0 {
		topK = 4
	}
	return &Retriever{
		embedder:      embedder,
		store:         store,
		topK:          topK,
		threshold:     threshold,
		searchTimeout: searchTimeout,
	}
}

// Retrieve returns at most topK chunks scoring at or above the
// threshold, highest first. An empty result is a valid outcome.
func (r *Retriever) Retrieve(ctx context.Context, q Query) ([]docstore.ScoredChunk, error) {
	queries := []string{q.Text}
	if sel := strings.TrimSpace(q.SelectedText); sel != "" {
		// The highlighted passage is explicit user intent; it leads the
		// combined retrieval query.
		queries = []string{sel + "\n\n" + q.Text, q.Text}
	}

	merged := make(map[string]docstore.ScoredChunk)
	for _, text := range queries {
		vec, err := r.embedder.Embed(ctx, text)
		if err != nil {
			return nil, stageErr(StageEmbedding, err)
		}

		sctx, cancel := context.WithTimeout(ctx, r.searchTimeout)
		results, err := r.store.Search(sctx, vec, r.topK)
		cancel()
		if err != nil {
			return nil, stageErr(StageRetrieval, err)
		}

		for _, sc := range results {
			if sc.Score < r.threshold {
				continue
			}
			if prev, ok := merged[sc.Chunk.ID]; !ok || sc.Score > prev.Score {
				merged[sc.Chunk.ID] = sc
			}
		}
	}

	retrieved := make([]docstore.ScoredChunk, 0, len(merged))
	for _, sc := range merged {
		retrieved = append(retrieved, sc)
	}
	sort.SliceStable(retrieved, func(i, j int) bool {
		if retrieved[i].Score != retrieved[j].Score {
			return retrieved[i].Score > retrieved[j].Score
		}
		return retrieved[i].Chunk.ID < retrieved[j].Chunk.ID
	})
	if len(retrieved) > r.topK {
		retrieved = retrieved[:r.topK]
	}

	if len(retrieved) == 0 {
		log.Debug().Float32("threshold", r.threshold).Msg("no chunks scored above the similarity threshold")
	}
	return retrieved, nil
}
