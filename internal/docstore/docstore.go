// Package docstore holds the indexed textbook chunks and answers
// vector-similarity lookups. The index is an in-memory chromem-go
// collection; reindexing builds a fresh collection and swaps it in
// atomically so concurrent searches keep reading the old snapshot.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync/atomic"

	"github.com/philippgille/chromem-go"
)

// Chunk is an indexed span of textbook text with its embedding.
type Chunk struct {
	ID           string
	ModuleID     string
	ModuleTitle  string
	SectionTitle string
	Text         string
	Embedding    []float32
	TokenCount   int
}

// ScoredChunk pairs a chunk with its similarity to a query vector.
type ScoredChunk struct {
	Chunk Chunk
	Score float32
}

type snapshot struct {
	coll   *chromem.Collection
	chunks map[string]Chunk
	dim    int
}

// Store is safe for concurrent use: Search reads an immutable
// snapshot, Index replaces the snapshot wholesale.
type Store struct {
	snap atomic.Pointer[snapshot]
}

func New() *Store {
	s := &Store{}
	s.snap.Store(&snapshot{chunks: map[string]Chunk{}})
	return s
}

// externalEmbeddings rejects any attempt to have chromem embed text
// itself; all embeddings come from the Gemini embedder.
func externalEmbeddings(context.Context, string) ([]float32, error) {
	return nil, errors.New("embeddings are computed externally")
}

// Index replaces the entire index with the given chunks. Every
// embedding must have the same dimensionality.
func (s *Store) Index(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		s.snap.Store(&snapshot{chunks: map[string]Chunk{}})
		return nil
	}

	dim := len(chunks[0].Embedding)
	if dim == 0 {
		return fmt.Errorf("chunk %s has no embedding", chunks[0].ID)
	}
	for _, c := range chunks {
		if len(c.Embedding) != dim {
			return fmt.Errorf("chunk %s has embedding dimension %d, index expects %d",
				c.ID, len(c.Embedding), dim)
		}
	}

	db := chromem.NewDB()
	coll, err := db.CreateCollection("textbook", nil, externalEmbeddings)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	docs := make([]chromem.Document, 0, len(chunks))
	byID := make(map[string]Chunk, len(chunks))
	for _, c := range chunks {
		docs = append(docs, chromem.Document{
			ID:        c.ID,
			Content:   c.Text,
			Embedding: c.Embedding,
			Metadata: map[string]string{
				"module_id": c.ModuleID,
				"section":   c.SectionTitle,
			},
		})
		byID[c.ID] = c
	}

	if err := coll.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents to collection: %w", err)
	}

	s.snap.Store(&snapshot{coll: coll, chunks: byID, dim: dim})
	return nil
}

// Search returns up to k chunks ranked by similarity, highest first.
// An empty store yields an empty result, never an error.
func (s *Store) Search(ctx context.Context, queryVec []float32, k int) ([]ScoredChunk, error) {
	snap := s.snap.Load()
	if snap == nil || len(snap.chunks) == 0 || k <= 0 {
		return nil, nil
	}
	if len(queryVec) != snap.dim {
		return nil, fmt.Errorf("query embedding dimension %d does not match index dimension %d",
			len(queryVec), snap.dim)
	}
	if k > len(snap.chunks) {
		k = len(snap.chunks)
	}

	results, err := snap.coll.QueryEmbedding(ctx, queryVec, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vector query failed: %w", err)
	}

	scored := make([]ScoredChunk, 0, len(results))
	for _, r := range results {
		chunk, ok := snap.chunks[r.ID]
		if !ok {
			continue
		}
		scored = append(scored, ScoredChunk{Chunk: chunk, Score: r.Similarity})
	}

	// Ties are broken by id so identical inputs always rank identically.
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Chunk.ID < scored[j].Chunk.ID
	})

	return scored, nil
}

// Len reports how many chunks are currently indexed.
func (s *Store) Len() int {
	snap := s.snap.Load()
	if snap == nil {
		return 0
	}
	return len(snap.chunks)
}

// Dimension reports the embedding dimensionality of the current index,
// or zero when the store is empty.
func (s *Store) Dimension() int {
	snap := s.snap.Load()
	if snap == nil {
		return 0
	}
	return snap.dim
}
