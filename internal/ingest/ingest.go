// Package ingest rebuilds the textbook index: it chunks the markdown
// content, embeds every chunk, and replaces the persisted chunk set
// wholesale. Indexing is single-writer, rebuild-from-scratch.
package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"physicalai.dev/textbook-chat/internal/chunker"
	"physicalai.dev/textbook-chat/internal/core"
	"physicalai.dev/textbook-chat/internal/docstore"
	"physicalai.dev/textbook-chat/internal/store"
)

type Service struct {
	db       *store.SQLiteStore
	chunker  *chunker.Chunker
	embedder core.Embedder
}

func New(db *store.SQLiteStore, ck *chunker.Chunker, embedder core.Embedder) *Service {
	return &Service{db: db, chunker: ck, embedder: embedder}
}

// Run walks the content directory, chunks every markdown module,
// embeds the chunks, and replaces the stored index. It returns the
// number of chunks ingested.
func (s *Service) Run(ctx context.Context, contentDir string) (int, error) {
	var chunks []chunker.Chunk

	err := filepath.WalkDir(contentDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isMarkdown(path) {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		moduleID := moduleIDFor(contentDir, path)
		moduleChunks, err := s.chunker.ChunkModule(string(content), moduleID)
		if err != nil {
			return fmt.Errorf("failed to chunk %s: %w", path, err)
		}
		log.Info().Str("module", moduleID).Int("chunks", len(moduleChunks)).Msg("chunked module")
		chunks = append(chunks, moduleChunks...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to walk content directory %s: %w", contentDir, err)
	}

	if len(chunks) == 0 {
		log.Warn().Str("dir", contentDir).Msg("no chunks generated from content directory")
		return 0, nil
	}

	log.Info().Int("chunks", len(chunks)).Msg("embedding chunks, this may take a while")

	// Spacing keeps the embedding calls under the API rate limit.
	ticker := time.NewTicker(40 * time.Millisecond)
	defer ticker.Stop()

	var records []store.ChunkRecord
	dim := 0
	for i, c := range chunks {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
		}

		embedding, err := s.embedder.Embed(ctx, c.Text)
		if err != nil {
			log.Error().Err(err).Str("chunk", c.ID).Msg("failed to embed chunk, skipping")
			continue
		}
		if dim == 0 {
			dim = len(embedding)
		} else if len(embedding) != dim {
			return 0, fmt.Errorf("chunk %s embedding dimension %d differs from %d", c.ID, len(embedding), dim)
		}

		records = append(records, store.ChunkRecord{
			ID:           c.ID,
			ModuleID:     c.ModuleID,
			ModuleTitle:  c.ModuleTitle,
			SectionTitle: c.SectionTitle,
			Content:      c.Text,
			TokenCount:   c.TokenCount,
			Embedding:    embedding,
		})

		if (i+1)%10 == 0 || i+1 == len(chunks) {
			log.Info().Int("done", i+1).Int("total", len(chunks)).Msg("embedding progress")
		}
	}

	meta := store.IndexMeta{
		EmbeddingModel: s.embedder.ModelVersion(),
		Dimension:      dim,
		IndexedAt:      time.Now(),
	}
	if err := s.db.ReplaceChunks(records, meta); err != nil {
		return 0, fmt.Errorf("failed to store chunks: %w", err)
	}

	return len(records), nil
}

// BuildStore loads the persisted chunks into an in-memory vector
// index. It refuses to serve an index built with a different embedding
// model than the one configured.
func BuildStore(ctx context.Context, db *store.SQLiteStore, embeddingModel string) (*docstore.Store, error) {
	ds := docstore.New()

	meta, err := db.GetIndexMeta()
	if err != nil {
		return nil, err
	}
	if meta == nil {
		log.Warn().Msg("no index metadata found, starting with an empty document store; run with -ingest first")
		return ds, nil
	}
	if meta.EmbeddingModel != embeddingModel {
		return nil, fmt.Errorf("index built with %q but %q is configured: %w",
			meta.EmbeddingModel, embeddingModel, core.ErrModelVersionMismatch)
	}

	records, err := db.GetAllChunks()
	if err != nil {
		return nil, err
	}

	chunks := make([]docstore.Chunk, 0, len(records))
	for _, r := range records {
		chunks = append(chunks, docstore.Chunk{
			ID:           r.ID,
			ModuleID:     r.ModuleID,
			ModuleTitle:  r.ModuleTitle,
			SectionTitle: r.SectionTitle,
			Text:         r.Content,
			Embedding:    r.Embedding,
			TokenCount:   r.TokenCount,
		})
	}
	if err := ds.Index(ctx, chunks); err != nil {
		return nil, err
	}

	log.Info().Int("chunks", ds.Len()).Int("dimension", ds.Dimension()).Msg("document store loaded")
	return ds, nil
}

func isMarkdown(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".md" || ext == ".mdx"
}

// moduleIDFor derives a stable module id from the file's location:
// "content/intro-to-physical-ai/index.mdx" -> "intro-to-physical-ai".
func moduleIDFor(contentDir, path string) string {
	rel, err := filepath.Rel(contentDir, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	if base := filepath.Base(rel); base == "index" || base == "README" {
		rel = filepath.Dir(rel)
	}
	rel = strings.ToLower(filepath.ToSlash(rel))
	return strings.ReplaceAll(rel, "/", "-")
}
