package store

import "time"

type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"` // Never exposed in JSON responses
	CreatedAt    time.Time `json:"created_at"`
}

// ChatExchange is one completed question/answer turn. Exchanges are
// immutable once written and owned exclusively by one user.
type ChatExchange struct {
	ID          string    `json:"id"` // UUID
	UserID      int64     `json:"-"`
	Message     string    `json:"message"`
	Response    string    `json:"response"`
	SourcesUsed []string  `json:"sources_used"`
	CreatedAt   time.Time `json:"created_at"`
}

// ChunkRecord is the persisted form of an indexed textbook chunk.
type ChunkRecord struct {
	ID           string
	ModuleID     string
	ModuleTitle  string
	SectionTitle string
	Content      string
	TokenCount   int
	Embedding    []float32
}

// IndexMeta records which embedding model produced the stored chunk
// embeddings. Mixing models across indexing and querying is refused.
type IndexMeta struct {
	EmbeddingModel string
	Dimension      int
	IndexedAt      time.Time
}
