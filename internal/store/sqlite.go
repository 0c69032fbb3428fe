package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        email TEXT UNIQUE NOT NULL,
        name TEXT NOT NULL,
        password_hash TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS chat_history (
        id TEXT PRIMARY KEY, -- UUID
        user_id INTEGER NOT NULL,
        message TEXT NOT NULL,
        response TEXT NOT NULL,
        sources_used TEXT NOT NULL DEFAULT '[]', -- JSON array of chunk ids
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (user_id) REFERENCES users (id)
    );
    CREATE INDEX IF NOT EXISTS idx_chat_history_user ON chat_history (user_id, created_at);

    CREATE TABLE IF NOT EXISTS chunks (
        id TEXT PRIMARY KEY, -- content hash
        module_id TEXT NOT NULL,
        module_title TEXT NOT NULL,
        section_title TEXT NOT NULL,
        content TEXT NOT NULL,
        token_count INTEGER NOT NULL,
        embedding_json TEXT NOT NULL -- JSON array of float32
    );

    CREATE TABLE IF NOT EXISTS index_meta (
        id INTEGER PRIMARY KEY CHECK (id = 1), -- single row
        embedding_model TEXT NOT NULL,
        dimension INTEGER NOT NULL,
        indexed_at DATETIME NOT NULL
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

// User methods

func (s *SQLiteStore) CreateUser(email, name, passwordHash string) (*User, error) {
	res, err := s.db.Exec("INSERT INTO users (email, name, password_hash) VALUES (?, ?, ?)",
		email, name, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	id, _ := res.LastInsertId()
	return s.GetUserByID(id)
}

func (s *SQLiteStore) GetUserByEmail(email string) (*User, error) {
	var user User
	err := s.db.QueryRow(
		"SELECT id, email, name, password_hash, created_at FROM users WHERE email = ?", email,
	).Scan(&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

func (s *SQLiteStore) GetUserByID(id int64) (*User, error) {
	var user User
	err := s.db.QueryRow(
		"SELECT id, email, name, password_hash, created_at FROM users WHERE id = ?", id,
	).Scan(&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return &user, nil
}

// ChatExchange methods

func (s *SQLiteStore) CreateExchange(ex *ChatExchange) error {
	ex.ID = uuid.NewString()
	ex.CreatedAt = time.Now()

	sources, err := json.Marshal(ex.SourcesUsed)
	if err != nil {
		return fmt.Errorf("failed to marshal sources: %w", err)
	}

	_, err = s.db.Exec(
		"INSERT INTO chat_history (id, user_id, message, response, sources_used, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		ex.ID, ex.UserID, ex.Message, ex.Response, string(sources), ex.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert chat exchange: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetExchangesByUserID(userID int64, limit, offset int) ([]ChatExchange, error) {
	rows, err := s.db.Query(`
        SELECT id, user_id, message, response, sources_used, created_at
        FROM chat_history
        WHERE user_id = ?
        ORDER BY created_at DESC
        LIMIT ? OFFSET ?`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat history: %w", err)
	}
	defer rows.Close()

	var exchanges []ChatExchange
	for rows.Next() {
		var ex ChatExchange
		var sources string
		if err := rows.Scan(&ex.ID, &ex.UserID, &ex.Message, &ex.Response, &sources, &ex.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat exchange: %w", err)
		}
		if err := json.Unmarshal([]byte(sources), &ex.SourcesUsed); err != nil {
			ex.SourcesUsed = nil
		}
		if ex.SourcesUsed == nil {
			ex.SourcesUsed = []string{}
		}
		exchanges = append(exchanges, ex)
	}
	return exchanges, rows.Err()
}

// DeleteExchange removes one exchange. The user id is part of the
// predicate, so deleting another user's exchange affects zero rows.
func (s *SQLiteStore) DeleteExchange(id string, userID int64) (int64, error) {
	res, err := s.db.Exec("DELETE FROM chat_history WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chat exchange: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}

func (s *SQLiteStore) DeleteAllExchanges(userID int64) error {
	_, err := s.db.Exec("DELETE FROM chat_history WHERE user_id = ?", userID)
	if err != nil {
		return fmt.Errorf("failed to delete chat history: %w", err)
	}
	return nil
}

// Chunk methods

// ReplaceChunks swaps the persisted chunk set wholesale inside one
// transaction and records which embedding model produced it.
func (s *SQLiteStore) ReplaceChunks(chunks []ChunkRecord, meta IndexMeta) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM chunks"); err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}

	stmt, err := tx.Prepare(
		"INSERT INTO chunks (id, module_id, module_title, section_title, content, token_count, embedding_json) VALUES (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		embedding, err := json.Marshal(c.Embedding)
		if err != nil {
			return fmt.Errorf("failed to marshal embedding for chunk %s: %w", c.ID, err)
		}
		if _, err := stmt.Exec(c.ID, c.ModuleID, c.ModuleTitle, c.SectionTitle, c.Content, c.TokenCount, string(embedding)); err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", c.ID, err)
		}
	}

	_, err = tx.Exec(`
        INSERT INTO index_meta (id, embedding_model, dimension, indexed_at) VALUES (1, ?, ?, ?)
        ON CONFLICT (id) DO UPDATE SET embedding_model = excluded.embedding_model,
            dimension = excluded.dimension, indexed_at = excluded.indexed_at`,
		meta.EmbeddingModel, meta.Dimension, meta.IndexedAt)
	if err != nil {
		return fmt.Errorf("failed to record index metadata: %w", err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) GetAllChunks() ([]ChunkRecord, error) {
	rows, err := s.db.Query(
		"SELECT id, module_id, module_title, section_title, content, token_count, embedding_json FROM chunks ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []ChunkRecord
	for rows.Next() {
		var c ChunkRecord
		var embedding string
		if err := rows.Scan(&c.ID, &c.ModuleID, &c.ModuleTitle, &c.SectionTitle, &c.Content, &c.TokenCount, &embedding); err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}
		if err := json.Unmarshal([]byte(embedding), &c.Embedding); err != nil {
			return nil, fmt.Errorf("failed to unmarshal embedding for chunk %s: %w", c.ID, err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (s *SQLiteStore) GetIndexMeta() (*IndexMeta, error) {
	var meta IndexMeta
	err := s.db.QueryRow(
		"SELECT embedding_model, dimension, indexed_at FROM index_meta WHERE id = 1",
	).Scan(&meta.EmbeddingModel, &meta.Dimension, &meta.IndexedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Nothing indexed yet
		}
		return nil, fmt.Errorf("failed to query index metadata: %w", err)
	}
	return &meta, nil
}
