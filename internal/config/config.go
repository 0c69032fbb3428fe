package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	GeminiAPIKey string `env:"GEMINI_API_KEY,required"`
	JWTSecret    string `env:"JWT_SECRET,required"`
	DatabaseURL  string `env:"DATABASE_URL" envDefault:"textbook_chat.db"`
	HTTPPort     string `env:"HTTP_PORT" envDefault:"8080"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`

	// Textbook ingestion
	ContentDir     string `env:"CONTENT_DIR" envDefault:"./content"`
	MaxChunkTokens int    `env:"MAX_CHUNK_TOKENS" envDefault:"500"`

	// Models
	ChatModel      string `env:"CHAT_MODEL" envDefault:"gemini-1.5-flash-latest"`
	EmbeddingModel string `env:"EMBEDDING_MODEL" envDefault:"text-embedding-004"`

	// Retrieval and context assembly
	TopK                int     `env:"RETRIEVAL_TOP_K" envDefault:"4"`
	SimilarityThreshold float32 `env:"SIMILARITY_THRESHOLD" envDefault:"0.7"`
	MaxContextTokens    int     `env:"MAX_CONTEXT_TOKENS" envDefault:"3000"`
	MaxHistoryTurns     int     `env:"MAX_HISTORY_TURNS" envDefault:"10"`

	// Per-stage timeouts for the external calls
	EmbedTimeout    time.Duration `env:"EMBED_TIMEOUT" envDefault:"5s"`
	SearchTimeout   time.Duration `env:"SEARCH_TIMEOUT" envDefault:"2s"`
	GenerateTimeout time.Duration `env:"GENERATE_TIMEOUT" envDefault:"30s"`
}

// Load reads configuration from the environment, with an optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load() // environment variables win over .env

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	return cfg, nil
}
