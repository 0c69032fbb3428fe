package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"physicalai.dev/textbook-chat/internal/api"
	"physicalai.dev/textbook-chat/internal/chunker"
	"physicalai.dev/textbook-chat/internal/config"
	"physicalai.dev/textbook-chat/internal/core"
	"physicalai.dev/textbook-chat/internal/ingest"
	"physicalai.dev/textbook-chat/internal/store"
	"physicalai.dev/textbook-chat/internal/tokenizer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.With().Timestamp().Logger()

	ingestFlag := flag.Bool("ingest", false, "Chunk and embed the textbook content directory, then exit")
	flag.Parse()

	ctx := context.Background()

	dbStore, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer dbStore.Close()

	llmService, err := core.NewLLMService(ctx, cfg.GeminiAPIKey, cfg.ChatModel, cfg.EmbeddingModel, cfg.EmbedTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize LLM service")
	}
	defer llmService.Close()

	counter, err := tokenizer.New()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tokenizer")
	}

	if *ingestFlag {
		log.Info().Str("dir", cfg.ContentDir).Msg("starting textbook ingestion")
		ck := chunker.New(counter, cfg.MaxChunkTokens)
		numIngested, err := ingest.New(dbStore, ck, llmService).Run(ctx, cfg.ContentDir)
		if err != nil {
			log.Fatal().Err(err).Msg("textbook ingestion failed")
		}
		log.Info().Int("chunks", numIngested).Msg("textbook ingestion complete, exiting")
		return
	}

	docStore, err := ingest.BuildStore(ctx, dbStore, cfg.EmbeddingModel)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build document store")
	}

	retriever := core.NewRetriever(llmService, docStore, cfg.TopK, cfg.SimilarityThreshold, cfg.SearchTimeout)
	assembler := core.NewAssembler(counter, cfg.MaxContextTokens, cfg.MaxHistoryTurns)
	generator := core.NewAnswerGenerator(llmService, cfg.GenerateTimeout)
	chatService := core.NewChatService(dbStore, retriever, assembler, generator)

	apiHandler := api.NewAPIHandler(chatService, dbStore, cfg.JWTSecret)
	router := api.NewRouter(apiHandler)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // LLM calls can take time
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server exited gracefully")
}
