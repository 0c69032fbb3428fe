package core

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"physicalai.dev/textbook-chat/internal/store"
)

// ExchangeStore persists completed chat turns, scoped to their owner.
type ExchangeStore interface {
	CreateExchange(ex *store.ChatExchange) error
	GetExchangesByUserID(userID int64, limit, offset int) ([]store.ChatExchange, error)
	DeleteExchange(id string, userID int64) (int64, error)
	DeleteAllExchanges(userID int64) error
}

// ChatService orchestrates one chat turn through the pipeline stages:
// embedding, retrieval, assembly, generation, persistence. Stages run
// strictly in order and are never retried within a request.
type ChatService struct {
	exchanges ExchangeStore
	retriever *Retriever
	assembler *Assembler
	generator *AnswerGenerator
}

func NewChatService(exchanges ExchangeStore, retriever *Retriever, assembler *Assembler, generator *AnswerGenerator) *ChatService {
	return &ChatService{
		exchanges: exchanges,
		retriever: retriever,
		assembler: assembler,
		generator: generator,
	}
}

// ProcessMessage runs the full pipeline for one user turn. Failures
// before generation abort with no side effects; a persistence failure
// after a successful generation is logged and the answer is still
// returned.
func (s *ChatService) ProcessMessage(ctx context.Context, userID int64, q Query) (*Answer, error) {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return nil, stageErr(StageValidation, ErrEmptyMessage)
	}

	retrieved, err := s.retriever.Retrieve(ctx, q)
	if err != nil {
		return nil, err
	}

	assembled := s.assembler.Assemble(q, retrieved)
	log.Debug().
		Int("chunks", len(assembled.Chunks)).
		Int("history_turns", len(assembled.History)).
		Int("tokens", assembled.TokenCount).
		Bool("grounded", assembled.HasGrounding).
		Msg("context assembled")

	answer, err := s.generator.Generate(ctx, assembled)
	if err != nil {
		return nil, err
	}

	exchange := &store.ChatExchange{
		UserID:      userID,
		Message:     q.Text,
		Response:    answer.Text,
		SourcesUsed: answer.SourceChunkIDs,
	}
	if err := s.exchanges.CreateExchange(exchange); err != nil {
		// Persistence failure does not discard the computed answer.
		log.Error().Err(err).Int64("user_id", userID).Msg("failed to persist chat exchange")
	}

	return answer, nil
}

func (s *ChatService) History(userID int64, limit, offset int) ([]store.ChatExchange, error) {
	return s.exchanges.GetExchangesByUserID(userID, limit, offset)
}

// DeleteExchange removes one exchange owned by the user. Deleting an
// exchange that belongs to someone else affects nothing and reports
// ErrNotFound.
func (s *ChatService) DeleteExchange(id string, userID int64) error {
	affected, err := s.exchanges.DeleteExchange(id, userID)
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *ChatService) ClearHistory(userID int64) error {
	return s.exchanges.DeleteAllExchanges(userID)
}
