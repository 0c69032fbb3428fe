package core

import (
	"context"
	"strings"

	"physicalai.dev/textbook-chat/internal/docstore"
	"physicalai.dev/textbook-chat/internal/store"
)

// wordCounter approximates tokens as whitespace-separated words.
type wordCounter struct{}

func (wordCounter) Count(text string) int { return len(strings.Fields(text)) }

type fakeEmbedder struct {
	vec     []float32
	err     error
	byQuery map[string][]float32
	calls   []string
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls = append(f.calls, text)
	if f.err != nil {
		return nil, f.err
	}
	if f.byQuery != nil {
		if vec, ok := f.byQuery[text]; ok {
			return vec, nil
		}
	}
	return f.vec, nil
}

func (f *fakeEmbedder) ModelVersion() string { return "fake-embedding-001" }

type fakeSearchStore struct {
	results  [][]docstore.ScoredChunk
	err      error
	searches int
}

func (f *fakeSearchStore) Search(_ context.Context, _ []float32, _ int) ([]docstore.ScoredChunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []docstore.ScoredChunk
	if f.searches < len(f.results) {
		out = f.results[f.searches]
	}
	f.searches++
	return out, nil
}

type fakeTextGenerator struct {
	response   string
	err        error
	lastSystem string
	lastPrompt string
}

func (f *fakeTextGenerator) Generate(_ context.Context, system, prompt string) (string, error) {
	f.lastSystem = system
	f.lastPrompt = prompt
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

type fakeExchangeStore struct {
	exchanges []store.ChatExchange
	createErr error
}

func (f *fakeExchangeStore) CreateExchange(ex *store.ChatExchange) error {
	if f.createErr != nil {
		return f.createErr
	}
	ex.ID = "exchange-1"
	f.exchanges = append(f.exchanges, *ex)
	return nil
}

func (f *fakeExchangeStore) GetExchangesByUserID(userID int64, limit, offset int) ([]store.ChatExchange, error) {
	var out []store.ChatExchange
	for _, ex := range f.exchanges {
		if ex.UserID == userID {
			out = append(out, ex)
		}
	}
	return out, nil
}

func (f *fakeExchangeStore) DeleteExchange(id string, userID int64) (int64, error) {
	for i, ex := range f.exchanges {
		if ex.ID == id && ex.UserID == userID {
			f.exchanges = append(f.exchanges[:i], f.exchanges[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

func (f *fakeExchangeStore) DeleteAllExchanges(userID int64) error {
	kept := f.exchanges[:0]
	for _, ex := range f.exchanges {
		if ex.UserID != userID {
			kept = append(kept, ex)
		}
	}
	f.exchanges = kept
	return nil
}

func scoredChunk(id, module, section, text string, score float32) docstore.ScoredChunk {
	return docstore.ScoredChunk{
		Chunk: docstore.Chunk{
			ID:           id,
			ModuleID:     strings.ToLower(strings.ReplaceAll(module, " ", "-")),
			ModuleTitle:  module,
			SectionTitle: section,
			Text:         text,
			TokenCount:   len(strings.Fields(text)),
		},
		Score: score,
	}
}
