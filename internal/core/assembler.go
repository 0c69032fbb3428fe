package core

import (
	"sort"

	"physicalai.dev/textbook-chat/internal/docstore"
	"physicalai.dev/textbook-chat/internal/tokenizer"
)

// Assembler produces the bounded prompt payload. It deduplicates
// retrieved chunks, bounds the history, and enforces the token budget
// by dropping the lowest-scored chunks first; over-budget context
// never drops the question, and history goes oldest-first only after
// every chunk is gone.
type Assembler struct {
	counter    tokenizer.Counter
	maxTokens  int
	maxHistory int
}

func NewAssembler(counter tokenizer.Counter, maxTokens, maxHistory int) *Assembler {
	if maxTokens <= 0 {
		maxTokens = 3000
	}
	if maxHistory <= 0 {
		maxHistory = 10
	}
	return &Assembler{counter: counter, maxTokens: maxTokens, maxHistory: maxHistory}
}

func (a *Assembler) Assemble(q Query, retrieved []docstore.ScoredChunk) AssembledContext {
	// Dedup by id, keeping the higher score when the selected-text and
	// question retrieval paths returned the same chunk.
	byID := make(map[string]docstore.ScoredChunk, len(retrieved))
	for _, sc := range retrieved {
		if prev, ok := byID[sc.Chunk.ID]; !ok || sc.Score > prev.Score {
			byID[sc.Chunk.ID] = sc
		}
	}
	chunks := make([]docstore.ScoredChunk, 0, len(byID))
	for _, sc := range byID {
		chunks = append(chunks, sc)
	}
	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].Score != chunks[j].Score {
			return chunks[i].Score > chunks[j].Score
		}
		return chunks[i].Chunk.ID < chunks[j].Chunk.ID
	})

	history := q.History
	if len(history) > a.maxHistory {
		history = history[len(history)-a.maxHistory:]
	}

	base := a.counter.Count(q.Text)
	if q.SelectedText != "" {
		base += a.counter.Count(q.SelectedText)
	}
	historyTokens := make([]int, len(history))
	for i, turn := range history {
		historyTokens[i] = a.counter.Count(turn.Content)
		base += historyTokens[i]
	}

	total := base
	for _, sc := range chunks {
		total += a.chunkTokens(sc.Chunk)
	}

	// Lowest-scored chunks go first.
	for total > a.maxTokens && len(chunks) > 0 {
		total -= a.chunkTokens(chunks[len(chunks)-1].Chunk)
		chunks = chunks[:len(chunks)-1]
	}
	// Then the oldest history turns. The current question always stays.
	for total > a.maxTokens && len(history) > 0 {
		total -= historyTokens[0]
		history = history[1:]
		historyTokens = historyTokens[1:]
	}

	return AssembledContext{
		Chunks:       chunks,
		History:      history,
		Question:     q.Text,
		SelectedText: q.SelectedText,
		TokenCount:   total,
		HasGrounding: len(chunks) > 0,
	}
}

func (a *Assembler) chunkTokens(c docstore.Chunk) int {
	if c.TokenCount > 0 {
		return c.TokenCount
	}
	return a.counter.Count(c.Text)
}
