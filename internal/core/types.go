package core

import "physicalai.dev/textbook-chat/internal/docstore"

// Turn is one prior message of the conversation.
type Turn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Query is one user turn: the question, an optional passage the reader
// highlighted in the textbook, and the bounded conversation history.
type Query struct {
	Text         string
	SelectedText string
	History      []Turn
}

// AssembledContext is the bounded prompt payload handed to the answer
// generator. Chunks are deduplicated and ordered by descending score;
// TokenCount never exceeds the configured budget.
type AssembledContext struct {
	Chunks       []docstore.ScoredChunk
	History      []Turn
	Question     string
	SelectedText string
	TokenCount   int
	HasGrounding bool
}

// Reference identifies the textbook location a cited chunk came from.
type Reference struct {
	Chapter string `json:"chapter"`
	Section string `json:"section"`
}

// Answer is a generated response with its citations. SourceChunkIDs is
// always a subset of the chunk ids in the assembled context.
type Answer struct {
	Text           string
	SourceChunkIDs []string
	References     []Reference
}
