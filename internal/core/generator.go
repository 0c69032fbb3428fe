package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const systemInstruction = "You are the study assistant for the Physical AI & Humanoid Robotics textbook. " +
	"Answer questions using only the textbook content provided in the context. " +
	"If the context does not contain the information needed, clearly say that the textbook does not cover it. " +
	"Do not make up information and do not cite material that was not provided. " +
	"Keep your answers concise and directly related to the reader's question."

// AnswerGenerator produces the grounded answer and its citation list.
// Citations map one-to-one to the chunks present in the assembled
// context; nothing outside the context is ever cited.
type AnswerGenerator struct {
	model   TextGenerator
	timeout time.Duration
}

func NewAnswerGenerator(model TextGenerator, timeout time.Duration) *AnswerGenerator {
	return &AnswerGenerator{model: model, timeout: timeout}
}

func (g *AnswerGenerator) Generate(ctx context.Context, ac AssembledContext) (*Answer, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	text, err := g.model.Generate(ctx, systemInstruction, BuildPrompt(ac))
	if err != nil {
		return nil, stageErr(StageGeneration, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, stageErr(StageGeneration, ErrEmptyAnswer)
	}

	answer := &Answer{
		Text:           strings.TrimSpace(text),
		SourceChunkIDs: []string{},
		References:     []Reference{},
	}
	seen := make(map[Reference]bool)
	for _, sc := range ac.Chunks {
		answer.SourceChunkIDs = append(answer.SourceChunkIDs, sc.Chunk.ID)
		ref := Reference{Chapter: sc.Chunk.ModuleTitle, Section: sc.Chunk.SectionTitle}
		if !seen[ref] {
			seen[ref] = true
			answer.References = append(answer.References, ref)
		}
	}
	return answer, nil
}

// BuildPrompt serializes the assembled context into the user prompt:
// selected text, tagged source blocks, conversation history, then the
// current question.
func BuildPrompt(ac AssembledContext) string {
	var b strings.Builder

	if ac.SelectedText != "" {
		b.WriteString("TEXT THE READER HIGHLIGHTED:\n")
		b.WriteString(ac.SelectedText)
		b.WriteString("\n\n")
	}

	if ac.HasGrounding {
		b.WriteString("RETRIEVED CONTEXT FROM TEXTBOOK:\n")
		b.WriteString(strings.Repeat("=", 50) + "\n\n")
		for i, sc := range ac.Chunks {
			fmt.Fprintf(&b, "Source %d (Chapter: %s, Section: %s):\n", i+1, sc.Chunk.ModuleTitle, sc.Chunk.SectionTitle)
			b.WriteString(sc.Chunk.Text)
			b.WriteString("\n\n")
		}
		b.WriteString(strings.Repeat("=", 50) + "\n\n")
	} else {
		b.WriteString("NO TEXTBOOK CONTEXT WAS FOUND FOR THIS QUESTION. ")
		b.WriteString("Tell the reader the textbook does not appear to cover this topic instead of answering from general knowledge.\n\n")
	}

	if len(ac.History) > 0 {
		b.WriteString("CONVERSATION HISTORY:\n")
		b.WriteString(strings.Repeat("=", 30) + "\n")
		for _, turn := range ac.History {
			role := "USER"
			if turn.Role == "assistant" {
				role = "ASSISTANT"
			}
			fmt.Fprintf(&b, "%s: %s\n", role, turn.Content)
		}
		b.WriteString(strings.Repeat("=", 30) + "\n\n")
	}

	fmt.Fprintf(&b, "CURRENT USER QUERY: %s\n\n", ac.Question)
	b.WriteString("Provide a helpful and accurate response based solely on the textbook content provided above.")

	return b.String()
}
