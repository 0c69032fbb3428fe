// Package tokenizer counts model tokens for chunk sizing and the
// context budget. Both the chunker and the context assembler must use
// the same counter so that persisted token counts stay comparable.
package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

const encodingName = "cl100k_base"

// Counter counts tokens in a text span.
type Counter interface {
	Count(text string) int
}

type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func New() (*TiktokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s encoding: %w", encodingName, err)
	}
	return &TiktokenCounter{enc: enc}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}
