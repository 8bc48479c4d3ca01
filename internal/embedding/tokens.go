package embedding

import (
	"fmt"
	"strings"

	"github.com/tiktoken-go/tokenizer"
)

// Truncator caps texts to a maximum token count before they are embedded.
type Truncator struct {
	codec     tokenizer.Codec
	maxTokens int
}

// NewTruncator creates a Truncator using the cl100k_base encoding.
func NewTruncator(maxTokens int) (*Truncator, error) {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	return &Truncator{codec: codec, maxTokens: maxTokens}, nil
}

// Truncate returns text cut to at most maxTokens tokens.
// Texts that fit, or that fail to tokenize, are returned unchanged. A token
// boundary inside a multi-byte rune drops the partial rune.
func (t *Truncator) Truncate(text string) string {
	if t == nil || t.maxTokens <= 0 {
		return text
	}
	ids, _, err := t.codec.Encode(text)
	if err != nil || len(ids) <= t.maxTokens {
		return text
	}
	cut, err := t.codec.Decode(ids[:t.maxTokens])
	if err != nil {
		return text
	}
	return strings.ToValidUTF8(cut, "")
}

// Count returns the number of tokens in text.
func (t *Truncator) Count(text string) int {
	ids, _, err := t.codec.Encode(text)
	if err != nil {
		return 0
	}
	return len(ids)
}
