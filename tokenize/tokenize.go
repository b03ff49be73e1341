// Package tokenize abstracts subword tokenization behind a small Codec
// interface so the splitters never depend on a concrete model. The
// production codec loads a HuggingFace tokenizer.json; a word-level codec
// serves as fallback and test double.
//
// Usage:
//
//	codec, err := tokenize.LoadHF("models/kure-v1/tokenizer.json")
//	if err != nil { ... }
//	ids, _ := codec.Encode("문서 내용")
//	text, _ := codec.Decode(ids)
package tokenize

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// Codec encodes text to token IDs and back. Implementations must be safe
// for concurrent use.
type Codec interface {
	Encode(text string) ([]int, error)
	Decode(ids []int) (string, error)
}

// HFCodec wraps a HuggingFace tokenizer.json model.
type HFCodec struct {
	tk *tokenizer.Tokenizer
}

// LoadHF loads a tokenizer.json from disk.
func LoadHF(path string) (*HFCodec, error) {
	tk, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("tokenize: load %s: %w", path, err)
	}
	return &HFCodec{tk: tk}, nil
}

func (c *HFCodec) Encode(text string) ([]int, error) {
	enc, err := c.tk.EncodeSingle(text)
	if err != nil {
		return nil, fmt.Errorf("tokenize: encode: %w", err)
	}
	return enc.Ids, nil
}

func (c *HFCodec) Decode(ids []int) (string, error) {
	return c.tk.Decode(ids, true), nil
}

// WordCodec is a whitespace-level codec: each distinct word is one token.
// Window sizes then count words instead of subwords, which is coarse but
// keeps the pipeline functional without a model file.
type WordCodec struct {
	mu    sync.Mutex
	ids   map[string]int
	words []string
}

// NewWordCodec returns an empty word-level codec.
func NewWordCodec() *WordCodec {
	return &WordCodec{ids: make(map[string]int)}
}

func (c *WordCodec) Encode(text string) ([]int, error) {
	fields := strings.Fields(text)
	out := make([]int, 0, len(fields))
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, w := range fields {
		id, ok := c.ids[w]
		if !ok {
			id = len(c.words)
			c.ids[w] = id
			c.words = append(c.words, w)
		}
		out = append(out, id)
	}
	return out, nil
}

func (c *WordCodec) Decode(ids []int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		if id < 0 || id >= len(c.words) {
			return "", fmt.Errorf("tokenize: unknown token id %d", id)
		}
		parts = append(parts, c.words[id])
	}
	return strings.Join(parts, " "), nil
}
