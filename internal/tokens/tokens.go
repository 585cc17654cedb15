// Package tokens estimates how many model tokens a text costs.
package tokens

import (
	"fmt"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

var (
	codec     tokenizer.Codec
	codecOnce sync.Once
	codecErr  error
)

// getCodec returns the cl100k_base tokenizer.
func getCodec() (tokenizer.Codec, error) {
	codecOnce.Do(func() {
		codec, codecErr = tokenizer.Get(tokenizer.Cl100kBase)
	})
	return codec, codecErr
}

// Estimate returns an approximate token count for text.
func Estimate(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	c, err := getCodec()
	if err != nil {
		return 0, err
	}
	ids, _, err := c.Encode(text)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// EstimateSimple returns the token count, defaulting to 0 on error.
func EstimateSimple(text string) int {
	n, err := Estimate(text)
	if err != nil {
		return 0
	}
	return n
}

// Format renders a count for a status line: "≈812 tokens", "≈12.4k tokens".
func Format(n int) string {
	if n < 1000 {
		return fmt.Sprintf("≈%d tokens", n)
	}
	return fmt.Sprintf("≈%.1fk tokens", float64(n)/1000)
}
