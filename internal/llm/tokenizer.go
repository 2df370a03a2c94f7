package llm

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

var (
	promptCodec     tokenizer.Codec
	promptCodecOnce sync.Once
	promptCodecErr  error
)

// EstimateTokens returns an approximate token count for the line-numbered
// document plus instruction that makes up a turn's prompt. cl100k_base is
// close enough across providers for budget logging; the count is never
// used to truncate.
func EstimateTokens(text string) (int, error) {
	promptCodecOnce.Do(func() {
		promptCodec, promptCodecErr = tokenizer.Get(tokenizer.Cl100kBase)
	})
	if promptCodecErr != nil {
		return 0, promptCodecErr
	}

	ids, _, err := promptCodec.Encode(text)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}
