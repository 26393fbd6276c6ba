// Package tokenizer counts model tokens.
package tokenizer

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktokenloader "github.com/pkoukk/tiktoken-go-loader"

	"github.com/0xcro3dile/ragchat/internal/domain/ports"
	"github.com/0xcro3dile/ragchat/internal/logger"
)

const defaultEncoding = "cl100k_base"

var offlineTables sync.Once

// useOfflineTables makes tiktoken read the encodings bundled with the binary
// instead of downloading them on first use.
func useOfflineTables() {
	offlineTables.Do(func() {
		tiktoken.SetBpeLoader(tiktokenloader.NewOfflineLoader())
	})
}

// TiktokenCounter counts tokens with a BPE encoding.
type TiktokenCounter struct {
	tke *tiktoken.Tiktoken
}

// NewTiktokenCounter resolves modelOrEncoding as an encoding name first, then
// as a model name, then falls back to cl100k_base.
func NewTiktokenCounter(modelOrEncoding string) (*TiktokenCounter, error) {
	useOfflineTables()
	if modelOrEncoding == "" {
		modelOrEncoding = defaultEncoding
	}
	if tke, err := tiktoken.GetEncoding(modelOrEncoding); err == nil {
		return &TiktokenCounter{tke: tke}, nil
	}
	if tke, err := tiktoken.EncodingForModel(modelOrEncoding); err == nil {
		return &TiktokenCounter{tke: tke}, nil
	}
	tke, err := tiktoken.GetEncoding(defaultEncoding)
	if err != nil {
		return nil, fmt.Errorf("failed to get default encoding %q: %w", defaultEncoding, err)
	}
	return &TiktokenCounter{tke: tke}, nil
}

func (c *TiktokenCounter) CountTokens(_ context.Context, text string) (int, error) {
	return len(c.tke.Encode(text, nil, nil)), nil
}

// RuneEstimator approximates four runes per token.
type RuneEstimator struct{}

func (RuneEstimator) CountTokens(_ context.Context, text string) (int, error) {
	count := len([]rune(text))
	if count == 0 {
		return 0, nil
	}
	if tokens := count / 4; tokens > 0 {
		return tokens, nil
	}
	return 1, nil
}

// New returns a tiktoken counter for model, or the rune estimator when the
// encoding tables cannot be loaded.
func New(ctx context.Context, model string) ports.TokenCounter {
	c, err := NewTiktokenCounter(model)
	if err != nil {
		logger.FromContext(ctx).Warn("tiktoken unavailable, estimating tokens from runes", "model", model, "error", err)
		return RuneEstimator{}
	}
	return c
}
