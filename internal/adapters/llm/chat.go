// Package llm adapts langchaingo chat models to ports.ChatModel.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/0xcro3dile/ragchat/internal/domain/entities"
	"github.com/0xcro3dile/ragchat/internal/domain/ports"
)

// ErrEmptyResponse is returned when the provider answers without choices.
var ErrEmptyResponse = errors.New("llm: empty response")

type Config struct {
	Provider entities.Provider
	Model    string
	BaseURL  string
	APIKey   string
}

// ChatModel sends ordered messages to a langchaingo model.
type ChatModel struct {
	model llms.Model
	name  string
}

// New builds the provider client described by cfg. Nebius and OpenAI share the
// OpenAI wire protocol and differ only by base URL.
func New(cfg Config) (*ChatModel, error) {
	var (
		model llms.Model
		err   error
	)
	switch cfg.Provider {
	case entities.ProviderNebius, entities.ProviderOpenAI:
		opts := []openai.Option{
			openai.WithModel(cfg.Model),
			openai.WithToken(cfg.APIKey),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(opts...)
	case entities.ProviderOllama:
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		model, err = ollama.New(opts...)
	default:
		return nil, fmt.Errorf("chat provider %q is not supported", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s chat client: %w", cfg.Provider, err)
	}
	return Wrap(model, cfg.Model), nil
}

// Wrap adapts an existing langchaingo model.
func Wrap(model llms.Model, name string) *ChatModel {
	return &ChatModel{model: model, name: name}
}

// Generate returns the first choice of a non-streaming completion.
func (m *ChatModel) Generate(ctx context.Context, messages []entities.ChatMessage) (string, error) {
	resp, err := m.model.GenerateContent(ctx, toMessageContent(messages))
	if err != nil {
		return "", fmt.Errorf("calling %s: %w", m.name, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Content, nil
}

// GenerateStream emits fragments in arrival order, then a Done token, or an
// Error token if the provider fails midway.
func (m *ChatModel) GenerateStream(ctx context.Context, messages []entities.ChatMessage) (<-chan ports.StreamToken, error) {
	ch := make(chan ports.StreamToken, 100)
	send := func(tok ports.StreamToken) error {
		select {
		case ch <- tok:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	go func() {
		defer close(ch)
		_, err := m.model.GenerateContent(ctx, toMessageContent(messages),
			llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
				if len(chunk) == 0 {
					return nil
				}
				return send(ports.StreamToken{Content: string(chunk)})
			}),
		)
		if err != nil {
			_ = send(ports.StreamToken{Done: true, Error: fmt.Errorf("streaming from %s: %w", m.name, err)})
			return
		}
		_ = send(ports.StreamToken{Done: true})
	}()

	return ch, nil
}

func toMessageContent(messages []entities.ChatMessage) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, msg := range messages {
		out = append(out, llms.TextParts(roleType(msg.Role), msg.Content))
	}
	return out
}

func roleType(r entities.Role) llms.ChatMessageType {
	switch r {
	case entities.RoleSystem:
		return llms.ChatMessageTypeSystem
	case entities.RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}
