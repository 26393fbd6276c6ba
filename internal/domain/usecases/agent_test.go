package usecases

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/ragchat/internal/domain/entities"
	"github.com/0xcro3dile/ragchat/internal/domain/ports"
)

func TestRetrievalAgent_BuildMessages(t *testing.T) {
	ctx := context.Background()

	t.Run("Should render retrieved context into the system message", func(t *testing.T) {
		r := &mockRetriever{results: resultsOf("alpha", "beta", "gamma")}
		agent := NewRetrievalAgent(&mockChatModel{}, wordCounter{}, r, AgentConfig{SystemPrompt: "CTX[{context}]"})

		msgs, err := agent.BuildMessages(ctx, "what is alpha?")
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, entities.RoleSystem, msgs[0].Role)
		assert.Equal(t, "CTX[alpha\n\nbeta\n\ngamma]", msgs[0].Content)
		assert.Equal(t, entities.ChatMessage{Role: entities.RoleUser, Content: "what is alpha?"}, msgs[1])
		assert.Equal(t, 3, r.gotK)
	})

	t.Run("Should render an empty context when nothing is retrieved", func(t *testing.T) {
		agent := NewRetrievalAgent(&mockChatModel{}, wordCounter{}, &mockRetriever{}, AgentConfig{SystemPrompt: "CTX[{context}]"})
		msgs, err := agent.BuildMessages(ctx, "hola")
		require.NoError(t, err)
		assert.Equal(t, "CTX[]", msgs[0].Content)
	})

	t.Run("Should use the default prompt", func(t *testing.T) {
		agent := NewRetrievalAgent(&mockChatModel{}, wordCounter{}, &mockRetriever{results: resultsOf("horario: 9-17")}, AgentConfig{})
		msgs, err := agent.BuildMessages(ctx, "horario?")
		require.NoError(t, err)
		assert.Contains(t, msgs[0].Content, "Contexto: horario: 9-17")
		assert.NotContains(t, msgs[0].Content, "{context}")
	})

	t.Run("Should prefix the system prompt for nebius", func(t *testing.T) {
		cfg := AgentConfigFor(entities.ProviderNebius, "CTX[{context}]", 0, 0)
		agent := NewRetrievalAgent(&mockChatModel{}, wordCounter{}, &mockRetriever{}, cfg)
		msgs, err := agent.BuildMessages(ctx, "hi")
		require.NoError(t, err)
		assert.Equal(t, "Do not think\nCTX[]", msgs[0].Content)
	})

	t.Run("Should propagate retrieval errors", func(t *testing.T) {
		boom := errors.New("index offline")
		agent := NewRetrievalAgent(&mockChatModel{}, wordCounter{}, &mockRetriever{err: boom}, AgentConfig{})
		_, err := agent.BuildMessages(ctx, "hi")
		assert.ErrorIs(t, err, boom)
	})
}

func TestRetrievalAgent_Truncation(t *testing.T) {
	ctx := context.Background()
	big, mid, small := "big", "mid", "small"
	counter := mapCounter{big: 500, mid: 300, small: 100}

	agent := func(budget int, texts ...string) *RetrievalAgent {
		return NewRetrievalAgent(&mockChatModel{}, counter, &mockRetriever{results: resultsOf(texts...)},
			AgentConfig{SystemPrompt: "{context}", MaxContextTokens: budget})
	}

	t.Run("Should keep everything within budget", func(t *testing.T) {
		msgs, err := agent(900, big, mid, small).BuildMessages(ctx, "q")
		require.NoError(t, err)
		assert.Equal(t, "big\n\nmid\n\nsmall", msgs[0].Content)
	})

	t.Run("Should skip chunks that overflow, largest first", func(t *testing.T) {
		msgs, err := agent(350, big, mid, small).BuildMessages(ctx, "q")
		require.NoError(t, err)
		assert.Equal(t, "mid", msgs[0].Content)
	})

	t.Run("Should keep retrieval order of survivors", func(t *testing.T) {
		msgs, err := agent(600, small, big, mid).BuildMessages(ctx, "q")
		require.NoError(t, err)
		assert.Equal(t, "small\n\nbig", msgs[0].Content)
	})

	t.Run("Should drop everything when no chunk fits", func(t *testing.T) {
		msgs, err := agent(50, big, mid, small).BuildMessages(ctx, "q")
		require.NoError(t, err)
		assert.Empty(t, msgs[0].Content)
	})

	t.Run("Should never exceed the budget", func(t *testing.T) {
		a := agent(450, big, mid, small)
		texts, err := a.truncateToBudget(ctx, []string{big, mid, small})
		require.NoError(t, err)
		total := 0
		for _, tx := range texts {
			total += counter[tx]
		}
		assert.LessOrEqual(t, total, 450)
		assert.Equal(t, []string{mid, small}, texts)
	})
}

func TestRetrievalAgent_Query(t *testing.T) {
	ctx := context.Background()

	t.Run("Should strip reasoning blocks from the answer", func(t *testing.T) {
		model := &mockChatModel{answer: "<think>x</think>\nHola"}
		agent := NewRetrievalAgent(model, wordCounter{}, &mockRetriever{}, AgentConfig{})
		out, err := agent.Query(ctx, "hola")
		require.NoError(t, err)
		assert.Equal(t, "Hola", out)
		require.Len(t, model.got, 2)
	})

	t.Run("Should propagate model errors", func(t *testing.T) {
		boom := errors.New("rate limited")
		agent := NewRetrievalAgent(&mockChatModel{err: boom}, wordCounter{}, &mockRetriever{}, AgentConfig{})
		_, err := agent.Query(ctx, "hola")
		assert.ErrorIs(t, err, boom)
	})
}

func TestRetrievalAgent_QueryStream(t *testing.T) {
	model := &mockChatModel{fragments: []string{"<think>", "a", "</think>", "Hola"}}
	agent := NewRetrievalAgent(model, wordCounter{}, &mockRetriever{}, AgentConfig{})

	ch, err := agent.QueryStream(context.Background(), "hola")
	require.NoError(t, err)

	var got []string
	var last ports.StreamToken
	for tok := range ch {
		if tok.Done {
			last = tok
			continue
		}
		got = append(got, tok.Content)
	}
	assert.Equal(t, []string{"<think>", "a", "</think>", "Hola"}, got)
	assert.True(t, last.Done)
	assert.Equal(t, entities.RoleSystem, model.got[0].Role)
}

func TestCleanResponse(t *testing.T) {
	cases := map[string]string{
		"<think>x</think>\nHello":                   "Hello",
		"  <think>a\nb</think> Hi <think>c</think> ": "Hi",
		"  plain answer  ":                          "  plain answer  ",
		"only <think> opening":                      "only <think> opening",
		"only </think> closing":                     "only </think> closing",
	}
	for in, want := range cases {
		assert.Equal(t, want, CleanResponse(in), strings.ReplaceAll(in, "\n", `\n`))
	}
}

func TestProfileFor(t *testing.T) {
	assert.Equal(t, Profile{MaxContextTokens: 40960, PromptPrefix: "Do not think\n"}, ProfileFor(entities.ProviderNebius))
	assert.Equal(t, 1024, ProfileFor(entities.ProviderOpenAI).MaxContextTokens)
	assert.Equal(t, 1024, ProfileFor(entities.ProviderOllama).MaxContextTokens)
	assert.Empty(t, ProfileFor(entities.ProviderOllama).PromptPrefix)

	cfg := AgentConfigFor(entities.ProviderNebius, "", 2048, 5)
	assert.Equal(t, 2048, cfg.MaxContextTokens)
	assert.Equal(t, 5, cfg.TopK)
}
