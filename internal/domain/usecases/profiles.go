package usecases

import "github.com/0xcro3dile/ragchat/internal/domain/entities"

// Profile holds the per-backend agent settings.
type Profile struct {
	MaxContextTokens int
	PromptPrefix     string
}

// ProfileFor returns the agent settings of a backend.
func ProfileFor(p entities.Provider) Profile {
	switch p {
	case entities.ProviderNebius:
		return Profile{MaxContextTokens: 40960, PromptPrefix: "Do not think\n"}
	default:
		return Profile{MaxContextTokens: defaultContextLimit}
	}
}

// AgentConfigFor merges a backend profile with explicit overrides. A positive
// maxContextTokens replaces the profile budget.
func AgentConfigFor(p entities.Provider, systemPrompt string, maxContextTokens, topK int) AgentConfig {
	prof := ProfileFor(p)
	cfg := AgentConfig{
		SystemPrompt:     systemPrompt,
		PromptPrefix:     prof.PromptPrefix,
		MaxContextTokens: prof.MaxContextTokens,
		TopK:             topK,
	}
	if maxContextTokens > 0 {
		cfg.MaxContextTokens = maxContextTokens
	}
	return cfg
}
