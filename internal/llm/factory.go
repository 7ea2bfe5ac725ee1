package llm

import (
	"fmt"
	"strings"

	"github.com/ppiankov/truthcast/internal/model"
)

// NewJudge creates a judge based on configuration.
// An empty provider disables judging and returns nil.
func NewJudge(config Config) (Judge, error) {
	provider := strings.ToLower(config.Provider)

	switch provider {
	case "openai":
		return NewOpenAIJudge(config)

	case "anthropic", "claude":
		return NewAnthropicJudge(config)

	case "ollama":
		return NewOllamaJudge(config)

	case "":
		// No provider configured - verdicts degrade to uncertain
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, anthropic, ollama)", config.Provider)
	}
}

// ConfigFromModel converts the loaded configuration to llm.Config
func ConfigFromModel(llmConfig model.LLMConfig, httpConfig model.HTTPConfig) Config {
	return Config{
		Provider:   llmConfig.Provider,
		Model:      llmConfig.Model,
		APIKey:     llmConfig.APIKey,
		BaseURL:    llmConfig.BaseURL,
		Timeout:    llmConfig.Timeout,
		MaxTokens:  llmConfig.MaxTokens,
		HTTPProxy:  httpConfig.HTTPProxy,
		HTTPSProxy: httpConfig.HTTPSProxy,
		NoProxy:    httpConfig.NoProxy,
	}
}
