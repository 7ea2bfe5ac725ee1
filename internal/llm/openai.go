package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/truthcast/internal/util"
	"github.com/sashabaranov/go-openai"
)

// OpenAIJudge implements Judge with OpenAI chat models
type OpenAIJudge struct {
	client *openai.Client
	config Config
}

// NewOpenAIJudge creates a new OpenAI judge
func NewOpenAIJudge(config Config) (*OpenAIJudge, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{
		Transport: &http.Transport{
			Proxy: util.NewProxyFunc(config.HTTPProxy, config.HTTPSProxy, config.NoProxy),
		},
	}

	return &OpenAIJudge{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

// Name returns the provider name
func (p *OpenAIJudge) Name() string {
	return "openai"
}

// IsAvailable checks if the provider is properly configured
func (p *OpenAIJudge) IsAvailable(ctx context.Context) bool {
	_, err := p.client.ListModels(ctx)
	return err == nil
}

// Judge asks the chat model for a JSON judgment
func (p *OpenAIJudge) Judge(ctx context.Context, req JudgeRequest) (*Judgment, error) {
	model := p.config.Model
	if model == "" {
		model = openai.GPT4oMini
	}

	maxTokens := p.config.MaxTokens
	if maxTokens == 0 {
		maxTokens = 400
	}

	timeout := time.Duration(p.config.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ctxWithTimeout, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	chatReq := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: BuildJudgePrompt(req)},
		},
		MaxTokens:   maxTokens,
		Temperature: 0, // judgments must be repeatable
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := p.client.CreateChatCompletion(ctxWithTimeout, chatReq)
	if err != nil {
		return nil, unavailable("openai", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in OpenAI response", ErrMalformedJudgment)
	}

	judgment, err := ParseJudgment(strings.TrimSpace(resp.Choices[0].Message.Content))
	if err != nil {
		return nil, err
	}
	judgment.Model = resp.Model
	judgment.TokensUsed = resp.Usage.TotalTokens
	return judgment, nil
}
