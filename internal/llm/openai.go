package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/hpungsan/wardrobe/internal/config"
)

const (
	openAIName           = "openai"
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAIModel   = "gpt-4o-mini"

	// localToken satisfies the client for OpenAI-compatible local servers
	// that do not check keys.
	localToken = "not-needed"
)

// openAIProvider talks to OpenAI or any OpenAI-compatible chat endpoint.
type openAIProvider struct {
	llm         llms.Model
	temperature float64
	maxTokens   int
}

func newOpenAI(cfg config.LLMConfig) (Provider, error) {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	token := cfg.APIKey
	if token == "" {
		if baseURL == defaultOpenAIBaseURL {
			return nil, fmt.Errorf("openai API key required (set WARDROBE_LLM_API_KEY or OPENAI_API_KEY)")
		}
		token = localToken
	}

	client, err := openai.New(
		openai.WithBaseURL(baseURL),
		openai.WithModel(model),
		openai.WithToken(token),
		openai.WithHTTPClient(&http.Client{Timeout: cfg.Timeout()}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}

	return &openAIProvider{llm: client, temperature: cfg.Temperature, maxTokens: cfg.MaxTokens}, nil
}

func (p *openAIProvider) Name() string { return openAIName }

func (p *openAIProvider) Generate(ctx context.Context, prompt string) (string, error) {
	opts := []llms.CallOption{llms.WithTemperature(p.temperature)}
	if p.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(p.maxTokens))
	}
	text, err := llms.GenerateFromSinglePrompt(ctx, p.llm, prompt, opts...)
	if err != nil {
		return "", fmt.Errorf("openai generate: %w", err)
	}
	return text, nil
}
