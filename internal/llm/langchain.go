package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/hession/mentorjournal/internal/config"
)

// LangChain adapts a langchaingo model to Provider
type LangChain struct {
	llm         llms.Model
	temperature float64
	maxTokens   int
}

// NewLangChain creates a langchaingo backed provider for the ollama,
// langchain-openai and anthropic providers
func NewLangChain(cfg config.ModelConfig) (*LangChain, error) {
	var model llms.Model
	var err error

	switch cfg.Provider {
	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.SmartModel),
			ollama.WithServerURL(cfg.BaseURL),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderLangChainOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		opts := []openai.Option{
			openai.WithToken(cfg.APIKey),
			openai.WithModel(cfg.SmartModel),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.APIKey),
			anthropic.WithModel(cfg.SmartModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported langchain provider: %s", cfg.Provider)
	}

	return &LangChain{llm: model, temperature: cfg.Temperature, maxTokens: cfg.MaxTokens}, nil
}

// NewLangChainWithModel wraps an existing langchaingo model
func NewLangChainWithModel(model llms.Model, temperature float64, maxTokens int) *LangChain {
	return &LangChain{llm: model, temperature: temperature, maxTokens: maxTokens}
}

// Stream implements Provider
func (l *LangChain) Stream(ctx context.Context, model string, messages []Message, onChunk func(string) error) (string, error) {
	content := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		content = append(content, llms.TextParts(chatMessageType(m.Role), m.Content))
	}

	var full strings.Builder
	resp, err := l.llm.GenerateContent(ctx, content,
		llms.WithModel(model),
		llms.WithTemperature(l.temperature),
		llms.WithMaxTokens(l.maxTokens),
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			full.Write(chunk)
			if onChunk == nil {
				return nil
			}
			return onChunk(string(chunk))
		}),
	)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}

	if full.Len() > 0 {
		return full.String(), nil
	}
	// Some backends ignore the streaming func and only fill the choice
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}
	text := resp.Choices[0].Content
	if text != "" && onChunk != nil {
		if err := onChunk(text); err != nil {
			return "", err
		}
	}
	return text, nil
}

func chatMessageType(role string) llms.ChatMessageType {
	switch role {
	case RoleSystem:
		return llms.ChatMessageTypeSystem
	case RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

// NewProvider builds the provider selected by cfg.Provider
func NewProvider(cfg config.ModelConfig) (Provider, error) {
	if cfg.Provider == config.ProviderOpenAI {
		return NewClient(cfg.APIKey, cfg.BaseURL, cfg.Temperature, cfg.MaxTokens, timeoutFor(cfg)), nil
	}
	return NewLangChain(cfg)
}
