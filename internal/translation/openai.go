package translation

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient translates text through a chat-completion model. Compatible
// servers (llama.cpp, vLLM, LM Studio) work by pointing Endpoint at them.
type OpenAIClient struct {
	config Config
	client *openai.Client
	prompt string
}

// NewOpenAIClient creates a chat-completion translation client. Endpoint
// overrides the default OpenAI base URL when set.
func NewOpenAIClient(config Config) (*OpenAIClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key cannot be empty")
	}
	if config.Model == "" {
		config.Model = openai.GPT4oMini
	}
	if err := config.validate(); err != nil {
		return nil, err
	}

	clientCfg := openai.DefaultConfig(config.APIKey)
	if config.Endpoint != "" {
		clientCfg.BaseURL = config.Endpoint
	}

	prompt := fmt.Sprintf(
		"You are a translator for live gaming voice chat. Translate the user's message from %s to %s. "+
			"Keep it short and colloquial, preserve player callouts and slang, and output only the translation.",
		config.SourceLang, config.TargetLang,
	)

	return &OpenAIClient{
		config: config,
		client: openai.NewClientWithConfig(clientCfg),
		prompt: prompt,
	}, nil
}

// Translate converts text from the source to the target language.
func (c *OpenAIClient) Translate(ctx context.Context, text string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Temperature: 0.2,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: c.prompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// SourceLang returns the language translated from.
func (c *OpenAIClient) SourceLang() string { return c.config.SourceLang }

// TargetLang returns the language translated to.
func (c *OpenAIClient) TargetLang() string { return c.config.TargetLang }
