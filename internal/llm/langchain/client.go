// Package langchain adapts langchaingo chat models to llm.Client.
package langchain

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/iudanet/gophchat/internal/llm"
	"github.com/iudanet/gophchat/internal/models"
)

// Supported providers.
const (
	ProviderGoogleAI = "googleai"
	ProviderOpenAI   = "openai"
)

// Config selects and configures the upstream model.
type Config struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string // openai-compatible endpoints only, e.g. Ollama
}

// Client calls a langchaingo model.
//
// langchaingo has no portable thinking budget option, so
// llm.Options.ThinkingBudget is not forwarded.
type Client struct {
	model     llms.Model
	modelName string
}

var _ llm.Client = (*Client)(nil)

// New wraps an already constructed langchaingo model.
func New(model llms.Model, modelName string) *Client {
	return &Client{model: model, modelName: modelName}
}

// NewFromConfig builds the provider named in cfg.
func NewFromConfig(ctx context.Context, cfg Config) (*Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderGoogleAI, "":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("googleai provider requires an API key")
		}
		model, err := googleai.New(ctx,
			googleai.WithAPIKey(cfg.APIKey),
			googleai.WithDefaultModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize googleai: %w", err)
		}
		return New(model, cfg.Model), nil

	case ProviderOpenAI:
		opts := []openai.Option{openai.WithModel(cfg.Model)}
		// Ollama и другие совместимые сервера принимают любой токен
		token := cfg.APIKey
		if token == "" {
			token = "unused"
		}
		opts = append(opts, openai.WithToken(token))
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize openai: %w", err)
		}
		return New(model, cfg.Model), nil

	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// Generate sends the transcript window and system instruction upstream.
func (c *Client) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	messages := make([]llms.MessageContent, 0, len(req.Contents)+1)
	if req.SystemInstruction != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.SystemInstruction))
	}
	for _, turn := range req.Contents {
		messages = append(messages, llms.TextParts(messageType(turn.Role), turn.Text))
	}

	opts := []llms.CallOption{
		llms.WithTemperature(req.Options.Temperature),
	}
	if req.Options.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.Options.MaxTokens))
	}
	if c.modelName != "" {
		opts = append(opts, llms.WithModel(c.modelName))
	}

	resp, err := c.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return nil, err
	}

	return convertResponse(resp), nil
}

func messageType(role models.Role) llms.ChatMessageType {
	if role == models.RoleModel {
		return llms.ChatMessageTypeAI
	}
	return llms.ChatMessageTypeHuman
}

// convertResponse keeps missing pieces missing so that llm.ExtractReply
// can reject them.
func convertResponse(resp *llms.ContentResponse) *llm.Response {
	if resp == nil {
		return nil
	}

	out := &llm.Response{Candidates: make([]*llm.Candidate, 0, len(resp.Choices))}
	for _, choice := range resp.Choices {
		if choice == nil {
			out.Candidates = append(out.Candidates, nil)
			continue
		}
		out.Candidates = append(out.Candidates, &llm.Candidate{
			FinishReason: choice.StopReason,
			Content: &llm.Content{
				Role:  string(models.RoleModel),
				Parts: []llm.Part{{Text: choice.Content}},
			},
		})
	}

	return out
}
