package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicDefaultModel = "claude-sonnet-4-5"

// AnthropicProvider implements Provider on the Anthropic Messages API.
type AnthropicProvider struct {
	client       *anthropic.Client
	defaultModel string
}

func NewAnthropicProvider(token, apiBase, defaultModel string) *AnthropicProvider {
	opts := []option.RequestOption{option.WithAuthToken(token)}
	if apiBase != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(apiBase, "/")))
	}
	client := anthropic.NewClient(opts...)
	if defaultModel == "" {
		defaultModel = anthropicDefaultModel
	}
	return &AnthropicProvider{client: &client, defaultModel: defaultModel}
}

func (p *AnthropicProvider) DefaultModel() string { return p.defaultModel }

func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (string, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	messages := make([]anthropic.MessageParam, 0, len(req.Turns))
	for _, turn := range req.Turns {
		switch turn.Role {
		case RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(turn.Content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(turn.Content)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: maxTokens,
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", p.wrapError(err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}
	return sb.String(), nil
}

func (p *AnthropicProvider) wrapError(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		body := strings.ToLower(apierr.Error())
		quotaHint := strings.Contains(body, "credit") || strings.Contains(body, "quota") ||
			strings.Contains(body, "billing")
		return &Error{
			Kind:     kindFromStatus(apierr.StatusCode, quotaHint),
			Provider: "anthropic",
			Err:      err,
		}
	}
	return fmt.Errorf("anthropic API call: %w", err)
}
