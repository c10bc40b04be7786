package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/psu6810110402/gemini-foundry/internal/attachment"
	"github.com/psu6810110402/gemini-foundry/pkg/types"
)

const (
	defaultAnthropicModel     = "claude-sonnet-4-5-20250929"
	defaultAnthropicMaxTokens = 4096
	jsonOnlyInstruction       = "Respond with a single JSON object and nothing else."
)

// AnthropicProvider uses the Messages API.
type AnthropicProvider struct {
	client anthropic.Client
	model  anthropic.Model
}

func NewAnthropicProvider(cfg Config) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	return &AnthropicProvider{client: anthropic.NewClient(opts...), model: anthropic.Model(model)}, nil
}

func (p *AnthropicProvider) Name() string  { return string(TypeAnthropic) }
func (p *AnthropicProvider) Model() string { return string(p.model) }

func (p *AnthropicProvider) Generate(ctx context.Context, req Request) (Response, error) {
	msg, err := p.client.Messages.New(ctx, p.params(req))
	if err != nil {
		return Response{}, anthropicError(err)
	}
	if string(msg.StopReason) == "refusal" {
		return Response{}, safetyError("refusal")
	}
	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return Response{Text: sb.String(), UsageTokens: int(msg.Usage.InputTokens + msg.Usage.OutputTokens)}, nil
}

func (p *AnthropicProvider) Stream(ctx context.Context, req Request, fn StreamCallback) error {
	stream := p.client.Messages.NewStreaming(ctx, p.params(req))
	defer stream.Close()

	msg := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := msg.Accumulate(event); err != nil {
			return fmt.Errorf("anthropic: accumulate: %w", err)
		}
		if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if text, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok && text.Text != "" {
				if err := fn(Chunk{Text: text.Text}); err != nil {
					return err
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return anthropicError(err)
	}
	if string(msg.StopReason) == "refusal" {
		return safetyError("refusal")
	}
	if usage := int(msg.Usage.InputTokens + msg.Usage.OutputTokens); usage > 0 {
		return fn(Chunk{UsageTokens: usage})
	}
	return nil
}

func (p *AnthropicProvider) params(req Request) anthropic.MessageNewParams {
	msgs := make([]anthropic.MessageParam, 0, len(req.Messages))
	for i, m := range req.Messages {
		if m.Role == types.RoleModel {
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
			continue
		}
		blocks := []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(m.Content)}
		if i == len(req.Messages)-1 && req.Attachment != nil {
			blocks = append(blocks, anthropicBlock(req.Attachment))
		}
		msgs = append(msgs, anthropic.NewUserMessage(blocks...))
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     p.model,
		Messages:  msgs,
		MaxTokens: int64(maxTokens),
	}
	system := req.System
	if req.JSON {
		system = strings.TrimSpace(system + "\n\n" + jsonOnlyInstruction)
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	return params
}

func anthropicBlock(att *attachment.Attachment) anthropic.ContentBlockParamUnion {
	if att.IsPDF() {
		return anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{Data: att.Base64()})
	}
	return anthropic.NewImageBlockBase64(att.MIMEType, att.Base64())
}

func anthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.StatusCode, apiErr.Error(), fmt.Errorf("anthropic: %w", err))
	}
	return classifyTransport(err)
}
