package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/psu6810110402/gemini-foundry/internal/attachment"
	"github.com/psu6810110402/gemini-foundry/internal/apierr"
	"github.com/psu6810110402/gemini-foundry/pkg/types"
)

// DefaultOpenAIBaseURL is Gemini's OpenAI-compatible endpoint.
const DefaultOpenAIBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gemini-flash-latest"

// OpenAIProvider talks to any OpenAI-compatible chat completions API.
type OpenAIProvider struct {
	client openai.Client
	model  string
}

// NewOpenAIProvider creates a provider. The SDK's own retries are disabled;
// the structured path retries with its own policy.
func NewOpenAIProvider(cfg Config) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	opts := []option.RequestOption{
		option.WithBaseURL(baseURL),
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	return &OpenAIProvider{client: openai.NewClient(opts...), model: model}, nil
}

func (p *OpenAIProvider) Name() string  { return string(TypeOpenAI) }
func (p *OpenAIProvider) Model() string { return p.model }

func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (Response, error) {
	resp, err := p.client.Chat.Completions.New(ctx, p.params(req))
	if err != nil {
		return Response{}, openAIError(err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, apierr.New(apierr.TransientGenerationFailure, "openai: response has no choices")
	}
	choice := resp.Choices[0]
	if choice.FinishReason == "content_filter" {
		return Response{}, safetyError(string(choice.FinishReason))
	}
	return Response{Text: choice.Message.Content, UsageTokens: int(resp.Usage.TotalTokens)}, nil
}

func (p *OpenAIProvider) Stream(ctx context.Context, req Request, fn StreamCallback) error {
	params := p.params(req)
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	usage := 0
	for stream.Next() {
		chunk := stream.Current()
		if chunk.Usage.TotalTokens > 0 {
			usage = int(chunk.Usage.TotalTokens)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.FinishReason == "content_filter" {
			return safetyError(string(choice.FinishReason))
		}
		if choice.Delta.Content != "" {
			if err := fn(Chunk{Text: choice.Delta.Content}); err != nil {
				return err
			}
		}
	}
	if err := stream.Err(); err != nil {
		return openAIError(err)
	}
	if usage > 0 {
		return fn(Chunk{UsageTokens: usage})
	}
	return nil
}

func (p *OpenAIProvider) params(req Request) openai.ChatCompletionNewParams {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, openai.SystemMessage(req.System))
	}
	for i, m := range req.Messages {
		if m.Role == types.RoleModel {
			msgs = append(msgs, openai.AssistantMessage(m.Content))
			continue
		}
		if i == len(req.Messages)-1 && req.Attachment != nil {
			msgs = append(msgs, openai.UserMessage(openAIParts(m.Content, req.Attachment)))
			continue
		}
		msgs = append(msgs, openai.UserMessage(m.Content))
	}

	params := openai.ChatCompletionNewParams{
		Messages: msgs,
		Model:    openai.ChatModel(p.model),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	return params
}

func openAIParts(text string, att *attachment.Attachment) []openai.ChatCompletionContentPartUnionParam {
	parts := []openai.ChatCompletionContentPartUnionParam{openai.TextContentPart(text)}
	if att.IsImage() {
		return append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: att.DataURL()}))
	}
	return append(parts, openai.FileContentPart(openai.ChatCompletionContentPartFileFileParam{
		FileData: openai.String(att.DataURL()),
		Filename: openai.String(att.Filename()),
	}))
}

func openAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = apiErr.Error()
		}
		return classifyStatus(apiErr.StatusCode, msg, fmt.Errorf("openai: %w", err))
	}
	return classifyTransport(err)
}
