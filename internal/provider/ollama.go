package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"

	"github.com/psu6810110402/gemini-foundry/internal/apierr"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "llama3.1:latest"
)

// OllamaProvider runs against a local Ollama server.
type OllamaProvider struct {
	client *api.Client
	model  string
}

func NewOllamaProvider(cfg Config) (*OllamaProvider, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultOllamaModel
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OllamaProvider{client: api.NewClient(parsed, httpClient), model: model}, nil
}

func (p *OllamaProvider) Name() string  { return string(TypeOllama) }
func (p *OllamaProvider) Model() string { return p.model }

func (p *OllamaProvider) Generate(ctx context.Context, req Request) (Response, error) {
	chatReq, err := p.chatRequest(req, false)
	if err != nil {
		return Response{}, err
	}
	var out Response
	err = p.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		out.Text += resp.Message.Content
		if resp.Done {
			out.UsageTokens = resp.PromptEvalCount + resp.EvalCount
		}
		return nil
	})
	if err != nil {
		return Response{}, ollamaError(err)
	}
	return out, nil
}

func (p *OllamaProvider) Stream(ctx context.Context, req Request, fn StreamCallback) error {
	chatReq, err := p.chatRequest(req, true)
	if err != nil {
		return err
	}
	usage := 0
	err = p.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		if resp.Done {
			usage = resp.PromptEvalCount + resp.EvalCount
		}
		if resp.Message.Content == "" {
			return nil
		}
		return fn(Chunk{Text: resp.Message.Content})
	})
	if err != nil {
		return ollamaError(err)
	}
	if usage > 0 {
		return fn(Chunk{UsageTokens: usage})
	}
	return nil
}

func (p *OllamaProvider) chatRequest(req Request, stream bool) (*api.ChatRequest, error) {
	msgs := make([]api.Message, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, api.Message{Role: "system", Content: req.System})
	}
	for i, m := range req.Messages {
		role := "user"
		if m.Role == "model" {
			role = "assistant"
		}
		msg := api.Message{Role: role, Content: m.Content}
		if i == len(req.Messages)-1 && req.Attachment != nil {
			if !req.Attachment.IsImage() {
				return nil, apierr.New(apierr.BadRequest, "ollama: only image attachments are supported")
			}
			msg.Images = []api.ImageData{req.Attachment.Data}
		}
		msgs = append(msgs, msg)
	}

	options := map[string]any{}
	if req.Temperature > 0 {
		options["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	chatReq := &api.ChatRequest{
		Model:    p.model,
		Messages: msgs,
		Stream:   &stream,
		Options:  options,
	}
	if req.JSON {
		chatReq.Format = json.RawMessage(`"json"`)
	}
	return chatReq, nil
}

func ollamaError(err error) error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		msg := statusErr.ErrorMessage
		if msg == "" {
			msg = statusErr.Status
		}
		return classifyStatus(statusErr.StatusCode, msg, fmt.Errorf("ollama: %w", err))
	}
	return classifyTransport(err)
}
