// Package generator turns persona prompts into model calls: structured JSON
// analyses with retry and validation, and streamed follow-up answers.
package generator

import (
	"context"
	"errors"
	"log/slog"

	"github.com/psu6810110402/gemini-foundry/internal/apierr"
	"github.com/psu6810110402/gemini-foundry/internal/attachment"
	"github.com/psu6810110402/gemini-foundry/internal/provider"
	"github.com/psu6810110402/gemini-foundry/internal/retry"
	"github.com/psu6810110402/gemini-foundry/pkg/types"
)

// Generation settings for the structured and streamed paths.
const (
	StructuredTemperature = 0.7
	StructuredMaxTokens   = 8192
	FollowUpMaxTokens     = 2000
	PivotTemperature      = 0.9
)

const followUpSystem = `You are "Gemini VC", a ruthless Tier-1 Silicon Valley Investor, continuing
a pitch review. Answer the founder's follow-up directly and candidly in plain
prose or markdown. Do not return JSON.`

// EmitFunc receives each streamed fragment in order.
type EmitFunc func(fragment string) error

// Options configures a Service.
type Options struct {
	Policy   retry.Policy
	Language Language
	// HistoryTokens bounds the history sent with follow-ups; 0 sends all of it.
	HistoryTokens int
	Logger        *slog.Logger
}

// Service runs persona generations against one provider.
type Service struct {
	provider provider.Provider
	policy   retry.Policy
	lang     Language
	history  int
	logger   *slog.Logger
}

func NewService(p provider.Provider, opts Options) (*Service, error) {
	if p == nil {
		return nil, errors.New("provider is nil")
	}
	policy := opts.Policy
	if policy.MaxAttempts <= 0 {
		policy = retry.DefaultPolicy
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if policy.Logger == nil {
		policy.Logger = logger
	}
	lang := opts.Language
	if lang == "" {
		lang = LanguageEN
	}
	return &Service{provider: p, policy: policy, lang: lang, history: opts.HistoryTokens, logger: logger}, nil
}

// Provider returns the backing provider.
func (s *Service) Provider() provider.Provider { return s.provider }

// Structured generates and validates a JSON analysis. Rate limits, transient
// failures and output that does not match the kind's shape are retried with
// backoff. The returned usage sums every attempt.
func (s *Service) Structured(ctx context.Context, p Prompt, att *attachment.Attachment) (types.Analysis, int, error) {
	system, err := BuildSystemPrompt(p.Kind, s.lang)
	if err != nil {
		return nil, 0, apierr.Wrap(apierr.BadRequest, err, err.Error())
	}
	req := provider.Request{
		System:      system,
		Messages:    []provider.Message{{Role: types.RoleUser, Content: p.Text + jsonInstruction}},
		Attachment:  att,
		JSON:        true,
		MaxTokens:   StructuredMaxTokens,
		Temperature: StructuredTemperature,
	}

	usage := 0
	analysis, err := retry.Do(ctx, s.policy, func(ctx context.Context, attempt int) (types.Analysis, error) {
		s.logger.Debug("llm request", "provider", s.provider.Name(), "model", s.provider.Model(), "kind", p.Kind, "attempt", attempt+1)
		resp, err := s.provider.Generate(ctx, req)
		if err != nil {
			return nil, err
		}
		usage += resp.UsageTokens
		a, err := types.DecodeAnalysis(p.Kind, []byte(resp.Text))
		if err != nil {
			s.logger.Warn("invalid structured output", "kind", p.Kind, "attempt", attempt+1, "error", err)
			return nil, apierr.Wrap(apierr.MalformedStructuredOutput, err, "Invalid response format from AI")
		}
		return a, nil
	})
	if err != nil {
		return nil, usage, err
	}
	return analysis, usage, nil
}

// FollowUp streams the answer to question given the prior conversation.
func (s *Service) FollowUp(ctx context.Context, history []types.Turn, question string, emit EmitFunc) (int, error) {
	msgs := provider.HistoryMessages(TrimHistory(history, s.history))
	msgs = append(msgs, provider.Message{Role: types.RoleUser, Content: question})
	return s.stream(ctx, provider.Request{
		System:    followUpSystem + languageSuffix(s.lang),
		Messages:  msgs,
		MaxTokens: FollowUpMaxTokens,
	}, emit)
}

// Pivot streams three markdown pivot strategies for the conversation so far.
func (s *Service) Pivot(ctx context.Context, history []types.Turn, emit EmitFunc) (int, error) {
	msgs := provider.HistoryMessages(TrimHistory(history, s.history))
	msgs = append(msgs, provider.Message{Role: types.RoleUser, Content: PivotPrompt + languageSuffix(s.lang)})
	return s.stream(ctx, provider.Request{
		Messages:    msgs,
		MaxTokens:   FollowUpMaxTokens,
		Temperature: PivotTemperature,
	}, emit)
}

func (s *Service) stream(ctx context.Context, req provider.Request, emit EmitFunc) (int, error) {
	s.logger.Debug("llm stream", "provider", s.provider.Name(), "model", s.provider.Model(), "messages", len(req.Messages))
	usage := 0
	err := s.provider.Stream(ctx, req, func(c provider.Chunk) error {
		if c.UsageTokens > 0 {
			usage = c.UsageTokens
		}
		if c.Text == "" {
			return nil
		}
		return emit(c.Text)
	})
	return usage, err
}
