package generator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/psu6810110402/gemini-foundry/internal/apierr"
	"github.com/psu6810110402/gemini-foundry/internal/provider"
	"github.com/psu6810110402/gemini-foundry/internal/provider/testutil"
	"github.com/psu6810110402/gemini-foundry/internal/retry"
	"github.com/psu6810110402/gemini-foundry/pkg/types"
)

const investorJSON = `{"fatalFlaws":["a","b","c"],"deathQuestion":"why?","realityCheck":"small",
"scoreCard":{"team":3,"market":4,"traction":2,"moat":1},"summary":"pass"}`

func newTestService(t *testing.T, p provider.Provider, lang Language) *Service {
	t.Helper()
	svc, err := NewService(p, Options{
		Policy:   retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond},
		Language: lang,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestBuildSystemPromptLanguage(t *testing.T) {
	en, err := BuildSystemPrompt(types.KindInvestor, LanguageEN)
	if err != nil {
		t.Fatalf("BuildSystemPrompt: %v", err)
	}
	if !strings.Contains(en, "Gemini VC") || !strings.HasSuffix(en, "LANGUAGE: Respond in English.") {
		t.Fatalf("unexpected english prompt suffix")
	}
	th, _ := BuildSystemPrompt(types.KindFinancial, ParseLanguage("th"))
	if !strings.HasSuffix(th, "Use English for technical terms only.") {
		t.Fatalf("expected thai suffix, got %q", th[len(th)-60:])
	}
	for _, k := range types.Kinds {
		p, err := BuildSystemPrompt(k, LanguageEN)
		if err != nil || !strings.Contains(p, "RESPONSE FORMAT: JSON ONLY.") {
			t.Fatalf("persona %s missing JSON-only directive", k)
		}
	}
	if _, err := BuildSystemPrompt("oracle", LanguageEN); err == nil {
		t.Fatalf("expected unknown persona error")
	}
}

func TestStructuredAppendsJSONInstruction(t *testing.T) {
	mock := testutil.NewMockProvider("m")
	mock.GenerateFunc = func(context.Context, provider.Request) (provider.Response, error) {
		return provider.Response{Text: "```json\n" + investorJSON + "\n```", UsageTokens: 42}, nil
	}
	svc := newTestService(t, mock, LanguageEN)

	a, usage, err := svc.Structured(context.Background(), InvestorPrompt(types.InvestorRequest{Message: "Uber for cats"}), nil)
	if err != nil {
		t.Fatalf("Structured: %v", err)
	}
	if usage != 42 {
		t.Fatalf("usage = %d", usage)
	}
	inv, ok := a.(*types.InvestorAnalysis)
	if !ok || inv.Summary != "pass" {
		t.Fatalf("unexpected analysis %#v", a)
	}
	reqs := mock.Requests()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 request, got %d", len(reqs))
	}
	req := reqs[0]
	if !req.JSON || req.Temperature != StructuredTemperature || req.MaxTokens != StructuredMaxTokens {
		t.Fatalf("unexpected request settings %+v", req)
	}
	content := req.Messages[0].Content
	if !strings.HasPrefix(content, "User Message: Uber for cats") || !strings.HasSuffix(content, "IMPORTANT: Return valid JSON only.") {
		t.Fatalf("unexpected content %q", content)
	}
}

func TestStructuredRetriesMalformedOutput(t *testing.T) {
	calls := 0
	mock := testutil.NewMockProvider("m")
	mock.GenerateFunc = func(context.Context, provider.Request) (provider.Response, error) {
		calls++
		if calls == 1 {
			return provider.Response{Text: `{"fatalFlaws":["a"]}`, UsageTokens: 5}, nil
		}
		return provider.Response{Text: investorJSON, UsageTokens: 7}, nil
	}
	svc := newTestService(t, mock, LanguageEN)

	_, usage, err := svc.Structured(context.Background(), InvestorPrompt(types.InvestorRequest{Message: "x"}), nil)
	if err != nil {
		t.Fatalf("Structured: %v", err)
	}
	if calls != 2 || usage != 12 {
		t.Fatalf("calls=%d usage=%d", calls, usage)
	}
}

func TestStructuredMalformedAfterAllAttempts(t *testing.T) {
	mock := testutil.NewMockProvider("m")
	mock.GenerateFunc = func(context.Context, provider.Request) (provider.Response, error) {
		return provider.Response{Text: "not json"}, nil
	}
	svc := newTestService(t, mock, LanguageEN)

	a, _, err := svc.Structured(context.Background(), MarketPrompt(types.MarketRequest{MarketData: "pet food in Bangkok"}), nil)
	if a != nil {
		t.Fatalf("expected nil analysis")
	}
	if !errors.Is(err, apierr.ErrMalformed) {
		t.Fatalf("expected malformed error, got %v", err)
	}
	if got := len(mock.Requests()); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestStructuredStopsOnSafety(t *testing.T) {
	mock := testutil.NewMockProvider("m")
	mock.GenerateFunc = func(context.Context, provider.Request) (provider.Response, error) {
		return provider.Response{}, apierr.New(apierr.SafetyRejection, "blocked")
	}
	svc := newTestService(t, mock, LanguageEN)

	_, _, err := svc.Structured(context.Background(), MVPPrompt(types.MVPRequest{Idea: "a dating app for plants"}), nil)
	if !errors.Is(err, apierr.ErrSafety) {
		t.Fatalf("expected safety error, got %v", err)
	}
	if got := len(mock.Requests()); got != 1 {
		t.Fatalf("safety rejection must not retry, got %d calls", got)
	}
}

func TestFollowUpStreamsInOrder(t *testing.T) {
	mock := testutil.NewMockProvider("m")
	mock.StreamFunc = testutil.StreamChunks(30, "Your ", "moat ", "is thin.")
	svc := newTestService(t, mock, LanguageEN)

	history := []types.Turn{
		types.NewTurn(types.RoleUser, "pitch"),
		types.NewTurn(types.RoleModel, investorJSON),
	}
	var got []string
	usage, err := svc.FollowUp(context.Background(), history, "What about moat?", func(s string) error {
		got = append(got, s)
		return nil
	})
	if err != nil {
		t.Fatalf("FollowUp: %v", err)
	}
	if strings.Join(got, "") != "Your moat is thin." || usage != 30 {
		t.Fatalf("got %q usage %d", got, usage)
	}
	req := mock.Requests()[0]
	if len(req.Messages) != 3 || req.Messages[2].Content != "What about moat?" || req.MaxTokens != FollowUpMaxTokens {
		t.Fatalf("unexpected request %+v", req)
	}
	if req.JSON {
		t.Fatalf("follow-up must not use JSON mode")
	}
}

func TestPivotUsesPivotPrompt(t *testing.T) {
	mock := testutil.NewMockProvider("m")
	mock.StreamFunc = testutil.StreamChunks(0, "## 🔄 Pivot Strategy 1")
	svc := newTestService(t, mock, LanguageTH)

	_, err := svc.Pivot(context.Background(), []types.Turn{types.NewTurn(types.RoleUser, "idea")}, func(string) error { return nil })
	if err != nil {
		t.Fatalf("Pivot: %v", err)
	}
	req := mock.Requests()[0]
	last := req.Messages[len(req.Messages)-1]
	if !strings.Contains(last.Content, "Generate exactly 3 creative PIVOT STRATEGIES") || !strings.Contains(last.Content, "Respond in Thai") {
		t.Fatalf("unexpected pivot prompt %q", last.Content)
	}
	if req.Temperature != PivotTemperature {
		t.Fatalf("temperature = %v", req.Temperature)
	}
}

func TestFollowUpEmitErrorStops(t *testing.T) {
	mock := testutil.NewMockProvider("m")
	mock.StreamFunc = testutil.StreamChunks(0, "a", "b", "c")
	svc := newTestService(t, mock, LanguageEN)

	stop := errors.New("client gone")
	n := 0
	_, err := svc.FollowUp(context.Background(), nil, "q", func(string) error {
		n++
		return stop
	})
	if !errors.Is(err, stop) || n != 1 {
		t.Fatalf("err=%v n=%d", err, n)
	}
}

func TestNewServiceNilProvider(t *testing.T) {
	if _, err := NewService(nil, Options{}); err == nil {
		t.Fatalf("expected error")
	}
}
