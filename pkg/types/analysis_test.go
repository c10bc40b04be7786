package types

import (
	"errors"
	"strings"
	"testing"
)

const investorJSON = `{
  "fatalFlaws": ["a", "b"],
  "deathQuestion": "why now?",
  "realityCheck": "tiny market",
  "scoreCard": {"team": 3, "market": 4, "traction": 1, "moat": 2},
  "summary": "pass"
}`

func TestDecodeInvestor(t *testing.T) {
	a, err := DecodeAnalysis(KindInvestor, []byte("```json\n"+investorJSON+"\n```"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	inv, ok := a.(*InvestorAnalysis)
	if !ok {
		t.Fatalf("unexpected type %T", a)
	}
	if len(inv.FatalFlaws) != 2 || inv.ScoreCard.Market != 4 {
		t.Fatalf("unexpected analysis %+v", inv)
	}
}

func TestDecodeMissingFieldNotDefaulted(t *testing.T) {
	body := `{"fatalFlaws": ["a","b"], "realityCheck": "x", "scoreCard": {"team":1,"market":1,"traction":1,"moat":1}, "summary": "s"}`
	_, err := DecodeAnalysis(KindInvestor, []byte(body))
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if verr.Field != "deathQuestion" {
		t.Fatalf("field = %q", verr.Field)
	}
}

func TestDecodeNestedMissingField(t *testing.T) {
	body := strings.Replace(investorJSON, `"moat": 2`, `"extra": 2`, 1)
	_, err := DecodeAnalysis(KindInvestor, []byte(body))
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "scoreCard.moat" {
		t.Fatalf("expected scoreCard.moat error, got %v", err)
	}
}

func TestDecodeScoreOutOfRange(t *testing.T) {
	body := strings.Replace(investorJSON, `"team": 3`, `"team": 11`, 1)
	if _, err := DecodeAnalysis(KindInvestor, []byte(body)); err == nil {
		t.Fatalf("expected range error")
	}
}

func TestDecodeInvalidJSON(t *testing.T) {
	_, err := DecodeAnalysis(KindMarket, []byte(`{"marketSnapshot":`))
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDecodeMarketEnum(t *testing.T) {
	body := `{
	  "marketSnapshot": {"tam": "$1B", "sam": "$100M", "som": "$5M"},
	  "competitors": [{"name": "X", "strength": "s", "weakness": "w", "threatLevel": "Extreme"}],
	  "trends": [],
	  "dataQualityScore": "B"
	}`
	_, err := DecodeAnalysis(KindMarket, []byte(body))
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "competitors[0].threatLevel" {
		t.Fatalf("expected threatLevel error, got %v", err)
	}

	ok := strings.Replace(body, "Extreme", "High", 1)
	if _, err := DecodeAnalysis(KindMarket, []byte(ok)); err != nil {
		t.Fatalf("decode valid market: %v", err)
	}

	badGrade := strings.Replace(ok, `"B"`, `"E"`, 1)
	if _, err := DecodeAnalysis(KindMarket, []byte(badGrade)); err == nil {
		t.Fatalf("expected grade error")
	}
}

func TestDecodeEmptyListsRejected(t *testing.T) {
	body := strings.Replace(investorJSON, `["a", "b"]`, `[]`, 1)
	var verr *ValidationError
	if _, err := DecodeAnalysis(KindInvestor, []byte(body)); !errors.As(err, &verr) || verr.Field != "fatalFlaws" {
		t.Fatalf("expected fatalFlaws error, got %v", err)
	}

	mvp := `{
	  "techStack": {"frontend": "a", "backend": "b", "database": "c", "hosting": "d"},
	  "coreFeatures": [],
	  "dontBuild": [],
	  "roadmap": {"phase1": "x", "phase2": "y", "phase3": "z"},
	  "estimatedCost": "$5k"
	}`
	if _, err := DecodeAnalysis(KindMVP, []byte(mvp)); !errors.As(err, &verr) || verr.Field != "coreFeatures" {
		t.Fatalf("expected coreFeatures error, got %v", err)
	}
}

func TestDecodeMVPFeatureCap(t *testing.T) {
	body := `{
	  "techStack": {"frontend": "a", "backend": "b", "database": "c", "hosting": "d"},
	  "coreFeatures": ["1","2","3","4","5","6"],
	  "dontBuild": [],
	  "roadmap": {"phase1": "x", "phase2": "y", "phase3": "z"},
	  "estimatedCost": "$5k"
	}`
	if _, err := DecodeAnalysis(KindMVP, []byte(body)); err == nil {
		t.Fatalf("expected feature cap error")
	}
}

func TestDecodeFinancialOptionalColor(t *testing.T) {
	body := `{
	  "revenueProjection": [{"year": "Y1", "revenue": 1000, "cost": 800, "profit": 200}],
	  "costBreakdown": [{"category": "Staff", "amount": 5000}],
	  "burnRate": "$15k/mo",
	  "runway": "18 months",
	  "keyMetrics": {"cac": "$50", "ltv": "$500", "margin": "80%", "breakEven": "Month 24"},
	  "cfoVerdict": "cut burn"
	}`
	a, err := DecodeAnalysis(KindFinancial, []byte(body))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := a.(*FinancialOutlook).RevenueProjection[0].Profit; got != 200 {
		t.Fatalf("profit = %v", got)
	}

	missing := strings.Replace(body, `"amount": 5000`, `"amt": 5000`, 1)
	if _, err := DecodeAnalysis(KindFinancial, []byte(missing)); err == nil {
		t.Fatalf("expected missing amount error")
	}
}

func TestDecodePivotLevels(t *testing.T) {
	body := `{"strategies": [{"name": "n", "description": "d", "feasibility": "High", "risk": "Huge"}], "mermaidDiagram": "graph TD", "rationale": "r"}`
	if _, err := DecodeAnalysis(KindPivot, []byte(body)); err == nil {
		t.Fatalf("expected risk error")
	}
}

func TestDecodeTypeMismatch(t *testing.T) {
	body := strings.Replace(investorJSON, `"summary": "pass"`, `"summary": 5`, 1)
	if _, err := DecodeAnalysis(KindInvestor, []byte(body)); err == nil {
		t.Fatalf("expected type error")
	}
}

func TestInputValidation(t *testing.T) {
	if err := (InvestorRequest{}).Validate(); err == nil {
		t.Fatalf("expected error for empty investor request")
	}
	if err := (MarketRequest{MarketData: "short"}).Validate(); err == nil {
		t.Fatalf("expected min length error")
	}
	if err := (FinancialRequest{BusinessModel: "subscriptions", CostStructure: "servers and staff", CurrentStage: "Series B"}).Validate(); err == nil {
		t.Fatalf("expected stage error")
	}
	if err := (FinancialRequest{BusinessModel: "subscriptions", CostStructure: "servers and staff", CurrentStage: "Seed"}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bad := FollowUpRequest{History: []Turn{{Role: "assistant", Parts: []Part{{Text: "x"}}}}, Question: "q"}
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected role error")
	}
	if err := (FollowUpRequest{History: []Turn{NewTurn(RoleUser, "hi")}}).Validate(); err == nil {
		t.Fatalf("expected empty question error")
	}
}

func TestSessionTitle(t *testing.T) {
	if got := SessionTitle("  "); got != DefaultSessionTitle {
		t.Fatalf("expected default title, got %q", got)
	}
	long := strings.Repeat("ก", 60)
	if got := SessionTitle(long); got != strings.Repeat("ก", 50) {
		t.Fatalf("expected 50 runes, got %d", len([]rune(got)))
	}
	if got := SessionTitle("short idea"); got != "short idea" {
		t.Fatalf("unexpected title %q", got)
	}
}
