package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Kind selects a structured persona output.
type Kind string

const (
	KindInvestor  Kind = "investor"
	KindMarket    Kind = "market"
	KindMVP       Kind = "mvp"
	KindFinancial Kind = "financial"
	KindPivot     Kind = "pivot"
)

// Kinds lists every structured output kind.
var Kinds = []Kind{KindInvestor, KindMarket, KindMVP, KindFinancial, KindPivot}

// Mode returns the chat session mode matching the kind.
func (k Kind) Mode() Mode { return Mode(k) }

// Analysis is implemented by every structured persona output.
type Analysis interface {
	Kind() Kind
	Validate() error
}

// ValidationError reports a structured output that failed its schema.
type ValidationError struct {
	Kind   Kind
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s output: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s output: %s: %s", e.Kind, e.Field, e.Reason)
}

// InvestorAnalysis is the ruthless investor critique.
type InvestorAnalysis struct {
	FatalFlaws    []string  `json:"fatalFlaws"`
	DeathQuestion string    `json:"deathQuestion"`
	RealityCheck  string    `json:"realityCheck"`
	ScoreCard     ScoreCard `json:"scoreCard"`
	Summary       string    `json:"summary"`
}

// ScoreCard rates the idea 1-10 on four axes.
type ScoreCard struct {
	Team     float64 `json:"team"`
	Market   float64 `json:"market"`
	Traction float64 `json:"traction"`
	Moat     float64 `json:"moat"`
}

func (InvestorAnalysis) Kind() Kind { return KindInvestor }

func (a InvestorAnalysis) Validate() error {
	if len(a.FatalFlaws) == 0 {
		return &ValidationError{Kind: KindInvestor, Field: "fatalFlaws", Reason: "at least one flaw is required"}
	}
	scores := []struct {
		name string
		v    float64
	}{
		{"scoreCard.team", a.ScoreCard.Team},
		{"scoreCard.market", a.ScoreCard.Market},
		{"scoreCard.traction", a.ScoreCard.Traction},
		{"scoreCard.moat", a.ScoreCard.Moat},
	}
	for _, s := range scores {
		if s.v < 1 || s.v > 10 {
			return &ValidationError{Kind: KindInvestor, Field: s.name, Reason: fmt.Sprintf("score %v out of range 1-10", s.v)}
		}
	}
	return nil
}

// MarketSynthesis is the market analyst report.
type MarketSynthesis struct {
	MarketSnapshot   MarketSnapshot `json:"marketSnapshot"`
	Competitors      []Competitor   `json:"competitors"`
	Trends           []string       `json:"trends"`
	DataQualityScore string         `json:"dataQualityScore"`
}

// MarketSnapshot holds TAM/SAM/SOM estimates.
type MarketSnapshot struct {
	TAM string `json:"tam"`
	SAM string `json:"sam"`
	SOM string `json:"som"`
}

// Competitor is one entry of the competitive landscape.
type Competitor struct {
	Name        string `json:"name"`
	Strength    string `json:"strength"`
	Weakness    string `json:"weakness"`
	ThreatLevel Level  `json:"threatLevel"`
}

func (MarketSynthesis) Kind() Kind { return KindMarket }

func (m MarketSynthesis) Validate() error {
	for i, c := range m.Competitors {
		if !c.ThreatLevel.Valid() {
			return &ValidationError{Kind: KindMarket, Field: fmt.Sprintf("competitors[%d].threatLevel", i), Reason: fmt.Sprintf("invalid level %q", c.ThreatLevel)}
		}
	}
	switch m.DataQualityScore {
	case "A", "B", "C", "D":
	default:
		return &ValidationError{Kind: KindMarket, Field: "dataQualityScore", Reason: fmt.Sprintf("invalid grade %q", m.DataQualityScore)}
	}
	return nil
}

// MVPBlueprint is the CTO's build plan.
type MVPBlueprint struct {
	TechStack     TechStack `json:"techStack"`
	CoreFeatures  []string  `json:"coreFeatures"`
	DontBuild     []string  `json:"dontBuild"`
	Roadmap       Roadmap   `json:"roadmap"`
	EstimatedCost string    `json:"estimatedCost"`
}

type TechStack struct {
	Frontend string `json:"frontend"`
	Backend  string `json:"backend"`
	Database string `json:"database"`
	Hosting  string `json:"hosting"`
}

type Roadmap struct {
	Phase1 string `json:"phase1"`
	Phase2 string `json:"phase2"`
	Phase3 string `json:"phase3"`
}

// MaxCoreFeatures caps the MVP feature list.
const MaxCoreFeatures = 5

func (MVPBlueprint) Kind() Kind { return KindMVP }

func (b MVPBlueprint) Validate() error {
	if len(b.CoreFeatures) == 0 {
		return &ValidationError{Kind: KindMVP, Field: "coreFeatures", Reason: "at least one feature is required"}
	}
	if len(b.CoreFeatures) > MaxCoreFeatures {
		return &ValidationError{Kind: KindMVP, Field: "coreFeatures", Reason: fmt.Sprintf("%d features exceeds %d", len(b.CoreFeatures), MaxCoreFeatures)}
	}
	return nil
}

// PivotStrategy is the structured pivot report.
type PivotStrategy struct {
	Strategies     []Strategy `json:"strategies"`
	MermaidDiagram string     `json:"mermaidDiagram"`
	Rationale      string     `json:"rationale"`
}

type Strategy struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Feasibility Level  `json:"feasibility"`
	Risk        Level  `json:"risk"`
}

func (PivotStrategy) Kind() Kind { return KindPivot }

func (p PivotStrategy) Validate() error {
	for i, s := range p.Strategies {
		if !s.Feasibility.Valid() {
			return &ValidationError{Kind: KindPivot, Field: fmt.Sprintf("strategies[%d].feasibility", i), Reason: fmt.Sprintf("invalid level %q", s.Feasibility)}
		}
		if !s.Risk.Valid() {
			return &ValidationError{Kind: KindPivot, Field: fmt.Sprintf("strategies[%d].risk", i), Reason: fmt.Sprintf("invalid level %q", s.Risk)}
		}
	}
	return nil
}

// FinancialOutlook is the CFO projection.
type FinancialOutlook struct {
	RevenueProjection []YearProjection `json:"revenueProjection"`
	CostBreakdown     []CostItem       `json:"costBreakdown"`
	BurnRate          string           `json:"burnRate"`
	Runway            string           `json:"runway"`
	KeyMetrics        KeyMetrics       `json:"keyMetrics"`
	CFOVerdict        string           `json:"cfoVerdict"`
}

type YearProjection struct {
	Year    string  `json:"year"`
	Revenue float64 `json:"revenue"`
	Cost    float64 `json:"cost"`
	Profit  float64 `json:"profit"`
}

type CostItem struct {
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
	Color    string  `json:"color,omitempty"`
}

type KeyMetrics struct {
	CAC       string `json:"cac"`
	LTV       string `json:"ltv"`
	Margin    string `json:"margin"`
	BreakEven string `json:"breakEven"`
}

func (FinancialOutlook) Kind() Kind { return KindFinancial }

func (FinancialOutlook) Validate() error { return nil }

// Level is a High/Medium/Low rating.
type Level string

const (
	LevelHigh   Level = "High"
	LevelMedium Level = "Medium"
	LevelLow    Level = "Low"
)

func (l Level) Valid() bool {
	return l == LevelHigh || l == LevelMedium || l == LevelLow
}

// field describes one required key of a structured document. object and elems
// describe nested objects and arrays of objects respectively.
type field struct {
	name     string
	optional bool
	object   []field
	elems    []field
}

var shapes = map[Kind][]field{
	KindInvestor: {
		{name: "fatalFlaws"},
		{name: "deathQuestion"},
		{name: "realityCheck"},
		{name: "scoreCard", object: []field{{name: "team"}, {name: "market"}, {name: "traction"}, {name: "moat"}}},
		{name: "summary"},
	},
	KindMarket: {
		{name: "marketSnapshot", object: []field{{name: "tam"}, {name: "sam"}, {name: "som"}}},
		{name: "competitors", elems: []field{{name: "name"}, {name: "strength"}, {name: "weakness"}, {name: "threatLevel"}}},
		{name: "trends"},
		{name: "dataQualityScore"},
	},
	KindMVP: {
		{name: "techStack", object: []field{{name: "frontend"}, {name: "backend"}, {name: "database"}, {name: "hosting"}}},
		{name: "coreFeatures"},
		{name: "dontBuild"},
		{name: "roadmap", object: []field{{name: "phase1"}, {name: "phase2"}, {name: "phase3"}}},
		{name: "estimatedCost"},
	},
	KindPivot: {
		{name: "strategies", elems: []field{{name: "name"}, {name: "description"}, {name: "feasibility"}, {name: "risk"}}},
		{name: "mermaidDiagram"},
		{name: "rationale"},
	},
	KindFinancial: {
		{name: "revenueProjection", elems: []field{{name: "year"}, {name: "revenue"}, {name: "cost"}, {name: "profit"}}},
		{name: "costBreakdown", elems: []field{{name: "category"}, {name: "amount"}, {name: "color", optional: true}}},
		{name: "burnRate"},
		{name: "runway"},
		{name: "keyMetrics", object: []field{{name: "cac"}, {name: "ltv"}, {name: "margin"}, {name: "breakEven"}}},
		{name: "cfoVerdict"},
	},
}

// NewAnalysis returns an empty output value for kind.
func NewAnalysis(kind Kind) (Analysis, error) {
	switch kind {
	case KindInvestor:
		return &InvestorAnalysis{}, nil
	case KindMarket:
		return &MarketSynthesis{}, nil
	case KindMVP:
		return &MVPBlueprint{}, nil
	case KindFinancial:
		return &FinancialOutlook{}, nil
	case KindPivot:
		return &PivotStrategy{}, nil
	default:
		return nil, fmt.Errorf("unknown analysis kind %q", kind)
	}
}

// DecodeAnalysis parses a model response for kind. Markdown code fences around
// the document are tolerated. Every required key must be present; nothing is
// defaulted.
func DecodeAnalysis(kind Kind, data []byte) (Analysis, error) {
	out, err := NewAnalysis(kind)
	if err != nil {
		return nil, err
	}
	raw := []byte(StripCodeFence(string(data)))
	if err := checkShape(kind, raw, shapes[kind], ""); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, &ValidationError{Kind: kind, Reason: err.Error()}
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

func checkShape(kind Kind, raw json.RawMessage, fields []field, path string) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		if path == "" {
			return &ValidationError{Kind: kind, Reason: "invalid json: " + err.Error()}
		}
		return &ValidationError{Kind: kind, Field: path, Reason: "expected object"}
	}
	if obj == nil {
		return &ValidationError{Kind: kind, Field: path, Reason: "expected object"}
	}
	for _, f := range fields {
		name := f.name
		if path != "" {
			name = path + "." + f.name
		}
		v, ok := obj[f.name]
		if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			if f.optional {
				continue
			}
			return &ValidationError{Kind: kind, Field: name, Reason: "required field missing"}
		}
		if f.object != nil {
			if err := checkShape(kind, v, f.object, name); err != nil {
				return err
			}
		}
		if f.elems != nil {
			var items []json.RawMessage
			if err := json.Unmarshal(v, &items); err != nil {
				return &ValidationError{Kind: kind, Field: name, Reason: "expected array"}
			}
			for i, item := range items {
				if err := checkShape(kind, item, f.elems, fmt.Sprintf("%s[%d]", name, i)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// StripCodeFence removes a surrounding markdown code block.
func StripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.Index(trimmed, "\n"); idx != -1 {
			trimmed = trimmed[idx+1:]
		}
		if end := strings.LastIndex(trimmed, "```"); end != -1 {
			trimmed = trimmed[:end]
		}
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}
