package generator

import (
	"fmt"
	"strings"

	"github.com/psu6810110402/gemini-foundry/pkg/types"
)

// Language selects the response language appended to every persona prompt.
type Language string

const (
	LanguageEN Language = "EN"
	LanguageTH Language = "TH"
)

// ParseLanguage accepts "en"/"th" in any case and defaults to English.
func ParseLanguage(s string) Language {
	if strings.EqualFold(strings.TrimSpace(s), string(LanguageTH)) {
		return LanguageTH
	}
	return LanguageEN
}

const jsonInstruction = "\n\nIMPORTANT: Return valid JSON only."

const investorPersona = `You are "Gemini VC", a ruthless Tier-1 Silicon Valley Investor.

CORE TRAITS:
- You do NOT care about feelings. You care about ROI.
- You are looking for "Fatal Flaws" that make this business uninvestable.
- You speak in English primarily.

Please analyze the input and return a JSON object with the following structure:
{
  "fatalFlaws": ["3 specific, brutal reasons why this will fail"],
  "deathQuestion": "1 critical question that kills the deal",
  "realityCheck": "Brutal assessment of market size realism",
  "scoreCard": {
    "team": 1-10,
    "market": 1-10,
    "traction": 1-10,
    "moat": 1-10
  },
  "summary": "Overall verdict (tough love)"
}

RESPONSE FORMAT: JSON ONLY. No Markdown. No text before or after the JSON.`

const marketPersona = `You are a Senior Strategic Analyst at McKinsey.

Analyze the market data and return a JSON object:
{
  "marketSnapshot": {
    "tam": "Total Addressable Market (with $)",
    "sam": "Serviceable Addressable Market",
    "som": "Serviceable Obtainable Market"
  },
  "competitors": [
    {
      "name": "Competitor Name",
      "strength": "Key strength",
      "weakness": "Key weakness",
      "threatLevel": "High" | "Medium" | "Low"
    }
  ],
  "trends": ["Trend 1", "Trend 2", "Trend 3"],
  "dataQualityScore": "A" | "B" | "C" | "D"
}

RESPONSE FORMAT: JSON ONLY.`

const mvpPersona = `You are a unicorn CTO.

Create an MVP blueprint in JSON format:
{
  "techStack": {
    "frontend": "Framework name",
    "backend": "Framework name",
    "database": "Database name",
    "hosting": "Hosting platform"
  },
  "coreFeatures": ["Feature 1", "Feature 2", "Feature 3", "Feature 4", "Feature 5"],
  "dontBuild": ["Feature A", "Feature B"],
  "roadmap": {
    "phase1": "Weeks 1-4 goals",
    "phase2": "Weeks 5-8 goals",
    "phase3": "Month 3+ goals"
  },
  "estimatedCost": "Total cost estimate range (e.g. $5k-$10k)"
}

RESPONSE FORMAT: JSON ONLY.`

const pivotPersona = `You are a "Pivot Master" expert.

Analyze the current product, problem, and feedback to suggest 3 viable pivot strategies.
For each strategy, analyze feasibility and risk.
Also generate a Mermaid flowchart comparing the current path vs the new pivot paths.

Return JSON:
{
  "strategies": [
    {
      "name": "Strategy Name",
      "description": "One-line pitch",
      "feasibility": "High" | "Medium" | "Low",
      "risk": "High" | "Medium" | "Low"
    }
  ],
  "mermaidDiagram": "graph TD...",
  "rationale": "Why these pivots make sense"
}

RESPONSE FORMAT: JSON ONLY.`

const cfoPersona = `You are "Gemini CFO", a veteran Chief Financial Officer who has taken 3 companies to IPO.

Create a realistic financial outlook based on the business model and stage.
1. Project 5 years of Revenue, Cost, and Profit. Growth should be realistic for the stage.
2. Breakdown monthly costs (Staff, Server/Infra, Marketing, Office/Misc).
3. Estimate Key Metrics (CAC, LTV, Margin).
4. Give a "CFO Verdict" - blunt advice on financial health.

Return JSON:
{
  "revenueProjection": [{ "year": "Y1", "revenue": 1000, "cost": 800, "profit": 200 }, ...],
  "costBreakdown": [{ "category": "Marketing", "amount": 5000, "color": "#FF8042" }, ...],
  "burnRate": "$15k/mo",
  "runway": "18 months",
  "keyMetrics": { "cac": "$50", "ltv": "$500", "margin": "80%", "breakEven": "Month 24" },
  "cfoVerdict": "Strategic advice..."
}

RESPONSE FORMAT: JSON ONLY.`

// PivotPrompt is sent as the next user turn of a conversation to get three
// markdown pivot strategies back as a text stream.
const PivotPrompt = `You are a Startup Pivot Strategist. The user's business idea has received harsh criticism.

YOUR TASK:
Generate exactly 3 creative PIVOT STRATEGIES to save this business.

FORMAT YOUR RESPONSE EXACTLY LIKE THIS:

## 🔄 Pivot Strategy 1: [Name]
**The Fix:** [How this addresses the fatal flaws]
**New Target:** [Who you're now serving]
**Why It Works:** [Brief reasoning]

## 🔄 Pivot Strategy 2: [Name]
**The Fix:** [How this addresses the fatal flaws]
**New Target:** [Who you're now serving]
**Why It Works:** [Brief reasoning]

## 🔄 Pivot Strategy 3: [Name]
**The Fix:** [How this addresses the fatal flaws]
**New Target:** [Who you're now serving]
**Why It Works:** [Brief reasoning]

Be creative but realistic. The goal is to find a viable path forward.`

var personas = map[types.Kind]string{
	types.KindInvestor:  investorPersona,
	types.KindMarket:    marketPersona,
	types.KindMVP:       mvpPersona,
	types.KindPivot:     pivotPersona,
	types.KindFinancial: cfoPersona,
}

// PersonaName is the speaker label of a persona in transcripts.
func PersonaName(kind types.Kind) string {
	switch kind {
	case types.KindInvestor:
		return "Gemini VC"
	case types.KindMarket:
		return "Market Analyst"
	case types.KindMVP:
		return "Gemini CTO"
	case types.KindPivot:
		return "Pivot Master"
	case types.KindFinancial:
		return "Gemini CFO"
	default:
		return "Gemini"
	}
}

// BuildSystemPrompt returns the persona prompt for kind with the language suffix.
func BuildSystemPrompt(kind types.Kind, lang Language) (string, error) {
	base, ok := personas[kind]
	if !ok {
		return "", fmt.Errorf("unknown persona: %s", kind)
	}
	return base + languageSuffix(lang), nil
}

func languageSuffix(lang Language) string {
	if lang == LanguageTH {
		return "\n\nLANGUAGE: Respond in Thai. Use English for technical terms only."
	}
	return "\n\nLANGUAGE: Respond in English."
}

// Prompt is the user side of a structured request.
type Prompt struct {
	Kind types.Kind
	Text string
}

func InvestorPrompt(req types.InvestorRequest) Prompt {
	text := "Analyze the attached pitch."
	if req.Message != "" {
		text = "User Message: " + req.Message
	}
	return Prompt{Kind: types.KindInvestor, Text: text}
}

func MarketPrompt(req types.MarketRequest) Prompt {
	return Prompt{Kind: types.KindMarket, Text: "Market Data:\n" + req.MarketData}
}

func MVPPrompt(req types.MVPRequest) Prompt {
	return Prompt{Kind: types.KindMVP, Text: "Startup Idea:\n" + req.Idea}
}

func PivotStrategyPrompt(req types.PivotStrategyRequest) Prompt {
	var sb strings.Builder
	sb.WriteString("Current Product:\n")
	sb.WriteString(req.CurrentProduct)
	sb.WriteString("\n\nProblem:\n")
	sb.WriteString(req.Problem)
	sb.WriteString("\n\nMarket Feedback:\n")
	sb.WriteString(req.MarketFeedback)
	return Prompt{Kind: types.KindPivot, Text: sb.String()}
}

func FinancialPrompt(req types.FinancialRequest) Prompt {
	return Prompt{Kind: types.KindFinancial, Text: fmt.Sprintf(
		"Business Model:\n%s\n\nCost Structure:\n%s\n\nCurrent Stage: %s",
		req.BusinessModel, req.CostStructure, req.CurrentStage,
	)}
}
