package types

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// Request payloads accepted by the generation endpoints.

type InvestorRequest struct {
	Message string `json:"message,omitempty"`
	Image   string `json:"image,omitempty"`
}

func (r InvestorRequest) Validate() error {
	if r.Message == "" && r.Image == "" {
		return errors.New("either message or image is required")
	}
	return nil
}

type FollowUpRequest struct {
	History  []Turn `json:"history"`
	Question string `json:"question"`
}

func (r FollowUpRequest) Validate() error {
	if err := ValidateHistory(r.History); err != nil {
		return err
	}
	if r.Question == "" {
		return errors.New("question cannot be empty")
	}
	return nil
}

type PivotRequest struct {
	History []Turn `json:"history"`
}

func (r PivotRequest) Validate() error {
	if r.History == nil {
		return errors.New("invalid history format")
	}
	return ValidateHistory(r.History)
}

type MarketRequest struct {
	MarketData string `json:"marketData"`
}

func (r MarketRequest) Validate() error {
	return minLen("marketData", r.MarketData, 10)
}

type MVPRequest struct {
	Idea string `json:"idea"`
}

func (r MVPRequest) Validate() error {
	return minLen("idea", r.Idea, 10)
}

type PivotStrategyRequest struct {
	CurrentProduct string `json:"currentProduct"`
	Problem        string `json:"problem"`
	MarketFeedback string `json:"marketFeedback"`
}

func (r PivotStrategyRequest) Validate() error {
	if err := minLen("currentProduct", r.CurrentProduct, 5); err != nil {
		return err
	}
	if err := minLen("problem", r.Problem, 5); err != nil {
		return err
	}
	return minLen("marketFeedback", r.MarketFeedback, 5)
}

// Funding stages accepted by the financial outlook.
var Stages = []string{"Idea", "Pre-Seed", "Seed", "Series A"}

type FinancialRequest struct {
	BusinessModel string `json:"businessModel"`
	CostStructure string `json:"costStructure"`
	CurrentStage  string `json:"currentStage"`
}

func (r FinancialRequest) Validate() error {
	if err := minLen("businessModel", r.BusinessModel, 10); err != nil {
		return err
	}
	if err := minLen("costStructure", r.CostStructure, 10); err != nil {
		return err
	}
	for _, s := range Stages {
		if r.CurrentStage == s {
			return nil
		}
	}
	return fmt.Errorf("currentStage must be one of %v", Stages)
}

// ValidateHistory checks the roles of a follow-up history.
func ValidateHistory(history []Turn) error {
	for i, t := range history {
		if !t.Role.Valid() {
			return fmt.Errorf("history[%d]: invalid role %q", i, t.Role)
		}
		if t.Parts == nil {
			return fmt.Errorf("history[%d]: parts required", i)
		}
	}
	return nil
}

func minLen(name, v string, n int) error {
	if utf8.RuneCountInString(v) < n {
		return fmt.Errorf("%s must be at least %d characters", name, n)
	}
	return nil
}
