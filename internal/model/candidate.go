// Package model defines the domain types shared by the discovery, approval,
// research, and workflow packages.
package model

import (
	"strings"
)

// Strategy is the deal orientation that shapes approval policy.
type Strategy string

const (
	StrategyBuySide  Strategy = "buy-side"
	StrategySellSide Strategy = "sell-side"
	StrategyDual     Strategy = "dual"
)

// Confidence is the LLM's self-reported confidence in a score.
type Confidence string

const (
	ConfidenceHigh   Confidence = "High"
	ConfidenceMedium Confidence = "Medium"
	ConfidenceLow    Confidence = "Low"
)

// Ordinal maps a confidence label to {Low:1, Medium:2, High:3}. Unknown
// labels map to 0 so they never clear a floor.
func (c Confidence) Ordinal() int {
	switch Confidence(strings.TrimSpace(string(c))) {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	case ConfidenceLow:
		return 1
	default:
		return 0
	}
}

// ParseConfidence normalizes free-form LLM output ("high", "MEDIUM") to a
// Confidence. Anything unrecognized becomes Low.
func ParseConfidence(s string) Confidence {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return ConfidenceHigh
	case "medium":
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// OwnershipType classifies who controls a company.
type OwnershipType string

const (
	OwnershipFounderLed  OwnershipType = "Founder-Led"
	OwnershipPEBacked    OwnershipType = "PE-Backed"
	OwnershipFamilyOwned OwnershipType = "Family-Owned"
	OwnershipUnknown     OwnershipType = "Unknown"
)

// ParseOwnership normalizes LLM output to a known OwnershipType.
func ParseOwnership(s string) OwnershipType {
	norm := strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.HasPrefix(norm, "founder"):
		return OwnershipFounderLed
	case strings.HasPrefix(norm, "pe"), strings.Contains(norm, "private equity"):
		return OwnershipPEBacked
	case strings.HasPrefix(norm, "family"):
		return OwnershipFamilyOwned
	default:
		return OwnershipUnknown
	}
}

// SearchCriteria is the immutable input to a discovery run.
type SearchCriteria struct {
	Query        string   `json:"query" yaml:"query" validate:"required"`
	Industry     string   `json:"industry,omitempty" yaml:"industry"`
	RevenueRange string   `json:"revenueRange,omitempty" yaml:"revenue_range"`
	Geography    string   `json:"geography,omitempty" yaml:"geography"`
	Strategy     Strategy `json:"strategy" yaml:"strategy" validate:"omitempty,oneof=buy-side sell-side dual"`
	MaxResults   int      `json:"maxResults,omitempty" yaml:"max_results" validate:"gte=0,lte=100"`
}

// Candidate is a company returned by discovery and annotated by scoring.
type Candidate struct {
	Name             string        `json:"name"`
	URL              string        `json:"url"`
	Snippet          string        `json:"snippet,omitempty"`
	Score            int           `json:"score"`
	Confidence       Confidence    `json:"confidence"`
	Reasoning        string        `json:"reasoning,omitempty"`
	EstimatedRevenue string        `json:"estimatedRevenue,omitempty"`
	Industry         string        `json:"industry,omitempty"`
	GeographicFocus  string        `json:"geographicFocus,omitempty"`
	IndustryMatch    bool          `json:"industryMatch"`
	OwnershipType    OwnershipType `json:"ownershipType"`
	OwnershipNotes   string        `json:"ownershipNotes,omitempty"`
	IPUpside         bool          `json:"ipUpside"`
}

// AutoApprovalRules configures the approval gate for a configuration.
type AutoApprovalRules struct {
	MinScore           int        `json:"minScore" yaml:"min_score" validate:"gte=0,lte=10"`
	RequiredConfidence Confidence `json:"requiredConfidence,omitempty" yaml:"required_confidence" validate:"omitempty,oneof=High Medium Low"`
	RequiredIndustries []string   `json:"requiredIndustries,omitempty" yaml:"required_industries"`
	RevenueRange       string     `json:"revenueRange,omitempty" yaml:"revenue_range"`
}

// DecisionMaker is one parsed entry from a report's Key Contacts section,
// optionally enriched with verified contact details.
type DecisionMaker struct {
	Name        string `json:"name"`
	Title       string `json:"title,omitempty"`
	LinkedInURL string `json:"linkedinUrl,omitempty"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	ProfileURL  string `json:"profileUrl,omitempty"`
	Verified    bool   `json:"verified"`
}
