// Package approval decides which scored candidates go straight to research
// and which wait for a human.
package approval

import (
	"fmt"
	"strings"

	"github.com/sells-group/deal-sourcing/internal/config"
	"github.com/sells-group/deal-sourcing/internal/estimate"
	"github.com/sells-group/deal-sourcing/internal/model"
)

// Default thresholds applied when configured rules are not enforced.
const (
	DefaultMinScore        = 6
	DefaultConfidenceFloor = model.ConfidenceLow
)

// GenericReviewReason is recorded when no specific rule explains a review.
const GenericReviewReason = "Did not meet auto-approval criteria"

// Policy holds the thresholds the gate applies. With EnforceConfiguredRules
// unset, per-configuration rules are ignored and the fixed MinScore and
// ConfidenceFloor apply to every run.
type Policy struct {
	MinScore               int
	ConfidenceFloor        model.Confidence
	MaxRevenue             float64
	IPUpsideThreshold      float64
	EnforceConfiguredRules bool
}

// DefaultPolicy returns the fixed-threshold policy.
func DefaultPolicy() Policy {
	return Policy{
		MinScore:          DefaultMinScore,
		ConfidenceFloor:   DefaultConfidenceFloor,
		MaxRevenue:        estimate.MaxRevenue,
		IPUpsideThreshold: estimate.IPUpsideThreshold,
	}
}

// PolicyFromConfig builds a Policy from pipeline and approval settings.
func PolicyFromConfig(pipe config.PipelineConfig, appr config.ApprovalConfig) Policy {
	p := DefaultPolicy()
	if pipe.AutoApproveMinScore > 0 {
		p.MinScore = pipe.AutoApproveMinScore
	}
	if pipe.ConfidenceFloor != "" {
		p.ConfidenceFloor = model.ParseConfidence(pipe.ConfidenceFloor)
	}
	if pipe.MaxRevenue > 0 {
		p.MaxRevenue = pipe.MaxRevenue
	}
	if pipe.IPUpsideRevenueThreshold > 0 {
		p.IPUpsideThreshold = pipe.IPUpsideRevenueThreshold
	}
	p.EnforceConfiguredRules = appr.EnforceConfiguredRules
	return p
}

// Decision is the outcome of evaluating one candidate.
type Decision struct {
	Approved bool
	Reason   string
}

// thresholds resolves the score and confidence floors for one run.
func (p Policy) thresholds(rules model.AutoApprovalRules) (int, model.Confidence) {
	minScore, floor := p.MinScore, p.ConfidenceFloor
	if !p.EnforceConfiguredRules {
		return minScore, floor
	}
	if rules.MinScore > 0 {
		minScore = rules.MinScore
	}
	if rules.RequiredConfidence != "" {
		floor = model.ParseConfidence(string(rules.RequiredConfidence))
	}
	return minScore, floor
}

// Evaluate applies the approval rules to a candidate. Review reasons are
// checked in a fixed order and the first match wins.
func (p Policy) Evaluate(c model.Candidate, rules model.AutoApprovalRules, strategy model.Strategy) Decision {
	minScore, floor := p.thresholds(rules)
	revenue := estimate.ParseRevenue(c.EstimatedRevenue)

	// 1. PE-backed targets on a buy-side search are likely in an auction.
	if c.OwnershipType == model.OwnershipPEBacked && strategy == model.StrategyBuySide {
		return review("PE-backed company on a buy-side search requires manual review (auction risk)")
	}

	// 2. Small companies boosted for IP need a human valuation.
	if c.IPUpside && estimate.InIPUpsideBand(revenue, p.IPUpsideThreshold) {
		return review(fmt.Sprintf("Revenue %s below %s with IP upside requires manual valuation",
			estimate.FormatRevenue(revenue), estimate.FormatRevenue(p.IPUpsideThreshold)))
	}

	// 3. Revenue ceiling.
	if revenue > p.MaxRevenue {
		return review(fmt.Sprintf("Revenue %s exceeds %s ceiling",
			estimate.FormatRevenue(revenue), estimate.FormatRevenue(p.MaxRevenue)))
	}

	// 4. Score.
	if c.Score < minScore {
		return review(fmt.Sprintf("Score %d/10 below threshold of %d", c.Score, minScore))
	}

	// 5. Confidence. An unrecognized label gets the generic reason.
	if c.Confidence.Ordinal() < floor.Ordinal() {
		if c.Confidence.Ordinal() == 0 {
			return review("")
		}
		return review(fmt.Sprintf("%s confidence below required %s", c.Confidence, floor))
	}

	// 6. Required industries, only when configured rules are enforced.
	if p.EnforceConfiguredRules && len(rules.RequiredIndustries) > 0 && !matchesIndustry(c.Industry, rules.RequiredIndustries) {
		industry := c.Industry
		if industry == "" {
			industry = "Unknown"
		}
		return review(fmt.Sprintf("Industry %q not in required industries", industry))
	}

	return Decision{
		Approved: true,
		Reason:   fmt.Sprintf("Score %d/10, %s confidence, %s ownership", c.Score, c.Confidence, ownership(c.OwnershipType)),
	}
}

// Evaluate applies the default policy.
func Evaluate(c model.Candidate, rules model.AutoApprovalRules, strategy model.Strategy) Decision {
	return DefaultPolicy().Evaluate(c, rules, strategy)
}

func review(reason string) Decision {
	if reason == "" {
		reason = GenericReviewReason
	}
	return Decision{Reason: reason}
}

func matchesIndustry(industry string, required []string) bool {
	norm := strings.ToLower(strings.TrimSpace(industry))
	if norm == "" {
		return false
	}
	for _, r := range required {
		r = strings.ToLower(strings.TrimSpace(r))
		if r != "" && (strings.Contains(norm, r) || strings.Contains(r, norm)) {
			return true
		}
	}
	return false
}

func ownership(o model.OwnershipType) model.OwnershipType {
	if o == "" {
		return model.OwnershipUnknown
	}
	return o
}
