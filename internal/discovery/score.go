package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/deal-sourcing/internal/config"
	"github.com/sells-group/deal-sourcing/internal/estimate"
	"github.com/sells-group/deal-sourcing/internal/model"
	"github.com/sells-group/deal-sourcing/pkg/anthropic"
	"github.com/sells-group/deal-sourcing/pkg/patents"
)

const scoringPrompt = `You are an M&A analyst screening companies for a lower middle market deal team.
Evaluate how well the company fits the search criteria and estimate its size and ownership.

Respond with ONLY valid JSON, no other text:
{
  "score": 1-10,
  "confidence": "High" | "Medium" | "Low",
  "reasoning": "2-3 sentences",
  "estimatedRevenue": "e.g. $25M",
  "industry": "primary industry",
  "geographicFocus": "primary market or region",
  "industryMatch": true | false,
  "ownershipType": "Founder-Led" | "PE-Backed" | "Family-Owned" | "Unknown",
  "ownershipNotes": "evidence for the ownership type"
}`

const ipUpsidePrompt = `You are assessing whether a small company's patent portfolio makes it a
more valuable acquisition target than its revenue suggests.

Respond with ONLY valid JSON, no other text:
{"hasUpside": true | false, "rationale": "one sentence"}`

const unparsedReasoning = "Unable to parse scoring response"

type scoreResponse struct {
	Score            float64 `json:"score"`
	Confidence       string  `json:"confidence"`
	Reasoning        string  `json:"reasoning"`
	EstimatedRevenue string  `json:"estimatedRevenue"`
	Industry         string  `json:"industry"`
	GeographicFocus  string  `json:"geographicFocus"`
	IndustryMatch    bool    `json:"industryMatch"`
	OwnershipType    string  `json:"ownershipType"`
	OwnershipNotes   string  `json:"ownershipNotes"`
}

type ipUpsideResponse struct {
	HasUpside bool   `json:"hasUpside"`
	Rationale string `json:"rationale"`
}

// Scorer assigns fit scores to discovered candidates. Calls are made one at
// a time and paced by a rate limiter.
type Scorer struct {
	ai        anthropic.Client
	patents   patents.Client
	model     string
	maxTokens int64
	cfg       config.PipelineConfig
	limiter   *rate.Limiter
}

// NewScorer creates a Scorer. A non-positive pipeline.scoring_rate disables
// pacing.
func NewScorer(ai anthropic.Client, pat patents.Client, aiCfg config.AnthropicConfig, cfg config.PipelineConfig) *Scorer {
	limit := rate.Inf
	if cfg.ScoringRate > 0 {
		limit = rate.Limit(cfg.ScoringRate)
	}
	maxTokens := aiCfg.ScoringMaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Scorer{
		ai:        ai,
		patents:   pat,
		model:     aiCfg.ScoringModel,
		maxTokens: maxTokens,
		cfg:       cfg,
		limiter:   rate.NewLimiter(limit, 1),
	}
}

// Score scores each candidate in order and applies the keep filter. A
// candidate whose LLM call fails is dropped; an unparseable response gets
// the fallback record instead. Only context cancellation returns an error.
func (s *Scorer) Score(ctx context.Context, candidates []model.Candidate, criteria model.SearchCriteria) ([]model.Candidate, error) {
	log := zap.L().With(zap.String("stage", "scoring"))

	scored := make([]model.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if err := s.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, eris.Wrap(err, "scoring: rate limit wait")
		}
		out, err := s.scoreOne(ctx, c, criteria)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn("scoring failed, dropping candidate", zap.String("name", c.Name), zap.Error(err))
			continue
		}
		scored = append(scored, out)
	}

	kept := s.filter(ctx, scored)
	log.Info("scoring complete",
		zap.Int("input", len(candidates)),
		zap.Int("scored", len(scored)),
		zap.Int("kept", len(kept)),
	)
	return kept, nil
}

func (s *Scorer) scoreOne(ctx context.Context, c model.Candidate, criteria model.SearchCriteria) (model.Candidate, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Search criteria:\n- Query: %s\n", criteria.Query)
	if criteria.Industry != "" {
		fmt.Fprintf(&b, "- Industry: %s\n", criteria.Industry)
	}
	if criteria.RevenueRange != "" {
		fmt.Fprintf(&b, "- Revenue range: %s\n", criteria.RevenueRange)
	}
	if criteria.Geography != "" {
		fmt.Fprintf(&b, "- Geography: %s\n", criteria.Geography)
	}
	if criteria.Strategy != "" {
		fmt.Fprintf(&b, "- Strategy: %s\n", criteria.Strategy)
	}
	fmt.Fprintf(&b, "\nCompany: %s\nURL: %s\n\nSearch snippet:\n%s", c.Name, c.URL, c.Snippet)

	resp, err := s.ai.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     s.model,
		MaxTokens: s.maxTokens,
		System:    []anthropic.SystemBlock{{Text: scoringPrompt}},
		Messages:  []anthropic.Message{{Role: "user", Content: b.String()}},
	})
	if err != nil {
		return c, eris.Wrap(err, "scoring: claude request")
	}
	resp.Usage.LogCost(s.model, "scoring")

	parsed, ok := parseScoreResponse(resp.Text())
	if !ok {
		zap.L().Warn("unparseable scoring response, using fallback", zap.String("name", c.Name))
	}

	c.Score = clampScore(parsed.Score)
	c.Confidence = model.ParseConfidence(parsed.Confidence)
	c.Reasoning = parsed.Reasoning
	c.EstimatedRevenue = parsed.EstimatedRevenue
	c.Industry = parsed.Industry
	c.GeographicFocus = parsed.GeographicFocus
	c.IndustryMatch = parsed.IndustryMatch
	c.OwnershipType = model.ParseOwnership(parsed.OwnershipType)
	c.OwnershipNotes = parsed.OwnershipNotes
	return c, nil
}

// filter drops low scores and oversized companies, then checks companies in
// the IP-upside band for a patent-based boost.
func (s *Scorer) filter(ctx context.Context, candidates []model.Candidate) []model.Candidate {
	log := zap.L().With(zap.String("stage", "scoring"))

	minScore := s.cfg.MinKeepScore
	if minScore <= 0 {
		minScore = 3
	}
	maxRevenue := s.cfg.MaxRevenue
	if maxRevenue <= 0 {
		maxRevenue = estimate.MaxRevenue
	}
	kept := make([]model.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Score < minScore {
			log.Info("dropping low score", zap.String("name", c.Name), zap.Int("score", c.Score))
			continue
		}
		revenue := estimate.ParseRevenue(c.EstimatedRevenue)
		if revenue > maxRevenue {
			log.Info("dropping over revenue ceiling", zap.String("name", c.Name), zap.String("revenue", c.EstimatedRevenue))
			continue
		}
		if estimate.InIPUpsideBand(revenue, s.cfg.IPUpsideRevenueThreshold) && s.CheckIPUpside(ctx, c) {
			c.IPUpside = true
			c.Score = min(c.Score+1, 10)
		}
		kept = append(kept, c)
	}
	return kept
}

// CheckIPUpside reports whether a small company's patents justify a score
// boost. Lookup or model failures count as no upside.
func (s *Scorer) CheckIPUpside(ctx context.Context, c model.Candidate) bool {
	log := zap.L().With(zap.String("stage", "ip_upside"), zap.String("name", c.Name))
	if s.patents == nil {
		return false
	}

	minPatents := s.cfg.IPUpsideMinPatents
	if minPatents <= 0 {
		minPatents = 1
	}

	res, err := s.patents.SearchByAssignee(ctx, c.Name, 10)
	if err != nil {
		log.Warn("patent lookup failed", zap.Error(err))
		return false
	}
	if res.Total < minPatents {
		return false
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Company: %s\nEstimated revenue: %s\nIndustry: %s\nGranted patents: %d\n\nRecent patents:\n",
		c.Name, c.EstimatedRevenue, c.Industry, res.Total)
	for _, p := range res.Patents {
		fmt.Fprintf(&b, "- %s (%s) %s\n", p.Title, p.Number, p.Date)
	}

	resp, err := s.ai.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     s.model,
		MaxTokens: 256,
		System:    []anthropic.SystemBlock{{Text: ipUpsidePrompt}},
		Messages:  []anthropic.Message{{Role: "user", Content: b.String()}},
	})
	if err != nil {
		log.Warn("ip upside assessment failed", zap.Error(err))
		return false
	}
	resp.Usage.LogCost(s.model, "ip_upside")

	obj, ok := extractJSONObject(anthropic.StripCodeFences(resp.Text()))
	if !ok {
		return false
	}
	var out ipUpsideResponse
	if err := json.Unmarshal([]byte(obj), &out); err != nil {
		log.Warn("ip upside response unparseable", zap.Error(err))
		return false
	}
	log.Info("ip upside assessed", zap.Bool("has_upside", out.HasUpside), zap.Int("patents", res.Total))
	return out.HasUpside
}

// parseScoreResponse extracts the first JSON object from the model output.
// On failure it returns the fallback record and false.
func parseScoreResponse(text string) (scoreResponse, bool) {
	fallback := scoreResponse{
		Score:         5,
		Confidence:    string(model.ConfidenceLow),
		Reasoning:     unparsedReasoning,
		OwnershipType: string(model.OwnershipUnknown),
	}

	obj, ok := extractJSONObject(anthropic.StripCodeFences(text))
	if !ok {
		return fallback, false
	}
	var out scoreResponse
	if err := json.Unmarshal([]byte(obj), &out); err != nil {
		return fallback, false
	}
	return out, true
}

// extractJSONObject returns the first balanced {...} block in s. Braces
// inside JSON strings are ignored.
func extractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func clampScore(v float64) int {
	n := int(math.Round(v))
	return max(1, min(n, 10))
}
