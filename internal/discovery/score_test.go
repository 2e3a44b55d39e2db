package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/deal-sourcing/internal/config"
	"github.com/sells-group/deal-sourcing/internal/model"
	"github.com/sells-group/deal-sourcing/pkg/anthropic"
	"github.com/sells-group/deal-sourcing/pkg/patents"
)

func testPipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{
		MinKeepScore:             3,
		IPUpsideRevenueThreshold: 10_000_000,
		MaxRevenue:               150_000_000,
		IPUpsideMinPatents:       1,
	}
}

func newTestScorer(ai anthropic.Client, pat patents.Client) *Scorer {
	return NewScorer(ai, pat, config.AnthropicConfig{ScoringModel: "claude-haiku-4-5-20251001"}, testPipelineConfig())
}

// scoreByName answers scoring requests from a per-company table and IP
// assessments with ipReply.
func scoreByName(scores map[string]string, ipReply string) func(anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	return func(req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		if req.System[0].Text == ipUpsidePrompt {
			return textResponse(ipReply), nil
		}
		for name, reply := range scores {
			if strings.Contains(req.Messages[0].Content, "Company: "+name+"\n") {
				return textResponse(reply), nil
			}
		}
		return nil, errors.New("unexpected company")
	}
}

func TestParseScoreResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		in        string
		wantOK    bool
		wantScore float64
		wantOwner string
	}{
		{"plain json", `{"score": 8, "confidence": "High", "ownershipType": "Founder-Led"}`, true, 8, "Founder-Led"},
		{"code fenced", "```json\n{\"score\": 7, \"confidence\": \"Medium\"}\n```", true, 7, ""},
		{"surrounding prose", `Here is my analysis: {"score": 6} Hope that helps {"x": 1}`, true, 6, ""},
		{"nested braces in string", `{"score": 9, "reasoning": "uses {curly} braces and \"quotes\""}`, true, 9, ""},
		{"no json", "I cannot evaluate this company.", false, 5, "Unknown"},
		{"truncated", `{"score": 8, "reasoning": "cut off`, false, 5, "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := parseScoreResponse(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.InDelta(t, tt.wantScore, got.Score, 0.001)
			assert.Equal(t, tt.wantOwner, got.OwnershipType)
			if !ok {
				assert.Equal(t, unparsedReasoning, got.Reasoning)
				assert.Equal(t, "Low", got.Confidence)
			}
		})
	}
}

func TestExtractJSONObject(t *testing.T) {
	t.Parallel()

	obj, ok := extractJSONObject(`prefix {"a": {"b": "}"}, "c": 1} suffix}`)
	require.True(t, ok)
	assert.Equal(t, `{"a": {"b": "}"}, "c": 1}`, obj)

	_, ok = extractJSONObject("no braces")
	assert.False(t, ok)
}

func TestClampScore(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, clampScore(-3))
	assert.Equal(t, 1, clampScore(0))
	assert.Equal(t, 7, clampScore(7.4))
	assert.Equal(t, 10, clampScore(14))
}

func TestScore_PopulatesCandidate(t *testing.T) {
	ai := &mockAnthropicClient{handler: scoreByName(map[string]string{
		"Acme Corp": "```json\n" + `{"score": 8, "confidence": "high", "reasoning": "strong fit", "estimatedRevenue": "$25M",
"industry": "Manufacturing", "geographicFocus": "Midwest", "industryMatch": true,
"ownershipType": "Founder-Led", "ownershipNotes": "founded 1988 by current CEO"}` + "\n```",
	}, "")}

	s := newTestScorer(ai, &mockPatentsClient{})
	got, err := s.Score(context.Background(), []model.Candidate{{Name: "Acme Corp", URL: "https://acme.example"}}, model.SearchCriteria{Query: "machining"})
	require.NoError(t, err)
	require.Len(t, got, 1)

	c := got[0]
	assert.Equal(t, 8, c.Score)
	assert.Equal(t, model.ConfidenceHigh, c.Confidence)
	assert.Equal(t, "$25M", c.EstimatedRevenue)
	assert.Equal(t, "Manufacturing", c.Industry)
	assert.Equal(t, "Midwest", c.GeographicFocus)
	assert.True(t, c.IndustryMatch)
	assert.Equal(t, model.OwnershipFounderLed, c.OwnershipType)
	assert.False(t, c.IPUpside)
	assert.Equal(t, "https://acme.example", c.URL)
}

func TestScore_UnparseableUsesFallback(t *testing.T) {
	ai := &mockAnthropicClient{handler: scoreByName(map[string]string{
		"Acme Corp": "Sorry, I could not find enough information.",
	}, "")}

	s := newTestScorer(ai, &mockPatentsClient{})
	got, err := s.Score(context.Background(), []model.Candidate{{Name: "Acme Corp"}}, model.SearchCriteria{Query: "q"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 5, got[0].Score)
	assert.Equal(t, model.ConfidenceLow, got[0].Confidence)
	assert.Equal(t, unparsedReasoning, got[0].Reasoning)
	assert.Equal(t, model.OwnershipUnknown, got[0].OwnershipType)
}

func TestScore_LLMErrorDropsCandidate(t *testing.T) {
	ai := &mockAnthropicClient{handler: scoreByName(map[string]string{
		"Beta Tools": `{"score": 7, "confidence": "Medium", "estimatedRevenue": "$40M"}`,
	}, "")}

	s := newTestScorer(ai, &mockPatentsClient{})
	got, err := s.Score(context.Background(), []model.Candidate{{Name: "Acme Corp"}, {Name: "Beta Tools"}}, model.SearchCriteria{Query: "q"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Beta Tools", got[0].Name)
}

func TestScore_Filters(t *testing.T) {
	ai := &mockAnthropicClient{handler: scoreByName(map[string]string{
		"Low Score":   `{"score": 2, "confidence": "High", "estimatedRevenue": "$20M"}`,
		"Edge Score":  `{"score": 3, "confidence": "High", "estimatedRevenue": "$20M"}`,
		"Too Big":     `{"score": 9, "confidence": "High", "estimatedRevenue": "$1.2B"}`,
		"Unknown Rev": `{"score": 6, "confidence": "Medium", "estimatedRevenue": "unknown"}`,
		"At Ceiling":  `{"score": 6, "confidence": "Medium", "estimatedRevenue": "$150M"}`,
	}, "")}

	in := []model.Candidate{{Name: "Low Score"}, {Name: "Edge Score"}, {Name: "Too Big"}, {Name: "Unknown Rev"}, {Name: "At Ceiling"}}
	pat := &mockPatentsClient{}
	s := newTestScorer(ai, pat)
	got, err := s.Score(context.Background(), in, model.SearchCriteria{Query: "q"})
	require.NoError(t, err)

	var names []string
	for _, c := range got {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"Edge Score", "Unknown Rev", "At Ceiling"}, names)
	assert.Zero(t, pat.calls, "no candidate is in the IP upside band")
}

func TestScore_IPUpsideBoost(t *testing.T) {
	tests := []struct {
		name       string
		score      int
		patents    *patents.SearchResult
		patentErr  error
		ipReply    string
		wantScore  int
		wantUpside bool
	}{
		{
			name:       "boosted",
			score:      7,
			patents:    &patents.SearchResult{Patents: []patents.Patent{{Number: "11000001", Title: "Sensor array"}}, Total: 4},
			ipReply:    `{"hasUpside": true, "rationale": "core sensing patents"}`,
			wantScore:  8,
			wantUpside: true,
		},
		{
			name:       "capped at ten",
			score:      10,
			patents:    &patents.SearchResult{Total: 2},
			ipReply:    `{"hasUpside": true, "rationale": "valuable"}`,
			wantScore:  10,
			wantUpside: true,
		},
		{
			name:      "model declines",
			score:     7,
			patents:   &patents.SearchResult{Total: 2},
			ipReply:   `{"hasUpside": false, "rationale": "defensive only"}`,
			wantScore: 7,
		},
		{
			name:      "no patents",
			score:     7,
			patents:   &patents.SearchResult{Total: 0},
			ipReply:   `{"hasUpside": true, "rationale": "unused"}`,
			wantScore: 7,
		},
		{
			name:      "patent lookup fails",
			score:     7,
			patentErr: errors.New("patentsview: status 503"),
			ipReply:   `{"hasUpside": true, "rationale": "unused"}`,
			wantScore: 7,
		},
		{
			name:      "unparseable assessment",
			score:     7,
			patents:   &patents.SearchResult{Total: 3},
			ipReply:   "maybe",
			wantScore: 7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := fmt.Sprintf(`{"score": %d, "confidence": "High", "estimatedRevenue": "$5M"}`, tt.score)
			ai := &mockAnthropicClient{handler: scoreByName(map[string]string{"Small IP Co": reply}, tt.ipReply)}
			pat := &mockPatentsClient{err: tt.patentErr}
			if tt.patents != nil {
				pat.results = map[string]*patents.SearchResult{"Small IP Co": tt.patents}
			}

			s := newTestScorer(ai, pat)
			got, err := s.Score(context.Background(), []model.Candidate{{Name: "Small IP Co"}}, model.SearchCriteria{Query: "q"})
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, tt.wantScore, got[0].Score)
			assert.Equal(t, tt.wantUpside, got[0].IPUpside)
			assert.Equal(t, 1, pat.calls)
		})
	}
}

func TestScore_ContextCanceled(t *testing.T) {
	ai := &mockAnthropicClient{handler: scoreByName(nil, "")}
	s := newTestScorer(ai, &mockPatentsClient{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Score(ctx, []model.Candidate{{Name: "Acme Corp"}}, model.SearchCriteria{Query: "q"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewScorer_RateDisabled(t *testing.T) {
	s := NewScorer(&mockAnthropicClient{}, nil, config.AnthropicConfig{}, config.PipelineConfig{})
	assert.Equal(t, int64(1024), s.maxTokens)
	assert.Equal(t, rate.Inf, s.limiter.Limit())
}
