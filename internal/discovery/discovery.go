// Package discovery finds candidate companies through web search and scores
// them against the search criteria with an LLM.
package discovery

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/deal-sourcing/internal/config"
	"github.com/sells-group/deal-sourcing/internal/model"
	"github.com/sells-group/deal-sourcing/pkg/exa"
)

// DefaultNumResults is the search result bound when criteria set none.
const DefaultNumResults = 35

// QueueLookup reports whether a company was already queued by any run.
type QueueLookup interface {
	QueueItemExists(ctx context.Context, name, url string) (bool, error)
}

// Discoverer runs the search stage.
type Discoverer struct {
	search exa.Client
	queue  QueueLookup
	cfg    config.SearchConfig
}

// NewDiscoverer creates a Discoverer.
func NewDiscoverer(search exa.Client, queue QueueLookup, cfg config.SearchConfig) *Discoverer {
	return &Discoverer{search: search, queue: queue, cfg: cfg}
}

// BuildQuery joins the non-empty query, industry, revenue range and geography
// terms with single spaces, in that order.
func BuildQuery(c model.SearchCriteria) string {
	var parts []string
	for _, p := range []string{c.Query, c.Industry, c.RevenueRange, c.Geography} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// Discover runs one search and returns the results that are neither
// duplicated within the response nor already present in the queue. Search
// and lookup failures are returned as errors.
func (d *Discoverer) Discover(ctx context.Context, criteria model.SearchCriteria) ([]model.Candidate, error) {
	log := zap.L().With(zap.String("stage", "discovery"))

	numResults := criteria.MaxResults
	if numResults <= 0 {
		numResults = d.cfg.NumResults
	}
	if numResults <= 0 {
		numResults = DefaultNumResults
	}

	query := BuildQuery(criteria)
	resp, err := d.search.Search(ctx, exa.NewSearchRequest(query, numResults, d.cfg.MaxCharacters))
	if err != nil {
		return nil, eris.Wrap(err, "discovery: search")
	}

	unique := dedupeResults(resp.Results)

	var out []model.Candidate
	alreadyQueued := 0
	for _, r := range unique {
		name := strings.TrimSpace(r.Title)
		exists, err := d.queue.QueueItemExists(ctx, name, r.URL)
		if err != nil {
			return nil, eris.Wrapf(err, "discovery: lookup %q", name)
		}
		if exists {
			alreadyQueued++
			continue
		}
		out = append(out, model.Candidate{
			Name:          name,
			URL:           r.URL,
			Snippet:       r.Text,
			OwnershipType: model.OwnershipUnknown,
		})
	}

	log.Info("discovery complete",
		zap.String("query", query),
		zap.Int("returned", len(resp.Results)),
		zap.Int("duplicates", len(resp.Results)-len(unique)),
		zap.Int("already_queued", alreadyQueued),
		zap.Int("new", len(out)),
	)
	return out, nil
}

// dedupeResults keeps the first result for each lower-cased, trimmed title.
// Results with an empty title are dropped.
func dedupeResults(results []exa.Result) []exa.Result {
	seen := make(map[string]struct{}, len(results))
	out := make([]exa.Result, 0, len(results))
	for _, r := range results {
		key := strings.ToLower(strings.TrimSpace(r.Title))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}
