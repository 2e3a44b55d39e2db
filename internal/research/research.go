// Package research generates long-form company reports for approved queue
// items and persists them.
package research

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/deal-sourcing/internal/config"
	"github.com/sells-group/deal-sourcing/internal/model"
	"github.com/sells-group/deal-sourcing/internal/resilience"
	"github.com/sells-group/deal-sourcing/pkg/anthropic"
	"github.com/sells-group/deal-sourcing/pkg/apollo"
	"github.com/sells-group/deal-sourcing/pkg/openfda"
	"github.com/sells-group/deal-sourcing/pkg/patents"
)

// ReportStore records research progress on queue items.
type ReportStore interface {
	StartResearch(ctx context.Context, id string) error
	FailResearch(ctx context.Context, id string, msg string) error
	CompleteResearch(ctx context.Context, id string, report *model.Report) error
}

// Researcher runs the report chain: base report, database enhancement,
// contact enrichment, persistence.
type Researcher struct {
	ai      anthropic.Client
	patents patents.Client
	fda     openfda.Client
	people  apollo.Client
	store   ReportStore

	model            string
	maxTokens        int64
	webSearchMaxUses int64
	minReportChars   int
	patentLimit      int
	fdaLimit         int

	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
}

// NewResearcher creates a Researcher. people may be nil, in which case
// contact sections pass through unchanged.
func NewResearcher(cfg *config.Config, ai anthropic.Client, pat patents.Client, fda openfda.Client, people apollo.Client, store ReportStore) *Researcher {
	limit := rate.Inf
	if cfg.Apollo.RateLimit > 0 {
		limit = rate.Limit(cfg.Apollo.RateLimit)
	}
	minChars := cfg.Pipeline.MinReportChars
	if minChars <= 0 {
		minChars = 100
	}
	maxTokens := cfg.Anthropic.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8000
	}
	return &Researcher{
		ai:               ai,
		patents:          pat,
		fda:              fda,
		people:           people,
		store:            store,
		model:            cfg.Anthropic.ResearchModel,
		maxTokens:        maxTokens,
		webSearchMaxUses: cfg.Anthropic.WebSearchMaxUses,
		minReportChars:   minChars,
		patentLimit:      cfg.Patents.Limit,
		fdaLimit:         cfg.FDA.Limit,
		limiter:          rate.NewLimiter(limit, 1),
		breaker:          resilience.NewCircuitBreaker("apollo", 5, time.Minute),
	}
}

// ResearchItem moves an approved queue item through research and records
// the outcome. Any failure marks the item failed and is returned.
func (r *Researcher) ResearchItem(ctx context.Context, item model.QueueItem) (*model.Report, error) {
	log := zap.L().With(zap.String("stage", "research"), zap.String("item_id", item.ID), zap.String("company", item.Name))

	if err := r.store.StartResearch(ctx, item.ID); err != nil {
		return nil, eris.Wrapf(err, "research: start %s", item.ID)
	}

	start := time.Now()
	report, err := r.Research(ctx, item)
	if err == nil {
		err = r.store.CompleteResearch(ctx, item.ID, report)
		if err != nil {
			err = eris.Wrap(err, "research: persist report")
		}
	}
	if err != nil {
		// Record the failure even when ctx is done.
		if ferr := r.store.FailResearch(context.WithoutCancel(ctx), item.ID, err.Error()); ferr != nil {
			log.Error("failed to mark research failed", zap.Error(ferr))
		}
		log.Warn("research failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return nil, err
	}

	log.Info("research complete",
		zap.String("report_id", report.ID),
		zap.Int("chars", len(report.Content)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return report, nil
}

// Research runs the report chain without touching item status. Only base
// report generation can fail; later steps degrade to the text they got.
func (r *Researcher) Research(ctx context.Context, item model.QueueItem) (*model.Report, error) {
	content, err := r.GenerateBaseReport(ctx, item)
	if err != nil {
		return nil, err
	}

	content = r.EnhanceWithDatabases(ctx, content, item.Name, item.Industry)
	content = r.EnrichContacts(ctx, content, item.Name, item.URL)

	return &model.Report{
		CompanyName: item.Name,
		CompanyURL:  item.URL,
		Industry:    item.Industry,
		Content:     content,
	}, nil
}
