package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/deal-sourcing/internal/approval"
	"github.com/sells-group/deal-sourcing/internal/discovery"
	"github.com/sells-group/deal-sourcing/internal/research"
	"github.com/sells-group/deal-sourcing/internal/resilience"
	"github.com/sells-group/deal-sourcing/internal/store"
	"github.com/sells-group/deal-sourcing/internal/workflow"
	anthropicpkg "github.com/sells-group/deal-sourcing/pkg/anthropic"
	"github.com/sells-group/deal-sourcing/pkg/apollo"
	"github.com/sells-group/deal-sourcing/pkg/exa"
	"github.com/sells-group/deal-sourcing/pkg/openfda"
	"github.com/sells-group/deal-sourcing/pkg/patents"
)

// pipelineEnv holds the store and the orchestrator wired with every
// pipeline stage.
type pipelineEnv struct {
	Store        store.Store
	Orchestrator *workflow.Orchestrator
}

// Close waits for background runs and releases the store.
func (pe *pipelineEnv) Close() {
	if pe.Orchestrator != nil {
		pe.Orchestrator.Wait()
	}
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initStore opens the configured backend and applies the schema.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		st, err = store.NewSQLite(cfg.Store.SQLitePath)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initPipeline validates config for mode, opens the store, and builds the
// orchestrator. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key,
		anthropicpkg.WithTimeout(time.Duration(cfg.Anthropic.TimeoutSecs)*time.Second),
	)
	exaClient := exa.NewClient(cfg.Search.Key, exa.WithBaseURL(cfg.Search.BaseURL))
	patentsClient := patents.NewClient(patents.WithBaseURL(cfg.Patents.BaseURL))
	fdaOpts := []openfda.Option{openfda.WithBaseURL(cfg.FDA.BaseURL)}
	if cfg.FDA.Key != "" {
		fdaOpts = append(fdaOpts, openfda.WithAPIKey(cfg.FDA.Key))
	} else {
		zap.L().Debug("DEALS_FDA_KEY not set, using anonymous openFDA quota")
	}
	fdaClient := openfda.NewClient(fdaOpts...)
	apolloClient := apollo.NewClient(cfg.Apollo.Key,
		apollo.WithBaseURL(cfg.Apollo.BaseURL),
		apollo.WithRetry(resilience.FromSettings(cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoffMs, cfg.Retry.MaxBackoffMs)),
	)

	discoverer := discovery.NewDiscoverer(exaClient, st, cfg.Search)
	scorer := discovery.NewScorer(anthropicClient, patentsClient, cfg.Anthropic, cfg.Pipeline)
	gate := approval.NewGate(st, approval.PolicyFromConfig(cfg.Pipeline, cfg.Approval))
	researcher := research.NewResearcher(cfg, anthropicClient, patentsClient, fdaClient, apolloClient, st)

	return &pipelineEnv{
		Store:        st,
		Orchestrator: workflow.New(st, discoverer, scorer, gate, researcher, cfg.Pipeline),
	}, nil
}
