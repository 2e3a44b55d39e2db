// Package workflow runs the discovery pipeline end to end and keeps the
// workflow record's counters and status current.
package workflow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/deal-sourcing/internal/approval"
	"github.com/sells-group/deal-sourcing/internal/config"
	"github.com/sells-group/deal-sourcing/internal/model"
	"github.com/sells-group/deal-sourcing/internal/store"
)

// DefaultBatchSize is the number of companies researched concurrently.
const DefaultBatchSize = 3

// Store is the persistence the orchestrator needs.
type Store interface {
	GetConfiguration(ctx context.Context, id string) (*model.AgentConfiguration, error)
	CreateWorkflow(ctx context.Context, wf *model.Workflow) error
	UpdateWorkflowCounters(ctx context.Context, id string, c model.WorkflowCounters) error
	IncrementResearched(ctx context.Context, id string, n int) error
	CompleteWorkflow(ctx context.Context, id string) error
	FailWorkflow(ctx context.Context, id string, msg string) error
	GetQueueItem(ctx context.Context, id string) (*model.QueueItem, error)
}

// Discoverer finds new candidates.
type Discoverer interface {
	Discover(ctx context.Context, criteria model.SearchCriteria) ([]model.Candidate, error)
}

// Scorer scores and filters candidates.
type Scorer interface {
	Score(ctx context.Context, candidates []model.Candidate, criteria model.SearchCriteria) ([]model.Candidate, error)
}

// Approver persists candidates and splits them by approval decision.
type Approver interface {
	Process(ctx context.Context, workflowID string, candidates []model.Candidate, rules model.AutoApprovalRules, strategy model.Strategy) (*approval.Result, error)
}

// Researcher researches one approved queue item.
type Researcher interface {
	ResearchItem(ctx context.Context, item model.QueueItem) (*model.Report, error)
}

// RunRequest describes one pipeline run.
type RunRequest struct {
	Criteria        model.SearchCriteria
	Rules           model.AutoApprovalRules
	Trigger         model.TriggerType
	ConfigurationID *string
}

// Orchestrator composes the pipeline stages.
type Orchestrator struct {
	store      Store
	discoverer Discoverer
	scorer     Scorer
	gate       Approver
	researcher Researcher
	batchSize  int

	wg sync.WaitGroup
}

// New creates an Orchestrator.
func New(st Store, d Discoverer, s Scorer, g Approver, r Researcher, cfg config.PipelineConfig) *Orchestrator {
	batch := cfg.ResearchBatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	return &Orchestrator{
		store:      st,
		discoverer: d,
		scorer:     s,
		gate:       g,
		researcher: r,
		batchSize:  batch,
	}
}

// Run creates a workflow and executes every stage before returning.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (*model.Workflow, error) {
	wf, err := o.create(ctx, req)
	if err != nil {
		return nil, err
	}
	return wf, o.execute(ctx, wf, req)
}

// Start creates the workflow and executes it in the background. The returned
// workflow is in the running state. Wait blocks until background runs end.
func (o *Orchestrator) Start(ctx context.Context, req RunRequest) (*model.Workflow, error) {
	wf, err := o.create(ctx, req)
	if err != nil {
		return nil, err
	}
	snapshot := *wf

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := o.execute(context.WithoutCancel(ctx), wf, req); err != nil {
			zap.L().Error("workflow failed", zap.String("workflow_id", wf.ID), zap.Error(err))
		}
	}()
	return &snapshot, nil
}

// RunConfiguration runs a stored configuration's criteria and rules.
func (o *Orchestrator) RunConfiguration(ctx context.Context, configID string, trigger model.TriggerType) (*model.Workflow, error) {
	req, err := o.configurationRequest(ctx, configID, trigger)
	if err != nil {
		return nil, err
	}
	return o.Run(ctx, req)
}

// StartConfiguration is RunConfiguration in the background.
func (o *Orchestrator) StartConfiguration(ctx context.Context, configID string, trigger model.TriggerType) (*model.Workflow, error) {
	req, err := o.configurationRequest(ctx, configID, trigger)
	if err != nil {
		return nil, err
	}
	return o.Start(ctx, req)
}

// Wait blocks until all workflows and research started in the background
// have finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) configurationRequest(ctx context.Context, configID string, trigger model.TriggerType) (RunRequest, error) {
	cfg, err := o.store.GetConfiguration(ctx, configID)
	if err != nil {
		return RunRequest{}, eris.Wrapf(err, "workflow: load configuration %s", configID)
	}
	id := cfg.ID
	return RunRequest{
		Criteria:        cfg.Criteria,
		Rules:           cfg.Rules,
		Trigger:         trigger,
		ConfigurationID: &id,
	}, nil
}

func (o *Orchestrator) create(ctx context.Context, req RunRequest) (*model.Workflow, error) {
	trigger := req.Trigger
	if trigger == "" {
		trigger = model.TriggerDirect
	}
	wf := &model.Workflow{
		ConfigurationID: req.ConfigurationID,
		TriggerType:     trigger,
		Criteria:        req.Criteria,
	}
	if err := o.store.CreateWorkflow(ctx, wf); err != nil {
		return nil, eris.Wrap(err, "workflow: create")
	}
	return wf, nil
}

// execute runs the stages in order. A stage error fails the workflow and is
// returned; per-item research failures are not stage errors.
func (o *Orchestrator) execute(ctx context.Context, wf *model.Workflow, req RunRequest) error {
	log := zap.L().With(zap.String("workflow_id", wf.ID), zap.String("trigger", string(wf.TriggerType)))
	log.Info("workflow started", zap.String("query", req.Criteria.Query))

	if err := o.stages(ctx, wf, req, log); err != nil {
		msg := err.Error()
		if ferr := o.store.FailWorkflow(context.WithoutCancel(ctx), wf.ID, msg); ferr != nil {
			log.Error("failed to mark workflow failed", zap.Error(ferr))
		}
		wf.Status = model.WorkflowFailed
		wf.Error = msg
		log.Error("workflow failed", zap.Error(err))
		return err
	}

	if err := o.store.CompleteWorkflow(ctx, wf.ID); err != nil {
		return eris.Wrap(err, "workflow: complete")
	}
	wf.Status = model.WorkflowCompleted
	log.Info("workflow completed",
		zap.Int("found", wf.CompaniesFound),
		zap.Int("scored", wf.CompaniesScored),
		zap.Int("auto_approved", wf.CompaniesAutoApproved),
		zap.Int("reviewed", wf.CompaniesReviewed),
		zap.Int("researched", wf.CompaniesResearched),
	)
	return nil
}

func (o *Orchestrator) stages(ctx context.Context, wf *model.Workflow, req RunRequest, log *zap.Logger) error {
	candidates, err := o.discoverer.Discover(ctx, req.Criteria)
	if err != nil {
		return eris.Wrap(err, "workflow: discovery")
	}
	wf.CompaniesFound = len(candidates)
	if err := o.saveCounters(ctx, wf); err != nil {
		return err
	}
	if len(candidates) == 0 {
		log.Info("no new candidates")
		return nil
	}

	scored, err := o.scorer.Score(ctx, candidates, req.Criteria)
	if err != nil {
		return eris.Wrap(err, "workflow: scoring")
	}
	wf.CompaniesScored = len(scored)
	if err := o.saveCounters(ctx, wf); err != nil {
		return err
	}

	res, err := o.gate.Process(ctx, wf.ID, scored, req.Rules, req.Criteria.Strategy)
	if err != nil {
		return eris.Wrap(err, "workflow: approval")
	}
	wf.CompaniesAutoApproved = len(res.AutoApproved)
	wf.CompaniesReviewed = len(res.NeedsReview)
	if err := o.saveCounters(ctx, wf); err != nil {
		return err
	}

	return o.researchBatches(ctx, res.AutoApproved, func(ctx context.Context, done []model.QueueItem) error {
		wf.CompaniesResearched += len(done)
		return o.saveCounters(ctx, wf)
	})
}

func (o *Orchestrator) saveCounters(ctx context.Context, wf *model.Workflow) error {
	if err := o.store.UpdateWorkflowCounters(ctx, wf.ID, wf.WorkflowCounters); err != nil {
		return eris.Wrap(err, "workflow: update counters")
	}
	return nil
}

// ResearchApproved researches manually approved queue items and credits each
// owning workflow. Items that are missing or not approved are skipped. It
// returns the number of reports written.
func (o *Orchestrator) ResearchApproved(ctx context.Context, itemIDs []string) (int, error) {
	log := zap.L().With(zap.String("stage", "manual_research"))

	items := make([]model.QueueItem, 0, len(itemIDs))
	for _, id := range itemIDs {
		item, err := o.store.GetQueueItem(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("queue item not found", zap.String("item_id", id))
			continue
		}
		if err != nil {
			return 0, eris.Wrapf(err, "workflow: load queue item %s", id)
		}
		if !item.ApprovalStatus.IsApproved() || item.ResearchStatus != model.ResearchPending {
			log.Warn("queue item not ready for research",
				zap.String("item_id", id),
				zap.String("approval_status", string(item.ApprovalStatus)),
				zap.String("research_status", string(item.ResearchStatus)),
			)
			continue
		}
		items = append(items, *item)
	}

	total := 0
	err := o.researchBatches(ctx, items, func(ctx context.Context, done []model.QueueItem) error {
		total += len(done)
		perWorkflow := make(map[string]int)
		for _, item := range done {
			perWorkflow[item.WorkflowID]++
		}
		for wfID, n := range perWorkflow {
			if err := o.store.IncrementResearched(ctx, wfID, n); err != nil {
				log.Warn("failed to update researched counter", zap.String("workflow_id", wfID), zap.Error(err))
			}
		}
		return nil
	})
	return total, err
}

// StartResearchApproved is ResearchApproved in the background.
func (o *Orchestrator) StartResearchApproved(ctx context.Context, itemIDs []string) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		n, err := o.ResearchApproved(context.WithoutCancel(ctx), itemIDs)
		if err != nil {
			zap.L().Error("manual research failed", zap.Error(err))
			return
		}
		zap.L().Info("manual research complete", zap.Int("requested", len(itemIDs)), zap.Int("researched", n))
	}()
}

// researchBatches researches items in fixed-size batches. Every item in a
// batch is attempted regardless of sibling failures; onBatch receives the
// items that produced a report. Only cancellation or an onBatch error stops
// the loop.
func (o *Orchestrator) researchBatches(ctx context.Context, items []model.QueueItem, onBatch func(context.Context, []model.QueueItem) error) error {
	for start := 0; start < len(items); start += o.batchSize {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "workflow: research")
		}
		end := min(start+o.batchSize, len(items))
		batch := items[start:end]

		var (
			g      errgroup.Group
			mu     sync.Mutex
			done   []model.QueueItem
			failed atomic.Int64
		)
		for _, item := range batch {
			g.Go(func() error {
				if _, err := o.researcher.ResearchItem(ctx, item); err != nil {
					failed.Add(1)
					return nil // siblings continue
				}
				mu.Lock()
				done = append(done, item)
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()

		zap.L().Info("research batch complete",
			zap.Int("batch_start", start),
			zap.Int("succeeded", len(done)),
			zap.Int64("failed", failed.Load()),
		)
		if err := onBatch(ctx, done); err != nil {
			return err
		}
	}
	return nil
}
