package api

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/sells-group/deal-sourcing/internal/estimate"
	"github.com/sells-group/deal-sourcing/internal/model"
	"github.com/sells-group/deal-sourcing/internal/store"
	"github.com/sells-group/deal-sourcing/internal/workflow"
)

// fakeStore is an in-memory store.Store for handler tests.
type fakeStore struct {
	mu        sync.Mutex
	configs   map[string]*model.AgentConfiguration
	workflows map[string]*model.Workflow
	items     map[string]*model.QueueItem
	order     []string
	reports   map[string]*model.Report
	pingErr   error
	listErr   error
	nextID    int

	lastFilter store.QueueFilter
}

var _ store.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		configs:   make(map[string]*model.AgentConfiguration),
		workflows: make(map[string]*model.Workflow),
		items:     make(map[string]*model.QueueItem),
		reports:   make(map[string]*model.Report),
	}
}

func (f *fakeStore) addItem(item model.QueueItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if item.ApprovalStatus == "" {
		item.ApprovalStatus = model.ApprovalPending
	}
	if item.ResearchStatus == "" {
		item.ResearchStatus = model.ResearchPending
	}
	f.items[item.ID] = &item
	f.order = append(f.order, item.ID)
}

func (f *fakeStore) CreateConfiguration(_ context.Context, cfg *model.AgentConfiguration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	cfg.ID = fmt.Sprintf("cfg-%d", f.nextID)
	cfg.CreatedAt = time.Now()
	cfg.UpdatedAt = cfg.CreatedAt
	cp := *cfg
	f.configs[cfg.ID] = &cp
	return nil
}

func (f *fakeStore) GetConfiguration(_ context.Context, id string) (*model.AgentConfiguration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cfg, ok := f.configs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *cfg
	return &cp, nil
}

func (f *fakeStore) ListConfigurations(_ context.Context, activeOnly bool) ([]model.AgentConfiguration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.AgentConfiguration
	for _, cfg := range f.configs {
		if activeOnly && !cfg.Active {
			continue
		}
		out = append(out, *cfg)
	}
	return out, nil
}

func (f *fakeStore) UpdateConfiguration(_ context.Context, cfg *model.AgentConfiguration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.configs[cfg.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *cfg
	f.configs[cfg.ID] = &cp
	return nil
}

func (f *fakeStore) DeleteConfiguration(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.configs[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.configs, id)
	return nil
}

func (f *fakeStore) CreateWorkflow(_ context.Context, wf *model.Workflow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *wf
	f.workflows[wf.ID] = &cp
	return nil
}

func (f *fakeStore) GetWorkflow(_ context.Context, id string) (*model.Workflow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wf, ok := f.workflows[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *wf
	return &cp, nil
}

func (f *fakeStore) ListWorkflows(_ context.Context, _ int) ([]model.Workflow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Workflow
	for _, wf := range f.workflows {
		out = append(out, *wf)
	}
	return out, nil
}

func (f *fakeStore) UpdateWorkflowCounters(context.Context, string, model.WorkflowCounters) error {
	return nil
}

func (f *fakeStore) IncrementResearched(context.Context, string, int) error { return nil }

func (f *fakeStore) CompleteWorkflow(context.Context, string) error { return nil }

func (f *fakeStore) FailWorkflow(context.Context, string, string) error { return nil }

func (f *fakeStore) FailOrphanedWorkflows(context.Context) (int, error) { return 0, nil }

func (f *fakeStore) CreateQueueItem(_ context.Context, item *model.QueueItem) error {
	f.addItem(*item)
	return nil
}

func (f *fakeStore) GetQueueItem(_ context.Context, id string) (*model.QueueItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *item
	return &cp, nil
}

func (f *fakeStore) ListQueueItems(_ context.Context, filter store.QueueFilter) ([]model.QueueItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []model.QueueItem
	for _, id := range f.order {
		item := f.items[id]
		if filter.WorkflowID != "" && item.WorkflowID != filter.WorkflowID {
			continue
		}
		if filter.ApprovalStatus != "" && item.ApprovalStatus != filter.ApprovalStatus {
			continue
		}
		if filter.ResearchStatus != "" && item.ResearchStatus != filter.ResearchStatus {
			continue
		}
		out = append(out, *item)
	}
	f.lastFilter = filter
	switch filter.Sort {
	case store.SortRevenue:
		slices.SortStableFunc(out, func(a, b model.QueueItem) int {
			return cmp.Compare(estimate.ParseRevenue(b.EstimatedRevenue), estimate.ParseRevenue(a.EstimatedRevenue))
		})
	case store.SortScore:
		slices.SortStableFunc(out, func(a, b model.QueueItem) int { return b.Score - a.Score })
	}
	return out, nil
}

func (f *fakeStore) QueueItemExists(context.Context, string, string) (bool, error) {
	return false, nil
}

func (f *fakeStore) SetApproval(_ context.Context, id string, status model.ApprovalStatus, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return store.ErrNotFound
	}
	if item.ApprovalStatus != model.ApprovalPending {
		return store.ErrInvalidTransition
	}
	item.ApprovalStatus = status
	item.AutoApprovalReason = reason
	return nil
}

func (f *fakeStore) StartResearch(context.Context, string) error { return nil }

func (f *fakeStore) FailResearch(context.Context, string, string) error { return nil }

func (f *fakeStore) CompleteResearch(context.Context, string, *model.Report) error { return nil }

func (f *fakeStore) GetReport(_ context.Context, id string) (*model.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rep, ok := f.reports[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *rep
	return &cp, nil
}

func (f *fakeStore) ListReports(context.Context, int) ([]model.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Report
	for _, rep := range f.reports {
		out = append(out, *rep)
	}
	return out, nil
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeStore) Migrate(context.Context) error { return nil }

func (f *fakeStore) Close() error { return nil }

type fakeRunner struct {
	mu         sync.Mutex
	started    []workflow.RunRequest
	configRuns []string
	researched [][]string
	err        error
}

func (r *fakeRunner) Start(_ context.Context, req workflow.RunRequest) (*model.Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.started = append(r.started, req)
	return &model.Workflow{
		ID:          "wf-new",
		Status:      model.WorkflowRunning,
		TriggerType: req.Trigger,
		Criteria:    req.Criteria,
	}, nil
}

func (r *fakeRunner) StartConfiguration(_ context.Context, configID string, trigger model.TriggerType) (*model.Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.configRuns = append(r.configRuns, configID)
	return &model.Workflow{ID: "wf-cfg", ConfigurationID: &configID, Status: model.WorkflowRunning, TriggerType: trigger}, nil
}

func (r *fakeRunner) StartResearchApproved(_ context.Context, itemIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.researched = append(r.researched, itemIDs)
}

type fakeReloader struct {
	calls int
}

func (r *fakeReloader) Reload(context.Context) (int, error) {
	r.calls++
	return 0, nil
}
