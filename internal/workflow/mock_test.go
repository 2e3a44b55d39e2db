package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rotisserie/eris"

	"github.com/sells-group/deal-sourcing/internal/approval"
	"github.com/sells-group/deal-sourcing/internal/model"
	"github.com/sells-group/deal-sourcing/internal/store"
)

// mockStore implements Store for testing.
type mockStore struct {
	mu          sync.Mutex
	configs     map[string]*model.AgentConfiguration
	items       map[string]*model.QueueItem
	workflows   map[string]*model.Workflow
	counterLog  []model.WorkflowCounters
	incremented map[string]int
	failMsg     string
	getItemErr  error
}

func newMockStore() *mockStore {
	return &mockStore{
		configs:     map[string]*model.AgentConfiguration{},
		items:       map[string]*model.QueueItem{},
		workflows:   map[string]*model.Workflow{},
		incremented: map[string]int{},
	}
}

func (m *mockStore) GetConfiguration(_ context.Context, id string) (*model.AgentConfiguration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.configs[id]
	if !ok {
		return nil, eris.Wrapf(store.ErrNotFound, "configuration %s", id)
	}
	return cfg, nil
}

func (m *mockStore) CreateWorkflow(_ context.Context, wf *model.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	wf.ID = fmt.Sprintf("wf-%d", len(m.workflows)+1)
	wf.Status = model.WorkflowRunning
	cp := *wf
	m.workflows[wf.ID] = &cp
	return nil
}

func (m *mockStore) UpdateWorkflowCounters(_ context.Context, id string, c model.WorkflowCounters) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counterLog = append(m.counterLog, c)
	m.workflows[id].WorkflowCounters = c
	return nil
}

func (m *mockStore) IncrementResearched(_ context.Context, id string, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.incremented[id] += n
	return nil
}

func (m *mockStore) CompleteWorkflow(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workflows[id].Status = model.WorkflowCompleted
	return nil
}

func (m *mockStore) FailWorkflow(_ context.Context, id string, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workflows[id].Status = model.WorkflowFailed
	m.failMsg = msg
	return nil
}

func (m *mockStore) GetQueueItem(_ context.Context, id string) (*model.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getItemErr != nil {
		return nil, m.getItemErr
	}
	item, ok := m.items[id]
	if !ok {
		return nil, eris.Wrapf(store.ErrNotFound, "queue item %s", id)
	}
	cp := *item
	return &cp, nil
}

func (m *mockStore) workflow(id string) model.Workflow {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.workflows[id]
}

type mockDiscoverer struct {
	candidates []model.Candidate
	err        error
}

func (m *mockDiscoverer) Discover(_ context.Context, _ model.SearchCriteria) ([]model.Candidate, error) {
	return m.candidates, m.err
}

// mockScorer keeps the first keep candidates.
type mockScorer struct {
	keep   int
	called bool
}

func (m *mockScorer) Score(_ context.Context, candidates []model.Candidate, _ model.SearchCriteria) ([]model.Candidate, error) {
	m.called = true
	if m.keep < len(candidates) {
		candidates = candidates[:m.keep]
	}
	return candidates, nil
}

// mockApprover approves the first approve candidates.
type mockApprover struct {
	approve int
}

func (m *mockApprover) Process(_ context.Context, workflowID string, candidates []model.Candidate, _ model.AutoApprovalRules, _ model.Strategy) (*approval.Result, error) {
	res := &approval.Result{}
	for i, c := range candidates {
		item := model.NewQueueItem(workflowID, c)
		item.ID = fmt.Sprintf("item-%d", i+1)
		if i < m.approve {
			item.ApprovalStatus = model.ApprovalAutoApproved
			res.AutoApproved = append(res.AutoApproved, item)
		} else {
			res.NeedsReview = append(res.NeedsReview, item)
		}
	}
	return res, nil
}

// mockResearcher fails the named companies and tracks peak concurrency.
type mockResearcher struct {
	fail     map[string]bool
	inFlight atomic.Int64
	peak     atomic.Int64
	mu       sync.Mutex
	seen     []string
}

func (m *mockResearcher) ResearchItem(_ context.Context, item model.QueueItem) (*model.Report, error) {
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		p := m.peak.Load()
		if n <= p || m.peak.CompareAndSwap(p, n) {
			break
		}
	}

	m.mu.Lock()
	m.seen = append(m.seen, item.ID)
	m.mu.Unlock()

	if m.fail[item.Name] {
		return nil, errors.New("research: report too short (12 chars)")
	}
	return &model.Report{ID: "rep-" + item.ID, QueueItemID: item.ID}, nil
}

func candidates(n int) []model.Candidate {
	out := make([]model.Candidate, n)
	for i := range out {
		out[i] = model.Candidate{Name: fmt.Sprintf("Company %d", i+1), URL: fmt.Sprintf("https://c%d.example", i+1)}
	}
	return out
}
