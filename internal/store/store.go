// Package store persists configurations, workflows, queue items and reports.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/deal-sourcing/internal/model"
)

var (
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = eris.New("store: not found")
	// ErrInvalidTransition is returned when a status change is not allowed
	// from the row's current state.
	ErrInvalidTransition = eris.New("store: invalid status transition")
)

// QueueSort selects the ordering of ListQueueItems. Sorting happens in SQL
// ahead of LIMIT/OFFSET so every page is drawn from the full ordering.
type QueueSort string

const (
	SortCreated QueueSort = "created"
	SortRevenue QueueSort = "revenue"
	SortScore   QueueSort = "score"
)

// Valid reports whether the sort is known. The zero value means SortCreated.
func (s QueueSort) Valid() bool {
	switch s {
	case "", SortCreated, SortRevenue, SortScore:
		return true
	}
	return false
}

// QueueFilter specifies criteria for listing queue items.
type QueueFilter struct {
	WorkflowID     string               `json:"workflow_id,omitempty"`
	ApprovalStatus model.ApprovalStatus `json:"approval_status,omitempty"`
	ResearchStatus model.ResearchStatus `json:"research_status,omitempty"`
	Sort           QueueSort            `json:"sort,omitempty"`
	Limit          int                  `json:"limit,omitempty"`
	Offset         int                  `json:"offset,omitempty"`
}

// Store defines the persistence interface for the discovery pipeline.
type Store interface {
	// Configurations
	CreateConfiguration(ctx context.Context, cfg *model.AgentConfiguration) error
	GetConfiguration(ctx context.Context, id string) (*model.AgentConfiguration, error)
	ListConfigurations(ctx context.Context, activeOnly bool) ([]model.AgentConfiguration, error)
	UpdateConfiguration(ctx context.Context, cfg *model.AgentConfiguration) error
	DeleteConfiguration(ctx context.Context, id string) error

	// Workflows
	CreateWorkflow(ctx context.Context, wf *model.Workflow) error
	GetWorkflow(ctx context.Context, id string) (*model.Workflow, error)
	ListWorkflows(ctx context.Context, limit int) ([]model.Workflow, error)
	UpdateWorkflowCounters(ctx context.Context, id string, c model.WorkflowCounters) error
	IncrementResearched(ctx context.Context, id string, n int) error
	CompleteWorkflow(ctx context.Context, id string) error
	FailWorkflow(ctx context.Context, id string, msg string) error
	FailOrphanedWorkflows(ctx context.Context) (int, error)

	// Queue
	CreateQueueItem(ctx context.Context, item *model.QueueItem) error
	GetQueueItem(ctx context.Context, id string) (*model.QueueItem, error)
	ListQueueItems(ctx context.Context, filter QueueFilter) ([]model.QueueItem, error)
	QueueItemExists(ctx context.Context, name, url string) (bool, error)
	SetApproval(ctx context.Context, id string, status model.ApprovalStatus, reason string) error
	StartResearch(ctx context.Context, id string) error
	FailResearch(ctx context.Context, id string, msg string) error
	CompleteResearch(ctx context.Context, id string, report *model.Report) error

	// Reports
	GetReport(ctx context.Context, id string) (*model.Report, error)
	ListReports(ctx context.Context, limit int) ([]model.Report, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}
