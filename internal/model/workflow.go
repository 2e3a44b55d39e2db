package model

import "time"

// WorkflowStatus is the lifecycle state of a pipeline run.
type WorkflowStatus string

const (
	WorkflowRunning   WorkflowStatus = "running"
	WorkflowCompleted WorkflowStatus = "completed"
	WorkflowFailed    WorkflowStatus = "failed"
)

// TriggerType records what started a workflow.
type TriggerType string

const (
	TriggerScheduled TriggerType = "scheduled"
	TriggerDirect    TriggerType = "direct"
	TriggerManual    TriggerType = "manual"
)

// WorkflowCounters are the aggregate progress counters of a run. Values only
// ever increase.
type WorkflowCounters struct {
	CompaniesFound        int `json:"companiesFound"`
	CompaniesScored       int `json:"companiesScored"`
	CompaniesAutoApproved int `json:"companiesAutoApproved"`
	CompaniesReviewed     int `json:"companiesReviewed"`
	CompaniesResearched   int `json:"companiesResearched"`
}

// Workflow is one end-to-end discovery-to-research run.
type Workflow struct {
	ID              string         `json:"id"`
	ConfigurationID *string        `json:"configurationId,omitempty"`
	Status          WorkflowStatus `json:"status"`
	TriggerType     TriggerType    `json:"triggerType"`
	Criteria        SearchCriteria `json:"criteria"`
	WorkflowCounters
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// AgentConfiguration is a named, reusable combination of search criteria,
// approval rules, and a cron schedule.
type AgentConfiguration struct {
	ID        string            `json:"id" yaml:"id"`
	Name      string            `json:"name" yaml:"name" validate:"required"`
	Criteria  SearchCriteria    `json:"criteria" yaml:"criteria"`
	Rules     AutoApprovalRules `json:"rules" yaml:"rules"`
	Schedule  string            `json:"schedule,omitempty" yaml:"schedule"`
	Active    bool              `json:"active" yaml:"active"`
	CreatedAt time.Time         `json:"createdAt" yaml:"-"`
	UpdatedAt time.Time         `json:"updatedAt" yaml:"-"`
}
