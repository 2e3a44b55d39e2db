package model

import "time"

// ApprovalStatus is the approval state of a queue item.
type ApprovalStatus string

const (
	ApprovalPending        ApprovalStatus = "pending"
	ApprovalAutoApproved   ApprovalStatus = "auto_approved"
	ApprovalManualApproved ApprovalStatus = "manual_approved"
	ApprovalRejected       ApprovalStatus = "rejected"
)

// IsApproved reports whether the status allows research to start.
func (s ApprovalStatus) IsApproved() bool {
	return s == ApprovalAutoApproved || s == ApprovalManualApproved
}

// ResearchStatus is the research state of a queue item.
type ResearchStatus string

const (
	ResearchPending    ResearchStatus = "pending"
	ResearchInProgress ResearchStatus = "in_progress"
	ResearchCompleted  ResearchStatus = "completed"
	ResearchFailed     ResearchStatus = "failed"
)

// QueueItem is the persisted approval/research lifecycle of one candidate.
type QueueItem struct {
	ID                 string         `json:"id"`
	WorkflowID         string         `json:"workflowId"`
	Name               string         `json:"name"`
	URL                string         `json:"url"`
	Snippet            string         `json:"snippet,omitempty"`
	Score              int            `json:"score"`
	Confidence         Confidence     `json:"confidence"`
	Reasoning          string         `json:"reasoning,omitempty"`
	EstimatedRevenue   string         `json:"estimatedRevenue,omitempty"`
	Industry           string         `json:"industry,omitempty"`
	GeographicFocus    string         `json:"geographicFocus,omitempty"`
	OwnershipType      OwnershipType  `json:"ownershipType"`
	IPUpside           bool           `json:"ipUpside"`
	ApprovalStatus     ApprovalStatus `json:"approvalStatus"`
	AutoApprovalReason string         `json:"autoApprovalReason,omitempty"`
	ResearchStatus     ResearchStatus `json:"researchStatus"`
	ResearchError      string         `json:"researchError,omitempty"`
	ReportID           *string        `json:"reportId,omitempty"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
}

// NewQueueItem mirrors a scored candidate into a pending queue item.
func NewQueueItem(workflowID string, c Candidate) QueueItem {
	return QueueItem{
		WorkflowID:       workflowID,
		Name:             c.Name,
		URL:              c.URL,
		Snippet:          c.Snippet,
		Score:            c.Score,
		Confidence:       c.Confidence,
		Reasoning:        c.Reasoning,
		EstimatedRevenue: c.EstimatedRevenue,
		Industry:         c.Industry,
		GeographicFocus:  c.GeographicFocus,
		OwnershipType:    c.OwnershipType,
		IPUpside:         c.IPUpside,
		ApprovalStatus:   ApprovalPending,
		ResearchStatus:   ResearchPending,
	}
}

// Report is a long-form research report for one researched company.
type Report struct {
	ID          string    `json:"id"`
	QueueItemID string    `json:"queueItemId"`
	CompanyName string    `json:"companyName"`
	CompanyURL  string    `json:"companyUrl"`
	Industry    string    `json:"industry,omitempty"`
	Content     string    `json:"content"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ReportStatusCompleted is the status of a persisted report.
const ReportStatusCompleted = "completed"
