package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/deal-sourcing/internal/estimate"
	"github.com/sells-group/deal-sourcing/internal/model"
)

// Column lists shared by the Postgres and SQLite stores. Scan helpers below
// depend on this order.
const (
	configColumns   = `id, name, criteria, rules, schedule, active, created_at, updated_at`
	workflowColumns = `id, configuration_id, status, trigger_type, criteria, companies_found, companies_scored, companies_auto_approved, companies_reviewed, companies_researched, error, created_at, completed_at`
	queueColumns    = `id, workflow_id, name, url, snippet, score, confidence, reasoning, estimated_revenue, industry, geographic_focus, ownership_type, ip_upside, approval_status, auto_approval_reason, research_status, research_error, report_id, created_at, updated_at`
	reportColumns   = `id, queue_item_id, company_name, company_url, industry, content, status, created_at, updated_at`
)

type scannable interface {
	Scan(dest ...any) error
}

func scanConfiguration(row scannable) (*model.AgentConfiguration, error) {
	var c model.AgentConfiguration
	var criteria, rules []byte
	if err := row.Scan(&c.ID, &c.Name, &criteria, &rules, &c.Schedule, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(criteria, &c.Criteria); err != nil {
		return nil, eris.Wrap(err, "unmarshal criteria")
	}
	if err := json.Unmarshal(rules, &c.Rules); err != nil {
		return nil, eris.Wrap(err, "unmarshal rules")
	}
	return &c, nil
}

func scanWorkflow(row scannable) (*model.Workflow, error) {
	var w model.Workflow
	var criteria []byte
	err := row.Scan(
		&w.ID, &w.ConfigurationID, &w.Status, &w.TriggerType, &criteria,
		&w.CompaniesFound, &w.CompaniesScored, &w.CompaniesAutoApproved,
		&w.CompaniesReviewed, &w.CompaniesResearched,
		&w.Error, &w.CreatedAt, &w.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(criteria, &w.Criteria); err != nil {
		return nil, eris.Wrap(err, "unmarshal criteria")
	}
	return &w, nil
}

func scanQueueItem(row scannable) (*model.QueueItem, error) {
	var q model.QueueItem
	err := row.Scan(
		&q.ID, &q.WorkflowID, &q.Name, &q.URL, &q.Snippet, &q.Score, &q.Confidence,
		&q.Reasoning, &q.EstimatedRevenue, &q.Industry, &q.GeographicFocus,
		&q.OwnershipType, &q.IPUpside, &q.ApprovalStatus, &q.AutoApprovalReason,
		&q.ResearchStatus, &q.ResearchError, &q.ReportID, &q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func scanReport(row scannable) (*model.Report, error) {
	var r model.Report
	err := row.Scan(&r.ID, &r.QueueItemID, &r.CompanyName, &r.CompanyURL, &r.Industry, &r.Content, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// queueItemArgs returns the insert arguments in queueColumns order followed
// by revenue_usd, the parsed estimate used for revenue ordering.
func queueItemArgs(q *model.QueueItem) []any {
	return []any{
		q.ID, q.WorkflowID, q.Name, q.URL, q.Snippet, q.Score, string(q.Confidence),
		q.Reasoning, q.EstimatedRevenue, q.Industry, q.GeographicFocus,
		string(q.OwnershipType), q.IPUpside, string(q.ApprovalStatus), q.AutoApprovalReason,
		string(q.ResearchStatus), q.ResearchError, q.ReportID, q.CreatedAt, q.UpdatedAt,
		estimate.ParseRevenue(q.EstimatedRevenue),
	}
}

// queueOrderBy maps a QueueSort to its ORDER BY clause. Ties fall back to
// newest first so paging stays stable.
func queueOrderBy(by QueueSort) string {
	switch by {
	case SortRevenue:
		return `revenue_usd DESC, created_at DESC, id`
	case SortScore:
		return `score DESC, created_at DESC, id`
	default:
		return `created_at DESC, id`
	}
}

func marshalConfig(cfg *model.AgentConfiguration) (criteria, rules []byte, err error) {
	criteria, err = json.Marshal(cfg.Criteria)
	if err != nil {
		return nil, nil, eris.Wrap(err, "marshal criteria")
	}
	rules, err = json.Marshal(cfg.Rules)
	if err != nil {
		return nil, nil, eris.Wrap(err, "marshal rules")
	}
	return criteria, rules, nil
}

// prepareReport fills the identity and bookkeeping fields of a report about
// to be inserted for the given queue item.
func prepareReport(itemID string, r *model.Report) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	r.QueueItemID = itemID
	r.Status = model.ReportStatusCompleted
	r.CreatedAt, r.UpdatedAt = now, now
}
