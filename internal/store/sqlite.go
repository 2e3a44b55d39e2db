package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/deal-sourcing/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path. Pragmas travel in the
// DSN so every pooled connection gets WAL, the busy timeout and foreign keys,
// and transactions begin IMMEDIATE so read-then-write never hits a stale
// snapshot.
func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if err := db.Ping(); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "sqlite: ping")
	}
	return &SQLiteStore{db: db}, nil
}

var sqlitePragmas = []string{
	"_pragma=journal_mode(WAL)",
	"_pragma=busy_timeout(5000)",
	"_pragma=synchronous(NORMAL)",
	"_pragma=foreign_keys(1)",
	"_txlock=immediate",
}

func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join(sqlitePragmas, "&")
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS agent_configurations (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	criteria   TEXT NOT NULL,
	rules      TEXT NOT NULL,
	schedule   TEXT NOT NULL DEFAULT '',
	active     INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS workflows (
	id                      TEXT PRIMARY KEY,
	configuration_id        TEXT REFERENCES agent_configurations(id) ON DELETE SET NULL,
	status                  TEXT NOT NULL DEFAULT 'running',
	trigger_type            TEXT NOT NULL,
	criteria                TEXT NOT NULL,
	companies_found         INTEGER NOT NULL DEFAULT 0,
	companies_scored        INTEGER NOT NULL DEFAULT 0,
	companies_auto_approved INTEGER NOT NULL DEFAULT 0,
	companies_reviewed      INTEGER NOT NULL DEFAULT 0,
	companies_researched    INTEGER NOT NULL DEFAULT 0,
	error                   TEXT NOT NULL DEFAULT '',
	created_at              DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at            DATETIME
);

CREATE TABLE IF NOT EXISTS queue_items (
	id                   TEXT PRIMARY KEY,
	workflow_id          TEXT NOT NULL REFERENCES workflows(id),
	name                 TEXT NOT NULL,
	url                  TEXT NOT NULL DEFAULT '',
	snippet              TEXT NOT NULL DEFAULT '',
	score                INTEGER NOT NULL DEFAULT 0,
	confidence           TEXT NOT NULL DEFAULT 'Low',
	reasoning            TEXT NOT NULL DEFAULT '',
	estimated_revenue    TEXT NOT NULL DEFAULT '',
	industry             TEXT NOT NULL DEFAULT '',
	geographic_focus     TEXT NOT NULL DEFAULT '',
	ownership_type       TEXT NOT NULL DEFAULT 'Unknown',
	ip_upside            INTEGER NOT NULL DEFAULT 0,
	approval_status      TEXT NOT NULL DEFAULT 'pending',
	auto_approval_reason TEXT NOT NULL DEFAULT '',
	research_status      TEXT NOT NULL DEFAULT 'pending',
	research_error       TEXT NOT NULL DEFAULT '',
	report_id            TEXT REFERENCES reports(id),
	revenue_usd          REAL NOT NULL DEFAULT 0,
	created_at           DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at           DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS reports (
	id            TEXT PRIMARY KEY,
	queue_item_id TEXT NOT NULL UNIQUE REFERENCES queue_items(id),
	company_name  TEXT NOT NULL,
	company_url   TEXT NOT NULL DEFAULT '',
	industry      TEXT NOT NULL DEFAULT '',
	content       TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'completed',
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_workflows_status ON workflows(status);
CREATE INDEX IF NOT EXISTS idx_queue_items_workflow_id ON queue_items(workflow_id);
CREATE INDEX IF NOT EXISTS idx_queue_items_lower_name ON queue_items(lower(name));
CREATE INDEX IF NOT EXISTS idx_queue_items_url ON queue_items(url);
CREATE INDEX IF NOT EXISTS idx_queue_items_created_at ON queue_items(created_at DESC);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteMigration); err != nil {
		return eris.Wrap(err, "sqlite: migrate")
	}
	// SQLite has no ADD COLUMN IF NOT EXISTS.
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pragma_table_info('queue_items') WHERE name = 'revenue_usd'`,
	).Scan(&n)
	if err != nil {
		return eris.Wrap(err, "sqlite: inspect queue_items")
	}
	if n == 0 {
		if _, err := s.db.ExecContext(ctx, `ALTER TABLE queue_items ADD COLUMN revenue_usd REAL NOT NULL DEFAULT 0`); err != nil {
			return eris.Wrap(err, "sqlite: add revenue_usd")
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Configurations ---

func (s *SQLiteStore) CreateConfiguration(ctx context.Context, cfg *model.AgentConfiguration) error {
	criteria, rules, err := marshalConfig(cfg)
	if err != nil {
		return eris.Wrap(err, "sqlite: create configuration")
	}
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	cfg.CreatedAt, cfg.UpdatedAt = now, now

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agent_configurations (`+configColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		cfg.ID, cfg.Name, string(criteria), string(rules), cfg.Schedule, cfg.Active, now, now,
	)
	return eris.Wrap(err, "sqlite: insert configuration")
}

func (s *SQLiteStore) GetConfiguration(ctx context.Context, id string) (*model.AgentConfiguration, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+configColumns+` FROM agent_configurations WHERE id = ?`, id)
	c, err := scanConfiguration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "configuration %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get configuration %s", id)
	}
	return c, nil
}

func (s *SQLiteStore) ListConfigurations(ctx context.Context, activeOnly bool) ([]model.AgentConfiguration, error) {
	query := `SELECT ` + configColumns + ` FROM agent_configurations`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list configurations")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.AgentConfiguration
	for rows.Next() {
		c, err := scanConfiguration(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan configuration")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list configurations iterate")
}

func (s *SQLiteStore) UpdateConfiguration(ctx context.Context, cfg *model.AgentConfiguration) error {
	criteria, rules, err := marshalConfig(cfg)
	if err != nil {
		return eris.Wrap(err, "sqlite: update configuration")
	}
	cfg.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`UPDATE agent_configurations SET name = ?, criteria = ?, rules = ?, schedule = ?, active = ?, updated_at = ? WHERE id = ?`,
		cfg.Name, string(criteria), string(rules), cfg.Schedule, cfg.Active, cfg.UpdatedAt, cfg.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update configuration %s", cfg.ID)
	}
	return checkRowsAffected(res, "configuration", cfg.ID)
}

func (s *SQLiteStore) DeleteConfiguration(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `UPDATE workflows SET configuration_id = NULL WHERE configuration_id = ?`, id); err != nil {
		return eris.Wrapf(err, "sqlite: detach workflows %s", id)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM agent_configurations WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete configuration %s", id)
	}
	if err := checkRowsAffected(res, "configuration", id); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit tx")
}

// --- Workflows ---

func (s *SQLiteStore) CreateWorkflow(ctx context.Context, wf *model.Workflow) error {
	criteria, err := json.Marshal(wf.Criteria)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal criteria")
	}
	if wf.ID == "" {
		wf.ID = uuid.New().String()
	}
	wf.Status = model.WorkflowRunning
	wf.CreatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflows (id, configuration_id, status, trigger_type, criteria, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		wf.ID, wf.ConfigurationID, string(wf.Status), string(wf.TriggerType), string(criteria), wf.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert workflow")
}

func (s *SQLiteStore) GetWorkflow(ctx context.Context, id string) (*model.Workflow, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE id = ?`, id)
	w, err := scanWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "workflow %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get workflow %s", id)
	}
	return w, nil
}

func (s *SQLiteStore) ListWorkflows(ctx context.Context, limit int) ([]model.Workflow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+workflowColumns+` FROM workflows ORDER BY created_at DESC LIMIT ?`,
		listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list workflows")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Workflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan workflow")
		}
		out = append(out, *w)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list workflows iterate")
}

// UpdateWorkflowCounters writes the counters, never lowering a stored value.
func (s *SQLiteStore) UpdateWorkflowCounters(ctx context.Context, id string, c model.WorkflowCounters) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflows SET
			companies_found = MAX(companies_found, ?),
			companies_scored = MAX(companies_scored, ?),
			companies_auto_approved = MAX(companies_auto_approved, ?),
			companies_reviewed = MAX(companies_reviewed, ?),
			companies_researched = MAX(companies_researched, ?)
		WHERE id = ?`,
		c.CompaniesFound, c.CompaniesScored, c.CompaniesAutoApproved, c.CompaniesReviewed, c.CompaniesResearched, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update workflow counters %s", id)
	}
	return checkRowsAffected(res, "workflow", id)
}

func (s *SQLiteStore) IncrementResearched(ctx context.Context, id string, n int) error {
	if n <= 0 {
		return nil
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflows SET companies_researched = companies_researched + ? WHERE id = ?`,
		n, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: increment researched %s", id)
	}
	return checkRowsAffected(res, "workflow", id)
}

func (s *SQLiteStore) CompleteWorkflow(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflows SET status = 'completed', completed_at = ? WHERE id = ? AND status = 'running'`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete workflow %s", id)
	}
	return s.guarded(ctx, res, "workflows", id)
}

func (s *SQLiteStore) FailWorkflow(ctx context.Context, id string, msg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflows SET status = 'failed', error = ?, completed_at = ? WHERE id = ? AND status = 'running'`,
		msg, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail workflow %s", id)
	}
	return s.guarded(ctx, res, "workflows", id)
}

func (s *SQLiteStore) FailOrphanedWorkflows(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflows SET status = 'failed', completed_at = ? WHERE status = 'running'`,
		time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: fail orphaned workflows")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// --- Queue ---

func (s *SQLiteStore) CreateQueueItem(ctx context.Context, item *model.QueueItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	item.CreatedAt, item.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO queue_items (`+queueColumns+`, revenue_usd) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		queueItemArgs(item)...,
	)
	return eris.Wrap(err, "sqlite: insert queue item")
}

func (s *SQLiteStore) GetQueueItem(ctx context.Context, id string) (*model.QueueItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+queueColumns+` FROM queue_items WHERE id = ?`, id)
	q, err := scanQueueItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "queue item %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get queue item %s", id)
	}
	return q, nil
}

func (s *SQLiteStore) ListQueueItems(ctx context.Context, filter QueueFilter) ([]model.QueueItem, error) {
	query := `SELECT ` + queueColumns + ` FROM queue_items WHERE 1=1`
	var args []any

	if filter.WorkflowID != "" {
		query += ` AND workflow_id = ?`
		args = append(args, filter.WorkflowID)
	}
	if filter.ApprovalStatus != "" {
		query += ` AND approval_status = ?`
		args = append(args, string(filter.ApprovalStatus))
	}
	if filter.ResearchStatus != "" {
		query += ` AND research_status = ?`
		args = append(args, string(filter.ResearchStatus))
	}
	query += ` ORDER BY ` + queueOrderBy(filter.Sort) + ` LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list queue items")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.QueueItem
	for rows.Next() {
		q, err := scanQueueItem(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan queue item")
		}
		out = append(out, *q)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list queue items iterate")
}

func (s *SQLiteStore) QueueItemExists(ctx context.Context, name, url string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM queue_items WHERE lower(name) = lower(?) OR (? <> '' AND url = ?))`,
		name, url, url,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: queue item exists")
	}
	return exists, nil
}

func (s *SQLiteStore) SetApproval(ctx context.Context, id string, status model.ApprovalStatus, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE queue_items SET approval_status = ?, auto_approval_reason = ?, updated_at = ? WHERE id = ? AND approval_status = 'pending'`,
		string(status), reason, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set approval %s", id)
	}
	return s.guarded(ctx, res, "queue_items", id)
}

func (s *SQLiteStore) StartResearch(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE queue_items SET research_status = 'in_progress', research_error = '', updated_at = ?
		WHERE id = ? AND research_status = 'pending' AND approval_status IN ('auto_approved', 'manual_approved')`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: start research %s", id)
	}
	return s.guarded(ctx, res, "queue_items", id)
}

func (s *SQLiteStore) FailResearch(ctx context.Context, id string, msg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE queue_items SET research_status = 'failed', research_error = ?, updated_at = ? WHERE id = ? AND research_status = 'in_progress'`,
		msg, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail research %s", id)
	}
	return s.guarded(ctx, res, "queue_items", id)
}

// CompleteResearch inserts the report and links it to the queue item in one
// transaction. The item must be in_progress.
func (s *SQLiteStore) CompleteResearch(ctx context.Context, id string, report *model.Report) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	var status model.ResearchStatus
	err = tx.QueryRowContext(ctx, `SELECT research_status FROM queue_items WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "queue item %s", id)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: get queue item %s", id)
	}
	if status != model.ResearchInProgress {
		return eris.Wrapf(ErrInvalidTransition, "queue item %s research is %s", id, status)
	}

	prepareReport(id, report)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO reports (`+reportColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.ID, report.QueueItemID, report.CompanyName, report.CompanyURL, report.Industry,
		report.Content, report.Status, report.CreatedAt, report.UpdatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert report")
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE queue_items SET research_status = 'completed', report_id = ?, research_error = '', updated_at = ? WHERE id = ?`,
		report.ID, report.UpdatedAt, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: link report %s", id)
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit tx")
}

// --- Reports ---

func (s *SQLiteStore) GetReport(ctx context.Context, id string) (*model.Report, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = ?`, id)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "report %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get report %s", id)
	}
	return r, nil
}

func (s *SQLiteStore) ListReports(ctx context.Context, limit int) ([]model.Report, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reportColumns+` FROM reports ORDER BY created_at DESC LIMIT ?`,
		listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list reports")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan report")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list reports iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

// guarded maps a zero-row guarded UPDATE to ErrNotFound or
// ErrInvalidTransition.
func (s *SQLiteStore) guarded(ctx context.Context, res sql.Result, table, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n > 0 {
		return nil
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = ?)`, id).Scan(&exists); err != nil {
		return eris.Wrapf(err, "sqlite: check %s %s", table, id)
	}
	if !exists {
		return eris.Wrapf(ErrNotFound, "%s %s", table, id)
	}
	return eris.Wrapf(ErrInvalidTransition, "%s %s", table, id)
}
