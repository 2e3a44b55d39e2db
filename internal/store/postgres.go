package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/deal-sourcing/internal/db"
	"github.com/sells-group/deal-sourcing/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS agent_configurations (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name       TEXT NOT NULL,
	criteria   JSONB NOT NULL,
	rules      JSONB NOT NULL,
	schedule   TEXT NOT NULL DEFAULT '',
	active     BOOLEAN NOT NULL DEFAULT true,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS workflows (
	id                      TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	configuration_id        TEXT REFERENCES agent_configurations(id) ON DELETE SET NULL,
	status                  TEXT NOT NULL DEFAULT 'running',
	trigger_type            TEXT NOT NULL,
	criteria                JSONB NOT NULL,
	companies_found         INTEGER NOT NULL DEFAULT 0,
	companies_scored        INTEGER NOT NULL DEFAULT 0,
	companies_auto_approved INTEGER NOT NULL DEFAULT 0,
	companies_reviewed      INTEGER NOT NULL DEFAULT 0,
	companies_researched    INTEGER NOT NULL DEFAULT 0,
	error                   TEXT NOT NULL DEFAULT '',
	created_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at            TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS queue_items (
	id                   TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
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
	ip_upside            BOOLEAN NOT NULL DEFAULT false,
	approval_status      TEXT NOT NULL DEFAULT 'pending',
	auto_approval_reason TEXT NOT NULL DEFAULT '',
	research_status      TEXT NOT NULL DEFAULT 'pending',
	research_error       TEXT NOT NULL DEFAULT '',
	report_id            TEXT,
	revenue_usd          DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS reports (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	queue_item_id TEXT NOT NULL UNIQUE REFERENCES queue_items(id),
	company_name  TEXT NOT NULL,
	company_url   TEXT NOT NULL DEFAULT '',
	industry      TEXT NOT NULL DEFAULT '',
	content       TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'completed',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

ALTER TABLE queue_items ADD COLUMN IF NOT EXISTS revenue_usd DOUBLE PRECISION NOT NULL DEFAULT 0;

DO $$
BEGIN
	IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'queue_items_report_id_fkey') THEN
		ALTER TABLE queue_items ADD CONSTRAINT queue_items_report_id_fkey FOREIGN KEY (report_id) REFERENCES reports(id);
	END IF;
END $$;

CREATE INDEX IF NOT EXISTS idx_workflows_status ON workflows(status);
CREATE INDEX IF NOT EXISTS idx_workflows_created_at ON workflows(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_queue_items_workflow_id ON queue_items(workflow_id);
CREATE INDEX IF NOT EXISTS idx_queue_items_lower_name ON queue_items(lower(name));
CREATE INDEX IF NOT EXISTS idx_queue_items_url ON queue_items(url);
CREATE INDEX IF NOT EXISTS idx_queue_items_approval_status ON queue_items(approval_status);
CREATE INDEX IF NOT EXISTS idx_queue_items_revenue_usd ON queue_items(revenue_usd DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Configurations ---

func (s *PostgresStore) CreateConfiguration(ctx context.Context, cfg *model.AgentConfiguration) error {
	criteria, rules, err := marshalConfig(cfg)
	if err != nil {
		return eris.Wrap(err, "postgres: create configuration")
	}
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	cfg.CreatedAt, cfg.UpdatedAt = now, now

	_, err = s.pool.Exec(ctx,
		`INSERT INTO agent_configurations (`+configColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		cfg.ID, cfg.Name, criteria, rules, cfg.Schedule, cfg.Active, now, now,
	)
	return eris.Wrap(err, "postgres: insert configuration")
}

func (s *PostgresStore) GetConfiguration(ctx context.Context, id string) (*model.AgentConfiguration, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+configColumns+` FROM agent_configurations WHERE id = $1`, id)
	c, err := scanConfiguration(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "configuration %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get configuration %s", id)
	}
	return c, nil
}

func (s *PostgresStore) ListConfigurations(ctx context.Context, activeOnly bool) ([]model.AgentConfiguration, error) {
	query := `SELECT ` + configColumns + ` FROM agent_configurations`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY name`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list configurations")
	}
	defer rows.Close()

	var out []model.AgentConfiguration
	for rows.Next() {
		c, err := scanConfiguration(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan configuration")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list configurations iterate")
}

func (s *PostgresStore) UpdateConfiguration(ctx context.Context, cfg *model.AgentConfiguration) error {
	criteria, rules, err := marshalConfig(cfg)
	if err != nil {
		return eris.Wrap(err, "postgres: update configuration")
	}
	cfg.UpdatedAt = time.Now().UTC()

	tag, err := s.pool.Exec(ctx,
		`UPDATE agent_configurations SET name = $2, criteria = $3, rules = $4, schedule = $5, active = $6, updated_at = $7 WHERE id = $1`,
		cfg.ID, cfg.Name, criteria, rules, cfg.Schedule, cfg.Active, cfg.UpdatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update configuration %s", cfg.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "configuration %s", cfg.ID)
	}
	return nil
}

func (s *PostgresStore) DeleteConfiguration(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM agent_configurations WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete configuration %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "configuration %s", id)
	}
	return nil
}

// --- Workflows ---

func (s *PostgresStore) CreateWorkflow(ctx context.Context, wf *model.Workflow) error {
	criteria, err := json.Marshal(wf.Criteria)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal criteria")
	}
	if wf.ID == "" {
		wf.ID = uuid.New().String()
	}
	wf.Status = model.WorkflowRunning
	wf.CreatedAt = time.Now().UTC()

	_, err = s.pool.Exec(ctx,
		`INSERT INTO workflows (id, configuration_id, status, trigger_type, criteria, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		wf.ID, wf.ConfigurationID, string(wf.Status), string(wf.TriggerType), criteria, wf.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert workflow")
}

func (s *PostgresStore) GetWorkflow(ctx context.Context, id string) (*model.Workflow, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE id = $1`, id)
	w, err := scanWorkflow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "workflow %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get workflow %s", id)
	}
	return w, nil
}

func (s *PostgresStore) ListWorkflows(ctx context.Context, limit int) ([]model.Workflow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+workflowColumns+` FROM workflows ORDER BY created_at DESC LIMIT $1`,
		listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list workflows")
	}
	defer rows.Close()

	var out []model.Workflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan workflow")
		}
		out = append(out, *w)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list workflows iterate")
}

// UpdateWorkflowCounters writes the counters, never lowering a stored value.
func (s *PostgresStore) UpdateWorkflowCounters(ctx context.Context, id string, c model.WorkflowCounters) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE workflows SET
			companies_found = GREATEST(companies_found, $2),
			companies_scored = GREATEST(companies_scored, $3),
			companies_auto_approved = GREATEST(companies_auto_approved, $4),
			companies_reviewed = GREATEST(companies_reviewed, $5),
			companies_researched = GREATEST(companies_researched, $6)
		WHERE id = $1`,
		id, c.CompaniesFound, c.CompaniesScored, c.CompaniesAutoApproved, c.CompaniesReviewed, c.CompaniesResearched,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update workflow counters %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "workflow %s", id)
	}
	return nil
}

func (s *PostgresStore) IncrementResearched(ctx context.Context, id string, n int) error {
	if n <= 0 {
		return nil
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE workflows SET companies_researched = companies_researched + $2 WHERE id = $1`,
		id, n,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: increment researched %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "workflow %s", id)
	}
	return nil
}

func (s *PostgresStore) CompleteWorkflow(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE workflows SET status = 'completed', completed_at = $2 WHERE id = $1 AND status = 'running'`,
		id, time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete workflow %s", id)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionErr(ctx, "workflows", id)
	}
	return nil
}

func (s *PostgresStore) FailWorkflow(ctx context.Context, id string, msg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE workflows SET status = 'failed', error = $2, completed_at = $3 WHERE id = $1 AND status = 'running'`,
		id, msg, time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail workflow %s", id)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionErr(ctx, "workflows", id)
	}
	return nil
}

func (s *PostgresStore) FailOrphanedWorkflows(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE workflows SET status = 'failed', completed_at = now() WHERE status = 'running'`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: fail orphaned workflows")
	}
	return int(tag.RowsAffected()), nil
}

// --- Queue ---

func (s *PostgresStore) CreateQueueItem(ctx context.Context, item *model.QueueItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	item.CreatedAt, item.UpdatedAt = now, now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO queue_items (`+queueColumns+`, revenue_usd) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		queueItemArgs(item)...,
	)
	return eris.Wrap(err, "postgres: insert queue item")
}

func (s *PostgresStore) GetQueueItem(ctx context.Context, id string) (*model.QueueItem, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+queueColumns+` FROM queue_items WHERE id = $1`, id)
	q, err := scanQueueItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "queue item %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get queue item %s", id)
	}
	return q, nil
}

func (s *PostgresStore) ListQueueItems(ctx context.Context, filter QueueFilter) ([]model.QueueItem, error) {
	query := `SELECT ` + queueColumns + ` FROM queue_items WHERE true`
	args := []any{}
	argIdx := 1

	if filter.WorkflowID != "" {
		query += fmt.Sprintf(` AND workflow_id = $%d`, argIdx)
		args = append(args, filter.WorkflowID)
		argIdx++
	}
	if filter.ApprovalStatus != "" {
		query += fmt.Sprintf(` AND approval_status = $%d`, argIdx)
		args = append(args, string(filter.ApprovalStatus))
		argIdx++
	}
	if filter.ResearchStatus != "" {
		query += fmt.Sprintf(` AND research_status = $%d`, argIdx)
		args = append(args, string(filter.ResearchStatus))
		argIdx++
	}
	query += ` ORDER BY ` + queueOrderBy(filter.Sort)

	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list queue items")
	}
	defer rows.Close()

	var out []model.QueueItem
	for rows.Next() {
		q, err := scanQueueItem(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan queue item")
		}
		out = append(out, *q)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list queue items iterate")
}

// QueueItemExists reports whether any queue item matches the name
// case-insensitively or the URL exactly.
func (s *PostgresStore) QueueItemExists(ctx context.Context, name, url string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM queue_items WHERE lower(name) = lower($1) OR ($2 <> '' AND url = $2))`,
		name, url,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrap(err, "postgres: queue item exists")
	}
	return exists, nil
}

func (s *PostgresStore) SetApproval(ctx context.Context, id string, status model.ApprovalStatus, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE queue_items SET approval_status = $2, auto_approval_reason = $3, updated_at = $4 WHERE id = $1 AND approval_status = 'pending'`,
		id, string(status), reason, time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set approval %s", id)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionErr(ctx, "queue_items", id)
	}
	return nil
}

func (s *PostgresStore) StartResearch(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE queue_items SET research_status = 'in_progress', research_error = '', updated_at = $2
		WHERE id = $1 AND research_status = 'pending' AND approval_status IN ('auto_approved', 'manual_approved')`,
		id, time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: start research %s", id)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionErr(ctx, "queue_items", id)
	}
	return nil
}

func (s *PostgresStore) FailResearch(ctx context.Context, id string, msg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE queue_items SET research_status = 'failed', research_error = $2, updated_at = $3 WHERE id = $1 AND research_status = 'in_progress'`,
		id, msg, time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail research %s", id)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionErr(ctx, "queue_items", id)
	}
	return nil
}

// CompleteResearch inserts the report and links it to the queue item in one
// transaction. The item must be in_progress.
func (s *PostgresStore) CompleteResearch(ctx context.Context, id string, report *model.Report) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var status model.ResearchStatus
		err := tx.QueryRow(ctx, `SELECT research_status FROM queue_items WHERE id = $1 FOR UPDATE`, id).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return eris.Wrapf(ErrNotFound, "queue item %s", id)
		}
		if err != nil {
			return eris.Wrapf(err, "postgres: lock queue item %s", id)
		}
		if status != model.ResearchInProgress {
			return eris.Wrapf(ErrInvalidTransition, "queue item %s research is %s", id, status)
		}

		prepareReport(id, report)
		_, err = tx.Exec(ctx,
			`INSERT INTO reports (`+reportColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			report.ID, report.QueueItemID, report.CompanyName, report.CompanyURL, report.Industry,
			report.Content, report.Status, report.CreatedAt, report.UpdatedAt,
		)
		if err != nil {
			return eris.Wrap(err, "postgres: insert report")
		}

		_, err = tx.Exec(ctx,
			`UPDATE queue_items SET research_status = 'completed', report_id = $2, research_error = '', updated_at = $3 WHERE id = $1`,
			id, report.ID, report.UpdatedAt,
		)
		return eris.Wrapf(err, "postgres: link report %s", id)
	})
}

// --- Reports ---

func (s *PostgresStore) GetReport(ctx context.Context, id string) (*model.Report, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = $1`, id)
	r, err := scanReport(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "report %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get report %s", id)
	}
	return r, nil
}

func (s *PostgresStore) ListReports(ctx context.Context, limit int) ([]model.Report, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+reportColumns+` FROM reports ORDER BY created_at DESC LIMIT $1`,
		listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list reports")
	}
	defer rows.Close()

	var out []model.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan report")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list reports iterate")
}

// transitionErr distinguishes a missing row from a row in the wrong state
// after a guarded UPDATE touched nothing.
func (s *PostgresStore) transitionErr(ctx context.Context, table, id string) error {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return eris.Wrapf(err, "postgres: check %s %s", table, id)
	}
	if !exists {
		return eris.Wrapf(ErrNotFound, "%s %s", table, id)
	}
	return eris.Wrapf(ErrInvalidTransition, "%s %s", table, id)
}
