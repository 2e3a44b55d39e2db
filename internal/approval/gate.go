package approval

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/deal-sourcing/internal/model"
)

// QueueWriter persists queue items and their approval decisions.
type QueueWriter interface {
	CreateQueueItem(ctx context.Context, item *model.QueueItem) error
	SetApproval(ctx context.Context, id string, status model.ApprovalStatus, reason string) error
}

// Result partitions the processed candidates.
type Result struct {
	AutoApproved []model.QueueItem
	NeedsReview  []model.QueueItem
}

// Gate persists candidates as queue items and applies the approval policy.
type Gate struct {
	store  QueueWriter
	policy Policy
}

// NewGate creates a Gate.
func NewGate(store QueueWriter, policy Policy) *Gate {
	return &Gate{store: store, policy: policy}
}

// Process writes each candidate as a pending queue item, evaluates it, and
// records the decision with its reason. A candidate whose writes fail is
// logged and left out of both partitions.
func (g *Gate) Process(ctx context.Context, workflowID string, candidates []model.Candidate, rules model.AutoApprovalRules, strategy model.Strategy) (*Result, error) {
	log := zap.L().With(zap.String("stage", "approval"), zap.String("workflow_id", workflowID))

	res := &Result{}
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		item, err := g.processOne(ctx, workflowID, c, rules, strategy)
		if err != nil {
			log.Warn("approval persist failed, skipping candidate", zap.String("name", c.Name), zap.Error(err))
			continue
		}
		if item.ApprovalStatus == model.ApprovalAutoApproved {
			res.AutoApproved = append(res.AutoApproved, *item)
		} else {
			res.NeedsReview = append(res.NeedsReview, *item)
		}
	}

	log.Info("approval complete",
		zap.Int("candidates", len(candidates)),
		zap.Int("auto_approved", len(res.AutoApproved)),
		zap.Int("needs_review", len(res.NeedsReview)),
	)
	return res, nil
}

func (g *Gate) processOne(ctx context.Context, workflowID string, c model.Candidate, rules model.AutoApprovalRules, strategy model.Strategy) (*model.QueueItem, error) {
	item := model.NewQueueItem(workflowID, c)
	if err := g.store.CreateQueueItem(ctx, &item); err != nil {
		return nil, eris.Wrap(err, "approval: create queue item")
	}

	d := g.policy.Evaluate(c, rules, strategy)
	status := model.ApprovalPending
	if d.Approved {
		status = model.ApprovalAutoApproved
	}
	if err := g.store.SetApproval(ctx, item.ID, status, d.Reason); err != nil {
		return nil, eris.Wrapf(err, "approval: record decision for %s", item.ID)
	}

	item.ApprovalStatus = status
	item.AutoApprovalReason = d.Reason
	return &item, nil
}
