package main

import (
	"context"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/deal-sourcing/internal/export"
	"github.com/sells-group/deal-sourcing/internal/store"
)

var (
	exportWorkflowID string
	exportOut        string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a workflow's queue to an Excel workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("export"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		out := exportOut
		if out == "" {
			out = exportWorkflowID + ".xlsx"
		}
		f, err := os.Create(out)
		if err != nil {
			return eris.Wrapf(err, "create %s", out)
		}
		defer f.Close() //nolint:errcheck

		n, err := exportWorkflow(ctx, st, exportWorkflowID, f)
		if err != nil {
			return err
		}
		zap.L().Info("workflow exported", zap.String("workflow_id", exportWorkflowID), zap.Int("items", n), zap.String("file", out))
		return nil
	},
}

// exportWorkflow writes the workflow summary and all of its queue items.
func exportWorkflow(ctx context.Context, st store.Store, workflowID string, w io.Writer) (int, error) {
	wf, err := st.GetWorkflow(ctx, workflowID)
	if err != nil {
		return 0, eris.Wrapf(err, "get workflow %s", workflowID)
	}
	items, err := st.ListQueueItems(ctx, store.QueueFilter{WorkflowID: workflowID, Limit: 10_000})
	if err != nil {
		return 0, eris.Wrap(err, "list queue items")
	}
	if err := export.WriteQueueXLSX(w, wf, items); err != nil {
		return 0, err
	}
	return len(items), nil
}

func init() {
	exportCmd.Flags().StringVar(&exportWorkflowID, "workflow-id", "", "workflow to export")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output path (default <workflow-id>.xlsx)")
	_ = exportCmd.MarkFlagRequired("workflow-id")
	rootCmd.AddCommand(exportCmd)
}
