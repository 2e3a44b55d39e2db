package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/deal-sourcing/internal/agentconfig"
	"github.com/sells-group/deal-sourcing/internal/model"
	"github.com/sells-group/deal-sourcing/internal/workflow"
)

var (
	runConfigID     string
	runQuery        string
	runIndustry     string
	runRevenueRange string
	runGeography    string
	runStrategy     string
	runMaxResults   int
	runMinScore     int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the discovery pipeline once and print the workflow",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if runConfigID == "" && runQuery == "" {
			return eris.New("either --config-id or --query is required")
		}

		env, err := initPipeline(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		var wf *model.Workflow
		if runConfigID != "" {
			wf, err = env.Orchestrator.RunConfiguration(ctx, runConfigID, model.TriggerManual)
		} else {
			req, buildErr := runRequestFromFlags()
			if buildErr != nil {
				return buildErr
			}
			wf, err = env.Orchestrator.Run(ctx, req)
		}
		if err != nil {
			return eris.Wrap(err, "run pipeline")
		}

		zap.L().Info("workflow finished",
			zap.String("workflow_id", wf.ID),
			zap.String("status", string(wf.Status)),
			zap.Int("found", wf.CompaniesFound),
			zap.Int("auto_approved", wf.CompaniesAutoApproved),
			zap.Int("researched", wf.CompaniesResearched),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(wf)
	},
}

// runRequestFromFlags builds a manual-trigger request from the command flags.
func runRequestFromFlags() (workflow.RunRequest, error) {
	criteria := model.SearchCriteria{
		Query:        runQuery,
		Industry:     runIndustry,
		RevenueRange: runRevenueRange,
		Geography:    runGeography,
		Strategy:     model.Strategy(runStrategy),
		MaxResults:   runMaxResults,
	}
	rules := model.AutoApprovalRules{MinScore: runMinScore}

	if err := agentconfig.ValidateStruct(&criteria); err != nil {
		return workflow.RunRequest{}, eris.Wrap(err, "invalid criteria")
	}
	if err := agentconfig.ValidateStruct(&rules); err != nil {
		return workflow.RunRequest{}, eris.Wrap(err, "invalid rules")
	}
	return workflow.RunRequest{Criteria: criteria, Rules: rules, Trigger: model.TriggerManual}, nil
}

func init() {
	runCmd.Flags().StringVar(&runConfigID, "config-id", "", "run a saved configuration")
	runCmd.Flags().StringVar(&runQuery, "query", "", "search query")
	runCmd.Flags().StringVar(&runIndustry, "industry", "", "target industry")
	runCmd.Flags().StringVar(&runRevenueRange, "revenue-range", "", "target revenue range, e.g. $10M-$50M")
	runCmd.Flags().StringVar(&runGeography, "geography", "", "target geography")
	runCmd.Flags().StringVar(&runStrategy, "strategy", string(model.StrategyBuySide), "buy-side, sell-side, or dual")
	runCmd.Flags().IntVar(&runMaxResults, "max-results", 0, "search result count (default from config)")
	runCmd.Flags().IntVar(&runMinScore, "min-score", 0, "auto-approval minimum score override")
	rootCmd.AddCommand(runCmd)
}
