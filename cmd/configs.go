package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/deal-sourcing/internal/agentconfig"
	"github.com/sells-group/deal-sourcing/internal/model"
	"github.com/sells-group/deal-sourcing/internal/store"
)

var (
	configsActiveOnly bool
	configsDryRun     bool
)

var configsCmd = &cobra.Command{
	Use:   "configs",
	Short: "Manage saved agent configurations",
}

var configsImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Create configurations from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		configs, err := agentconfig.LoadFile(args[0])
		if err != nil {
			return err
		}
		if configsDryRun {
			fmt.Fprintf(cmd.OutOrStdout(), "%d configurations valid\n", len(configs))
			return nil
		}

		if err := cfg.Validate("migrate"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := importConfigurations(ctx, st, configs)
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d of %d configurations\n", n, len(configs))
		return err
	},
}

var configsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved configurations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("migrate"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		configs, err := st.ListConfigurations(ctx, configsActiveOnly)
		if err != nil {
			return eris.Wrap(err, "list configurations")
		}
		return printConfigurations(cmd.OutOrStdout(), configs)
	},
}

// importConfigurations creates each configuration in file order and stops
// at the first store error.
func importConfigurations(ctx context.Context, st store.Store, configs []model.AgentConfiguration) (int, error) {
	for i := range configs {
		c := &configs[i]
		if err := st.CreateConfiguration(ctx, c); err != nil {
			return i, eris.Wrapf(err, "create configuration %q", c.Name)
		}
		zap.L().Info("configuration imported",
			zap.String("id", c.ID),
			zap.String("name", c.Name),
			zap.String("schedule", c.Schedule),
		)
	}
	return len(configs), nil
}

func printConfigurations(w io.Writer, configs []model.AgentConfiguration) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSCHEDULE\tACTIVE\tQUERY")
	for _, c := range configs {
		schedule := c.Schedule
		if schedule == "" {
			schedule = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", c.ID, c.Name, schedule, c.Active, c.Criteria.Query)
	}
	return tw.Flush()
}

func init() {
	configsImportCmd.Flags().BoolVar(&configsDryRun, "dry-run", false, "validate the file without writing")
	configsListCmd.Flags().BoolVar(&configsActiveOnly, "active", false, "only list active configurations")
	configsCmd.AddCommand(configsImportCmd, configsListCmd)
	rootCmd.AddCommand(configsCmd)
}
