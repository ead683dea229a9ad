package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/AzielCF/az-prospector/leads/domain"
	"github.com/spf13/cobra"
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Operator maintenance on the lead store",
}

var leadsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print lead counts per status and product as JSON",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := bootstrap(context.Background(), bootOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		stats, err := a.leads.Stats(context.Background())
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	},
}

var leadsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every lead (requires --yes)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			return fmt.Errorf("refusing to delete all leads without --yes")
		}
		a, err := bootstrap(context.Background(), bootOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		deleted, err := a.leads.ClearAll(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("deleted %d leads\n", deleted)
		return nil
	},
}

var leadsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Move every lead in --from status to --to status",
	RunE: func(cmd *cobra.Command, _ []string) error {
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")

		a, err := bootstrap(context.Background(), bootOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		updated, err := a.leads.ResetStatus(context.Background(), domain.LeadStatus(from), domain.LeadStatus(to))
		if err != nil {
			return err
		}
		fmt.Printf("moved %d leads from %s to %s\n", updated, from, to)
		return nil
	},
}

func init() {
	leadsClearCmd.Flags().Bool("yes", false, "confirm deleting all leads")
	leadsResetCmd.Flags().String("from", string(domain.StatusFailed), "current status")
	leadsResetCmd.Flags().String("to", string(domain.StatusSent), "target status")

	leadsCmd.AddCommand(leadsStatsCmd, leadsClearCmd, leadsResetCmd)
	rootCmd.AddCommand(leadsCmd)
}
