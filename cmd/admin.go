package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/kilianp07/jobroute/app"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Expire overdue offers and heal stalled bookings once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *app.Service) error {
			rep, err := svc.Reconciler.Sweep(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rep)
		})
	},
}

var rescoreCmd = &cobra.Command{
	Use:   "rescore",
	Short: "Recompute the cached score of every provider",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *app.Service) error {
			rep, err := svc.Tracker.RescoreAll(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rep)
		})
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd, rescoreCmd)
}
