package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/jobroute/app"
	"github.com/kilianp07/jobroute/infra/fixtures"
)

var seedCmd = &cobra.Command{
	Use:   "seed <fixtures.yaml>",
	Short: "Load providers and bookings from a fixture file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		set, err := fixtures.Load(args[0])
		if err != nil {
			return err
		}
		return withService(cmd, func(ctx context.Context, svc *app.Service) error {
			if err := set.Apply(ctx, svc.Store, time.Now()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d providers and %d bookings\n", len(set.Providers), len(set.Bookings))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
