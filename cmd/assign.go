package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/kilianp07/jobroute/app"
	"github.com/kilianp07/jobroute/core/model"
)

var manualProvider string

var assignCmd = &cobra.Command{
	Use:   "assign <booking-id>",
	Short: "Start dispatch for a booking",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		method := model.MethodAutomatic
		if manualProvider != "" {
			method = model.MethodManual
		}
		return withService(cmd, func(ctx context.Context, svc *app.Service) error {
			res, err := svc.Coordinator.Assign(ctx, args[0], method, manualProvider)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		})
	},
}

func init() {
	assignCmd.Flags().StringVar(&manualProvider, "manual", "", "assign this provider directly")
	rootCmd.AddCommand(assignCmd)
}
