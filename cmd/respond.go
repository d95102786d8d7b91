package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/jobroute/app"
	"github.com/kilianp07/jobroute/core/model"
)

var respondFlags struct {
	provider string
	decline  bool
	reason   string
}

var respondCmd = &cobra.Command{
	Use:   "respond <assignment-id>",
	Short: "Accept or decline an offer on behalf of a provider",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if respondFlags.provider == "" {
			return fmt.Errorf("--provider is required")
		}
		decision := model.DecisionAccept
		if respondFlags.decline {
			decision = model.DecisionDecline
		}
		return withService(cmd, func(ctx context.Context, svc *app.Service) error {
			res, err := svc.Coordinator.Respond(ctx, args[0], respondFlags.provider, decision, respondFlags.reason)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		})
	},
}

func init() {
	respondCmd.Flags().StringVar(&respondFlags.provider, "provider", "", "responding provider id")
	respondCmd.Flags().BoolVar(&respondFlags.decline, "decline", false, "decline instead of accepting")
	respondCmd.Flags().StringVar(&respondFlags.reason, "reason", "", "decline reason")
	rootCmd.AddCommand(respondCmd)
}
