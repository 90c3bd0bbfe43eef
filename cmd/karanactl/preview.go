package main

import (
	"errors"

	"github.com/spf13/cobra"

	"Karana-Planner/sdk/go/karana"
)

func newPreviewCmd() *cobra.Command {
	var (
		userID      string
		locale      string
		actionsFile string
		jsonOut     bool
	)
	c := &cobra.Command{
		Use:   "preview [utterance]",
		Short: "Compute a plan synchronously without enqueueing a job",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var utterance string
			if len(args) == 1 {
				utterance = args[0]
			}
			actions, err := loadActions(actionsFile)
			if err != nil {
				return err
			}
			if utterance == "" && len(actions) == 0 {
				return errors.New("either an utterance or --actions-file is required")
			}

			client, err := newClient()
			if err != nil {
				return err
			}
			result, err := client.Preview(cmd.Context(), karana.PlanRequest{
				UserID:    userID,
				Utterance: utterance,
				Locale:    locale,
				Actions:   actions,
			})
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), result)
			}
			renderResult(cmd.OutOrStdout(), result)
			return nil
		},
	}
	c.Flags().StringVar(&userID, "user", "", "User the plan is computed for")
	c.Flags().StringVar(&locale, "locale", "", "Utterance locale hint, e.g. zh-CN")
	c.Flags().StringVar(&actionsFile, "actions-file", "", "JSON file with pre-parsed actions, bypassing intent recognition")
	c.Flags().BoolVar(&jsonOut, "json", false, "Print the plan result as JSON")
	return c
}
