package main

import (
	"errors"

	"github.com/spf13/cobra"
)

func newConfirmCmd() *cobra.Command {
	var (
		approve bool
		reject  bool
		note    string
		jsonOut bool
	)
	c := &cobra.Command{
		Use:   "confirm <job-id>",
		Short: "Approve or reject a plan awaiting confirmation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if approve == reject {
				return errors.New("exactly one of --approve or --reject is required")
			}
			client, err := newClient()
			if err != nil {
				return err
			}
			job, err := client.Confirm(cmd.Context(), args[0], approve, note)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), job)
			}
			renderJob(cmd.OutOrStdout(), job)
			return nil
		},
	}
	c.Flags().BoolVar(&approve, "approve", false, "Approve the pending plan")
	c.Flags().BoolVar(&reject, "reject", false, "Reject the pending plan")
	c.Flags().StringVar(&note, "note", "", "Optional note recorded with the decision")
	c.Flags().BoolVar(&jsonOut, "json", false, "Print the updated job as JSON")
	return c
}
