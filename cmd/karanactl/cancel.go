package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCancelCmd() *cobra.Command {
	var jsonOut bool
	c := &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Withdraw a queued or awaiting plan before it executes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			job, err := client.Cancel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), job)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cancelled job %s (status %s)\n", job.ID, job.Status)
			return nil
		},
	}
	c.Flags().BoolVar(&jsonOut, "json", false, "Print the cancelled job as JSON")
	return c
}
