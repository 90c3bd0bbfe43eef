package main

import (
	"github.com/spf13/cobra"
)

func newGetCmd() *cobra.Command {
	var jsonOut bool
	c := &cobra.Command{
		Use:   "get <job-id>",
		Short: "Fetch a plan job by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			job, err := client.GetPlan(cmd.Context(), args[0])
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
	c.Flags().BoolVar(&jsonOut, "json", false, "Print the job as JSON")
	return c
}
