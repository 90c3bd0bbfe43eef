package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"Karana-Planner/sdk/go/karana"
)

func newStatsCmd() *cobra.Command {
	var (
		userID  string
		query   string
		jsonOut bool
	)
	c := &cobra.Command{
		Use:   "stats",
		Short: "Summarise job counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			stats, err := client.Stats(cmd.Context(), karana.ListPlansOptions{
				UserID: userID,
				Query:  query,
			})
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), stats)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "total\t%d\n", stats.Total)
			fmt.Fprintf(tw, "pending\t%d\n", stats.Pending)
			fmt.Fprintf(tw, "planning\t%d\n", stats.Planning)
			fmt.Fprintf(tw, "ready\t%d\n", stats.Ready)
			fmt.Fprintf(tw, "awaiting_confirmation\t%d\n", stats.AwaitingConfirmation)
			fmt.Fprintf(tw, "failed\t%d\n", stats.Failed)
			fmt.Fprintf(tw, "cancelled\t%d\n", stats.Cancelled)
			if stats.OldestUpdatedAt > 0 {
				fmt.Fprintf(tw, "oldest\t%s\n", formatUnix(stats.OldestUpdatedAt))
			}
			if stats.NewestUpdatedAt > 0 {
				fmt.Fprintf(tw, "newest\t%s\n", formatUnix(stats.NewestUpdatedAt))
			}
			return tw.Flush()
		},
	}
	c.Flags().StringVar(&userID, "user", "", "Filter by user ID")
	c.Flags().StringVar(&query, "query", "", "Match against utterances, observations and failure reasons")
	c.Flags().BoolVar(&jsonOut, "json", false, "Print stats as JSON")
	return c
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the karanad server is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			if err := client.Health(cmd.Context()); err != nil {
				return err
			}
			cmd.Println("ok")
			return nil
		},
	}
}
