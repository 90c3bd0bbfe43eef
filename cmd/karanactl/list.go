package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"Karana-Planner/sdk/go/karana"
)

func newListCmd() *cobra.Command {
	var (
		statuses []string
		userID   string
		limit    int
		offset   int
		since    string
		until    string
		hasPlan  bool
		order    string
		query    string
		jsonOut  bool
	)
	c := &cobra.Command{
		Use:   "list",
		Short: "List plan jobs with optional filters",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := karana.ListPlansOptions{
				Statuses: statuses,
				UserID:   userID,
				Limit:    limit,
				Offset:   offset,
				Order:    order,
				Query:    query,
			}
			var err error
			if opts.Since, err = parseTimeFlag(since); err != nil {
				return fmt.Errorf("invalid --since: %w", err)
			}
			if opts.Until, err = parseTimeFlag(until); err != nil {
				return fmt.Errorf("invalid --until: %w", err)
			}
			if cmd.Flags().Changed("has-plan") {
				opts.HasPlan = &hasPlan
			}

			client, err := newClient()
			if err != nil {
				return err
			}
			jobs, err := client.ListPlans(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), jobs)
			}
			if len(jobs) == 0 {
				cmd.Println("(no jobs matched)")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tUSER\tSTATUS\tATTEMPTS\tUPDATED\tUTTERANCE")
			for _, job := range jobs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
					job.ID, job.UserID, job.Status, job.Attempts, job.MaxRetries,
					formatUnix(job.UpdatedAt), truncate(job.Utterance, 48))
			}
			return tw.Flush()
		},
	}
	c.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status, repeatable or comma separated")
	c.Flags().StringVar(&userID, "user", "", "Filter by user ID")
	c.Flags().IntVar(&limit, "limit", 0, "Maximum number of jobs to return")
	c.Flags().IntVar(&offset, "offset", 0, "Number of jobs to skip")
	c.Flags().StringVar(&since, "since", "", "Only jobs updated at or after this RFC3339 time")
	c.Flags().StringVar(&until, "until", "", "Only jobs updated at or before this RFC3339 time")
	c.Flags().BoolVar(&hasPlan, "has-plan", false, "Filter by presence of a computed plan")
	c.Flags().StringVar(&order, "order", "", "Sort order by update time: asc or desc")
	c.Flags().StringVar(&query, "query", "", "Match against utterances, observations and failure reasons")
	c.Flags().BoolVar(&jsonOut, "json", false, "Print jobs as JSON")
	return c
}

func parseTimeFlag(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, value)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max])) + "…"
}
