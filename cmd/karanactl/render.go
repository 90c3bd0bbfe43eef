package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"Karana-Planner/sdk/go/karana"
)

// renderJob 打印任务概要，结果存在时附带计划明细。
func renderJob(w io.Writer, job karana.Job) {
	fmt.Fprintf(w, "job:       %s\n", job.ID)
	fmt.Fprintf(w, "status:    %s\n", job.Status)
	if job.UserID != "" {
		fmt.Fprintf(w, "user:      %s\n", job.UserID)
	}
	if job.Utterance != "" {
		fmt.Fprintf(w, "utterance: %s\n", job.Utterance)
	}
	fmt.Fprintf(w, "attempts:  %d/%d\n", job.Attempts, job.MaxRetries)
	fmt.Fprintf(w, "updated:   %s\n", formatUnix(job.UpdatedAt))
	if job.FailureReason != "" {
		fmt.Fprintf(w, "failure:   %s", job.FailureReason)
		if job.FailureCode != "" {
			fmt.Fprintf(w, " (%s)", job.FailureCode)
		}
		fmt.Fprintln(w)
	}
	if job.Confirmation != nil {
		verdict := "rejected"
		if job.Confirmation.Approved {
			verdict = "approved"
		}
		fmt.Fprintf(w, "decision:  %s", verdict)
		if job.Confirmation.Note != "" {
			fmt.Fprintf(w, " (%s)", job.Confirmation.Note)
		}
		fmt.Fprintln(w)
	}
	if job.Result != nil {
		fmt.Fprintln(w)
		renderResult(w, *job.Result)
	}
}

// renderResult 打印规划结果：思考、快照来源与计划。
func renderResult(w io.Writer, result karana.PlanResult) {
	if result.Thought != "" {
		fmt.Fprintf(w, "thought:   %s\n", result.Thought)
	}
	if result.ChainID != "" {
		fmt.Fprintf(w, "chain:     %s", result.ChainID)
		if result.BlockHeight > 0 {
			fmt.Fprintf(w, " @ block %d", result.BlockHeight)
		}
		fmt.Fprintln(w)
	}
	if result.Observations != "" {
		fmt.Fprintf(w, "observed:  %s\n", result.Observations)
	}
	if result.Plan != nil {
		renderPlan(w, *result.Plan)
	}
}

// renderPlan 以表格展示步骤与依赖，并汇总时长、风险与阻塞项。
func renderPlan(w io.Writer, plan karana.Plan) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tACTION\tDEPS\tPARALLEL\tDURATION\tRISKS")
	for i, step := range plan.Steps {
		deps := "-"
		if len(step.Dependencies) > 0 {
			parts := make([]string, len(step.Dependencies))
			for j, dep := range step.Dependencies {
				parts[j] = strconv.Itoa(dep)
			}
			deps = strings.Join(parts, ",")
		}
		risks := "-"
		if len(step.Risks) > 0 {
			risks = strings.Join(step.Risks, "; ")
		}
		fmt.Fprintf(tw, "%d\t%s.%s\t%s\t%v\t%dms\t%s\n",
			i, step.Action.Layer, step.Action.Operation, deps,
			step.CanRunInParallel, step.EstimatedDurationMs, risks)
	}
	tw.Flush()

	fmt.Fprintf(w, "duration:  %dms sequential, %dms parallel\n",
		plan.TotalDurationMs, plan.ParallelDurationMs)
	if len(plan.Risks) > 0 {
		fmt.Fprintf(w, "risks:     %s\n", strings.Join(plan.Risks, "; "))
	}
	if plan.RequiresConfirmation {
		fmt.Fprintf(w, "confirm:   %s\n", plan.ConfirmationMessage)
	}
	if plan.CanExecute {
		fmt.Fprintln(w, "ready:     plan can execute")
	} else {
		fmt.Fprintf(w, "blocked:   %s\n", strings.Join(plan.Blockers, "; "))
	}
}
