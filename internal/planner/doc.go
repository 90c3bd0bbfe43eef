// Package planner turns a sequence of typed intent actions into a validated,
// resource-aware execution plan. It injects missing prerequisite actions,
// estimates per-step cost and duration, detects ordering dependencies,
// topologically sorts the steps, aggregates plan-wide resources and risks,
// checks feasibility against the device snapshot, and decides whether the
// plan needs explicit user confirmation before execution.
//
// Planning is pure and synchronous: the same actions, snapshot, and profile
// always produce the same plan, and no I/O happens inside the pipeline.
package planner
