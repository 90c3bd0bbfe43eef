package planner

import (
	"errors"
	"reflect"
	"testing"

	"Karana-Planner/internal/intent"
)

func namedStep(op intent.Operation, durationMs int64, deps ...int) Step {
	if deps == nil {
		deps = []int{}
	}
	return Step{
		Action:              intent.Action{Layer: intent.LayerInterface, Operation: op},
		Dependencies:        deps,
		CanRunInParallel:    true,
		EstimatedDurationMs: durationMs,
	}
}

func TestOrderStepsKeepsUnconstrainedOrder(t *testing.T) {
	steps := []Step{
		namedStep("A", 100),
		namedStep("B", 200),
		namedStep("C", 300),
	}
	ordered, edges, err := orderSteps(steps, []Edge{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(edges) != 0 {
		t.Fatalf("no edges in, no edges out: %v", edges)
	}
	for i, want := range []intent.Operation{"A", "B", "C"} {
		if got := ordered[i].Action.Operation; got != want {
			t.Fatalf("position %d: got %s want %s", i, got, want)
		}
	}
}

func TestOrderStepsMovesPrerequisitesFirst(t *testing.T) {
	steps := []Step{
		namedStep("OPEN", 1200, 1),
		namedStep("INSTALL", 10000),
	}
	edges := []Edge{{From: 0, To: 1, Reason: "install first"}}

	ordered, remapped, err := orderSteps(steps, edges)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ordered[0].Action.Operation; got != "INSTALL" {
		t.Fatalf("prerequisite must come first, got %s", got)
	}
	if !reflect.DeepEqual(ordered[1].Dependencies, []int{0}) {
		t.Fatalf("dependencies not remapped: %v", ordered[1].Dependencies)
	}
	if remapped[0].From != 1 || remapped[0].To != 0 {
		t.Fatalf("edge not remapped: %+v", remapped[0])
	}
	for i, step := range ordered {
		for _, dep := range step.Dependencies {
			if dep >= i {
				t.Fatalf("step %d depends on later step %d", i, dep)
			}
		}
	}
}

func TestOrderStepsPicksSmallestReadyIndex(t *testing.T) {
	steps := []Step{
		namedStep("LAST", 100, 2),
		namedStep("FIRST", 100),
		namedStep("SECOND", 100),
	}
	edges := []Edge{{From: 0, To: 2, Reason: "wait for second"}}

	ordered, _, err := orderSteps(steps, edges)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []intent.Operation{"FIRST", "SECOND", "LAST"}
	for i, op := range want {
		if got := ordered[i].Action.Operation; got != op {
			t.Fatalf("position %d: got %s want %s", i, got, op)
		}
	}
}

func TestOrderStepsToleratesParallelEdges(t *testing.T) {
	steps := []Step{
		namedStep("CREATE", 2000),
		namedStep("TRANSFER", 3000, 0, 0),
	}
	edges := []Edge{
		{From: 1, To: 0, Reason: "seeded"},
		{From: 1, To: 0, Reason: "detected"},
	}

	ordered, _, err := orderSteps(steps, edges)
	if err != nil {
		t.Fatalf("parallel edges must not deadlock the sort: %v", err)
	}
	if !reflect.DeepEqual(ordered[1].Dependencies, []int{0, 0}) {
		t.Fatalf("duplicate dependencies must survive remapping: %v", ordered[1].Dependencies)
	}
}

func TestOrderStepsRejectsCycles(t *testing.T) {
	steps := []Step{
		namedStep("A", 100, 1),
		namedStep("B", 100, 0),
	}
	edges := []Edge{
		{From: 0, To: 1, Reason: "a waits for b"},
		{From: 1, To: 0, Reason: "b waits for a"},
	}

	_, _, err := orderSteps(steps, edges)
	if !errors.Is(err, ErrDependencyCycle) {
		t.Fatalf("cycle must be rejected, got %v", err)
	}
}
