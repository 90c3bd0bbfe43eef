package planner

import "Karana-Planner/internal/intent"

// Resources describes what a step (or a whole plan) consumes. Battery and
// storage are additive across steps; network and camera are boolean needs;
// permissions are a duplicate-free union.
type Resources struct {
	BatteryMAh  float64  `json:"battery_mah"`
	Network     bool     `json:"network"`
	Camera      bool     `json:"camera"`
	StorageMB   float64  `json:"storage_mb"`
	Permissions []string `json:"permissions,omitempty"`
}

// Clone returns a copy with its own permissions slice.
func (r Resources) Clone() Resources {
	clone := r
	if r.Permissions != nil {
		clone.Permissions = append([]string(nil), r.Permissions...)
	}
	return clone
}

// Step is one executable unit of a plan. Dependencies lists the indices of
// steps that must complete first; after ordering, every listed index is
// strictly smaller than the step's own position. The list is appended in two
// passes (injected prerequisites, then detected edges) and may repeat an
// index when several rules agree on the same predecessor.
type Step struct {
	Action              intent.Action `json:"action"`
	Dependencies        []int         `json:"dependencies"`
	CanRunInParallel    bool          `json:"can_run_in_parallel"`
	EstimatedDurationMs int64         `json:"estimated_duration_ms"`
	Resources           Resources     `json:"resources"`
	Risks               []string      `json:"risks,omitempty"`
}

// Clone returns a deep copy of the step.
func (s Step) Clone() Step {
	clone := s
	clone.Action = s.Action.Clone()
	if s.Dependencies != nil {
		clone.Dependencies = append([]int(nil), s.Dependencies...)
	}
	clone.Resources = s.Resources.Clone()
	if s.Risks != nil {
		clone.Risks = append([]string(nil), s.Risks...)
	}
	return clone
}

// Edge records that step From depends on step To, with a human-readable
// reason. Indices refer to positions in the final ordered step list. Two
// edges may connect the same pair when distinct rules both apply.
type Edge struct {
	From   int    `json:"from"`
	To     int    `json:"to"`
	Reason string `json:"reason"`
}

// Plan is the product of one planning run.
//
// TotalDurationMs assumes strictly serial execution. ParallelDurationMs is
// the cheapest-path estimate: the maximum over steps of the step's own
// duration plus the durations of its (unique) dependencies. Risks preserves
// per-step order and duplicates; Blockers is empty exactly when CanExecute
// is true.
type Plan struct {
	Steps                []Step    `json:"steps"`
	Edges                []Edge    `json:"edges"`
	TotalDurationMs      int64     `json:"total_duration_ms"`
	ParallelDurationMs   int64     `json:"parallel_duration_ms"`
	Resources            Resources `json:"resources"`
	Risks                []string  `json:"risks"`
	RequiresConfirmation bool      `json:"requires_confirmation"`
	ConfirmationMessage  string    `json:"confirmation_message,omitempty"`
	CanExecute           bool      `json:"can_execute"`
	Blockers             []string  `json:"blockers"`
}

// Clone returns a deep copy of the plan.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Steps = make([]Step, len(p.Steps))
	for i, step := range p.Steps {
		clone.Steps[i] = step.Clone()
	}
	clone.Edges = append([]Edge(nil), p.Edges...)
	clone.Resources = p.Resources.Clone()
	clone.Risks = append([]string(nil), p.Risks...)
	clone.Blockers = append([]string(nil), p.Blockers...)
	return &clone
}

// StepCount returns the number of steps in the plan.
func (p *Plan) StepCount() int {
	if p == nil {
		return 0
	}
	return len(p.Steps)
}

// HasOperation reports whether any step carries the given operation.
func (p *Plan) HasOperation(op intent.Operation) bool {
	if p == nil {
		return false
	}
	for _, step := range p.Steps {
		if step.Action.Operation == op {
			return true
		}
	}
	return false
}
