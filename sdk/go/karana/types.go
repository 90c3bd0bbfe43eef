package karana

// Action is one user intent routed to a device layer.
type Action struct {
	Layer      string         `json:"layer"`
	Operation  string         `json:"operation"`
	Params     map[string]any `json:"params,omitempty"`
	Confidence float64        `json:"confidence"`
	Reasoning  string         `json:"reasoning,omitempty"`
}

// Resources aggregates the device budget a step or plan consumes.
type Resources struct {
	BatteryMAh  float64  `json:"battery_mah"`
	Network     bool     `json:"network"`
	Camera      bool     `json:"camera"`
	StorageMB   float64  `json:"storage_mb"`
	Permissions []string `json:"permissions,omitempty"`
}

// Step is one schedulable unit inside a plan.
type Step struct {
	Action              Action    `json:"action"`
	Dependencies        []int     `json:"dependencies"`
	CanRunInParallel    bool      `json:"can_run_in_parallel"`
	EstimatedDurationMs int64     `json:"estimated_duration_ms"`
	Resources           Resources `json:"resources"`
	Risks               []string  `json:"risks,omitempty"`
}

// Edge records one dependency between two plan steps.
type Edge struct {
	From   int    `json:"from"`
	To     int    `json:"to"`
	Reason string `json:"reason"`
}

// Plan is the validated, ordered execution plan produced for a request.
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

// PlanRequest is the payload for submitting or previewing a plan. Either
// Utterance (free text routed through recognition) or Actions (pre-resolved
// intents) must be present.
type PlanRequest struct {
	ID        string         `json:"id,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	Utterance string         `json:"utterance,omitempty"`
	Locale    string         `json:"locale,omitempty"`
	Actions   []Action       `json:"actions,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// PlanResult is the planning outcome attached to a completed job or returned
// directly by a preview call.
type PlanResult struct {
	UserID       string   `json:"user_id,omitempty"`
	Utterance    string   `json:"utterance,omitempty"`
	Thought      string   `json:"thought,omitempty"`
	Actions      []Action `json:"actions"`
	Plan         *Plan    `json:"plan"`
	ChainID      string   `json:"chain_id,omitempty"`
	BlockHeight  uint64   `json:"block_height,omitempty"`
	SnapshotAt   int64    `json:"snapshot_at,omitempty"`
	Observations string   `json:"observations,omitempty"`
	CreatedAt    int64    `json:"created_at"`
}

// Job states reported by the server.
const (
	StatusPending              = "pending"
	StatusPlanning             = "planning"
	StatusReady                = "ready"
	StatusAwaitingConfirmation = "awaiting_confirmation"
	StatusFailed               = "failed"
	StatusCancelled            = "cancelled"
)

// Confirmation records a user's ruling on a plan that required approval.
type Confirmation struct {
	Approved  bool   `json:"approved"`
	Note      string `json:"note,omitempty"`
	DecidedAt int64  `json:"decided_at"`
}

// Job is the server-side view of one planning request, including its state
// machine bookkeeping and, once ready, the planning result.
type Job struct {
	ID            string         `json:"id"`
	UserID        string         `json:"user_id,omitempty"`
	Utterance     string         `json:"utterance,omitempty"`
	Locale        string         `json:"locale,omitempty"`
	Actions       []Action       `json:"actions,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Status        string         `json:"status"`
	Attempts      int            `json:"attempts"`
	MaxRetries    int            `json:"max_retries"`
	FailureReason string         `json:"failure_reason,omitempty"`
	FailureCode   string         `json:"failure_code,omitempty"`
	Result        *PlanResult    `json:"result,omitempty"`
	Confirmation  *Confirmation  `json:"confirmation,omitempty"`
	CreatedAt     int64          `json:"created_at"`
	UpdatedAt     int64          `json:"updated_at"`
}

// Stats summarises job counts by status.
type Stats struct {
	Total                int   `json:"total"`
	Pending              int   `json:"pending"`
	Planning             int   `json:"planning"`
	Ready                int   `json:"ready"`
	AwaitingConfirmation int   `json:"awaiting_confirmation"`
	Failed               int   `json:"failed"`
	Cancelled            int   `json:"cancelled"`
	OldestUpdatedAt      int64 `json:"oldest_updated_at,omitempty"`
	NewestUpdatedAt      int64 `json:"newest_updated_at,omitempty"`
}
