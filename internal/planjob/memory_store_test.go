package planjob

import (
	"context"
	"errors"
	"testing"
	"time"

	"Karana-Planner/internal/engine"
	"Karana-Planner/internal/intent"
	"Karana-Planner/internal/planner"
)

func readyResult() *engine.Result {
	return &engine.Result{
		Thought: "transfer funds",
		Actions: []intent.Action{{Layer: intent.LayerBlockchain, Operation: intent.OpWalletTransfer}},
		Plan:    &planner.Plan{CanExecute: true, Blockers: []string{}},
	}
}

func TestMemoryStoreClaimLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	job := &Job{ID: "j1", UserID: "u1", Utterance: "转账", MaxRetries: 2, Status: StatusPending}
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, &Job{ID: "j1", MaxRetries: 2}); !errors.Is(err, ErrJobConflict) {
		t.Fatalf("duplicate create must conflict, got %v", err)
	}

	claimed, err := store.Claim(ctx, "j1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Status != StatusPlanning || claimed.Attempts != 1 {
		t.Fatalf("unexpected claimed job: %+v", claimed)
	}

	if _, err := store.Claim(ctx, "j1"); !errors.Is(err, ErrJobConflict) {
		t.Fatalf("claiming a planning job must conflict, got %v", err)
	}

	if err := store.MarkReady(ctx, "j1", readyResult()); err != nil {
		t.Fatalf("mark ready: %v", err)
	}
	got, err := store.Get(ctx, "j1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusReady || got.Result == nil || got.Result.Plan == nil {
		t.Fatalf("unexpected ready job: %+v", got)
	}

	if _, err := store.Claim(ctx, "j1"); !errors.Is(err, ErrJobCompleted) {
		t.Fatalf("claiming a ready job must report completion, got %v", err)
	}

	if _, err := store.Claim(ctx, "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("claim missing job: %v", err)
	}
}

func TestMemoryStoreClaimExhaustion(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, &Job{ID: "j2", MaxRetries: 2, Status: StatusPending}); err != nil {
		t.Fatalf("create: %v", err)
	}

	for attempt := 1; attempt <= 2; attempt++ {
		claimed, err := store.Claim(ctx, "j2")
		if err != nil {
			t.Fatalf("claim %d: %v", attempt, err)
		}
		if claimed.Attempts != attempt {
			t.Fatalf("expected attempts %d, got %d", attempt, claimed.Attempts)
		}
		if err := store.MarkFailed(ctx, "j2", CodeJobProcessing, "boom", false); err != nil {
			t.Fatalf("mark failed %d: %v", attempt, err)
		}
	}

	if _, err := store.Claim(ctx, "j2"); !errors.Is(err, ErrJobExhausted) {
		t.Fatalf("expected exhaustion, got %v", err)
	}

	got, err := store.Get(ctx, "j2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusFailed || got.FailureCode != string(CodeJobProcessing) || got.FailureReason != "boom" {
		t.Fatalf("unexpected failed job: %+v", got)
	}
}

func TestMemoryStoreClaimClearsFailure(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, &Job{ID: "j3", MaxRetries: 3, Status: StatusPending}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Claim(ctx, "j3"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.MarkFailed(ctx, "j3", CodeJobProcessing, "transient", false); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	claimed, err := store.Claim(ctx, "j3")
	if err != nil {
		t.Fatalf("reclaim failed job: %v", err)
	}
	if claimed.FailureReason != "" || claimed.FailureCode != "" {
		t.Fatalf("reclaim must clear failure fields: %+v", claimed)
	}
}

func TestMemoryStoreConfirm(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	gated := &engine.Result{
		Plan: &planner.Plan{
			RequiresConfirmation: true,
			ConfirmationMessage:  "transfer 5 KARA?",
			CanExecute:           true,
			Blockers:             []string{},
		},
	}

	if err := store.Create(ctx, &Job{ID: "c1", MaxRetries: 3, Status: StatusPending}); err != nil {
		t.Fatalf("create c1: %v", err)
	}
	if _, err := store.Confirm(ctx, "c1", Decision{Approved: true}); !errors.Is(err, ErrJobNotAwaiting) {
		t.Fatalf("confirming a pending job must fail, got %v", err)
	}

	if err := store.MarkAwaitingConfirmation(ctx, "c1", gated); err != nil {
		t.Fatalf("mark awaiting: %v", err)
	}
	approved, err := store.Confirm(ctx, "c1", Decision{Approved: true, Note: "go ahead"})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if approved.Status != StatusReady {
		t.Fatalf("approved job must become ready, got %s", approved.Status)
	}
	if approved.Confirmation == nil || !approved.Confirmation.Approved || approved.Confirmation.DecidedAt == 0 {
		t.Fatalf("decision not recorded: %+v", approved.Confirmation)
	}

	if err := store.Create(ctx, &Job{ID: "c2", MaxRetries: 3, Status: StatusPending}); err != nil {
		t.Fatalf("create c2: %v", err)
	}
	if err := store.MarkAwaitingConfirmation(ctx, "c2", gated); err != nil {
		t.Fatalf("mark awaiting c2: %v", err)
	}
	rejected, err := store.Confirm(ctx, "c2", Decision{Approved: false, Note: "too risky"})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != StatusCancelled {
		t.Fatalf("rejected job must be cancelled, got %s", rejected.Status)
	}

	if _, err := store.Confirm(ctx, "missing", Decision{}); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("confirm missing job: %v", err)
	}
}

func TestMemoryStoreCancel(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, &Job{ID: "x1", MaxRetries: 3, Status: StatusPending}); err != nil {
		t.Fatalf("create x1: %v", err)
	}
	cancelled, err := store.Cancel(ctx, "x1")
	if err != nil {
		t.Fatalf("cancel pending: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Fatalf("pending job must become cancelled, got %s", cancelled.Status)
	}
	if _, err := store.Cancel(ctx, "x1"); !errors.Is(err, ErrJobCompleted) {
		t.Fatalf("cancelling twice must report completion, got %v", err)
	}
	if _, err := store.Claim(ctx, "x1"); !errors.Is(err, ErrJobCompleted) {
		t.Fatalf("cancelled job must be skipped by workers, got %v", err)
	}

	gated := &engine.Result{Plan: &planner.Plan{RequiresConfirmation: true, CanExecute: true, Blockers: []string{}}}
	if err := store.Create(ctx, &Job{ID: "x2", MaxRetries: 3, Status: StatusPending}); err != nil {
		t.Fatalf("create x2: %v", err)
	}
	if err := store.MarkAwaitingConfirmation(ctx, "x2", gated); err != nil {
		t.Fatalf("mark awaiting x2: %v", err)
	}
	withdrawn, err := store.Cancel(ctx, "x2")
	if err != nil {
		t.Fatalf("cancel awaiting: %v", err)
	}
	if withdrawn.Status != StatusCancelled {
		t.Fatalf("awaiting job must become cancelled, got %s", withdrawn.Status)
	}

	if err := store.Create(ctx, &Job{ID: "x3", MaxRetries: 3, Status: StatusPending}); err != nil {
		t.Fatalf("create x3: %v", err)
	}
	if _, err := store.Claim(ctx, "x3"); err != nil {
		t.Fatalf("claim x3: %v", err)
	}
	if _, err := store.Cancel(ctx, "x3"); !errors.Is(err, ErrJobConflict) {
		t.Fatalf("cancelling a planning job must conflict, got %v", err)
	}
	if err := store.MarkReady(ctx, "x3", readyResult()); err != nil {
		t.Fatalf("mark ready x3: %v", err)
	}
	if _, err := store.Cancel(ctx, "x3"); !errors.Is(err, ErrJobCompleted) {
		t.Fatalf("cancelling a ready job must report completion, got %v", err)
	}

	if _, err := store.Cancel(ctx, "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("cancel missing job: %v", err)
	}
}

func TestMemoryStoreListWithFilters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Now().Add(-2 * time.Minute)

	jobs := []*Job{
		{ID: "j1", UserID: "alice", Utterance: "拍照", Status: StatusPending, MaxRetries: 3},
		{ID: "j2", UserID: "bob", Utterance: "转账", Status: StatusPending, MaxRetries: 3},
		{ID: "j3", UserID: "alice", Utterance: "发送通知", Status: StatusPending, MaxRetries: 3},
	}
	for _, job := range jobs {
		if err := store.Create(ctx, job); err != nil {
			t.Fatalf("create job %s: %v", job.ID, err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := store.MarkFailed(ctx, "j2", CodeJobProcessing, "boom", true); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := store.MarkReady(ctx, "j3", readyResult()); err != nil {
		t.Fatalf("mark ready: %v", err)
	}

	store.mu.Lock()
	store.jobs["j1"].UpdatedAt = base.Unix()
	store.jobs["j2"].UpdatedAt = base.Add(30 * time.Second).Unix()
	store.jobs["j3"].UpdatedAt = base.Add(60 * time.Second).Unix()
	store.mu.Unlock()

	all, err := store.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(all))
	}
	if all[0].ID != "j3" {
		t.Fatalf("expected newest job first, got %s", all[0].ID)
	}

	oldestFirst, err := store.List(ctx, buildListOptions([]ListOption{WithSortOrder(SortByUpdatedAsc)}))
	if err != nil {
		t.Fatalf("list ascending: %v", err)
	}
	if oldestFirst[0].ID != "j1" {
		t.Fatalf("expected oldest job first, got %s", oldestFirst[0].ID)
	}

	failed, err := store.List(ctx, buildListOptions([]ListOption{WithStatuses(StatusFailed)}))
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != "j2" {
		t.Fatalf("unexpected failed list: %+v", failed)
	}

	alice, err := store.List(ctx, buildListOptions([]ListOption{WithUserID("alice")}))
	if err != nil {
		t.Fatalf("list by user: %v", err)
	}
	if len(alice) != 2 {
		t.Fatalf("expected 2 jobs for alice, got %d", len(alice))
	}

	planned, err := store.List(ctx, buildListOptions([]ListOption{WithPlanPresence(true)}))
	if err != nil {
		t.Fatalf("list with plan: %v", err)
	}
	if len(planned) != 1 || planned[0].ID != "j3" {
		t.Fatalf("unexpected planned list: %+v", planned)
	}

	since := base.Add(15 * time.Second)
	recent, err := store.List(ctx, buildListOptions([]ListOption{WithUpdatedSince(since)}))
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 jobs to match since filter, got %d", len(recent))
	}

	matched, err := store.List(ctx, buildListOptions([]ListOption{WithQuery("transfer")}))
	if err != nil {
		t.Fatalf("list by query: %v", err)
	}
	if len(matched) != 1 || matched[0].ID != "j3" {
		t.Fatalf("query must match plan output, got %+v", matched)
	}

	page, err := store.List(ctx, buildListOptions([]ListOption{WithLimit(1), WithOffset(1)}))
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if len(page) != 1 || page[0].ID != "j2" {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestMemoryStoreStats(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Now().Add(-3 * time.Minute)
	jobs := []*Job{
		{ID: "a", UserID: "u1", Status: StatusPending, MaxRetries: 3},
		{ID: "b", UserID: "u1", Status: StatusPending, MaxRetries: 3},
		{ID: "c", UserID: "u2", Status: StatusPending, MaxRetries: 3},
		{ID: "d", UserID: "u2", Status: StatusPending, MaxRetries: 3},
	}
	for _, job := range jobs {
		if err := store.Create(ctx, job); err != nil {
			t.Fatalf("create job %s: %v", job.ID, err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	if err := store.MarkFailed(ctx, "b", CodeJobProcessing, "boom", true); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := store.MarkReady(ctx, "c", readyResult()); err != nil {
		t.Fatalf("mark ready: %v", err)
	}
	gated := &engine.Result{Plan: &planner.Plan{RequiresConfirmation: true, CanExecute: true, Blockers: []string{}}}
	if err := store.MarkAwaitingConfirmation(ctx, "d", gated); err != nil {
		t.Fatalf("mark awaiting: %v", err)
	}

	store.mu.Lock()
	store.jobs["a"].UpdatedAt = base.Unix()
	store.jobs["b"].UpdatedAt = base.Add(30 * time.Second).Unix()
	store.jobs["c"].UpdatedAt = base.Add(time.Minute).Unix()
	store.jobs["d"].UpdatedAt = base.Add(2 * time.Minute).Unix()
	store.mu.Unlock()

	stats, err := store.Stats(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 4 || stats.Pending != 1 || stats.Failed != 1 || stats.Ready != 1 || stats.AwaitingConfirmation != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.NewestUpdatedAt != base.Add(2*time.Minute).Unix() {
		t.Fatalf("unexpected newest timestamp: %d", stats.NewestUpdatedAt)
	}
	if stats.OldestUpdatedAt != base.Unix() {
		t.Fatalf("unexpected oldest timestamp: %d", stats.OldestUpdatedAt)
	}

	withPlans, err := store.Stats(ctx, buildListOptions([]ListOption{WithPlanPresence(true)}))
	if err != nil {
		t.Fatalf("stats with plan: %v", err)
	}
	if withPlans.Total != 2 || withPlans.Ready != 1 || withPlans.AwaitingConfirmation != 1 {
		t.Fatalf("unexpected stats with plan: %+v", withPlans)
	}

	userOnly, err := store.Stats(ctx, buildListOptions([]ListOption{WithUserID("u1")}))
	if err != nil {
		t.Fatalf("stats by user: %v", err)
	}
	if userOnly.Total != 2 || userOnly.Pending != 1 || userOnly.Failed != 1 {
		t.Fatalf("unexpected user stats: %+v", userOnly)
	}
}

func TestMemoryStoreIsolation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	job := &Job{
		ID:         "iso",
		MaxRetries: 3,
		Status:     StatusPending,
		Actions:    []intent.Action{{Layer: intent.LayerInterface, Operation: intent.OpUINotify, Params: map[string]any{"message": "hi"}}},
	}
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.Get(ctx, "iso")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got.Status = StatusFailed
	got.Actions[0].Params["message"] = "tampered"

	again, err := store.Get(ctx, "iso")
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if again.Status != StatusPending {
		t.Fatalf("caller mutation leaked into store: %s", again.Status)
	}
	if again.Actions[0].Params["message"] != "hi" {
		t.Fatalf("caller mutation leaked into action params: %v", again.Actions[0].Params)
	}
}
