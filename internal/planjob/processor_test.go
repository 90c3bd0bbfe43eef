package planjob

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"Karana-Planner/internal/engine"
	xerrors "Karana-Planner/internal/errors"
	"Karana-Planner/internal/intent"
	"Karana-Planner/internal/observability/alerting"
	"Karana-Planner/internal/planner"
)

type fakeEngine struct {
	processed atomic.Int32
	latency   time.Duration
	respond   func(req engine.Request) (*engine.Result, error)
}

func (f *fakeEngine) Execute(ctx context.Context, req engine.Request) (*engine.Result, error) {
	if f.latency > 0 {
		select {
		case <-time.After(f.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.processed.Add(1)
	if f.respond != nil {
		return f.respond(req)
	}
	return &engine.Result{
		UserID:  req.UserID,
		Actions: intent.CloneAll(req.Actions),
		Plan:    &planner.Plan{CanExecute: true, Blockers: []string{}},
	}, nil
}

type captureDispatcher struct {
	mu     sync.Mutex
	events []alerting.Event
}

func (c *captureDispatcher) Notify(_ context.Context, event alerting.Event) error {
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()
	return nil
}

func (c *captureDispatcher) stages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	stages := make([]string, 0, len(c.events))
	for _, event := range c.events {
		stages = append(stages, event.Metadata["stage"])
	}
	return stages
}

type recoveryFunc func(ctx context.Context, job *Job, cause error) (*engine.Result, error)

func (f recoveryFunc) Recover(ctx context.Context, job *Job, cause error) (*engine.Result, error) {
	return f(ctx, job, cause)
}

func TestProcessorHandlesConcurrentJobs(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(1024)
	exec := &fakeEngine{latency: 10 * time.Millisecond}

	service := NewService(store, queue, 3)
	processor := NewProcessor(exec, store, queue, queue, WithWorkerCount(8))

	go func() {
		if err := processor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("processor exited: %v", err)
		}
	}()

	total := 200
	for i := 0; i < total; i++ {
		utterance := fmt.Sprintf("发送第 %d 条通知", i)
		if _, err := service.Submit(ctx, engine.Request{UserID: "u-load", Utterance: utterance}); err != nil {
			t.Fatalf("提交任务失败: %v", err)
		}
	}

	deadline := time.After(5 * time.Second)
	for {
		if int(exec.processed.Load()) >= total {
			cancel()
			break
		}
		select {
		case <-deadline:
			t.Fatalf("任务未能及时处理，已完成 %d", exec.processed.Load())
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestProcessorMarksReady(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	queue := NewMemoryQueue(16)
	exec := &fakeEngine{}
	processor := NewProcessor(exec, store, queue, queue)

	job := &Job{ID: "p-ready", UserID: "u1", Utterance: "发送通知", MaxRetries: 3, Status: StatusPending}
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := processor.handle(ctx, job.ID); err != nil {
		t.Fatalf("handle: %v", err)
	}

	got, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusReady {
		t.Fatalf("expected ready, got %s", got.Status)
	}
	if got.Result == nil || got.Result.Plan == nil || !got.Result.Plan.CanExecute {
		t.Fatalf("unexpected result: %+v", got.Result)
	}
	if got.Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", got.Attempts)
	}
}

func TestProcessorMarksAwaitingConfirmation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	queue := NewMemoryQueue(16)
	exec := &fakeEngine{
		respond: func(req engine.Request) (*engine.Result, error) {
			return &engine.Result{
				Plan: &planner.Plan{
					RequiresConfirmation: true,
					ConfirmationMessage:  "確認转账 5 KARA?",
					CanExecute:           true,
					Blockers:             []string{},
				},
			}, nil
		},
	}
	processor := NewProcessor(exec, store, queue, queue)

	job := &Job{ID: "p-confirm", UserID: "u1", Utterance: "转账", MaxRetries: 3, Status: StatusPending}
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := processor.handle(ctx, job.ID); err != nil {
		t.Fatalf("handle: %v", err)
	}

	got, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusAwaitingConfirmation {
		t.Fatalf("gated plan must await confirmation, got %s", got.Status)
	}

	if err := processor.handle(ctx, job.ID); err != nil {
		t.Fatalf("second handle must skip silently: %v", err)
	}
	if exec.processed.Load() != 1 {
		t.Fatalf("awaiting job must not be re-planned, executions %d", exec.processed.Load())
	}
}

func TestProcessorRetriesUntilExhausted(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	queue := NewMemoryQueue(16)
	alerts := &captureDispatcher{}
	exec := &fakeEngine{
		respond: func(req engine.Request) (*engine.Result, error) {
			return nil, xerrors.New(CodeJobProcessing, "快照暂不可用")
		},
	}
	processor := NewProcessor(exec, store, queue, queue, WithAlertDispatcher(alerts))

	job := &Job{ID: "p-retry", UserID: "u1", Utterance: "拍照", MaxRetries: 2, Status: StatusPending}
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := processor.handle(ctx, job.ID); err != nil {
		t.Fatalf("first handle: %v", err)
	}
	mid, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("get after first failure: %v", err)
	}
	if mid.Status != StatusFailed || mid.Attempts != 1 {
		t.Fatalf("unexpected interim state: %+v", mid)
	}

	if err := processor.handle(ctx, job.ID); err != nil {
		t.Fatalf("second handle: %v", err)
	}
	final, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("get after exhaustion: %v", err)
	}
	if final.Status != StatusFailed || final.Attempts != 2 {
		t.Fatalf("unexpected final state: %+v", final)
	}
	if final.FailureCode != string(CodeJobProcessing) {
		t.Fatalf("unexpected failure code: %s", final.FailureCode)
	}

	if err := processor.handle(ctx, job.ID); err != nil {
		t.Fatalf("exhausted job must be skipped silently: %v", err)
	}
	if exec.processed.Load() != 2 {
		t.Fatalf("expected exactly 2 executions, got %d", exec.processed.Load())
	}

	stages := alerts.stages()
	if len(stages) != 2 || stages[0] != "retry" || stages[1] != "terminal" {
		t.Fatalf("unexpected alert stages: %v", stages)
	}
}

func TestProcessorRecoversNonRetryableFailure(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	queue := NewMemoryQueue(16)
	alerts := &captureDispatcher{}
	exec := &fakeEngine{
		respond: func(req engine.Request) (*engine.Result, error) {
			return nil, errors.New("识别服务配置缺失")
		},
	}
	recovery := recoveryFunc(func(ctx context.Context, job *Job, cause error) (*engine.Result, error) {
		return &engine.Result{
			UserID:  job.UserID,
			Actions: []intent.Action{{Layer: intent.LayerInterface, Operation: intent.OpUINotify}},
			Plan:    &planner.Plan{CanExecute: true, Blockers: []string{}},
		}, nil
	})
	processor := NewProcessor(exec, store, queue, queue,
		WithRecoveryHandler(recovery),
		WithAlertDispatcher(alerts))

	job := &Job{ID: "p-degrade", UserID: "u1", Utterance: "通知", MaxRetries: 3, Status: StatusPending}
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := processor.handle(ctx, job.ID); err != nil {
		t.Fatalf("handle: %v", err)
	}

	got, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusReady {
		t.Fatalf("recovered job must be ready, got %s", got.Status)
	}
	if got.Result == nil || got.Result.Observations == "" {
		t.Fatalf("fallback result must carry observations: %+v", got.Result)
	}

	stages := alerts.stages()
	if len(stages) != 1 || stages[0] != "degraded" {
		t.Fatalf("unexpected alert stages: %v", stages)
	}
}

func TestProcessorTerminalOnNonRetryableWithoutRecovery(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	queue := NewMemoryQueue(16)
	alerts := &captureDispatcher{}
	exec := &fakeEngine{
		respond: func(req engine.Request) (*engine.Result, error) {
			return nil, xerrors.New(engine.CodeEngineNoInput, "缺少指令与动作")
		},
	}
	processor := NewProcessor(exec, store, queue, queue, WithAlertDispatcher(alerts))

	job := &Job{ID: "p-terminal", UserID: "u1", Utterance: " ", MaxRetries: 3, Status: StatusPending}
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := processor.handle(ctx, job.ID); err != nil {
		t.Fatalf("handle: %v", err)
	}

	got, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusFailed || got.Attempts != 1 {
		t.Fatalf("non-retryable failure must be terminal on first attempt: %+v", got)
	}
	if got.FailureCode != string(engine.CodeEngineNoInput) {
		t.Fatalf("unexpected failure code: %s", got.FailureCode)
	}
	if exec.processed.Load() != 1 {
		t.Fatalf("expected a single execution, got %d", exec.processed.Load())
	}

	stages := alerts.stages()
	if len(stages) != 1 || stages[0] != "terminal" {
		t.Fatalf("unexpected alert stages: %v", stages)
	}
}
