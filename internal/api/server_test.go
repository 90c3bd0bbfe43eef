package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"Karana-Planner/internal/engine"
	"Karana-Planner/internal/intent"
	"Karana-Planner/internal/planjob"
	"Karana-Planner/internal/planner"
)

type stubPreviewer struct {
	result *engine.Result
	err    error
}

func (s *stubPreviewer) Execute(ctx context.Context, req engine.Request) (*engine.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func newTestServer(t *testing.T) (*Server, *planjob.MemoryStore) {
	t.Helper()
	store := planjob.NewMemoryStore()
	queue := planjob.NewMemoryQueue(16)
	t.Cleanup(func() { _ = queue.Close() })
	svc := planjob.NewService(store, queue, 3)
	preview := &stubPreviewer{result: &engine.Result{
		Actions: []intent.Action{{Layer: intent.LayerInterface, Operation: intent.OpUINotify}},
		Plan:    &planner.Plan{CanExecute: true, Blockers: []string{}},
	}}
	return NewServer(":0", svc, preview), store
}

func TestHandleSubmitPlan(t *testing.T) {
	server, _ := newTestServer(t)

	body := strings.NewReader(`{"user_id":"u-1","actions":[{"layer":"INTERFACE","operation":"UI_NOTIFY","params":{"message":"hi"}}]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/plans", body)
	rec := httptest.NewRecorder()

	server.handlePlans(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("unexpected status: got %d want %d, body %s", rec.Code, http.StatusAccepted, rec.Body.String())
	}
	var job planjob.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if job.ID == "" || job.Status != planjob.StatusPending {
		t.Fatalf("unexpected job: %+v", job)
	}
}

func TestHandleSubmitPlanValidation(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/plans", strings.NewReader(`{"user_id":"u-1"}`))
	rec := httptest.NewRecorder()

	server.handlePlans(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
	var payload struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if payload.Error.Code != string(planjob.CodeJobValidation) {
		t.Fatalf("unexpected error code: %s", payload.Error.Code)
	}
}

func TestHandlePlanDetail(t *testing.T) {
	server, store := newTestServer(t)

	sample := &planjob.Job{
		ID:         "job-ready",
		UserID:     "u-1",
		Status:     planjob.StatusReady,
		Attempts:   1,
		MaxRetries: 3,
		Result: &engine.Result{
			Plan: &planner.Plan{CanExecute: true, Blockers: []string{}},
		},
	}
	if err := store.Create(context.Background(), sample); err != nil {
		t.Fatalf("create sample job: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/plans/job-ready", nil)
	rec := httptest.NewRecorder()

	server.handlePlanSubpath(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rec.Code, http.StatusOK)
	}
	var got planjob.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.ID != sample.ID || got.Result == nil || got.Result.Plan == nil {
		t.Fatalf("unexpected job payload: %+v", got)
	}
}

func TestHandlePlanDetailErrors(t *testing.T) {
	server, _ := newTestServer(t)

	t.Run("invalid method", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/plans/job-1", nil)
		rec := httptest.NewRecorder()

		server.handlePlanSubpath(rec, req)

		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
		}
	})

	t.Run("not found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/plans/missing", nil)
		rec := httptest.NewRecorder()

		server.handlePlanSubpath(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})

	t.Run("detail by query parameter", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/plans?id=missing", nil)
		rec := httptest.NewRecorder()

		server.handlePlans(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})
}

func TestHandleListPlansFilters(t *testing.T) {
	server, store := newTestServer(t)

	jobs := []*planjob.Job{
		{ID: "a", UserID: "u-1", Status: planjob.StatusReady, MaxRetries: 3, CreatedAt: 100, UpdatedAt: 100},
		{ID: "b", UserID: "u-2", Status: planjob.StatusFailed, MaxRetries: 3, CreatedAt: 200, UpdatedAt: 200},
		{ID: "c", UserID: "u-1", Status: planjob.StatusPending, MaxRetries: 3, CreatedAt: 300, UpdatedAt: 300},
	}
	for _, job := range jobs {
		if err := store.Create(context.Background(), job); err != nil {
			t.Fatalf("create job %s: %v", job.ID, err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/plans?user_id=u-1&limit=10", nil)
	rec := httptest.NewRecorder()

	server.handlePlans(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var listed []*planjob.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected 2 jobs for u-1, got %d", len(listed))
	}
	for _, job := range listed {
		if job.UserID != "u-1" {
			t.Fatalf("filter leaked job: %+v", job)
		}
	}

	t.Run("invalid status", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/plans?status=bogus", nil)
		rec := httptest.NewRecorder()

		server.handlePlans(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
		}
	})
}

func TestHandleConfirmPlan(t *testing.T) {
	server, store := newTestServer(t)

	job := &planjob.Job{ID: "job-confirm", UserID: "u-1", Status: planjob.StatusPending, MaxRetries: 3}
	if err := store.Create(context.Background(), job); err != nil {
		t.Fatalf("create job: %v", err)
	}
	result := &engine.Result{Plan: &planner.Plan{RequiresConfirmation: true, CanExecute: true, Blockers: []string{}}}
	if err := store.MarkAwaitingConfirmation(context.Background(), job.ID, result); err != nil {
		t.Fatalf("mark awaiting: %v", err)
	}

	body := strings.NewReader(`{"approved":true,"note":"proceed"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/plans/job-confirm/confirmation", body)
	rec := httptest.NewRecorder()

	server.handlePlanSubpath(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d, body %s", rec.Code, rec.Body.String())
	}
	var confirmed planjob.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &confirmed); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if confirmed.Status != planjob.StatusReady {
		t.Fatalf("expected ready after approval, got %s", confirmed.Status)
	}
	if confirmed.Confirmation == nil || !confirmed.Confirmation.Approved {
		t.Fatalf("expected recorded decision, got %+v", confirmed.Confirmation)
	}

	t.Run("not awaiting", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/plans/job-confirm/confirmation", strings.NewReader(`{"approved":false}`))
		rec := httptest.NewRecorder()

		server.handlePlanSubpath(rec, req)

		if rec.Code != http.StatusConflict {
			t.Fatalf("expected status %d, got %d", http.StatusConflict, rec.Code)
		}
	})
}

func TestHandleCancelPlan(t *testing.T) {
	server, store := newTestServer(t)

	job := &planjob.Job{ID: "job-cancel", UserID: "u-1", Status: planjob.StatusPending, MaxRetries: 3}
	if err := store.Create(context.Background(), job); err != nil {
		t.Fatalf("create job: %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/plans/job-cancel", nil)
	rec := httptest.NewRecorder()

	server.handlePlanSubpath(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d, body %s", rec.Code, rec.Body.String())
	}
	var cancelled planjob.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &cancelled); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if cancelled.Status != planjob.StatusCancelled {
		t.Fatalf("expected cancelled status, got %s", cancelled.Status)
	}

	t.Run("already settled", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/v1/plans/job-cancel", nil)
		rec := httptest.NewRecorder()

		server.handlePlanSubpath(rec, req)

		if rec.Code != http.StatusConflict {
			t.Fatalf("expected status %d, got %d", http.StatusConflict, rec.Code)
		}
	})

	t.Run("missing job", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/v1/plans/nope", nil)
		rec := httptest.NewRecorder()

		server.handlePlanSubpath(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})
}

func TestHandlePreview(t *testing.T) {
	server, _ := newTestServer(t)

	body := strings.NewReader(`{"user_id":"u-1","actions":[{"layer":"INTERFACE","operation":"UI_NOTIFY"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/plans/preview", body)
	rec := httptest.NewRecorder()

	server.handlePreview(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d, body %s", rec.Code, rec.Body.String())
	}
	var result engine.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode preview result: %v", err)
	}
	if result.Plan == nil || !result.Plan.CanExecute {
		t.Fatalf("unexpected preview payload: %+v", result)
	}
}

func TestHandleStats(t *testing.T) {
	server, store := newTestServer(t)

	for _, job := range []*planjob.Job{
		{ID: "s-1", Status: planjob.StatusReady, MaxRetries: 3},
		{ID: "s-2", Status: planjob.StatusFailed, MaxRetries: 3},
	} {
		if err := store.Create(context.Background(), job); err != nil {
			t.Fatalf("create job: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/plans/stats", nil)
	rec := httptest.NewRecorder()

	server.handleStats(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var stats planjob.JobStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Total != 2 || stats.Ready != 1 || stats.Failed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestHandleHealth(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	server.handleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ok") {
		t.Fatalf("unexpected health payload: %s", rec.Body.String())
	}
}
