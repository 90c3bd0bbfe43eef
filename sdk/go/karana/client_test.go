package karana

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewClientValidatesURL(t *testing.T) {
	if _, err := NewClient("://bad-url", nil); err == nil {
		t.Fatal("expected error for unparsable url")
	}
	if _, err := NewClient("localhost:8080", nil); err == nil {
		t.Fatal("expected error for url without scheme")
	}
	if _, err := NewClient("http://localhost:8080", nil); err != nil {
		t.Fatalf("valid url rejected: %v", err)
	}
}

func TestSubmitPlan(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/plans" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		var req PlanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("unexpected body: %v", err)
		}
		if req.Utterance != "open maps and navigate home" {
			t.Fatalf("unexpected utterance: %q", req.Utterance)
		}
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(Job{ID: "job-1", Status: StatusPending, MaxRetries: 3})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	job, err := client.SubmitPlan(context.Background(), PlanRequest{
		UserID:    "u-1",
		Utterance: "open maps and navigate home",
	})
	if err != nil {
		t.Fatalf("submit plan: %v", err)
	}
	if job.ID != "job-1" || job.Status != StatusPending {
		t.Fatalf("unexpected job: %+v", job)
	}
}

func TestGetPlan(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/plans/job-7" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(Job{
			ID:     "job-7",
			Status: StatusReady,
			Result: &PlanResult{
				Thought: "open the app",
				Plan: &Plan{
					Steps:      []Step{{Action: Action{Layer: "SYSTEM", Operation: "APP_OPEN"}}},
					CanExecute: true,
				},
			},
		})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	job, err := client.GetPlan(context.Background(), "job-7")
	if err != nil {
		t.Fatalf("get plan: %v", err)
	}
	if job.Result == nil || job.Result.Plan == nil || !job.Result.Plan.CanExecute {
		t.Fatalf("unexpected job: %+v", job)
	}

	if _, err := client.GetPlan(context.Background(), "  "); err == nil {
		t.Fatal("expected error for blank job id")
	}
}

func TestListPlansEncodesFilters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/plans" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		query := r.URL.Query()
		if query.Get("status") != "ready,failed" {
			t.Fatalf("unexpected status filter: %q", query.Get("status"))
		}
		if query.Get("user_id") != "u-1" || query.Get("limit") != "5" || query.Get("order") != "asc" {
			t.Fatalf("unexpected query: %v", query)
		}
		if query.Get("has_plan") != "true" {
			t.Fatalf("unexpected has_plan: %q", query.Get("has_plan"))
		}
		_ = json.NewEncoder(w).Encode([]Job{
			{ID: "job-1", Status: StatusReady},
			{ID: "job-2", Status: StatusFailed},
		})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	hasPlan := true
	jobs, err := client.ListPlans(context.Background(), ListPlansOptions{
		Statuses: []string{StatusReady, StatusFailed},
		UserID:   "u-1",
		Limit:    5,
		Order:    "asc",
		HasPlan:  &hasPlan,
	})
	if err != nil {
		t.Fatalf("list plans: %v", err)
	}
	if len(jobs) != 2 || jobs[0].ID != "job-1" {
		t.Fatalf("unexpected jobs: %+v", jobs)
	}
}

func TestPreview(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/plans/preview" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		_ = json.NewEncoder(w).Encode(PlanResult{
			Thought: "notify then transfer",
			Plan: &Plan{
				RequiresConfirmation: true,
				ConfirmationMessage:  "transfer 0.1 ETH?",
			},
		})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	result, err := client.Preview(context.Background(), PlanRequest{
		Actions: []Action{{Layer: "BLOCKCHAIN", Operation: "WALLET_TRANSFER"}},
	})
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if result.Plan == nil || !result.Plan.RequiresConfirmation {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestConfirm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/plans/job-9/confirmation" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		var req struct {
			Approved bool   `json:"approved"`
			Note     string `json:"note"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("unexpected body: %v", err)
		}
		if !req.Approved || req.Note != "looks safe" {
			t.Fatalf("unexpected payload: %+v", req)
		}
		_ = json.NewEncoder(w).Encode(Job{
			ID:           "job-9",
			Status:       StatusReady,
			Confirmation: &Confirmation{Approved: true, Note: "looks safe", DecidedAt: 100},
		})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	job, err := client.Confirm(context.Background(), "job-9", true, "looks safe")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if job.Status != StatusReady || job.Confirmation == nil || !job.Confirmation.Approved {
		t.Fatalf("unexpected job: %+v", job)
	}
}

func TestCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/plans/job-11" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodDelete {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		_ = json.NewEncoder(w).Encode(Job{ID: "job-11", Status: StatusCancelled})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	job, err := client.Cancel(context.Background(), "job-11")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if job.Status != StatusCancelled {
		t.Fatalf("unexpected job: %+v", job)
	}

	if _, err := client.Cancel(context.Background(), " "); err == nil {
		t.Fatal("expected error for blank job id")
	}
}

func TestStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/plans/stats" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("user_id") != "u-1" {
			t.Fatalf("unexpected query: %v", r.URL.Query())
		}
		_ = json.NewEncoder(w).Encode(Stats{Total: 4, Ready: 2, Failed: 1, Pending: 1})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	stats, err := client.Stats(context.Background(), ListPlansOptions{UserID: "u-1"})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 4 || stats.Ready != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestAPIErrorDecoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/plans/missing":
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(struct {
				Error APIError `json:"error"`
			}{Error: APIError{Code: "PLANJOB_NOT_FOUND", Message: "no such job"}})
		case "/api/v1/plans/flat":
			w.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(w).Encode(APIError{Code: "PLANJOB_CONFLICT", Message: "already claimed"})
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.GetPlan(context.Background(), "missing")
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Code != "PLANJOB_NOT_FOUND" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}

	_, err = client.GetPlan(context.Background(), "flat")
	apiErr, ok = err.(*APIError)
	if !ok {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Code != "PLANJOB_CONFLICT" {
		t.Fatalf("flat payload not decoded: %+v", apiErr)
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := client.Health(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
}
