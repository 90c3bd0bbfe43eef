package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"Karana-Planner/sdk/go/karana"
)

func withTestServer(t *testing.T, handler http.Handler) {
	t.Helper()
	server := httptest.NewServer(handler)
	previous := serverURL
	serverURL = server.URL
	t.Cleanup(func() {
		serverURL = previous
		server.Close()
	})
}

func runCommand(t *testing.T, cmd *cobra.Command, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("command failed: %v", err)
	}
	return out.String()
}

func TestSubmitCommand(t *testing.T) {
	var gotReq karana.PlanRequest
	withTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/plans" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(karana.Job{ID: "job-1", Status: karana.StatusPending})
	}))

	out := runCommand(t, newSubmitCmd(), "打开地图", "--user", "u-1")
	if !strings.Contains(out, "job-1") {
		t.Fatalf("output missing job id: %q", out)
	}
	if gotReq.Utterance != "打开地图" {
		t.Fatalf("utterance = %q", gotReq.Utterance)
	}
	if gotReq.UserID != "u-1" {
		t.Fatalf("user = %q", gotReq.UserID)
	}
}

func TestSubmitCommandRequiresInput(t *testing.T) {
	cmd := newSubmitCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(nil)
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error without utterance or actions file")
	}
}

func TestGetCommandRendersPlan(t *testing.T) {
	job := karana.Job{
		ID:     "job-2",
		Status: karana.StatusReady,
		UserID: "u-1",
		Result: &karana.PlanResult{
			Thought: "打开地图后提示用户",
			Plan: &karana.Plan{
				Steps: []karana.Step{
					{
						Action:              karana.Action{Layer: "APP", Operation: "APP_OPEN"},
						Dependencies:        []int{},
						EstimatedDurationMs: 500,
					},
					{
						Action:              karana.Action{Layer: "UI", Operation: "UI_NOTIFY"},
						Dependencies:        []int{0},
						EstimatedDurationMs: 100,
					},
				},
				TotalDurationMs:    600,
				ParallelDurationMs: 600,
				CanExecute:         true,
			},
		},
	}
	withTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/plans/job-2" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(job)
	}))

	out := runCommand(t, newGetCmd(), "job-2")
	for _, want := range []string{"job-2", "APP.APP_OPEN", "UI.UI_NOTIFY", "plan can execute"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestListCommandSendsFilters(t *testing.T) {
	withTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if got := query.Get("status"); got != "ready,failed" {
			t.Fatalf("status = %q", got)
		}
		if got := query.Get("user_id"); got != "u-1" {
			t.Fatalf("user_id = %q", got)
		}
		if got := query.Get("has_plan"); got != "true" {
			t.Fatalf("has_plan = %q", got)
		}
		_ = json.NewEncoder(w).Encode([]karana.Job{
			{ID: "job-3", UserID: "u-1", Status: karana.StatusReady, UpdatedAt: 1700000000},
		})
	}))

	out := runCommand(t, newListCmd(), "--status", "ready,failed", "--user", "u-1", "--has-plan")
	if !strings.Contains(out, "job-3") {
		t.Fatalf("output missing job row:\n%s", out)
	}
}

func TestListCommandRejectsBadSince(t *testing.T) {
	cmd := newListCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"--since", "yesterday"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for invalid --since")
	}
}

func TestConfirmCommandValidatesFlags(t *testing.T) {
	for _, args := range [][]string{
		{"job-4"},
		{"job-4", "--approve", "--reject"},
	} {
		cmd := newConfirmCmd()
		cmd.SetOut(new(bytes.Buffer))
		cmd.SetErr(new(bytes.Buffer))
		cmd.SetArgs(args)
		if err := cmd.Execute(); err == nil {
			t.Fatalf("expected flag validation error for %v", args)
		}
	}
}

func TestConfirmCommandApproves(t *testing.T) {
	withTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/plans/job-5/confirmation" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var payload struct {
			Approved bool   `json:"approved"`
			Note     string `json:"note"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if !payload.Approved || payload.Note != "看过了" {
			t.Fatalf("unexpected payload %+v", payload)
		}
		_ = json.NewEncoder(w).Encode(karana.Job{ID: "job-5", Status: karana.StatusReady})
	}))

	out := runCommand(t, newConfirmCmd(), "job-5", "--approve", "--note", "看过了")
	if !strings.Contains(out, "job-5") {
		t.Fatalf("output missing job id:\n%s", out)
	}
}

func TestCancelCommand(t *testing.T) {
	withTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/api/v1/plans/job-6" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(karana.Job{ID: "job-6", Status: karana.StatusCancelled})
	}))

	out := runCommand(t, newCancelCmd(), "job-6")
	if !strings.Contains(out, "cancelled job job-6") {
		t.Fatalf("output missing cancellation notice:\n%s", out)
	}
}

func TestStatsCommand(t *testing.T) {
	withTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/plans/stats" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(karana.Stats{Total: 3, Ready: 2, Failed: 1})
	}))

	out := runCommand(t, newStatsCmd())
	if !strings.Contains(out, "total") || !strings.Contains(out, "3") {
		t.Fatalf("output missing totals:\n%s", out)
	}
}

func TestLoadActions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "actions.json")
	content := `[{"layer":"APP","operation":"APP_OPEN","params":{"app_name":"Maps"},"confidence":0.9}]`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	actions, err := loadActions(path)
	if err != nil {
		t.Fatalf("loadActions: %v", err)
	}
	if len(actions) != 1 || actions[0].Operation != "APP_OPEN" {
		t.Fatalf("unexpected actions %+v", actions)
	}

	if actions, err := loadActions(""); err != nil || actions != nil {
		t.Fatalf("empty path should be a no-op, got %v %v", actions, err)
	}
	if _, err := loadActions(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("truncate short = %q", got)
	}
	long := strings.Repeat("a", 60)
	got := truncate(long, 48)
	if !strings.HasSuffix(got, "…") || len(got) > 52 {
		t.Fatalf("truncate long = %q", got)
	}
}
