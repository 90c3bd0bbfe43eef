package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"Karana-Planner/sdk/go/karana"
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/plans", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(karana.Job{
				ID:         "job-demo",
				Status:     karana.StatusPending,
				MaxRetries: 3,
				CreatedAt:  time.Now().Unix(),
			})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/v1/plans/job-demo", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(karana.Job{
			ID:     "job-demo",
			Status: karana.StatusReady,
			Result: &karana.PlanResult{
				Thought: "打开地图并导航回家",
				Plan: &karana.Plan{
					Steps: []karana.Step{
						{Action: karana.Action{Layer: "SYSTEM", Operation: "APP_OPEN"}, EstimatedDurationMs: 2000},
						{Action: karana.Action{Layer: "INTERFACE", Operation: "UI_NOTIFY"}, Dependencies: []int{0}},
					},
					Edges:      []karana.Edge{{From: 0, To: 1, Reason: "notify after the app is open"}},
					CanExecute: true,
				},
			},
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := karana.NewClient(srv.URL, srv.Client())
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	job, err := client.SubmitPlan(ctx, karana.PlanRequest{
		UserID:    "demo",
		Utterance: "打开地图并导航回家",
	})
	if err != nil {
		panic(err)
	}
	fmt.Printf("submitted plan %s (status=%s)\n", job.ID, job.Status)

	detail, err := client.GetPlan(ctx, job.ID)
	if err != nil {
		panic(err)
	}
	fmt.Printf("retrieved plan %s status=%s steps=%d\n", detail.ID, detail.Status, len(detail.Result.Plan.Steps))
}
