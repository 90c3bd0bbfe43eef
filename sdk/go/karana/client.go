// Package karana provides a small Go client for the Karana Planner REST API.
// It mirrors the wire types of the server so integrators do not depend on
// the planner's internal packages.
package karana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the Karana Planner REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("karana api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("karana api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the Karana Planner API. When httpClient
// is nil, a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("base url must include scheme and host: %q", rawURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// SubmitPlan queues a planning request for asynchronous processing and
// returns the pending job.
func (c *Client) SubmitPlan(ctx context.Context, req PlanRequest) (Job, error) {
	var job Job
	if err := c.post(ctx, "/api/v1/plans", req, &job); err != nil {
		return Job{}, err
	}
	return job, nil
}

// GetPlan fetches one job by identifier.
func (c *Client) GetPlan(ctx context.Context, jobID string) (Job, error) {
	if strings.TrimSpace(jobID) == "" {
		return Job{}, fmt.Errorf("job id must not be empty")
	}
	var job Job
	if err := c.get(ctx, "/api/v1/plans/"+url.PathEscape(jobID), nil, &job); err != nil {
		return Job{}, err
	}
	return job, nil
}

// ListPlansOptions narrows a ListPlans or Stats call. The zero value lists
// everything in the server's default order.
type ListPlansOptions struct {
	Statuses []string
	UserID   string
	Limit    int
	Offset   int
	Since    time.Time
	Until    time.Time
	HasPlan  *bool
	// Order is "asc" or "desc" by update time; empty keeps the server default.
	Order string
	// Query matches against utterances, observations and failure reasons.
	Query string
}

func (o ListPlansOptions) values() url.Values {
	query := url.Values{}
	if len(o.Statuses) > 0 {
		query.Set("status", strings.Join(o.Statuses, ","))
	}
	if o.UserID != "" {
		query.Set("user_id", o.UserID)
	}
	if o.Limit > 0 {
		query.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Offset > 0 {
		query.Set("offset", strconv.Itoa(o.Offset))
	}
	if !o.Since.IsZero() {
		query.Set("since", o.Since.Format(time.RFC3339))
	}
	if !o.Until.IsZero() {
		query.Set("until", o.Until.Format(time.RFC3339))
	}
	if o.HasPlan != nil {
		query.Set("has_plan", strconv.FormatBool(*o.HasPlan))
	}
	if o.Order != "" {
		query.Set("order", o.Order)
	}
	if o.Query != "" {
		query.Set("q", o.Query)
	}
	return query
}

// ListPlans fetches jobs matching the given filters.
func (c *Client) ListPlans(ctx context.Context, opts ListPlansOptions) ([]Job, error) {
	var jobs []Job
	if err := c.get(ctx, "/api/v1/plans", opts.values(), &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// Preview runs the planning pipeline synchronously without queueing a job.
func (c *Client) Preview(ctx context.Context, req PlanRequest) (PlanResult, error) {
	var result PlanResult
	if err := c.post(ctx, "/api/v1/plans/preview", req, &result); err != nil {
		return PlanResult{}, err
	}
	return result, nil
}

// Confirm records the user's ruling on a job awaiting confirmation and
// returns the updated job.
func (c *Client) Confirm(ctx context.Context, jobID string, approved bool, note string) (Job, error) {
	if strings.TrimSpace(jobID) == "" {
		return Job{}, fmt.Errorf("job id must not be empty")
	}
	payload := struct {
		Approved bool   `json:"approved"`
		Note     string `json:"note,omitempty"`
	}{Approved: approved, Note: note}

	var job Job
	endpoint := "/api/v1/plans/" + url.PathEscape(jobID) + "/confirmation"
	if err := c.post(ctx, endpoint, payload, &job); err != nil {
		return Job{}, err
	}
	return job, nil
}

// Cancel withdraws a job before its plan is handed over for execution and
// returns the cancelled job. Jobs that are mid-planning or already settled
// are reported as conflicts by the server.
func (c *Client) Cancel(ctx context.Context, jobID string) (Job, error) {
	if strings.TrimSpace(jobID) == "" {
		return Job{}, fmt.Errorf("job id must not be empty")
	}
	req, err := c.newRequest(ctx, http.MethodDelete, "/api/v1/plans/"+url.PathEscape(jobID), nil, nil)
	if err != nil {
		return Job{}, err
	}
	var job Job
	if err := c.do(req, &job); err != nil {
		return Job{}, err
	}
	return job, nil
}

// Stats summarises job counts, optionally narrowed by the same filters as
// ListPlans.
func (c *Client) Stats(ctx context.Context, opts ListPlansOptions) (Stats, error) {
	var stats Stats
	if err := c.get(ctx, "/api/v1/plans/stats", opts.values(), &stats); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// Health checks the server's liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.get(ctx, "/healthz", nil, nil)
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, query, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, query url.Values, body io.Reader) (*http.Request, error) {
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint)}
	u := c.baseURL.ResolveReference(rel)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr APIError
		apiErr.StatusCode = resp.StatusCode
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &struct {
				Error *APIError `json:"error"`
			}{Error: &apiErr}); err != nil {
				// try direct decode into apiErr if server returned flat payload
				_ = json.Unmarshal(data, &apiErr)
			}
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
