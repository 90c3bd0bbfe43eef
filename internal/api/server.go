package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"Karana-Planner/internal/engine"
	xerrors "Karana-Planner/internal/errors"
	"Karana-Planner/internal/observability/metrics"
	"Karana-Planner/internal/planjob"
	"Karana-Planner/pkg/logger"
)

// Previewer 定义了同步规划接口所需的引擎能力。
type Previewer interface {
	Execute(ctx context.Context, req engine.Request) (*engine.Result, error)
}

// Server 负责暴露 REST 接口，供外部提交与查询规划任务。
type Server struct {
	addr    string
	service *planjob.Service
	preview Previewer
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, service *planjob.Service, preview Previewer) *Server {
	return &Server{addr: addr, service: service, preview: preview}
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/api/v1/plans", s.instrument("plans", s.handlePlans))
	mux.Handle("/api/v1/plans/", s.instrument("plan_detail", s.handlePlanSubpath))
	mux.Handle("/api/v1/plans/preview", s.instrument("plan_preview", s.handlePreview))
	mux.Handle("/api/v1/plans/stats", s.instrument("plan_stats", s.handleStats))
	mux.Handle("/healthz", s.instrument("healthz", s.handleHealth))

	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handlePlans(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleSubmitPlan(w, r)
	case http.MethodGet:
		if id := strings.TrimSpace(r.URL.Query().Get("id")); id != "" {
			s.renderPlan(w, r, id)
			return
		}
		s.handleListPlans(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "仅支持 GET/POST")
	}
}

// handleSubmitPlan 接收规划请求并排队异步处理。
func (s *Server) handleSubmitPlan(w http.ResponseWriter, r *http.Request) {
	if s.service == nil {
		writeError(w, http.StatusServiceUnavailable, string(xerrors.CodeInitializationFailure), "任务服务未初始化")
		return
	}
	var req engine.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, string(xerrors.CodeInvalidArgument), "请求体解析失败")
		return
	}
	job, err := s.service.Submit(r.Context(), req)
	if err != nil {
		writeCodedError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	if s.service == nil {
		writeError(w, http.StatusServiceUnavailable, string(xerrors.CodeInitializationFailure), "任务服务未初始化")
		return
	}
	opts, err := listOptionsFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, string(xerrors.CodeInvalidArgument), err.Error())
		return
	}
	jobs, err := s.service.List(r.Context(), opts...)
	if err != nil {
		writeCodedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// handlePlanSubpath 处理 /api/v1/plans/{id} 与 /api/v1/plans/{id}/confirmation。
// 对任务 ID 的 DELETE 请求在计划落地前撤回任务。
func (s *Server) handlePlanSubpath(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/plans/"), "/")
	if rest == "" {
		writeError(w, http.StatusNotFound, string(xerrors.CodeNotFound), "缺少任务 ID")
		return
	}
	segments := strings.Split(rest, "/")
	switch {
	case len(segments) == 1:
		switch r.Method {
		case http.MethodGet:
			s.renderPlan(w, r, segments[0])
		case http.MethodDelete:
			s.handleCancelPlan(w, r, segments[0])
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "仅支持 GET/DELETE")
		}
	case len(segments) == 2 && segments[1] == "confirmation":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "仅支持 POST")
			return
		}
		s.handleConfirmPlan(w, r, segments[0])
	default:
		writeError(w, http.StatusNotFound, string(xerrors.CodeNotFound), "未知的资源路径")
	}
}

func (s *Server) renderPlan(w http.ResponseWriter, r *http.Request, id string) {
	if s.service == nil {
		writeError(w, http.StatusServiceUnavailable, string(xerrors.CodeInitializationFailure), "任务服务未初始化")
		return
	}
	job, err := s.service.Get(r.Context(), id)
	if err != nil {
		writeCodedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleConfirmPlan 记录用户对待确认计划的裁决。
func (s *Server) handleConfirmPlan(w http.ResponseWriter, r *http.Request, id string) {
	if s.service == nil {
		writeError(w, http.StatusServiceUnavailable, string(xerrors.CodeInitializationFailure), "任务服务未初始化")
		return
	}
	var req struct {
		Approved bool   `json:"approved"`
		Note     string `json:"note,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, string(xerrors.CodeInvalidArgument), "请求体解析失败")
		return
	}
	job, err := s.service.Confirm(r.Context(), id, req.Approved, req.Note)
	if err != nil {
		writeCodedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleCancelPlan 在计划落地前撤回任务。
func (s *Server) handleCancelPlan(w http.ResponseWriter, r *http.Request, id string) {
	if s.service == nil {
		writeError(w, http.StatusServiceUnavailable, string(xerrors.CodeInitializationFailure), "任务服务未初始化")
		return
	}
	job, err := s.service.Cancel(r.Context(), id)
	if err != nil {
		writeCodedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handlePreview 同步执行一次规划，不经过队列，适合交互式预览。
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "仅支持 POST")
		return
	}
	if s.preview == nil {
		writeError(w, http.StatusServiceUnavailable, string(xerrors.CodeInitializationFailure), "规划引擎未初始化")
		return
	}
	var req engine.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, string(xerrors.CodeInvalidArgument), "请求体解析失败")
		return
	}
	result, err := s.preview.Execute(r.Context(), req)
	if err != nil {
		writeCodedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "仅支持 GET")
		return
	}
	if s.service == nil {
		writeError(w, http.StatusServiceUnavailable, string(xerrors.CodeInitializationFailure), "任务服务未初始化")
		return
	}
	opts, err := listOptionsFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, string(xerrors.CodeInvalidArgument), err.Error())
		return
	}
	stats, err := s.service.Stats(r.Context(), opts...)
	if err != nil {
		writeCodedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// listOptionsFromQuery 将查询参数转换为存储层过滤选项。
func listOptionsFromQuery(r *http.Request) ([]planjob.ListOption, error) {
	query := r.URL.Query()
	var opts []planjob.ListOption

	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return nil, errors.New("limit 必须是正整数")
		}
		opts = append(opts, planjob.WithLimit(limit))
	}
	if raw := query.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return nil, errors.New("offset 必须是非负整数")
		}
		opts = append(opts, planjob.WithOffset(offset))
	}
	if raw := query.Get("status"); raw != "" {
		parts := strings.Split(raw, ",")
		statuses := make([]planjob.Status, 0, len(parts))
		for _, part := range parts {
			status := planjob.Status(strings.TrimSpace(part))
			if !planjob.IsValidStatus(status) {
				return nil, errors.New("不支持的任务状态: " + string(status))
			}
			statuses = append(statuses, status)
		}
		opts = append(opts, planjob.WithStatuses(statuses...))
	}
	if raw := query.Get("user_id"); raw != "" {
		opts = append(opts, planjob.WithUserID(raw))
	}
	if raw := query.Get("since"); raw != "" {
		ts, err := parseTimestamp(raw)
		if err != nil {
			return nil, errors.New("since 参数格式非法")
		}
		opts = append(opts, planjob.WithUpdatedSince(ts))
	}
	if raw := query.Get("until"); raw != "" {
		ts, err := parseTimestamp(raw)
		if err != nil {
			return nil, errors.New("until 参数格式非法")
		}
		opts = append(opts, planjob.WithUpdatedUntil(ts))
	}
	if raw := query.Get("has_plan"); raw != "" {
		hasPlan, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, errors.New("has_plan 必须是布尔值")
		}
		opts = append(opts, planjob.WithPlanPresence(hasPlan))
	}
	if raw := query.Get("order"); raw != "" {
		switch strings.ToLower(raw) {
		case "asc":
			opts = append(opts, planjob.WithSortOrder(planjob.SortByUpdatedAsc))
		case "desc":
			opts = append(opts, planjob.WithSortOrder(planjob.SortByUpdatedDesc))
		default:
			return nil, errors.New("order 仅支持 asc/desc")
		}
	}
	if raw := query.Get("q"); raw != "" {
		opts = append(opts, planjob.WithQuery(raw))
	}
	return opts, nil
}

// parseTimestamp 同时接受 RFC3339 与 Unix 秒两种时间表示。
func parseTimestamp(raw string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, nil
	}
	seconds, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(seconds, 0), nil
}

// writeCodedError 将统一错误码映射为 HTTP 状态。
func writeCodedError(w http.ResponseWriter, err error) {
	code := xerrors.CodeOf(err)
	status := http.StatusInternalServerError
	switch {
	case planjob.IsJobError(err, planjob.CodeJobNotFound):
		status = http.StatusNotFound
	case planjob.IsJobError(err, planjob.CodeJobConflict),
		planjob.IsJobError(err, planjob.CodeJobNotAwaiting),
		planjob.IsJobError(err, planjob.CodeJobCompleted),
		planjob.IsJobError(err, planjob.CodeJobExhausted):
		status = http.StatusConflict
	case code == planjob.CodeJobValidation,
		code == engine.CodeEngineNoInput,
		code == xerrors.CodeInvalidArgument:
		status = http.StatusBadRequest
	case code == engine.CodeEngineProfileDisabled:
		status = http.StatusForbidden
	case code == xerrors.CodeNotFound:
		status = http.StatusNotFound
	case code == xerrors.CodeTimeout:
		status = http.StatusGatewayTimeout
	case code == xerrors.CodeInitializationFailure:
		status = http.StatusServiceUnavailable
	}
	writeError(w, status, string(code), err.Error())
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// statusRecorder 捕获响应状态码供访问日志与指标使用。
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument 为处理器附加访问日志与请求指标。
func (s *Server) instrument(name string, handler http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		handler(recorder, r)
		elapsed := time.Since(started)
		metrics.ObserveHTTPRequest(name, r.Method, recorder.status, elapsed)
		logger.L().Debug("http 请求完成",
			slog.String("handler", name),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", recorder.status),
			slog.Duration("elapsed", elapsed),
		)
	})
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			writeError(w, http.StatusServiceUnavailable, string(xerrors.CodeInitializationFailure), "服务已关闭")
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
