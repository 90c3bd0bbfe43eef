package planjob

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"Karana-Planner/internal/engine"
	xerrors "Karana-Planner/internal/errors"
	"Karana-Planner/internal/intent"
)

// MemoryStore 以内存方式保存规划任务状态。任务存储只承载在途请求，
// 进程级内存即满足要求，同时也方便测试。
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

// Create 实现 Store 接口。
func (m *MemoryStore) Create(_ context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "job 不能为空")
	}
	if job.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "任务 ID 不能为空")
	}
	if _, ok := m.jobs[job.ID]; ok {
		return ErrJobConflict
	}
	now := time.Now().Unix()
	if job.CreatedAt == 0 {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	m.jobs[job.ID] = cloneJob(job)
	return nil
}

// Get 返回任务。
func (m *MemoryStore) Get(_ context.Context, id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return cloneJob(job), nil
}

// Claim 将任务状态更新为规划中。只有待处理或可重试的失败任务可以被
// 领取；规划已结束的任务返回 ErrJobCompleted，让消费端静默跳过。
func (m *MemoryStore) Claim(_ context.Context, id string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	switch job.Status {
	case StatusReady, StatusAwaitingConfirmation, StatusCancelled:
		return cloneJob(job), ErrJobCompleted
	case StatusPlanning:
		return cloneJob(job), ErrJobConflict
	}
	if job.Attempts >= job.MaxRetries {
		return cloneJob(job), ErrJobExhausted
	}
	job.Status = StatusPlanning
	job.Attempts++
	job.FailureReason = ""
	job.FailureCode = ""
	job.UpdatedAt = time.Now().Unix()
	return cloneJob(job), nil
}

// MarkReady 记录规划结果并将任务置为可执行就绪。
func (m *MemoryStore) MarkReady(_ context.Context, id string, result *engine.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = StatusReady
	job.Result = cloneResult(result)
	job.FailureReason = ""
	job.FailureCode = ""
	job.UpdatedAt = time.Now().Unix()
	return nil
}

// MarkAwaitingConfirmation 记录规划结果并将任务挂起等待用户确认。
func (m *MemoryStore) MarkAwaitingConfirmation(_ context.Context, id string, result *engine.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = StatusAwaitingConfirmation
	job.Result = cloneResult(result)
	job.FailureReason = ""
	job.FailureCode = ""
	job.UpdatedAt = time.Now().Unix()
	return nil
}

// MarkFailed 标记任务失败。terminal 仅影响调用方的重投决策，存储层
// 统一落为 failed 状态并保留失败原因。
func (m *MemoryStore) MarkFailed(_ context.Context, id string, code xerrors.Code, reason string, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = StatusFailed
	job.FailureReason = reason
	job.FailureCode = string(code)
	job.UpdatedAt = time.Now().Unix()
	return nil
}

// Confirm 记录用户对待确认计划的裁决：同意转为就绪，拒绝转为取消。
// 仅在 awaiting_confirmation 状态下合法。
func (m *MemoryStore) Confirm(_ context.Context, id string, decision Decision) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	if job.Status != StatusAwaitingConfirmation {
		return cloneJob(job), ErrJobNotAwaiting
	}
	if decision.DecidedAt == 0 {
		decision.DecidedAt = time.Now().Unix()
	}
	if decision.Approved {
		job.Status = StatusReady
	} else {
		job.Status = StatusCancelled
	}
	job.Confirmation = &decision
	job.UpdatedAt = time.Now().Unix()
	return cloneJob(job), nil
}

// Cancel 在计划落地前撤回任务。待处理与待确认的任务直接转入取消；
// 规划中的任务返回 ErrJobConflict，已结束的任务返回 ErrJobCompleted。
func (m *MemoryStore) Cancel(_ context.Context, id string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	switch job.Status {
	case StatusPlanning:
		return cloneJob(job), ErrJobConflict
	case StatusReady, StatusFailed, StatusCancelled:
		return cloneJob(job), ErrJobCompleted
	}
	job.Status = StatusCancelled
	job.UpdatedAt = time.Now().Unix()
	return cloneJob(job), nil
}

// List 返回符合过滤条件的任务。
func (m *MemoryStore) List(_ context.Context, opts ListOptions) ([]*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	opts.applyDefaults()

	results := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		if !matchesListFilters(job, opts) {
			continue
		}
		results = append(results, cloneJob(job))
	}

	sort.Slice(results, func(i, j int) bool {
		if opts.Order == SortByUpdatedAsc {
			if results[i].UpdatedAt == results[j].UpdatedAt {
				if results[i].CreatedAt == results[j].CreatedAt {
					return results[i].ID < results[j].ID
				}
				return results[i].CreatedAt < results[j].CreatedAt
			}
			return results[i].UpdatedAt < results[j].UpdatedAt
		}
		if results[i].UpdatedAt == results[j].UpdatedAt {
			if results[i].CreatedAt == results[j].CreatedAt {
				return results[i].ID < results[j].ID
			}
			return results[i].CreatedAt > results[j].CreatedAt
		}
		return results[i].UpdatedAt > results[j].UpdatedAt
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(results) {
			return []*Job{}, nil
		}
		results = results[opts.Offset:]
	}
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// Stats 统计符合过滤条件的任务数量与更新时间范围。
func (m *MemoryStore) Stats(_ context.Context, opts ListOptions) (JobStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	opts.applyDefaults()

	stats := JobStats{}
	for _, job := range m.jobs {
		if !matchesListFilters(job, opts) {
			continue
		}
		stats.Total++
		switch job.Status {
		case StatusPending:
			stats.Pending++
		case StatusPlanning:
			stats.Planning++
		case StatusReady:
			stats.Ready++
		case StatusAwaitingConfirmation:
			stats.AwaitingConfirmation++
		case StatusFailed:
			stats.Failed++
		case StatusCancelled:
			stats.Cancelled++
		}
		if job.UpdatedAt > stats.NewestUpdatedAt {
			stats.NewestUpdatedAt = job.UpdatedAt
		}
		if stats.OldestUpdatedAt == 0 || (job.UpdatedAt != 0 && job.UpdatedAt < stats.OldestUpdatedAt) {
			stats.OldestUpdatedAt = job.UpdatedAt
		}
	}
	if stats.Total == 0 {
		stats.OldestUpdatedAt = 0
		stats.NewestUpdatedAt = 0
	}
	return stats, nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

func cloneJob(job *Job) *Job {
	clone := *job
	clone.Actions = intent.CloneAll(job.Actions)
	clone.Metadata = cloneMetadata(job.Metadata)
	clone.Result = cloneResult(job.Result)
	if job.Confirmation != nil {
		decision := *job.Confirmation
		clone.Confirmation = &decision
	}
	return &clone
}

func cloneResult(result *engine.Result) *engine.Result {
	if result == nil {
		return nil
	}
	clone := *result
	clone.Actions = intent.CloneAll(result.Actions)
	clone.Plan = result.Plan.Clone()
	return &clone
}

func matchesListFilters(job *Job, opts ListOptions) bool {
	if len(opts.Statuses) > 0 {
		matched := false
		for _, status := range opts.Statuses {
			if job.Status == status {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if opts.UpdatedGTE > 0 && job.UpdatedAt < opts.UpdatedGTE {
		return false
	}
	if opts.UpdatedLTE > 0 && job.UpdatedAt > opts.UpdatedLTE {
		return false
	}
	if opts.HasPlan != nil && jobHasPlan(job) != *opts.HasPlan {
		return false
	}
	if opts.UserID != "" && job.UserID != opts.UserID {
		return false
	}
	if opts.Query != "" && !matchesQuery(job, opts.Query) {
		return false
	}
	return true
}

func jobHasPlan(job *Job) bool {
	return job != nil && job.Result != nil && job.Result.Plan != nil
}

// matchesQuery 在任务的标识、指令与规划产出上做大小写不敏感的模糊匹配。
func matchesQuery(job *Job, query string) bool {
	needle := strings.ToLower(query)
	if strings.Contains(strings.ToLower(job.ID), needle) {
		return true
	}
	if strings.Contains(strings.ToLower(job.UserID), needle) {
		return true
	}
	if strings.Contains(strings.ToLower(job.Utterance), needle) {
		return true
	}
	if job.Result != nil {
		if strings.Contains(strings.ToLower(job.Result.Thought), needle) {
			return true
		}
		for _, action := range job.Result.Actions {
			if strings.Contains(strings.ToLower(string(action.Operation)), needle) {
				return true
			}
		}
	}
	for _, action := range job.Actions {
		if strings.Contains(strings.ToLower(string(action.Operation)), needle) {
			return true
		}
	}
	return false
}

// ensure interface compliance at compile time
var _ Store = (*MemoryStore)(nil)
