package planjob

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"Karana-Planner/internal/engine"
	xerrors "Karana-Planner/internal/errors"
	"Karana-Planner/internal/intent"
	"Karana-Planner/pkg/logger"
)

// Service 负责规划任务的创建、查询与确认。
type Service struct {
	store      Store
	producer   Producer
	maxRetries int
}

// NewService 构造任务服务。
func NewService(store Store, producer Producer, maxRetries int) *Service {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Service{store: store, producer: producer, maxRetries: maxRetries}
}

// Submit 创建一个新的规划任务并推送到队列。携带 ID 的重复提交返回已
// 存在的任务，保证提交幂等。
func (s *Service) Submit(ctx context.Context, req engine.Request) (*Job, error) {
	utterance := strings.TrimSpace(req.Utterance)
	if utterance == "" && len(req.Actions) == 0 {
		return nil, xerrors.New(CodeJobValidation, "规划请求必须包含指令或动作")
	}
	if s.store == nil || s.producer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务服务未初始化")
	}

	jobID := strings.TrimSpace(req.ID)
	if jobID != "" {
		job, err := s.store.Get(ctx, jobID)
		if err == nil {
			return job, nil
		}
		if !stdErrors.Is(err, ErrJobNotFound) {
			return nil, err
		}
	} else {
		jobID = uuid.NewString()
	}

	job := &Job{
		ID:         jobID,
		UserID:     strings.TrimSpace(req.UserID),
		Utterance:  utterance,
		Locale:     strings.TrimSpace(req.Locale),
		Actions:    intent.CloneAll(req.Actions),
		Metadata:   cloneMetadata(req.Metadata),
		Status:     StatusPending,
		Attempts:   0,
		MaxRetries: s.maxRetries,
	}
	if err := s.store.Create(ctx, job); err != nil {
		if stdErrors.Is(err, ErrJobConflict) {
			existing, getErr := s.store.Get(ctx, jobID)
			if getErr == nil {
				return existing, nil
			}
			if !stdErrors.Is(getErr, ErrJobNotFound) {
				return nil, getErr
			}
		}
		return nil, err
	}
	if err := s.producer.Publish(ctx, jobID); err != nil {
		logger.L().Error("规划任务入队失败", slog.Any("error", err), slog.String("job_id", jobID))
		wrapped := xerrors.Wrap(CodeJobPublish, err, "发布规划任务到队列失败")
		_ = s.store.MarkFailed(ctx, jobID, CodeJobPublish, wrapped.Error(), true)
		return nil, wrapped
	}
	logger.Audit().Info("规划任务入队成功",
		slog.String("job_id", jobID),
		slog.String("user_id", job.UserID),
		slog.String("utterance", job.Utterance),
		slog.Int("actions", len(job.Actions)),
		slog.Int("max_retries", job.MaxRetries),
	)
	return job, nil
}

// Get 返回指定任务的状态。
func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	return s.store.Get(ctx, id)
}

// List 返回符合过滤条件的任务列表。
func (s *Service) List(ctx context.Context, opts ...ListOption) ([]*Job, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	options := buildListOptions(opts)
	return s.store.List(ctx, options)
}

// Stats 返回符合过滤条件的任务统计信息。
func (s *Service) Stats(ctx context.Context, opts ...ListOption) (JobStats, error) {
	if s.store == nil {
		return JobStats{}, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	options := buildListOptions(opts)
	return s.store.Stats(ctx, options)
}

// Confirm 对处于待确认状态的任务记录用户裁决：同意后任务进入就绪，
// 拒绝则被取消。
func (s *Service) Confirm(ctx context.Context, id string, approved bool, note string) (*Job, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	if strings.TrimSpace(id) == "" {
		return nil, xerrors.New(CodeJobValidation, "任务 ID 不能为空")
	}
	job, err := s.store.Confirm(ctx, id, Decision{
		Approved:  approved,
		Note:      strings.TrimSpace(note),
		DecidedAt: time.Now().Unix(),
	})
	if err != nil {
		return job, err
	}
	logger.Audit().Info("规划任务确认完成",
		slog.String("job_id", job.ID),
		slog.String("user_id", job.UserID),
		slog.Bool("approved", approved),
		slog.String("status", string(job.Status)),
	)
	return job, nil
}

// Cancel 在计划落地前撤回任务。规划中的任务无法立刻停下，返回冲突由
// 调用方稍后重试。
func (s *Service) Cancel(ctx context.Context, id string) (*Job, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	if strings.TrimSpace(id) == "" {
		return nil, xerrors.New(CodeJobValidation, "任务 ID 不能为空")
	}
	job, err := s.store.Cancel(ctx, id)
	if err != nil {
		return job, err
	}
	logger.Audit().Info("规划任务已取消",
		slog.String("job_id", job.ID),
		slog.String("user_id", job.UserID),
		slog.String("status", string(job.Status)),
	)
	return job, nil
}

// Close 释放资源。
func (s *Service) Close() error {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			return err
		}
	}
	if s.producer != nil {
		return s.producer.Close()
	}
	return nil
}

// WaitUntilCompleted 在指定超时时间内轮询任务状态，直到任务离开规划
// 流水线（就绪、待确认、失败或取消）。
func (s *Service) WaitUntilCompleted(ctx context.Context, id string, interval time.Duration) (*Job, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Status.IsTerminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
