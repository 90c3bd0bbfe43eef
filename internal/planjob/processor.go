package planjob

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"time"

	"Karana-Planner/internal/engine"
	xerrors "Karana-Planner/internal/errors"
	"Karana-Planner/internal/observability/alerting"
	"Karana-Planner/internal/observability/metrics"
	"Karana-Planner/pkg/logger"
)

// Executor 定义了处理器所需的规划引擎能力。
type Executor interface {
	Execute(ctx context.Context, req engine.Request) (*engine.Result, error)
}

// Processor 负责从队列消费任务并交给引擎规划。
type Processor struct {
	executor    Executor
	store       Store
	consumer    Consumer
	producer    Producer
	workerCount int
	logger      *slog.Logger
	recovery    RecoveryHandler
	alerter     alerting.Dispatcher
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithRecoveryHandler 配置失败补偿策略。
func WithRecoveryHandler(handler RecoveryHandler) ProcessorOption {
	return func(p *Processor) {
		p.recovery = handler
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.alerter = dispatcher
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(executor Executor, store Store, consumer Consumer, producer Producer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		executor:    executor,
		store:       store,
		consumer:    consumer,
		producer:    producer,
		workerCount: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.workerCount <= 0 {
		p.workerCount = 1
	}
	return p
}

// Start 启动任务处理循环。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置任务消费者")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func (p *Processor) handle(ctx context.Context, jobID string) error {
	if p.store == nil || p.executor == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	job, err := p.store.Claim(ctx, jobID)
	if err != nil {
		if stdErrors.Is(err, ErrJobNotFound) || stdErrors.Is(err, ErrJobCompleted) || stdErrors.Is(err, ErrJobExhausted) {
			p.logDebug("跳过任务", slog.String("job_id", jobID), slog.String("reason", err.Error()))
			return nil
		}
		logger.L().Error("领取任务失败", slog.Any("error", err), slog.String("job_id", jobID))
		p.emitAlert(ctx, &Job{ID: jobID}, CodeJobProcessing, err, "claim")
		return err
	}

	result, execErr := p.executor.Execute(ctx, engine.Request{
		ID:        job.ID,
		UserID:    job.UserID,
		Utterance: job.Utterance,
		Locale:    job.Locale,
		Actions:   job.Actions,
		Metadata:  cloneMetadata(job.Metadata),
	})
	if execErr != nil {
		return p.handleExecutionFailure(ctx, job, execErr)
	}

	return p.recordOutcome(ctx, job, result)
}

// recordOutcome 按计划的确认要求将任务置为待确认或就绪。落库失败时
// 回退为可重试失败并重投。
func (p *Processor) recordOutcome(ctx context.Context, job *Job, result *engine.Result) error {
	awaiting := result != nil && result.Plan != nil && result.Plan.RequiresConfirmation

	var err error
	if awaiting {
		err = p.store.MarkAwaitingConfirmation(ctx, job.ID, result)
	} else {
		err = p.store.MarkReady(ctx, job.ID, result)
	}
	if err != nil {
		logger.L().Error("记录规划结果失败", slog.Any("error", err), slog.String("job_id", job.ID))
		if storeErr := p.store.MarkFailed(ctx, job.ID, CodeJobProcessing, err.Error(), false); storeErr != nil {
			logger.L().Error("回写失败状态出错", slog.Any("error", storeErr), slog.String("job_id", job.ID))
			return storeErr
		}
		if pubErr := p.producer.Publish(ctx, job.ID); pubErr != nil {
			return xerrors.Wrap(CodeJobPublish, pubErr, fmt.Sprintf("任务 %s 在记录结果失败后重投失败", job.ID))
		}
		logger.Audit().Warn("任务记录结果失败后重试",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return nil
	}

	status := StatusReady
	if awaiting {
		status = StatusAwaitingConfirmation
	}
	steps := 0
	canExecute := false
	if result != nil && result.Plan != nil {
		steps = result.Plan.StepCount()
		canExecute = result.Plan.CanExecute
	}
	metrics.ObservePlanJob(string(status))
	logger.Audit().Info("规划任务完成",
		slog.String("job_id", job.ID),
		slog.String("user_id", job.UserID),
		slog.String("status", string(status)),
		slog.Int("steps", steps),
		slog.Bool("can_execute", canExecute),
	)
	return nil
}

func (p *Processor) handleExecutionFailure(ctx context.Context, job *Job, execErr error) error {
	code := xerrors.CodeOf(execErr)
	if code == xerrors.CodeUnknown {
		code = CodeJobProcessing
	}
	retryable := xerrors.RetryableError(execErr)
	terminal := job.Attempts >= job.MaxRetries || !retryable

	if !retryable && p.recovery != nil {
		if fallback, recErr := p.recovery.Recover(ctx, job, execErr); recErr != nil {
			wrapped := xerrors.Wrap(CodeJobCompensate, recErr, "任务补偿失败")
			logger.L().Error("执行补偿逻辑失败",
				slog.Any("error", wrapped),
				slog.String("job_id", job.ID))
			p.emitAlert(ctx, job, CodeJobCompensate, wrapped, "compensate")
		} else if fallback != nil {
			if fallback.Observations == "" {
				fallback.Observations = fmt.Sprintf("降级处理: %v", execErr)
			}
			if err := p.store.MarkReady(ctx, job.ID, fallback); err != nil {
				logger.L().Error("记录降级结果失败", slog.Any("error", err), slog.String("job_id", job.ID))
				if storeErr := p.store.MarkFailed(ctx, job.ID, code, err.Error(), false); storeErr != nil {
					logger.L().Error("降级失败后的回写失败状态出错", slog.Any("error", storeErr), slog.String("job_id", job.ID))
					return storeErr
				}
				if pubErr := p.producer.Publish(ctx, job.ID); pubErr != nil {
					return xerrors.Wrap(CodeJobPublish, pubErr, fmt.Sprintf("任务 %s 在降级失败后重投失败", job.ID))
				}
				return nil
			}
			logger.Audit().Warn("任务降级完成",
				slog.String("job_id", job.ID),
				slog.String("user_id", job.UserID),
				slog.String("observations", fallback.Observations),
			)
			metrics.ObservePlanJob("degraded")
			p.emitAlert(ctx, job, code, execErr, "degraded")
			return nil
		}
	}

	if storeErr := p.store.MarkFailed(ctx, job.ID, code, execErr.Error(), terminal); storeErr != nil {
		logger.L().Error("标记任务失败状态出错", slog.Any("error", storeErr), slog.String("job_id", job.ID))
		return storeErr
	}
	logger.Audit().Warn("规划任务失败",
		slog.String("job_id", job.ID),
		slog.String("user_id", job.UserID),
		slog.Bool("terminal", terminal),
		slog.String("error", execErr.Error()),
		slog.String("error_code", string(code)),
		slog.Int("attempts", job.Attempts),
		slog.Int("max_retries", job.MaxRetries),
	)
	if terminal {
		metrics.ObservePlanJob(string(StatusFailed))
	}

	stage := "retry"
	if terminal {
		stage = "terminal"
	} else if !retryable {
		stage = "non_retryable"
	}
	p.emitAlert(ctx, job, code, execErr, stage)

	if retryable && !terminal {
		if pubErr := p.producer.Publish(ctx, job.ID); pubErr != nil {
			return xerrors.Wrap(CodeJobPublish, pubErr, fmt.Sprintf("任务 %s 重投失败", job.ID))
		}
		p.logDebug("任务已重新排队", slog.String("job_id", job.ID), slog.Int("attempts", job.Attempts))
	}
	return nil
}

func (p *Processor) logDebug(msg string, attrs ...slog.Attr) {
	if p.logger != nil {
		// 将slog.Attr转换为[]any
		args := make([]any, len(attrs))
		for i, attr := range attrs {
			args[i] = attr
		}
		p.logger.Debug(msg, args...)
	}
}

func (p *Processor) emitAlert(ctx context.Context, job *Job, code xerrors.Code, cause error, stage string) {
	if p == nil || p.alerter == nil || job == nil {
		return
	}
	attrs := xerrors.AttributesOf(code)
	message := attrs.Message
	if cause != nil {
		message = cause.Error()
	}
	metadata := map[string]string{
		"stage": stage,
	}
	if cause != nil {
		metadata["cause"] = cause.Error()
	}
	event := alerting.Event{
		Code:       code,
		Message:    message,
		Severity:   attrs.Severity,
		JobID:      job.ID,
		UserID:     job.UserID,
		Attempts:   job.Attempts,
		MaxRetries: job.MaxRetries,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}
	if err := p.alerter.Notify(ctx, event); err != nil {
		logger.L().Error("告警通知失败",
			slog.Any("error", err),
			slog.String("job_id", job.ID),
			slog.String("stage", stage),
		)
	}
}
