package planjob

import (
	stdErrors "errors"

	"Karana-Planner/internal/engine"
	xerrors "Karana-Planner/internal/errors"
	"Karana-Planner/internal/intent"
)

// Status 表示规划任务在生命周期中的状态。
type Status string

const (
	StatusPending              Status = "pending"
	StatusPlanning             Status = "planning"
	StatusReady                Status = "ready"
	StatusAwaitingConfirmation Status = "awaiting_confirmation"
	StatusFailed               Status = "failed"
	StatusCancelled            Status = "cancelled"
)

// Decision 记录用户对待确认计划的裁决。
type Decision struct {
	Approved  bool   `json:"approved"`
	Note      string `json:"note,omitempty"`
	DecidedAt int64  `json:"decided_at"`
}

// Job 描述了排队规划的请求。Result 在规划完成后填充；Confirmation 仅在
// 计划经过确认环节后存在。
type Job struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id,omitempty"`
	Utterance     string          `json:"utterance,omitempty"`
	Locale        string          `json:"locale,omitempty"`
	Actions       []intent.Action `json:"actions,omitempty"`
	Metadata      map[string]any  `json:"metadata,omitempty"`
	Status        Status          `json:"status"`
	Attempts      int             `json:"attempts"`
	MaxRetries    int             `json:"max_retries"`
	FailureReason string          `json:"failure_reason,omitempty"`
	FailureCode   string          `json:"failure_code,omitempty"`
	Result        *engine.Result  `json:"result,omitempty"`
	Confirmation  *Decision       `json:"confirmation,omitempty"`
	CreatedAt     int64           `json:"created_at"`
	UpdatedAt     int64           `json:"updated_at"`
}

var (
	// ErrJobNotFound 表示指定的规划任务不存在。
	ErrJobNotFound = xerrors.New(CodeJobNotFound, "plan job not found")
	// ErrJobConflict 表示任务在当前状态下无法进行所请求的操作。
	ErrJobConflict = xerrors.New(CodeJobConflict, "plan job conflict", xerrors.WithSeverity(xerrors.SeverityWarning))
	// ErrJobCompleted 表示任务的规划阶段已经结束。
	ErrJobCompleted = xerrors.New(CodeJobCompleted, "plan job already completed", xerrors.WithSeverity(xerrors.SeverityInfo))
	// ErrJobExhausted 表示任务的重试次数已经耗尽。
	ErrJobExhausted = xerrors.New(CodeJobExhausted, "plan job retries exhausted", xerrors.WithSeverity(xerrors.SeverityCritical))
	// ErrJobNotAwaiting 表示任务当前并不处于待确认状态。
	ErrJobNotAwaiting = xerrors.New(CodeJobNotAwaiting, "plan job is not awaiting confirmation", xerrors.WithSeverity(xerrors.SeverityWarning))
)

const (
	CodeJobNotFound    xerrors.Code = "PLANJOB_NOT_FOUND"
	CodeJobConflict    xerrors.Code = "PLANJOB_CONFLICT"
	CodeJobCompleted   xerrors.Code = "PLANJOB_COMPLETED"
	CodeJobExhausted   xerrors.Code = "PLANJOB_RETRIES_EXHAUSTED"
	CodeJobNotAwaiting xerrors.Code = "PLANJOB_NOT_AWAITING_CONFIRMATION"
	CodeJobValidation  xerrors.Code = "PLANJOB_VALIDATION_FAILED"
	CodeJobPublish     xerrors.Code = "PLANJOB_PUBLISH_FAILED"
	CodeJobProcessing  xerrors.Code = "PLANJOB_PROCESSING_FAILED"
	CodeJobCompensate  xerrors.Code = "PLANJOB_COMPENSATION_FAILED"
)

func init() {
	xerrors.Register(CodeJobNotFound, xerrors.Attributes{
		Message:   "plan job not found",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeJobConflict, xerrors.Attributes{
		Message:   "plan job conflict",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeJobCompleted, xerrors.Attributes{
		Message:   "plan job already completed",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeJobExhausted, xerrors.Attributes{
		Message:   "plan job retries exhausted",
		Severity:  xerrors.SeverityCritical,
		Retryable: false,
		Alert:     true,
	})
	xerrors.Register(CodeJobNotAwaiting, xerrors.Attributes{
		Message:   "plan job is not awaiting confirmation",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeJobValidation, xerrors.Attributes{
		Message:   "plan job validation failed",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeJobPublish, xerrors.Attributes{
		Message:   "failed to publish plan job",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeJobProcessing, xerrors.Attributes{
		Message:   "plan job execution failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeJobCompensate, xerrors.Attributes{
		Message:   "plan job compensation failed",
		Severity:  xerrors.SeverityCritical,
		Retryable: false,
		Alert:     true,
	})
}

// IsJobError 判断错误是否为统一规划任务错误。
func IsJobError(err error, target xerrors.Code) bool {
	if err == nil {
		return false
	}
	if stdErrors.Is(err, ErrJobNotFound) {
		return target == CodeJobNotFound
	}
	if stdErrors.Is(err, ErrJobConflict) {
		return target == CodeJobConflict
	}
	if stdErrors.Is(err, ErrJobCompleted) {
		return target == CodeJobCompleted
	}
	if stdErrors.Is(err, ErrJobExhausted) {
		return target == CodeJobExhausted
	}
	if stdErrors.Is(err, ErrJobNotAwaiting) {
		return target == CodeJobNotAwaiting
	}
	return false
}

// IsTerminal 报告任务是否已经离开规划流水线。待确认状态也算流水线
// 结束：后续只会经过确认接口改变状态，不会再被工作协程领取。
func (s Status) IsTerminal() bool {
	switch s {
	case StatusReady, StatusAwaitingConfirmation, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsValidStatus 检查给定的任务状态是否为支持的枚举值。
func IsValidStatus(status Status) bool {
	switch status {
	case StatusPending, StatusPlanning, StatusReady, StatusAwaitingConfirmation, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

func cloneMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	cloned := make(map[string]any, len(metadata))
	for key, value := range metadata {
		cloned[key] = value
	}
	return cloned
}
