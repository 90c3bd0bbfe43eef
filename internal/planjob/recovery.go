package planjob

import (
	"context"

	"Karana-Planner/internal/engine"
)

// RecoveryHandler 定义了在规划失败时的补偿策略。
type RecoveryHandler interface {
	// Recover 尝试根据失败原因进行补偿或降级。
	// 返回的 Result 将作为降级结果写入任务；若返回 nil 则继续按照失败流程处理。
	Recover(ctx context.Context, job *Job, cause error) (*engine.Result, error)
}
