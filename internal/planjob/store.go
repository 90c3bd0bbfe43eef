package planjob

import (
	"context"

	"Karana-Planner/internal/engine"
	xerrors "Karana-Planner/internal/errors"
)

// Store 抽象了规划任务状态的持久化接口。实现只需保证进程生命周期内
// 的一致性：任务存储承载在途请求，不承担计划的长期归档。
type Store interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	Claim(ctx context.Context, id string) (*Job, error)
	MarkReady(ctx context.Context, id string, result *engine.Result) error
	MarkAwaitingConfirmation(ctx context.Context, id string, result *engine.Result) error
	MarkFailed(ctx context.Context, id string, code xerrors.Code, reason string, terminal bool) error
	Confirm(ctx context.Context, id string, decision Decision) (*Job, error)
	Cancel(ctx context.Context, id string) (*Job, error)
	List(ctx context.Context, opts ListOptions) ([]*Job, error)
	Stats(ctx context.Context, opts ListOptions) (JobStats, error)
	Close() error
}
