package device

import (
	"context"
	"time"

	"log/slog"

	"Karana-Planner/pkg/logger"
)

// Composite 组合基础快照源与若干刷新器。刷新器按注册顺序依次在快照上覆盖
// 实时数据（例如链上余额与对等节点数），单个刷新失败只降级不报错。
type Composite struct {
	base       Provider
	refreshers []Refresher
	timeout    time.Duration
	log        *slog.Logger
}

// CompositeOption 配置组合快照源。
type CompositeOption func(*Composite)

// WithRefreshTimeout 设置单个刷新器的超时时间，默认 3 秒。
func WithRefreshTimeout(d time.Duration) CompositeOption {
	return func(c *Composite) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithCompositeLogger 覆盖默认日志器。
func WithCompositeLogger(log *slog.Logger) CompositeOption {
	return func(c *Composite) {
		if log != nil {
			c.log = log
		}
	}
}

// NewComposite 构造组合快照源。
func NewComposite(base Provider, refreshers []Refresher, opts ...CompositeOption) *Composite {
	c := &Composite{
		base:       base,
		refreshers: refreshers,
		timeout:    3 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Named("device")
	}
	return c
}

// Snapshot 实现 Provider。先取基础快照，再逐个应用刷新器。
func (c *Composite) Snapshot(ctx context.Context) (*Snapshot, error) {
	snap, err := c.base.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		snap = &Snapshot{}
	}

	for _, r := range c.refreshers {
		refreshCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := r.Refresh(refreshCtx, snap)
		cancel()
		if err != nil {
			c.log.Warn("设备状态刷新失败，使用基础快照数据", "error", err)
		}
	}

	if snap.CapturedAt == 0 {
		snap.CapturedAt = time.Now().Unix()
	}
	return snap, nil
}

var _ Provider = (*Composite)(nil)
