// Package static 提供基于 JSON 文件的设备状态快照源，用于开发环境与固定
// 演示设备。文件内容即 device.Snapshot 的序列化形式。
package static

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"Karana-Planner/internal/device"
)

// Provider 返回从文件装载的快照。每次调用返回独立副本，调用方可安全持有。
type Provider struct {
	mu   sync.RWMutex
	snap *device.Snapshot
	path string
}

// NewProvider 以给定快照构造静态状态源，主要用于测试。
func NewProvider(snap *device.Snapshot) *Provider {
	if snap == nil {
		snap = &device.Snapshot{}
	}
	return &Provider{snap: snap.Clone()}
}

// Load 从 JSON 文件装载设备快照。
func Load(path string) (*Provider, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("设备快照文件路径不能为空")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("解析设备快照路径失败: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("读取设备快照文件失败: %w", err)
	}
	defer file.Close()

	var snap device.Snapshot
	if err := json.NewDecoder(file).Decode(&snap); err != nil {
		return nil, fmt.Errorf("解析设备快照文件失败: %w", err)
	}

	return &Provider{snap: &snap, path: absPath}, nil
}

// Snapshot 实现 device.Provider。
func (p *Provider) Snapshot(_ context.Context) (*device.Snapshot, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	snap := p.snap.Clone()
	if snap.CapturedAt == 0 {
		snap.CapturedAt = time.Now().Unix()
	}
	return snap, nil
}

// Reload 重新读取底层文件。仅对 Load 构造的实例有效。
func (p *Provider) Reload() error {
	if p.path == "" {
		return nil
	}
	file, err := os.Open(p.path)
	if err != nil {
		return fmt.Errorf("读取设备快照文件失败: %w", err)
	}
	defer file.Close()

	var snap device.Snapshot
	if err := json.NewDecoder(file).Decode(&snap); err != nil {
		return fmt.Errorf("解析设备快照文件失败: %w", err)
	}

	p.mu.Lock()
	p.snap = &snap
	p.mu.Unlock()
	return nil
}

var _ device.Provider = (*Provider)(nil)
