package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// StaticProvider 通过加载 JSON 文件提供应用目录。
type StaticProvider struct {
	dir Directory
}

// NewStaticProvider 以给定目录构造静态应用目录源。
func NewStaticProvider(dir Directory) *StaticProvider {
	if dir == nil {
		dir = Directory{}
	}
	return &StaticProvider{dir: dir}
}

// LoadStaticProvider 从 JSON 文件加载应用条目。
func LoadStaticProvider(path string) (*StaticProvider, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("应用目录文件路径不能为空")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("解析应用目录路径失败: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("读取应用目录文件失败: %w", err)
	}
	defer file.Close()

	var apps []App
	if err := json.NewDecoder(file).Decode(&apps); err != nil {
		return nil, fmt.Errorf("解析应用目录文件失败: %w", err)
	}

	return NewStaticProvider(BuildDirectory(apps)), nil
}

// Directory 实现 Provider。返回内部目录的副本。
func (p *StaticProvider) Directory(_ context.Context) (Directory, error) {
	if p == nil {
		return Directory{}, nil
	}
	return p.dir.Clone(), nil
}

var _ Provider = (*StaticProvider)(nil)
