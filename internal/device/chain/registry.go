package chain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"Karana-Planner/internal/config"
)

// Registry 按名称管理一组链客户端。
type Registry struct {
	defaultChain string
	clients      map[string]*Client
}

// NewRegistry 装载链定义文件并实例化对应的客户端。
func NewRegistry(ctx context.Context, cfg config.ChainConfig) (*Registry, error) {
	defs, err := LoadDefinitions(cfg.Definitions)
	if err != nil {
		return nil, err
	}

	clients := make(map[string]*Client)
	for name, def := range defs.Chains {
		chainType := strings.ToLower(strings.TrimSpace(def.Type))
		if chainType == "" {
			chainType = "evm"
		}
		switch chainType {
		case "evm":
			client, err := NewClient(ctx, Config{
				Name:          name,
				RPCURL:        def.RPCURL,
				WalletAddress: cfg.WalletAddress,
				Notes:         def.Description,
			})
			if err != nil {
				return nil, fmt.Errorf("初始化链 %s 失败: %w", name, err)
			}
			clients[name] = client
		default:
			return nil, fmt.Errorf("链 %s 使用了不支持的类型 %s", name, def.Type)
		}
	}

	defaultChain := cfg.DefaultChain
	if len(clients) == 0 && strings.TrimSpace(cfg.RPCURL) != "" {
		client, err := NewClient(ctx, Config{
			Name:          "default",
			RPCURL:        cfg.RPCURL,
			WalletAddress: cfg.WalletAddress,
		})
		if err != nil {
			return nil, err
		}
		clients["default"] = client
		if defaultChain == "" {
			defaultChain = "default"
		}
	}

	if len(clients) == 0 {
		return nil, errors.New("未配置任何链的 RPC 端点")
	}

	if defaultChain == "" {
		names := make([]string, 0, len(clients))
		for name := range clients {
			names = append(names, name)
		}
		sort.Strings(names)
		defaultChain = names[0]
	}
	if _, ok := clients[defaultChain]; !ok {
		return nil, fmt.Errorf("默认链 %s 未在配置中找到", defaultChain)
	}

	return &Registry{defaultChain: defaultChain, clients: clients}, nil
}

// DefaultClient 返回配置为默认链的客户端。
func (r *Registry) DefaultClient() (*Client, error) {
	if r == nil {
		return nil, errors.New("未初始化的链客户端注册表")
	}
	client, ok := r.clients[r.defaultChain]
	if !ok {
		return nil, fmt.Errorf("默认链 %s 未在注册表中", r.defaultChain)
	}
	return client, nil
}

// Client 返回指定名称的链客户端。
func (r *Registry) Client(name string) (*Client, bool) {
	if r == nil {
		return nil, false
	}
	client, ok := r.clients[name]
	return client, ok
}

// Chains 返回已注册链的名称列表。
func (r *Registry) Chains() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close 释放注册表管理的全部客户端。
func (r *Registry) Close() {
	if r == nil {
		return
	}
	for name, client := range r.clients {
		if client != nil {
			client.Close()
		}
		delete(r.clients, name)
	}
}
