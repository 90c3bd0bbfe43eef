// Package chain 通过 go-ethereum 访问 Karana 区块链节点，把钱包余额、
// 对等节点数与区块高度刷新进设备快照。规划器决定交易是否可行只需要这些
// 只读数据，签名与广播交易由设备端栈完成。
package chain

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Definitions 对应 configs/chain.yaml 的结构。
type Definitions struct {
	Chains map[string]Definition `yaml:"chains"`
}

// Definition 描述单条链的接入端点。
type Definition struct {
	Type        string `yaml:"type"`
	RPCURL      string `yaml:"rpc_url"`
	Description string `yaml:"description"`
}

// LoadDefinitions 解析链元数据 YAML 文件。
func LoadDefinitions(path string) (Definitions, error) {
	if strings.TrimSpace(path) == "" {
		return Definitions{Chains: map[string]Definition{}}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Definitions{}, fmt.Errorf("读取链配置失败: %w", err)
	}

	var defs Definitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return Definitions{}, fmt.Errorf("解析链配置失败: %w", err)
	}
	if defs.Chains == nil {
		defs.Chains = map[string]Definition{}
	}
	return defs, nil
}
