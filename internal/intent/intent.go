package intent

import (
	"strconv"
	"strings"

	xerrors "Karana-Planner/internal/errors"
)

// Layer 表示操作所属的设备子系统。
type Layer string

const (
	LayerHardware       Layer = "HARDWARE"
	LayerBlockchain     Layer = "BLOCKCHAIN"
	LayerApplications   Layer = "APPLICATIONS"
	LayerIntelligence   Layer = "INTELLIGENCE"
	LayerInterface      Layer = "INTERFACE"
	LayerSystemServices Layer = "SYSTEM_SERVICES"
	LayerSpatial        Layer = "SPATIAL"
	LayerNetwork        Layer = "NETWORK"
)

// Action 描述意图源产出的一次设备操作请求。Action 一经产出即视为不可变，
// 规划器只读取、从不修改。
type Action struct {
	Layer      Layer          `json:"layer"`
	Operation  Operation      `json:"operation"`
	Params     map[string]any `json:"params,omitempty"`
	Confidence float64        `json:"confidence"`
	Reasoning  string         `json:"reasoning,omitempty"`
}

var (
	// ErrMissingLayer 表示意图缺少子系统判别字段，属于上游契约破坏。
	ErrMissingLayer = xerrors.New(CodeIntentMissingLayer, "intent action missing layer")
	// ErrMissingOperation 表示意图缺少操作判别字段，属于上游契约破坏。
	ErrMissingOperation = xerrors.New(CodeIntentMissingOperation, "intent action missing operation")
)

const (
	CodeIntentMissingLayer     xerrors.Code = "INTENT_MISSING_LAYER"
	CodeIntentMissingOperation xerrors.Code = "INTENT_MISSING_OPERATION"
)

func init() {
	xerrors.Register(CodeIntentMissingLayer, xerrors.Attributes{
		Message:  "intent action missing layer",
		Severity: xerrors.SeverityWarning,
	})
	xerrors.Register(CodeIntentMissingOperation, xerrors.Attributes{
		Message:  "intent action missing operation",
		Severity: xerrors.SeverityWarning,
	})
}

// Validate 校验判别字段。缺失 layer 或 operation 说明意图源已经失约，
// 必须显式报错而不是降级处理。
func (a Action) Validate() error {
	if strings.TrimSpace(string(a.Layer)) == "" {
		return ErrMissingLayer
	}
	if strings.TrimSpace(string(a.Operation)) == "" {
		return ErrMissingOperation
	}
	return nil
}

// IsValidLayer 检查给定层是否为支持的枚举值。
func IsValidLayer(layer Layer) bool {
	switch layer {
	case LayerHardware, LayerBlockchain, LayerApplications, LayerIntelligence,
		LayerInterface, LayerSystemServices, LayerSpatial, LayerNetwork:
		return true
	default:
		return false
	}
}

// ParseLayer 将任意字符串规整为层枚举。不识别的值原样返回，由调用方决定
// 是否拒绝。
func ParseLayer(raw string) Layer {
	return Layer(strings.ToUpper(strings.TrimSpace(raw)))
}

// ParamString 返回字符串参数。缺失或类型不符时返回空字符串。
func (a Action) ParamString(key string) string {
	if a.Params == nil {
		return ""
	}
	if value, ok := a.Params[key].(string); ok {
		return value
	}
	return ""
}

// ParamFloat 返回数值参数。缺失或无法解析时返回 0，符合规划器的降级约定。
func (a Action) ParamFloat(key string) float64 {
	if a.Params == nil {
		return 0
	}
	switch value := a.Params[key].(type) {
	case float64:
		return value
	case float32:
		return float64(value)
	case int:
		return float64(value)
	case int64:
		return float64(value)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

// Clone 返回动作的深拷贝（参数表按浅值复制）。
func (a Action) Clone() Action {
	clone := a
	clone.Params = cloneParams(a.Params)
	return clone
}

// CloneAll 返回动作序列的拷贝。
func CloneAll(actions []Action) []Action {
	if actions == nil {
		return nil
	}
	cloned := make([]Action, len(actions))
	for i, action := range actions {
		cloned[i] = action.Clone()
	}
	return cloned
}

func cloneParams(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	cloned := make(map[string]any, len(params))
	for key, value := range params {
		cloned[key] = value
	}
	return cloned
}
