package nlu

import (
	"context"

	"Karana-Planner/internal/intent"
)

// Request 描述一次意图识别请求。
type Request struct {
	Utterance string
	Locale    string
	Hints     []string
}

// Response 是识别得到的结构化输出。Actions 为空表示指令中没有可执行
// 的操作，这不是错误。
type Response struct {
	Actions []intent.Action
	Thought string
}

// Client 定义了意图识别器的统一接口。
type Client interface {
	Recognize(ctx context.Context, req Request) (*Response, error)
}

// Normalize 将识别器产出的动作规整为规范形态：层与操作名统一大写，
// 置信度收敛到 [0,1]。字段缺失不在此处报错，由规划器按契约校验。
func Normalize(actions []intent.Action) []intent.Action {
	normalized := make([]intent.Action, len(actions))
	for i, action := range actions {
		action.Layer = intent.ParseLayer(string(action.Layer))
		action.Operation = intent.ParseOperation(string(action.Operation))
		if action.Confidence < 0 {
			action.Confidence = 0
		}
		if action.Confidence > 1 {
			action.Confidence = 1
		}
		normalized[i] = action
	}
	return normalized
}
