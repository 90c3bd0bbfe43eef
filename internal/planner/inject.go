package planner

import (
	"fmt"

	"Karana-Planner/internal/device"
	"Karana-Planner/internal/intent"
)

// injectPrerequisites 按输入顺序逐个审视意图，为缺失的前置条件合成
// 动作并插入到触发动作的紧前位置。判定只看原始快照，不模拟执行后的
// 状态变化，因此同一前置可能被多个触发动作重复注入。返回扩展后的
// 动作序列以及种子依赖边（触发 -> 注入，索引指向扩展后序列）。
func (p *Planner) injectPrerequisites(actions []intent.Action, snap *device.Snapshot) ([]intent.Action, []Edge) {
	out := make([]intent.Action, 0, len(actions))
	seeds := make([]Edge, 0)

	insert := func(prereq, trigger intent.Action, reason string) {
		out = append(out, prereq)
		at := len(out)
		out = append(out, trigger)
		seeds = append(seeds, Edge{From: at, To: at - 1, Reason: reason})
	}

	for _, action := range actions {
		switch {
		case action.Operation == intent.OpWalletTransfer && !snap.Wallet.Exists:
			insert(intent.Action{
				Layer:      intent.LayerBlockchain,
				Operation:  intent.OpWalletCreate,
				Confidence: 1.0,
				Reasoning:  "device has no wallet; created automatically before the transfer",
			}, action, "transfer requires an existing wallet")

		case action.Operation == intent.OpAndroidOpen && p.needsInstall(snap, action):
			appName := action.ParamString("appName")
			insert(intent.Action{
				Layer:      intent.LayerApplications,
				Operation:  intent.OpAndroidInstall,
				Params:     map[string]any{"appName": appName},
				Confidence: 1.0,
				Reasoning:  fmt.Sprintf("%s is not installed; installed automatically before opening", appName),
			}, action, fmt.Sprintf("%s must be installed before it can be opened", appName))

		case action.Operation == intent.OpVisionAnalyze && !snap.Camera.Active:
			insert(intent.Action{
				Layer:      intent.LayerHardware,
				Operation:  intent.OpCameraActivate,
				Confidence: 1.0,
				Reasoning:  "camera is inactive; activated automatically before vision analysis",
			}, action, "vision analysis requires an active camera")

		default:
			out = append(out, action)
		}
	}
	return out, seeds
}

// needsInstall 判断打开请求是否需要先安装：目录中收录且设备未安装。
// 未收录的应用按降级约定原样放行，交给执行期报错。
func (p *Planner) needsInstall(snap *device.Snapshot, action intent.Action) bool {
	appName := action.ParamString("appName")
	if appName == "" {
		return false
	}
	return p.catalog.Known(appName) && !snap.AppInstalled(appName)
}
