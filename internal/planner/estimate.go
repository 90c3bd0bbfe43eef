package planner

import (
	"Karana-Planner/internal/device"
	"Karana-Planner/internal/intent"
	"Karana-Planner/internal/policy"
)

// buildSteps 为每个动作构建步骤：并行性、时长估算、资源估算、风险
// 评估。依赖列表留空，由后续阶段回填。
func (p *Planner) buildSteps(actions []intent.Action, snap *device.Snapshot, profile *policy.Profile) []Step {
	steps := make([]Step, len(actions))
	for i, action := range actions {
		step := Step{
			Action:              action.Clone(),
			Dependencies:        []int{},
			CanRunInParallel:    canRunInParallel(action),
			EstimatedDurationMs: estimateDuration(action.Operation),
			Resources:           estimateResources(action),
		}
		step.Risks = p.assessRisks(step, snap, profile)
		steps[i] = step
	}
	return steps
}

// canRunInParallel 判定步骤能否与他步并行。硬件层相机操作争用同一
// 传感器，区块链层操作依赖钱包 nonce 顺序，二者都必须串行。
func canRunInParallel(action intent.Action) bool {
	if action.Layer == intent.LayerHardware && action.Operation.IsCamera() {
		return false
	}
	if action.Layer == intent.LayerBlockchain {
		return false
	}
	return true
}

// estimateDuration 返回操作的估算耗时（毫秒）。枚举必须穷举所有已知
// 操作；新增操作若不补充本 switch，将落入默认的 500ms 兜底档。
func estimateDuration(op intent.Operation) int64 {
	switch op {
	case intent.OpWalletCreate:
		return 2000
	case intent.OpWalletTransfer:
		return 3000
	case intent.OpWalletBalance:
		return 700
	case intent.OpAndroidInstall:
		return 10000
	case intent.OpAndroidOpen:
		return 1200
	case intent.OpVisionAnalyze:
		return 1500
	case intent.OpOTAInstall:
		return 30000
	case intent.OpOTACheck:
		return 1800
	case intent.OpCameraActivate:
		return 800
	case intent.OpCameraCapture:
		return 600
	case intent.OpCameraStartVideo:
		return 1000
	case intent.OpCameraStopVideo:
		return 400
	case intent.OpNavStart:
		return 2500
	case intent.OpNavStop:
		return 300
	case intent.OpSecurityMode:
		return 400
	case intent.OpMeshStatus:
		return 600
	case intent.OpUINotify:
		return 200
	default:
		return defaultDurationMs
	}
}

// estimateResources 返回操作的资源耗用。规则互斥，按特异性从高到低
// 匹配；未命中任何规则的操作视为零耗用。
func estimateResources(action intent.Action) Resources {
	switch {
	case action.Layer == intent.LayerHardware && action.Operation.IsCamera():
		storage := 5.0
		if action.Operation == intent.OpCameraStartVideo {
			storage = 100
		}
		return Resources{
			BatteryMAh:  50,
			Camera:      true,
			StorageMB:   storage,
			Permissions: []string{"camera"},
		}
	case action.Operation == intent.OpVisionAnalyze:
		return Resources{
			BatteryMAh:  30,
			Network:     true,
			Camera:      true,
			Permissions: []string{"camera"},
		}
	case action.Operation == intent.OpAndroidInstall:
		return Resources{
			BatteryMAh:  100,
			Network:     true,
			StorageMB:   200,
			Permissions: []string{"storage"},
		}
	case action.Operation == intent.OpNavStart:
		return Resources{
			BatteryMAh:  150,
			Network:     true,
			Permissions: []string{"location"},
		}
	case action.Layer == intent.LayerBlockchain:
		return Resources{
			BatteryMAh: 20,
			Network:    true,
		}
	default:
		return Resources{}
	}
}
