package planner

import (
	"fmt"
	"strings"

	"Karana-Planner/internal/intent"
)

// detectDependencies 对每一对 (i, j)，j < i，应用内置的依赖规则，
// 命中即追加一条 i 依赖 j 的边。规则之间互不排斥，同一对步骤可能
// 产生多条边；去重交给排序与聚合阶段的唯一化处理。
func detectDependencies(steps []Step) []Edge {
	edges := []Edge{}
	for i := 1; i < len(steps); i++ {
		for j := 0; j < i; j++ {
			later, earlier := steps[i].Action, steps[j].Action

			if isCameraStep(later) && isCameraStep(earlier) {
				edges = append(edges, Edge{From: i, To: j, Reason: "camera operations must be sequential"})
			}
			if later.Operation == intent.OpVisionAnalyze && earlier.Operation == intent.OpCameraCapture {
				edges = append(edges, Edge{From: i, To: j, Reason: "vision analysis consumes the captured frame"})
			}
			if later.Operation == intent.OpWalletTransfer && earlier.Operation == intent.OpWalletCreate {
				edges = append(edges, Edge{From: i, To: j, Reason: "transfer requires an existing wallet"})
			}
			if later.Operation == intent.OpAndroidOpen && earlier.Operation == intent.OpAndroidInstall {
				if app := later.ParamString("appName"); app != "" &&
					strings.EqualFold(app, earlier.ParamString("appName")) {
					edges = append(edges, Edge{From: i, To: j, Reason: fmt.Sprintf("%s must be installed before it can be opened", app)})
				}
			}
		}
	}
	return edges
}

// isCameraStep 判定硬件层相机操作。其他层即使操作名带 CAMERA_ 前缀
// 也不参与相机串行规则。
func isCameraStep(action intent.Action) bool {
	return action.Layer == intent.LayerHardware && action.Operation.IsCamera()
}

// applyDependencies 将边列表回填到各步骤的依赖列表。保持边列表顺序
// 原样追加，不去重；重复依赖由后续阶段按唯一集处理。
func applyDependencies(steps []Step, edges []Edge) {
	for _, edge := range edges {
		steps[edge.From].Dependencies = append(steps[edge.From].Dependencies, edge.To)
	}
}
