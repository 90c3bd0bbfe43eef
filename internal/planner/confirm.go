package planner

import (
	"fmt"
	"strings"

	"Karana-Planner/internal/intent"
)

// maxUnconfirmedSteps 为免确认的步骤数上限，再多就需要用户点头。
const maxUnconfirmedSteps = 3

// requiresConfirmation 判定计划是否需要用户确认：包含高风险操作、
// 任一风险条目带警告或降级标记、或步骤数超过上限。
func requiresConfirmation(steps []Step, risks []string) bool {
	if len(steps) > maxUnconfirmedSteps {
		return true
	}
	for _, step := range steps {
		if isHighStakes(step.Action.Operation) {
			return true
		}
	}
	for _, risk := range risks {
		if hasWarningMarker(risk) {
			return true
		}
	}
	return false
}

// isHighStakes 标记必须确认的操作：资金转移、安全模式切换、系统
// 升级，以及任何带 DELETE 字样的破坏性操作。
func isHighStakes(op intent.Operation) bool {
	switch op {
	case intent.OpWalletTransfer, intent.OpSecurityMode, intent.OpOTAInstall:
		return true
	}
	return strings.Contains(string(op), "DELETE")
}

// hasWarningMarker 识别带警告或安全降级标记的风险条目。
func hasWarningMarker(risk string) bool {
	return strings.Contains(risk, "Warning:") ||
		strings.Contains(strings.ToLower(risk), "downgrade")
}

// confirmationMessage 渲染确认文案：按最终顺序列出每个步骤的
// 「序号. 操作名」，随后是完整风险列表，最后是 proceed/cancel 提示。
func confirmationMessage(steps []Step, risks []string) string {
	lines := make([]string, 0, len(steps)+len(risks)+2)
	for i, step := range steps {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, step.Action.Operation))
	}
	if len(risks) > 0 {
		lines = append(lines, "Risks:")
		for _, risk := range risks {
			lines = append(lines, "- "+risk)
		}
	}
	lines = append(lines, "Reply 'proceed' to continue or 'cancel' to abort.")
	return strings.Join(lines, "\n")
}
