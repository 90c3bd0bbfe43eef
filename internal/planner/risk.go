package planner

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"Karana-Planner/internal/device"
	"Karana-Planner/internal/intent"
	"Karana-Planner/internal/policy"
)

// 风险阈值。超过即生成对应的风险条目。
const (
	balanceWarningShare = 0.5
	lowBatteryFraction  = 0.2
	heavyDrawMAh        = 50
	storageWarningShare = 0.8
	longRunningCutoffMs = 10000
	securityRelaxedMode = "relaxed"
)

// assessRisks 依次评估单个步骤的全部风险：转账金额、低电量、存储占用、
// 长耗时、安全降级、视觉授权。条目顺序固定，便于上层按序呈现。
func (p *Planner) assessRisks(step Step, snap *device.Snapshot, profile *policy.Profile) []string {
	risks := []string{}
	action := step.Action

	if action.Operation == intent.OpWalletTransfer {
		amount := action.ParamFloat("amount")
		risks = append(risks, fmt.Sprintf("Will transfer %s KARA", formatAmount(amount)))
		if amount > snap.Wallet.BalanceKara*balanceWarningShare {
			risks = append(risks, fmt.Sprintf(
				"Warning: transfer exceeds 50%% of the %s KARA balance",
				formatAmount(snap.Wallet.BalanceKara)))
		}
	}

	if step.Resources.BatteryMAh > heavyDrawMAh && snap.Power.Fraction < lowBatteryFraction {
		risks = append(risks, fmt.Sprintf(
			"Warning: battery at %d%% may not sustain this step (%s mAh)",
			batteryPercent(snap.Power.Fraction), formatAmount(step.Resources.BatteryMAh)))
	}

	if step.Resources.StorageMB > 0 {
		if snap.Storage.Reported {
			if step.Resources.StorageMB > snap.Storage.AvailableMB*storageWarningShare {
				risks = append(risks, fmt.Sprintf(
					"Warning: step needs %s MB of the %s MB available",
					formatAmount(step.Resources.StorageMB), formatAmount(snap.Storage.AvailableMB)))
			}
		} else if step.Resources.StorageMB > p.storageBudget*storageWarningShare {
			risks = append(risks, fmt.Sprintf(
				"Warning: step needs %s MB of an assumed %s MB budget (unverified)",
				formatAmount(step.Resources.StorageMB), formatAmount(p.storageBudget)))
		}
	}

	if step.EstimatedDurationMs > longRunningCutoffMs {
		risks = append(risks, fmt.Sprintf(
			"This step takes about %d seconds to complete", roundToSeconds(step.EstimatedDurationMs)))
	}

	if action.Operation == intent.OpSecurityMode &&
		strings.EqualFold(strings.TrimSpace(action.ParamString("mode")), securityRelaxedMode) {
		risks = append(risks, "Warning: security downgrade to relaxed mode")
	}

	if action.Operation == intent.OpVisionAnalyze && !profile.VisionConsent {
		risks = append(risks, "Vision analysis shares camera frames without recorded consent")
	}

	return risks
}

// formatAmount 以最短无损形式渲染数值，整数不带小数点（100 而非 100.0）。
func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// batteryPercent 将电量比例换算为整数百分比。
func batteryPercent(fraction float64) int {
	return int(math.Round(fraction * 100))
}

// roundToSeconds 将毫秒时长四舍五入为整秒。
func roundToSeconds(ms int64) int64 {
	return (ms + 500) / 1000
}
