package planner

import (
	"fmt"

	"Karana-Planner/internal/device"
)

// validate 用快照校验聚合后的计划是否可行。电量与存储对照真实读数；
// 快照缺失读数时，电量退回标称容量并在文案中注明 assumed，存储则
// 不做通过/失败判定，改为在风险列表中追加 unverified 说明。返回的
// blockers 为空即计划可执行。
func (p *Planner) validate(plan *Plan, snap *device.Snapshot) (blockers, notes []string) {
	blockers = []string{}

	capacity := snap.Power.CapacityMAh
	capacityAssumed := false
	if capacity <= 0 {
		capacity = p.nominalBattery
		capacityAssumed = true
	}
	available := snap.Power.Fraction * capacity
	if plan.Resources.BatteryMAh > available {
		if capacityAssumed {
			blockers = append(blockers, fmt.Sprintf(
				"plan needs %s mAh but battery holds about %s mAh (assumed %s mAh capacity)",
				formatAmount(plan.Resources.BatteryMAh), formatAmount(available), formatAmount(capacity)))
		} else {
			blockers = append(blockers, fmt.Sprintf(
				"plan needs %s mAh but battery holds about %s mAh",
				formatAmount(plan.Resources.BatteryMAh), formatAmount(available)))
		}
	}

	if plan.Resources.Network && snap.Network.PeerCount == 0 {
		blockers = append(blockers, "plan needs network access but the device has no peers")
	}

	if plan.Resources.StorageMB > 0 {
		if snap.Storage.Reported {
			if plan.Resources.StorageMB > snap.Storage.AvailableMB {
				blockers = append(blockers, fmt.Sprintf(
					"plan needs %s MB storage but only %s MB is available",
					formatAmount(plan.Resources.StorageMB), formatAmount(snap.Storage.AvailableMB)))
			}
		} else {
			notes = append(notes, fmt.Sprintf(
				"Storage requirement of %s MB is unverified (device did not report available storage)",
				formatAmount(plan.Resources.StorageMB)))
		}
	}
	return blockers, notes
}
