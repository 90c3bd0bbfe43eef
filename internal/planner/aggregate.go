package planner

// aggregate 汇总计划级数据。总时长为各步骤串行之和；并行时长取
// 关键路径的一跳近似：每个步骤自身耗时加其唯一依赖集的耗时之和，
// 全计划取最大值。电量与存储线性累加，网络与相机按需求取或，权限
// 取首次出现顺序的无重复并集，风险按最终步骤顺序平铺且保留重复。
func aggregate(steps []Step) (total, parallel int64, resources Resources, risks []string) {
	resources.Permissions = []string{}
	risks = []string{}
	seenPerms := make(map[string]struct{})

	for _, step := range steps {
		total += step.EstimatedDurationMs
		resources.BatteryMAh += step.Resources.BatteryMAh
		resources.StorageMB += step.Resources.StorageMB
		resources.Network = resources.Network || step.Resources.Network
		resources.Camera = resources.Camera || step.Resources.Camera
		for _, perm := range step.Resources.Permissions {
			if _, ok := seenPerms[perm]; ok {
				continue
			}
			seenPerms[perm] = struct{}{}
			resources.Permissions = append(resources.Permissions, perm)
		}
		risks = append(risks, step.Risks...)
	}

	for _, step := range steps {
		span := step.EstimatedDurationMs
		counted := make(map[int]struct{}, len(step.Dependencies))
		for _, dep := range step.Dependencies {
			if _, ok := counted[dep]; ok {
				continue
			}
			counted[dep] = struct{}{}
			span += steps[dep].EstimatedDurationMs
		}
		if span > parallel {
			parallel = span
		}
	}
	return total, parallel, resources, risks
}
