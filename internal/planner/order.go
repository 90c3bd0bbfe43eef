package planner

// orderSteps 对步骤做稳定拓扑排序：被依赖者在前，就绪集合中始终取
// 原始索引最小者，因此无依赖约束的步骤保持输入相对顺序。入度按唯一
// 依赖集计数，平行的重复边不会造成多次递减。排序后重映射所有依赖
// 索引与边索引，保证每个依赖都指向严格更小的位置。图含环时整体拒绝。
func orderSteps(steps []Step, edges []Edge) ([]Step, []Edge, error) {
	n := len(steps)
	if n == 0 {
		return steps, edges, nil
	}

	prereqs := make([]map[int]struct{}, n)
	for i := range prereqs {
		prereqs[i] = make(map[int]struct{})
	}
	for _, edge := range edges {
		prereqs[edge.From][edge.To] = struct{}{}
	}

	indegree := make([]int, n)
	dependents := make([][]int, n)
	for from, set := range prereqs {
		indegree[from] = len(set)
		for to := range set {
			dependents[to] = append(dependents[to], from)
		}
	}

	order := make([]int, 0, n)
	placed := make([]bool, n)
	for len(order) < n {
		next := -1
		for i := 0; i < n; i++ {
			if !placed[i] && indegree[i] == 0 {
				next = i
				break
			}
		}
		if next == -1 {
			return nil, nil, ErrDependencyCycle
		}
		placed[next] = true
		order = append(order, next)
		for _, dependent := range dependents[next] {
			indegree[dependent]--
		}
	}

	position := make([]int, n)
	for newIdx, oldIdx := range order {
		position[oldIdx] = newIdx
	}

	ordered := make([]Step, n)
	for newIdx, oldIdx := range order {
		step := steps[oldIdx]
		remapped := make([]int, len(step.Dependencies))
		for k, dep := range step.Dependencies {
			remapped[k] = position[dep]
		}
		step.Dependencies = remapped
		ordered[newIdx] = step
	}

	remappedEdges := make([]Edge, len(edges))
	for k, edge := range edges {
		remappedEdges[k] = Edge{From: position[edge.From], To: position[edge.To], Reason: edge.Reason}
	}
	return ordered, remappedEdges, nil
}
