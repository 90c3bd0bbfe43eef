package planner

import (
	"fmt"

	"Karana-Planner/internal/catalog"
	"Karana-Planner/internal/device"
	xerrors "Karana-Planner/internal/errors"
	"Karana-Planner/internal/intent"
	"Karana-Planner/internal/policy"
)

const (
	// CodePlanNilSnapshot 表示规划时缺少设备快照，属于调用方契约破坏。
	CodePlanNilSnapshot xerrors.Code = "PLAN_NIL_SNAPSHOT"
	// CodePlanNilProfile 表示规划时缺少用户策略档案。
	CodePlanNilProfile xerrors.Code = "PLAN_NIL_PROFILE"
	// CodePlanInvalidIntent 表示某个意图动作缺少判别字段。
	CodePlanInvalidIntent xerrors.Code = "PLAN_INVALID_INTENT"
	// CodePlanDependencyCycle 表示依赖边构成环，无法给出合法执行顺序。
	CodePlanDependencyCycle xerrors.Code = "PLAN_DEPENDENCY_CYCLE"
)

var (
	// ErrNilSnapshot 在快照为 nil 时返回。规划器从不代行采集状态。
	ErrNilSnapshot = xerrors.New(CodePlanNilSnapshot, "planner requires a device snapshot")
	// ErrNilProfile 在策略档案为 nil 时返回。
	ErrNilProfile = xerrors.New(CodePlanNilProfile, "planner requires a policy profile")
	// ErrDependencyCycle 在依赖图含环时返回，整个规划请求被拒绝。
	ErrDependencyCycle = xerrors.New(CodePlanDependencyCycle, "plan dependencies form a cycle")
)

func init() {
	xerrors.Register(CodePlanNilSnapshot, xerrors.Attributes{
		Message:  "planner requires a device snapshot",
		Severity: xerrors.SeverityCritical,
	})
	xerrors.Register(CodePlanNilProfile, xerrors.Attributes{
		Message:  "planner requires a policy profile",
		Severity: xerrors.SeverityCritical,
	})
	xerrors.Register(CodePlanInvalidIntent, xerrors.Attributes{
		Message:  "intent action is missing required fields",
		Severity: xerrors.SeverityWarning,
	})
	xerrors.Register(CodePlanDependencyCycle, xerrors.Attributes{
		Message:  "plan dependencies form a cycle",
		Severity: xerrors.SeverityWarning,
	})
}

// 估算与校验的兜底常量。快照给出真实值时以快照为准；使用兜底值的
// 输出必须带可见的 assumed / unverified 标记。
const (
	defaultDurationMs                = 500
	defaultAssumedStorageBudgetMB    = 1000
	defaultNominalBatteryCapacityMAh = 4000
)

// Planner 将意图动作序列转换为可执行计划。每次规划请求都应使用显式
// 构造的实例；实例本身无共享可变状态，可安全复用。
type Planner struct {
	catalog        catalog.Directory
	storageBudget  float64
	nominalBattery float64
}

// Option 调整规划器的可配置项。
type Option func(*Planner)

// WithCatalog 指定已知应用目录，用于安装前置判断。
func WithCatalog(dir catalog.Directory) Option {
	return func(p *Planner) {
		p.catalog = dir
	}
}

// WithAssumedStorageBudget 覆盖设备未上报可用存储时的假定预算（MB）。
func WithAssumedStorageBudget(mb float64) Option {
	return func(p *Planner) {
		if mb > 0 {
			p.storageBudget = mb
		}
	}
}

// WithNominalBatteryCapacity 覆盖设备未上报电池容量时的标称容量（mAh）。
func WithNominalBatteryCapacity(mah float64) Option {
	return func(p *Planner) {
		if mah > 0 {
			p.nominalBattery = mah
		}
	}
}

// New 构造规划器。缺省使用内置应用目录与兜底估算常量。
func New(opts ...Option) *Planner {
	p := &Planner{
		catalog:        catalog.Default(),
		storageBudget:  defaultAssumedStorageBudgetMB,
		nominalBattery: defaultNominalBatteryCapacityMAh,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan 执行完整的规划流水线：前置注入、步骤构建、依赖检测、拓扑排序、
// 聚合、可行性校验、确认判定。空输入直接返回固定的空计划，不经过任何
// 流水线阶段。除 nil 快照、nil 档案、判别字段缺失和依赖环之外，一切
// 异常输入都按降级约定处理而不报错。
func (p *Planner) Plan(actions []intent.Action, snap *device.Snapshot, profile *policy.Profile) (*Plan, error) {
	if snap == nil {
		return nil, ErrNilSnapshot
	}
	if profile == nil {
		return nil, ErrNilProfile
	}
	if len(actions) == 0 {
		return emptyPlan(), nil
	}
	for i, action := range actions {
		if err := action.Validate(); err != nil {
			return nil, xerrors.Wrap(CodePlanInvalidIntent, err, fmt.Sprintf("intent action %d is invalid", i))
		}
	}

	expanded, seeds := p.injectPrerequisites(actions, snap)
	steps := p.buildSteps(expanded, snap, profile)
	edges := append(seeds, detectDependencies(steps)...)
	applyDependencies(steps, edges)

	steps, edges, err := orderSteps(steps, edges)
	if err != nil {
		return nil, err
	}

	total, parallel, resources, risks := aggregate(steps)
	plan := &Plan{
		Steps:              steps,
		Edges:              edges,
		TotalDurationMs:    total,
		ParallelDurationMs: parallel,
		Resources:          resources,
		Risks:              risks,
	}

	blockers, notes := p.validate(plan, snap)
	plan.Blockers = blockers
	plan.Risks = append(plan.Risks, notes...)
	plan.CanExecute = len(plan.Blockers) == 0

	if requiresConfirmation(plan.Steps, plan.Risks) {
		plan.RequiresConfirmation = true
		plan.ConfirmationMessage = confirmationMessage(plan.Steps, plan.Risks)
	}
	return plan, nil
}

// emptyPlan 返回空输入对应的固定计划：可执行、零耗用、无确认要求。
func emptyPlan() *Plan {
	return &Plan{
		Steps:      []Step{},
		Edges:      []Edge{},
		Resources:  Resources{Permissions: []string{}},
		Risks:      []string{},
		Blockers:   []string{},
		CanExecute: true,
	}
}
