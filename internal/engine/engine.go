package engine

import (
	"context"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	"Karana-Planner/internal/catalog"
	"Karana-Planner/internal/device"
	xerrors "Karana-Planner/internal/errors"
	"Karana-Planner/internal/intent"
	"Karana-Planner/internal/nlu"
	"Karana-Planner/internal/planner"
	"Karana-Planner/internal/policy"
	"Karana-Planner/pkg/extension"
)

const (
	// CodeEngineNoInput 表示请求既没有自然语言指令也没有结构化动作。
	CodeEngineNoInput xerrors.Code = "ENGINE_NO_INPUT"
	// CodeEngineRecognition 表示意图识别调用失败。
	CodeEngineRecognition xerrors.Code = "ENGINE_RECOGNITION_FAILED"
	// CodeEngineSnapshot 表示设备快照采集失败。
	CodeEngineSnapshot xerrors.Code = "ENGINE_SNAPSHOT_FAILED"
	// CodeEngineProfileDisabled 表示用户档案已被停用，拒绝规划。
	CodeEngineProfileDisabled xerrors.Code = "ENGINE_PROFILE_DISABLED"
)

func init() {
	xerrors.Register(CodeEngineNoInput, xerrors.Attributes{
		Message:  "request carries neither an utterance nor actions",
		Severity: xerrors.SeverityWarning,
	})
	xerrors.Register(CodeEngineRecognition, xerrors.Attributes{
		Message:   "intent recognition failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
	})
	xerrors.Register(CodeEngineSnapshot, xerrors.Attributes{
		Message:   "device snapshot capture failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
	})
	xerrors.Register(CodeEngineProfileDisabled, xerrors.Attributes{
		Message:  "policy profile is disabled",
		Severity: xerrors.SeverityWarning,
	})
}

// Request 描述一次规划请求。Utterance 与 Actions 二选一：两者都给时以
// 结构化动作为准，不再触发意图识别。
type Request struct {
	ID        string          `json:"id,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
	Utterance string          `json:"utterance,omitempty"`
	Locale    string          `json:"locale,omitempty"`
	Actions   []intent.Action `json:"actions,omitempty"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
}

// Result 汇总识别、快照与规划各阶段得到的结果。
type Result struct {
	UserID       string          `json:"user_id,omitempty"`
	Utterance    string          `json:"utterance,omitempty"`
	Thought      string          `json:"thought,omitempty"`
	Actions      []intent.Action `json:"actions"`
	Plan         *planner.Plan   `json:"plan"`
	ChainID      string          `json:"chain_id,omitempty"`
	BlockHeight  uint64          `json:"block_height,omitempty"`
	SnapshotAt   int64           `json:"snapshot_at,omitempty"`
	Observations string          `json:"observations,omitempty"`
	CreatedAt    int64           `json:"created_at"`
}

// ContextExtensions 是引擎与扩展宿主之间的契约：规划前收集提示词，
// 规划后广播计划摘要。*extension.Manager 天然满足该接口。
type ContextExtensions interface {
	CollectHints(ctx context.Context) ([]string, error)
	NotifyPlan(ctx context.Context, digest extension.Digest) error
}

// Engine 协调意图识别、设备状态采集与规划流水线，是系统的业务核心。
// 阻塞只发生在这一层的外部调用上，规划本身始终是纯计算。
type Engine struct {
	recognizer      nlu.Client
	devices         device.Provider
	profiles        policy.Provider
	apps            catalog.Provider
	extensions      ContextExtensions
	plannerOpts     []planner.Option
	nluTimeout      time.Duration
	snapshotTimeout time.Duration
}

// Option 定义可选的 Engine 配置。
type Option func(*Engine)

// WithRecognizer 配置意图识别客户端。未配置时仅接受结构化动作请求。
func WithRecognizer(client nlu.Client) Option {
	return func(e *Engine) {
		e.recognizer = client
	}
}

// WithCatalogProvider 配置应用目录来源，用于安装前置判断与体积估算。
func WithCatalogProvider(provider catalog.Provider) Option {
	return func(e *Engine) {
		e.apps = provider
	}
}

// WithExtensions 配置扩展宿主，用于上下文提示收集与计划摘要广播。
func WithExtensions(ext ContextExtensions) Option {
	return func(e *Engine) {
		e.extensions = ext
	}
}

// WithPlannerOptions 追加传递给规划器的配置项。
func WithPlannerOptions(opts ...planner.Option) Option {
	return func(e *Engine) {
		e.plannerOpts = append(e.plannerOpts, opts...)
	}
}

// WithNLUTimeout 设置调用意图识别的超时时间。
func WithNLUTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		if timeout <= 0 {
			e.nluTimeout = 0
			return
		}
		e.nluTimeout = timeout
	}
}

// WithSnapshotTimeout 设置采集设备快照的超时时间。
func WithSnapshotTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		if timeout <= 0 {
			e.snapshotTimeout = 0
			return
		}
		e.snapshotTimeout = timeout
	}
}

// New 创建一个 Engine。
func New(devices device.Provider, profiles policy.Provider, opts ...Option) *Engine {
	eng := &Engine{
		devices:  devices,
		profiles: profiles,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(eng)
		}
	}
	return eng
}

// Execute 执行完整的规划流程：校验请求、识别意图（仅自然语言请求）、
// 采集设备快照、加载用户档案，最后调用规划流水线并广播计划摘要。
func (e *Engine) Execute(ctx context.Context, req Request) (*Result, error) {
	if e.devices == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置设备状态来源")
	}
	if e.profiles == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置用户档案来源")
	}

	utterance := strings.TrimSpace(req.Utterance)
	if utterance == "" && len(req.Actions) == 0 {
		return nil, xerrors.New(CodeEngineNoInput, "请求中既没有指令也没有动作")
	}

	// 收集扩展提供的上下文提示，失败不阻断主流程。
	observations := ""
	var hints []string
	if e.extensions != nil {
		collected, err := e.extensions.CollectHints(ctx)
		if err != nil {
			observations = appendObservation(observations, fmt.Sprintf("收集扩展提示失败: %v", err))
		} else {
			hints = collected
		}
	}

	// 结构化动作优先；仅当请求只携带自然语言指令时才触发识别。
	actions := intent.CloneAll(req.Actions)
	thought := ""
	if len(actions) == 0 {
		if e.recognizer == nil {
			return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置意图识别客户端，无法处理自然语言指令")
		}

		nluCtx := ctx
		if e.nluTimeout > 0 {
			var cancel context.CancelFunc
			nluCtx, cancel = context.WithTimeout(ctx, e.nluTimeout)
			defer cancel()
		}

		resp, err := e.recognizer.Recognize(nluCtx, nlu.Request{
			Utterance: utterance,
			Locale:    req.Locale,
			Hints:     hints,
		})
		if err != nil {
			if stdErrors.Is(err, context.DeadlineExceeded) {
				return nil, xerrors.Wrap(xerrors.CodeTimeout, err, "意图识别超时")
			}
			return nil, xerrors.Wrap(CodeEngineRecognition, err, "意图识别失败")
		}
		actions = nlu.Normalize(resp.Actions)
		thought = resp.Thought
	}

	// 采集设备快照。规划器要求非 nil 快照，采集失败即整个请求失败。
	snapCtx := ctx
	if e.snapshotTimeout > 0 {
		var cancel context.CancelFunc
		snapCtx, cancel = context.WithTimeout(ctx, e.snapshotTimeout)
		defer cancel()
	}
	snapshot, err := e.devices.Snapshot(snapCtx)
	if err != nil {
		if stdErrors.Is(err, context.DeadlineExceeded) {
			return nil, xerrors.Wrap(xerrors.CodeTimeout, err, "采集设备快照超时")
		}
		return nil, xerrors.Wrap(CodeEngineSnapshot, err, "采集设备快照失败")
	}

	// 加载用户档案。档案缺失降级为匿名档案，其余存储错误视为失败。
	userID := strings.TrimSpace(req.UserID)
	profile, err := e.profiles.Profile(ctx, userID)
	if err != nil {
		if xerrors.CodeOf(err) == policy.CodeProfileNotFound {
			profile = policy.Anonymous(userID)
			observations = appendObservation(observations, "未找到用户档案，使用匿名策略")
		} else {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "加载用户档案失败")
		}
	}
	if profile.Disabled {
		return nil, xerrors.New(CodeEngineProfileDisabled, fmt.Sprintf("用户 %s 的档案已停用", profile.UserID))
	}

	// 加载应用目录。失败时退回规划器内置目录，不阻断主流程。
	plannerOpts := append([]planner.Option(nil), e.plannerOpts...)
	if e.apps != nil {
		dir, err := e.apps.Directory(ctx)
		if err != nil {
			observations = appendObservation(observations, fmt.Sprintf("加载应用目录失败: %v", err))
		} else if len(dir) > 0 {
			plannerOpts = append(plannerOpts, planner.WithCatalog(dir))
		}
	}

	plan, err := planner.New(plannerOpts...).Plan(actions, snapshot, profile)
	if err != nil {
		return nil, err
	}

	// 广播计划摘要给观察者扩展，失败只记录观察不影响结果。
	if e.extensions != nil {
		if err := e.extensions.NotifyPlan(ctx, digestOf(req, plan)); err != nil {
			observations = appendObservation(observations, fmt.Sprintf("广播计划摘要失败: %v", err))
		}
	}

	return &Result{
		UserID:       userID,
		Utterance:    utterance,
		Thought:      thought,
		Actions:      actions,
		Plan:         plan,
		ChainID:      snapshot.Network.ChainID,
		BlockHeight:  snapshot.Network.BlockHeight,
		SnapshotAt:   snapshot.CapturedAt,
		Observations: observations,
		CreatedAt:    time.Now().Unix(),
	}, nil
}

// digestOf 将计划压缩为扩展可见的摘要，避免把完整计划交给扩展。
func digestOf(req Request, plan *planner.Plan) extension.Digest {
	steps := make([]string, 0, len(plan.Steps))
	for _, step := range plan.Steps {
		steps = append(steps, string(step.Action.Operation))
	}
	return extension.Digest{
		JobID:                req.ID,
		UserID:               strings.TrimSpace(req.UserID),
		Steps:                steps,
		Risks:                append([]string(nil), plan.Risks...),
		CanExecute:           plan.CanExecute,
		RequiresConfirmation: plan.RequiresConfirmation,
	}
}

// appendObservation 将新的观察结果追加到现有的观察字符串中。
func appendObservation(existing, next string) string {
	next = strings.TrimSpace(next)
	if next == "" {
		return existing
	}
	if strings.TrimSpace(existing) == "" {
		return next
	}
	return existing + "\n" + next
}
