package extension

import "context"

// Extension defines the lifecycle hooks that each extension implementation
// must satisfy.
type Extension interface {
	// Info returns the static metadata for the extension.
	Info() Info
	// Configure allows the extension to inspect its configuration block prior
	// to initialisation. Implementations may mutate the configuration map to
	// inject defaults.
	Configure(cfg map[string]any) error
	// Init prepares the extension for use.
	Init(ctx *ExecutionContext) error
	// Start activates the extension and should spawn long running routines if
	// required.
	Start(ctx *ExecutionContext) error
	// Stop gracefully halts the extension and releases any resources.
	Stop(ctx *ExecutionContext) error
}

// ContextSource is implemented by extensions that contribute device context
// hints to intent recognition. Hints are short free-form strings handed to
// the recognizer alongside the utterance.
type ContextSource interface {
	Hints(ctx context.Context) ([]string, error)
}

// PlanObserver is implemented by extensions that want to see every plan the
// engine produces, for example to keep an external audit trail.
type PlanObserver interface {
	ObservePlan(ctx context.Context, digest Digest) error
}

// Digest is a compact, dependency-free summary of a produced plan.
type Digest struct {
	JobID                string
	UserID               string
	Steps                []string
	Risks                []string
	CanExecute           bool
	RequiresConfirmation bool
}

// ExecutionContext is passed to extensions for every lifecycle stage.
type ExecutionContext struct {
	// C is the underlying context for cancellation and deadlines.
	C context.Context
	// Config is the extension specific configuration block merged with
	// manager overrides.
	Config map[string]any
	// Resources exposes shared services supplied by the host application.
	Resources map[string]any
}

// Clone returns a shallow copy of the execution context so extensions can
// safely mutate maps.
func (c *ExecutionContext) Clone() *ExecutionContext {
	if c == nil {
		return nil
	}
	dup := *c
	if c.Config != nil {
		dup.Config = make(map[string]any, len(c.Config))
		for k, v := range c.Config {
			dup.Config[k] = v
		}
	}
	if c.Resources != nil {
		dup.Resources = make(map[string]any, len(c.Resources))
		for k, v := range c.Resources {
			dup.Resources[k] = v
		}
	}
	return &dup
}

// Option modifies the behaviour of an extension manager instance.
type Option func(*Manager)

// WithLoader overrides the default binary loader implementation.
func WithLoader(loader Loader) Option {
	return func(m *Manager) {
		if loader != nil {
			m.loader = loader
		}
	}
}

// WithIsolationStrategy sets a custom isolation policy enforcement strategy.
func WithIsolationStrategy(strategy IsolationStrategy) Option {
	return func(m *Manager) {
		if strategy != nil {
			m.isolation = strategy
		}
	}
}

// WithResource registers a shared resource that will be exposed to all
// extensions.
func WithResource(key string, value any) Option {
	return func(m *Manager) {
		if key == "" || value == nil {
			return
		}
		if m.resources == nil {
			m.resources = make(map[string]any)
		}
		m.resources[key] = value
	}
}
