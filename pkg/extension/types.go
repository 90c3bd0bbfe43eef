package extension

// Type represents the functional category of an extension.
type Type string

const (
	// TypeContextSource extensions feed device context hints into intent
	// recognition.
	TypeContextSource Type = "context_source"
	// TypeObserver extensions receive a digest of every produced plan.
	TypeObserver Type = "observer"
)

// Capability expresses optional features an extension may request access to.
type Capability string

const (
	CapabilityFilesystem Capability = "filesystem"
	CapabilityNetwork    Capability = "network"
	CapabilityExecution  Capability = "execution"
)

// Info contains descriptive metadata for an extension implementation.
type Info struct {
	ID           string
	Name         string
	Description  string
	Author       string
	Version      string
	Category     Type
	Capabilities []Capability
}

// State represents the lifecycle position of an extension instance.
type State string

const (
	StateRegistered  State = "registered"
	StateInitialised State = "initialised"
	StateStarted     State = "started"
	StateStopped     State = "stopped"
)
