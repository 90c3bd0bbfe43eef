package extension

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

type fakeExtension struct {
	info     Info
	hints    []string
	hintsErr error
	digests  []Digest
}

func (f *fakeExtension) Info() Info                     { return f.info }
func (f *fakeExtension) Configure(map[string]any) error { return nil }
func (f *fakeExtension) Init(*ExecutionContext) error   { return nil }
func (f *fakeExtension) Start(*ExecutionContext) error  { return nil }
func (f *fakeExtension) Stop(*ExecutionContext) error   { return nil }

func (f *fakeExtension) Hints(context.Context) ([]string, error) {
	return f.hints, f.hintsErr
}

func (f *fakeExtension) ObservePlan(_ context.Context, digest Digest) error {
	f.digests = append(f.digests, digest)
	return nil
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(ManagerConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return m
}

func TestManagerLifecycle(t *testing.T) {
	m := newTestManager(t)
	ext := &fakeExtension{info: Info{ID: "demo", Category: TypeContextSource}}
	if err := m.Register("demo", ext, nil, IsolationPolicy{}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := m.Register("demo", ext, nil, IsolationPolicy{}); err == nil {
		t.Fatal("duplicate id must be rejected")
	}

	state, err := m.State("demo")
	if err != nil || state != StateRegistered {
		t.Fatalf("state after register: %v %v", state, err)
	}
	if err := m.Start(context.Background(), "demo"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if state, _ = m.State("demo"); state != StateStarted {
		t.Fatalf("state after start: %v", state)
	}
	if err := m.Stop(context.Background(), "demo"); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if state, _ = m.State("demo"); state != StateStopped {
		t.Fatalf("state after stop: %v", state)
	}
	if err := m.Start(context.Background(), "missing"); err == nil {
		t.Fatal("unknown id must fail")
	}
}

func TestManagerCollectHints(t *testing.T) {
	m := newTestManager(t)
	sunny := &fakeExtension{info: Info{Category: TypeContextSource}, hints: []string{"weather: sunny"}}
	broken := &fakeExtension{info: Info{Category: TypeContextSource}, hintsErr: errors.New("offline")}
	idle := &fakeExtension{info: Info{Category: TypeContextSource}, hints: []string{"never seen"}}

	for id, ext := range map[string]*fakeExtension{"a-sunny": sunny, "b-broken": broken, "c-idle": idle} {
		if err := m.Register(id, ext, nil, IsolationPolicy{}); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
	}
	if err := m.Start(context.Background(), "a-sunny"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Start(context.Background(), "b-broken"); err != nil {
		t.Fatalf("start: %v", err)
	}

	hints, err := m.CollectHints(context.Background())
	if !reflect.DeepEqual(hints, []string{"weather: sunny"}) {
		t.Fatalf("unexpected hints: %v", hints)
	}
	if err == nil {
		t.Fatal("failing source must surface an error alongside hints")
	}
}

func TestManagerNotifyPlan(t *testing.T) {
	m := newTestManager(t)
	observer := &fakeExtension{info: Info{Category: TypeObserver}}
	if err := m.Register("audit", observer, nil, IsolationPolicy{}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.StartAll(context.Background()); err != nil {
		t.Fatalf("start all: %v", err)
	}

	digest := Digest{JobID: "job-1", Steps: []string{"WALLET_CREATE", "WALLET_TRANSFER"}, CanExecute: true}
	if err := m.NotifyPlan(context.Background(), digest); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(observer.digests) != 1 || observer.digests[0].JobID != "job-1" {
		t.Fatalf("observer missed the digest: %+v", observer.digests)
	}
}

func TestManagerEnforcesCapabilities(t *testing.T) {
	m := newTestManager(t)
	greedy := &fakeExtension{info: Info{Capabilities: []Capability{CapabilityNetwork}}}
	if err := m.Register("greedy", greedy, nil, IsolationPolicy{}); err == nil {
		t.Fatal("capabilities without a policy must be rejected")
	}
	denied := IsolationPolicy{DeniedCapabilities: []Capability{CapabilityNetwork}}
	if err := m.Register("greedy", greedy, nil, denied); err == nil {
		t.Fatal("denied capability must be rejected")
	}
	allowed := IsolationPolicy{AllowedCapabilities: []Capability{CapabilityNetwork}}
	if err := m.Register("greedy", greedy, nil, allowed); err != nil {
		t.Fatalf("allowed capability rejected: %v", err)
	}
}
