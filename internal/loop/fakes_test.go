package loop

import (
	"context"
	"sync"

	"github.com/nsdbroker/nsdbroker/internal/engine"
	"github.com/nsdbroker/nsdbroker/internal/svcinfo"
)

// fakeLegacyEngine is a deterministic stand-in for the out-of-process
// legacy daemon: every call succeeds unless the corresponding "Fail"
// field is set, which fails every call of that kind while leaving the
// other kinds untouched.
type fakeLegacyEngine struct {
	mu       sync.Mutex
	listener func(engine.Event)
	started  bool
	stopped  []uint32

	FailDiscover     bool
	FailRegister     bool
	FailResolve      bool
	FailGetAddr      bool
	FailStopOp       bool
	FailStart        error
}

func (f *fakeLegacyEngine) RegisterEventListener(fn func(engine.Event)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listener = fn
}

func (f *fakeLegacyEngine) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailStart != nil {
		return f.FailStart
	}
	f.started = true
	return nil
}

func (f *fakeLegacyEngine) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = false
	return nil
}

func (f *fakeLegacyEngine) Discover(id uint32, serviceType string, ifaceIndex int) bool {
	return !f.FailDiscover
}

func (f *fakeLegacyEngine) Register(id uint32, info svcinfo.Info, ifaceIndex int) bool {
	return !f.FailRegister
}

func (f *fakeLegacyEngine) Resolve(id uint32, name, serviceType string, ifaceIndex int) bool {
	return !f.FailResolve
}

func (f *fakeLegacyEngine) GetServiceAddress(id uint32, hostname string, ifaceIndex int) bool {
	return !f.FailGetAddr
}

func (f *fakeLegacyEngine) StopOperation(id uint32) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, id)
	return !f.FailStopOp
}

// deliver fires the registered listener with ev, as the engine would
// from its own goroutine — tests call this directly to drive the event
// path instead of standing up a real socket.
func (f *fakeLegacyEngine) deliver(ev engine.Event) {
	f.mu.Lock()
	fn := f.listener
	f.mu.Unlock()
	fn(ev)
}

// fakeManagedDiscovery is a scriptable stand-in for the managed
// discovery manager.
type fakeManagedDiscovery struct {
	mu           sync.Mutex
	handles      map[string]func(engine.ManagedEvent)
	nextHandle   int
	unregistered []any

	FailRegister error
	FailUnreg    error
}

func (f *fakeManagedDiscovery) RegisterListener(listenedServiceType string, opts engine.SearchOptions, fn func(engine.ManagedEvent)) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailRegister != nil {
		return nil, f.FailRegister
	}
	if f.handles == nil {
		f.handles = make(map[string]func(engine.ManagedEvent))
	}
	f.nextHandle++
	f.handles[listenedServiceType] = fn
	return f.nextHandle, nil
}

func (f *fakeManagedDiscovery) UnregisterListener(listenedServiceType string, handle any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unregistered = append(f.unregistered, handle)
	delete(f.handles, listenedServiceType)
	return f.FailUnreg
}

// deliver fires the listener registered for listenedServiceType.
func (f *fakeManagedDiscovery) deliver(listenedServiceType string, ev engine.ManagedEvent) {
	f.mu.Lock()
	fn := f.handles[listenedServiceType]
	f.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

// fakeManagedAdvertiser is a scriptable stand-in for the managed
// advertiser.
type fakeManagedAdvertiser struct {
	mu       sync.Mutex
	added    map[uint32]svcinfo.Info
	removed  []uint32

	FailAdd error
	FailRemove error
}

func (f *fakeManagedAdvertiser) AddService(id uint32, info svcinfo.Info) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailAdd != nil {
		return f.FailAdd
	}
	if f.added == nil {
		f.added = make(map[uint32]svcinfo.Info)
	}
	f.added[id] = info
	return nil
}

func (f *fakeManagedAdvertiser) RemoveService(id uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, id)
	return f.FailRemove
}

// fakeSockets is a scriptable stand-in for the socket provider.
type fakeSockets struct {
	mu       sync.Mutex
	started  bool
	startCnt int
	stopCnt  int

	FailStart error
	FailStop  error
}

func (f *fakeSockets) StartMonitoringSockets() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailStart != nil {
		return f.FailStart
	}
	f.started = true
	f.startCnt++
	return nil
}

func (f *fakeSockets) StopMonitoringSockets() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailStop != nil {
		return f.FailStop
	}
	f.started = false
	f.stopCnt++
	return nil
}

// fakeInterfaces resolves every network to a fixed index, or IfaceAny if
// Fail is set, mirroring spec.md §9's best-effort resolution failure.
type fakeInterfaces struct {
	Index int
	Fail  bool
}

func (f *fakeInterfaces) ResolveInterfaceIndex(network svcinfo.Network) int {
	if f.Fail {
		return engine.IfaceAny
	}
	if f.Index != 0 {
		return f.Index
	}
	return 7
}

// fakeTimer replaces the loop's real cleanup timer with one a test can
// fire manually, avoiding any reliance on wall-clock delay.
type fakeTimer struct {
	mu    sync.Mutex
	calls []uint64
}

func (f *fakeTimer) schedule(token uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, token)
}

func (f *fakeTimer) lastToken() (uint64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return 0, false
	}
	return f.calls[len(f.calls)-1], true
}
