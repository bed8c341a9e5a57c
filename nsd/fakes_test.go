package nsd_test

import (
	"context"
	"sync"

	"github.com/nsdbroker/nsdbroker/internal/engine"
	"github.com/nsdbroker/nsdbroker/internal/svcinfo"
)

// fakeLegacyEngine is a minimal scriptable stand-in for the out-of-
// process legacy daemon, used only to exercise the Broker façade's
// legacy-backed operations end to end.
type fakeLegacyEngine struct {
	mu       sync.Mutex
	listener func(engine.Event)
	didStop  bool
}

func (f *fakeLegacyEngine) RegisterEventListener(fn func(engine.Event)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listener = fn
}
func (f *fakeLegacyEngine) Start(ctx context.Context) error { return nil }
func (f *fakeLegacyEngine) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.didStop = true
	return nil
}
func (f *fakeLegacyEngine) stopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.didStop
}
func (f *fakeLegacyEngine) Discover(id uint32, serviceType string, ifaceIndex int) bool {
	return true
}
func (f *fakeLegacyEngine) Register(id uint32, info svcinfo.Info, ifaceIndex int) bool { return true }
func (f *fakeLegacyEngine) Resolve(id uint32, name, serviceType string, ifaceIndex int) bool {
	return true
}
func (f *fakeLegacyEngine) GetServiceAddress(id uint32, hostname string, ifaceIndex int) bool {
	return true
}
func (f *fakeLegacyEngine) StopOperation(id uint32) bool { return true }

func (f *fakeLegacyEngine) deliver(ev engine.Event) {
	f.mu.Lock()
	fn := f.listener
	f.mu.Unlock()
	fn(ev)
}

// fakeManagedDiscovery is a minimal scriptable stand-in for the managed
// discovery manager.
type fakeManagedDiscovery struct {
	mu      sync.Mutex
	handles map[string]func(engine.ManagedEvent)
}

func (f *fakeManagedDiscovery) RegisterListener(listenedServiceType string, opts engine.SearchOptions, fn func(engine.ManagedEvent)) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handles == nil {
		f.handles = make(map[string]func(engine.ManagedEvent))
	}
	f.handles[listenedServiceType] = fn
	return listenedServiceType, nil
}

func (f *fakeManagedDiscovery) UnregisterListener(listenedServiceType string, handle any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handles, listenedServiceType)
	return nil
}

func (f *fakeManagedDiscovery) deliver(listenedServiceType string, ev engine.ManagedEvent) {
	f.mu.Lock()
	fn := f.handles[listenedServiceType]
	f.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

// fakeManagedAdvertiser is a minimal stand-in for the managed advertiser.
type fakeManagedAdvertiser struct{}

func (fakeManagedAdvertiser) AddService(id uint32, info svcinfo.Info) error { return nil }
func (fakeManagedAdvertiser) RemoveService(id uint32) error                { return nil }

// fakeSockets is a no-op stand-in for the socket provider.
type fakeSockets struct{}

func (fakeSockets) StartMonitoringSockets() error { return nil }
func (fakeSockets) StopMonitoringSockets() error  { return nil }

// fakeInterfaces resolves every network to a fixed, non-zero index.
type fakeInterfaces struct{}

func (fakeInterfaces) ResolveInterfaceIndex(network svcinfo.Network) int { return 7 }
