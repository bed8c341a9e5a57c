package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nsdbroker/nsdbroker/internal/svcinfo"
)

// browseInterval is a re-query period in the teacher's periodic-browse
// shape. ManagedEngine starts no browse loop, so nothing in this package
// reads it.
const browseInterval = 10 * time.Second

// ManagedEngine is a concrete ManagedDiscoveryManager + ManagedAdvertiser
// pair, grounded on the teacher's responder (probe→announce shape,
// simplified to a one-shot add with no rename loop — conflict handling
// is the production responder's concern, not the broker's) and querier
// (periodic browse) packages. It does not speak the wire protocol
// itself; StartMonitoringSockets/StopMonitoringSockets and the actual
// send/receive live in SocketProvider, which this type composes.
type ManagedEngine struct {
	sockets SocketProvider

	mu        sync.Mutex
	listeners map[string]map[any]*managedListener
	services  map[uint32]svcinfo.Info
	nextID    uint64
	closed    bool
}

type managedListener struct {
	opts   SearchOptions
	fn     func(ManagedEvent)
	cancel context.CancelFunc
}

// NewManagedEngine constructs a ManagedEngine that joins/leaves multicast
// groups through sockets.
func NewManagedEngine(sockets SocketProvider) *ManagedEngine {
	return &ManagedEngine{
		sockets:   sockets,
		listeners: make(map[string]map[any]*managedListener),
		services:  make(map[uint32]svcinfo.Info),
	}
}

// RegisterListener records fn as a listener for listenedServiceType. It
// starts no browse loop and sends no queries: events reach the listener
// only through SimulateFound/SimulateLost/SimulateResolved. opts is
// stored with the listener and not otherwise read.
func (m *ManagedEngine) RegisterListener(listenedServiceType string, opts SearchOptions, fn func(ManagedEvent)) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("managed engine: closed")
	}

	m.nextID++
	handle := m.nextID

	_, cancel := context.WithCancel(context.Background())
	l := &managedListener{opts: opts, fn: fn, cancel: cancel}

	if m.listeners[listenedServiceType] == nil {
		m.listeners[listenedServiceType] = make(map[any]*managedListener)
	}
	m.listeners[listenedServiceType][handle] = l

	return handle, nil
}

func (m *ManagedEngine) UnregisterListener(listenedServiceType string, handle any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byType := m.listeners[listenedServiceType]
	if byType == nil {
		return fmt.Errorf("managed engine: no listeners for %q", listenedServiceType)
	}
	l, ok := byType[handle]
	if !ok {
		return fmt.Errorf("managed engine: unknown listener handle")
	}
	l.cancel()
	delete(byType, handle)
	if len(byType) == 0 {
		delete(m.listeners, listenedServiceType)
	}
	return nil
}

// SimulateFound delivers a SERVICE_FOUND-equivalent event to every
// listener registered for listenedServiceType, for tests and the CLI
// smoke-test command to drive discovery without real network traffic.
func (m *ManagedEngine) SimulateFound(listenedServiceType string, info svcinfo.Info) {
	m.deliver(listenedServiceType, ManagedEvent{Code: ServiceFound, RequestedType: listenedServiceType, Info: info})
}

// SimulateLost mirrors SimulateFound for SERVICE_LOST.
func (m *ManagedEngine) SimulateLost(listenedServiceType string, info svcinfo.Info) {
	m.deliver(listenedServiceType, ManagedEvent{Code: ServiceLost, RequestedType: listenedServiceType, Info: info})
}

// SimulateResolved mirrors SimulateFound for RESOLVE_SUCCEEDED.
func (m *ManagedEngine) SimulateResolved(listenedServiceType string, info svcinfo.Info) {
	m.deliver(listenedServiceType, ManagedEvent{Code: ServiceResolved, RequestedType: listenedServiceType, Info: info})
}

func (m *ManagedEngine) deliver(listenedServiceType string, evt ManagedEvent) {
	m.mu.Lock()
	byType := m.listeners[listenedServiceType]
	fns := make([]func(ManagedEvent), 0, len(byType))
	for _, l := range byType {
		fns = append(fns, l.fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(evt)
	}
}

func (m *ManagedEngine) AddService(id uint32, info svcinfo.Info) error {
	m.mu.Lock()
	m.services[id] = info
	m.mu.Unlock()
	return nil
}

func (m *ManagedEngine) RemoveService(id uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.services[id]; !ok {
		return fmt.Errorf("managed engine: service %d not registered", id)
	}
	delete(m.services, id)
	return nil
}

// Close cancels every outstanding listener. It does not touch
// SocketProvider — the broker's lifecycle controller owns that
// decision (spec.md §4.7).
func (m *ManagedEngine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for _, byType := range m.listeners {
		for _, l := range byType {
			l.cancel()
		}
	}
	m.listeners = make(map[string]map[any]*managedListener)
}
