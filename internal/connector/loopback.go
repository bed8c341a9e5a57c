package connector

import (
	"sync"

	"github.com/google/uuid"

	"github.com/nsdbroker/nsdbroker/internal/svcinfo"
)

// Loopback is an in-process Connector/CallbackSink pair for tests and for
// the CLI's local smoke-test command, standing in for the out-of-process
// IPC transport spec.md places out of scope. It records every callback it
// receives so tests can assert on broker behavior without a real
// transport.
type Loopback struct {
	id string

	mu       sync.Mutex
	deathFns []func()
	dead     bool

	Events []Event
}

// Event is one recorded CallbackSink invocation, captured generically so
// test assertions can pattern-match on Kind without a type switch per
// callback method.
type Event struct {
	Kind       string
	ListenerKey int
	Err        error
	InfoName   string
	InfoType   string
}

// NewLoopback creates a Loopback connector with a random id.
func NewLoopback() *Loopback {
	return &Loopback{id: uuid.NewString()}
}

func (l *Loopback) ID() string { return l.id }

func (l *Loopback) NotifyOnDeath(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.dead {
		fn()
		return
	}
	l.deathFns = append(l.deathFns, fn)
}

// Die fires every registered death notification exactly once. Calling it
// more than once is a no-op, matching the idempotent semantics
// RegisterClient relies on (spec.md §4.3).
func (l *Loopback) Die() {
	l.mu.Lock()
	if l.dead {
		l.mu.Unlock()
		return
	}
	l.dead = true
	fns := l.deathFns
	l.deathFns = nil
	l.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func (l *Loopback) record(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Events = append(l.Events, e)
}

// Len returns the number of events recorded so far. Callers racing with
// the broker's own goroutine (anything that isn't itself inside a
// synchronous Broker method call) must use this instead of reading
// Events directly.
func (l *Loopback) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Events)
}

// EventAt returns a copy of the event at index i, taken under the same
// lock record uses.
func (l *Loopback) EventAt(i int) Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Events[i]
}

func (l *Loopback) OnDiscoveryStarted(listenerKey int) {
	l.record(Event{Kind: "discovery-started", ListenerKey: listenerKey})
}

func (l *Loopback) OnDiscoveryFailed(listenerKey int, reason error) {
	l.record(Event{Kind: "discovery-failed", ListenerKey: listenerKey, Err: reason})
}

func (l *Loopback) OnServiceFound(listenerKey int, info svcinfo.Info) {
	l.record(Event{Kind: "service-found", ListenerKey: listenerKey, InfoName: info.Name, InfoType: info.Type})
}

func (l *Loopback) OnServiceLost(listenerKey int, info svcinfo.Info) {
	l.record(Event{Kind: "service-lost", ListenerKey: listenerKey, InfoName: info.Name, InfoType: info.Type})
}

func (l *Loopback) OnRegisterSucceeded(listenerKey int, info svcinfo.Info) {
	l.record(Event{Kind: "register-succeeded", ListenerKey: listenerKey, InfoName: info.Name, InfoType: info.Type})
}

func (l *Loopback) OnRegisterFailed(listenerKey int, reason error) {
	l.record(Event{Kind: "register-failed", ListenerKey: listenerKey, Err: reason})
}

func (l *Loopback) OnResolveSucceeded(listenerKey int, info svcinfo.Info) {
	l.record(Event{Kind: "resolve-succeeded", ListenerKey: listenerKey, InfoName: info.Name, InfoType: info.Type})
}

func (l *Loopback) OnResolveFailed(listenerKey int, reason error) {
	l.record(Event{Kind: "resolve-failed", ListenerKey: listenerKey, Err: reason})
}

func (l *Loopback) OnServiceUpdated(listenerKey int, info svcinfo.Info) {
	l.record(Event{Kind: "service-updated", ListenerKey: listenerKey, InfoName: info.Name, InfoType: info.Type})
}

func (l *Loopback) OnServiceUpdatedLost(listenerKey int, info svcinfo.Info) {
	l.record(Event{Kind: "service-updated-lost", ListenerKey: listenerKey, InfoName: info.Name, InfoType: info.Type})
}

func (l *Loopback) OnCallbackRegistrationFailed(listenerKey int, reason error) {
	l.record(Event{Kind: "callback-registration-failed", ListenerKey: listenerKey, Err: reason})
}

func (l *Loopback) OnStopSucceeded(listenerKey int) {
	l.record(Event{Kind: "stop-succeeded", ListenerKey: listenerKey})
}

func (l *Loopback) OnStopFailed(listenerKey int, reason error) {
	l.record(Event{Kind: "stop-failed", ListenerKey: listenerKey, Err: reason})
}
