package loop

import (
	"github.com/nsdbroker/nsdbroker/internal/connector"
	"github.com/nsdbroker/nsdbroker/internal/engine"
	"github.com/nsdbroker/nsdbroker/internal/svcinfo"
)

// Message is the closed set of typed messages the event loop accepts
// (spec.md §4.1). Every external input — client call, engine callback,
// death notification, delayed-cleanup tick — is converted to one of
// these before it reaches the loop.
type Message interface {
	done() chan struct{}
	// Done returns a channel closed once the loop finishes handling this
	// message; the nsd façade blocks on it so its methods return only
	// after the operation has taken effect.
	Done() <-chan struct{}
}

// base gives every message an optional completion signal. Broker.Run's
// callers that want to block until a message has been fully handled
// (tests, and any synchronous public API method) read from Done(); nil
// is a valid zero value meaning "fire and forget".
type base struct {
	doneCh chan struct{}
}

func (b base) done() chan struct{}      { return b.doneCh }
func (b base) Done() <-chan struct{}    { return b.doneCh }

// newBase returns a base whose done() channel is closed once the loop
// finishes handling the message carrying it.
func newBase() base { return base{doneCh: make(chan struct{})} }

// RegisterClient installs conn as a client with callback sink sink.
type RegisterClient struct {
	base
	Conn connector.Connector
	Sink connector.CallbackSink
}

// UnregisterClient removes conn's client record, expunging every
// outstanding request.
type UnregisterClient struct {
	base
	Conn connector.Connector
}

// Discover starts discover_services for conn under listenerKey.
type Discover struct {
	base
	Conn        connector.Connector
	ListenerKey int
	Info        svcinfo.Info
}

// StopDiscovery stops a prior Discover.
type StopDiscovery struct {
	base
	Conn        connector.Connector
	ListenerKey int
}

// Register starts register_service.
type Register struct {
	base
	Conn        connector.Connector
	ListenerKey int
	Info        svcinfo.Info
}

// Unregister stops a prior Register.
type Unregister struct {
	base
	Conn        connector.Connector
	ListenerKey int
}

// Resolve starts a one-shot resolve_service.
type Resolve struct {
	base
	Conn        connector.Connector
	ListenerKey int
	Info        svcinfo.Info
}

// StopResolution stops a prior Resolve.
type StopResolution struct {
	base
	Conn        connector.Connector
	ListenerKey int
}

// RegisterServiceCallback starts a long-lived "watch" resolve.
type RegisterServiceCallback struct {
	base
	Conn        connector.Connector
	ListenerKey int
	Info        svcinfo.Info
}

// UnregisterServiceCallback stops a prior RegisterServiceCallback.
type UnregisterServiceCallback struct {
	base
	Conn        connector.Connector
	ListenerKey int
}

// DaemonStartup marks conn as a legacy client and ensures the legacy
// daemon is running.
type DaemonStartup struct {
	base
	Conn connector.Connector
}

// DaemonCleanup is the delayed-stop tick scheduled by the lifecycle
// controller (spec.md §4.7).
type DaemonCleanup struct {
	base
	// token identifies which scheduling round produced this tick, so a
	// cancelled-then-rescheduled stop can't fire twice.
	token uint64
}

// LegacyEngineEvent wraps an engine.Event arriving from the legacy
// backend.
type LegacyEngineEvent struct {
	base
	Event engine.Event
}

// ManagedEngineEvent wraps an engine.ManagedEvent arriving from the
// managed backend, tagged with the transaction id the loop allocated
// for the request that produced it.
type ManagedEngineEvent struct {
	base
	TransactionID uint32
	Event         engine.ManagedEvent
}

// The New* constructors below are the façade's only way to build
// messages: base's doneCh is unexported, so nsd (and any other external
// caller) cannot construct a Message by hand and must go through here.

func NewRegisterClient(conn connector.Connector, sink connector.CallbackSink) *RegisterClient {
	return &RegisterClient{base: newBase(), Conn: conn, Sink: sink}
}

func NewUnregisterClient(conn connector.Connector) *UnregisterClient {
	return &UnregisterClient{base: newBase(), Conn: conn}
}

func NewDiscover(conn connector.Connector, listenerKey int, info svcinfo.Info) *Discover {
	return &Discover{base: newBase(), Conn: conn, ListenerKey: listenerKey, Info: info}
}

func NewStopDiscovery(conn connector.Connector, listenerKey int) *StopDiscovery {
	return &StopDiscovery{base: newBase(), Conn: conn, ListenerKey: listenerKey}
}

func NewRegister(conn connector.Connector, listenerKey int, info svcinfo.Info) *Register {
	return &Register{base: newBase(), Conn: conn, ListenerKey: listenerKey, Info: info}
}

func NewUnregister(conn connector.Connector, listenerKey int) *Unregister {
	return &Unregister{base: newBase(), Conn: conn, ListenerKey: listenerKey}
}

func NewResolve(conn connector.Connector, listenerKey int, info svcinfo.Info) *Resolve {
	return &Resolve{base: newBase(), Conn: conn, ListenerKey: listenerKey, Info: info}
}

func NewStopResolution(conn connector.Connector, listenerKey int) *StopResolution {
	return &StopResolution{base: newBase(), Conn: conn, ListenerKey: listenerKey}
}

func NewRegisterServiceCallback(conn connector.Connector, listenerKey int, info svcinfo.Info) *RegisterServiceCallback {
	return &RegisterServiceCallback{base: newBase(), Conn: conn, ListenerKey: listenerKey, Info: info}
}

func NewUnregisterServiceCallback(conn connector.Connector, listenerKey int) *UnregisterServiceCallback {
	return &UnregisterServiceCallback{base: newBase(), Conn: conn, ListenerKey: listenerKey}
}

func NewDaemonStartup(conn connector.Connector) *DaemonStartup {
	return &DaemonStartup{base: newBase(), Conn: conn}
}
