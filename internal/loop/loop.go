// Package loop implements the broker's single-threaded event loop and
// state machine (spec.md §4.1) — the core this repository exists for.
// Every mutation of broker state happens inside Loop.Run's goroutine;
// everything else posts typed Messages and waits for the loop to get to
// them.
package loop

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/nsdbroker/nsdbroker/internal/brokererr"
	"github.com/nsdbroker/nsdbroker/internal/config"
	"github.com/nsdbroker/nsdbroker/internal/connector"
	"github.com/nsdbroker/nsdbroker/internal/engine"
	"github.com/nsdbroker/nsdbroker/internal/metrics"
	"github.com/nsdbroker/nsdbroker/internal/registry"
)

// Engines bundles the external collaborators the loop routes requests to
// (spec.md §6's "Backend interfaces consumed").
type Engines struct {
	Legacy            engine.LegacyEngine
	ManagedDiscovery  engine.ManagedDiscoveryManager
	ManagedAdvertiser engine.ManagedAdvertiser
	Sockets           engine.SocketProvider
	Interfaces        engine.NetworkInterfaceResolver
}

// Loop is the broker's single-threaded state machine. Construct with
// New, then call Run from its own goroutine.
type Loop struct {
	queue chan Message
	ctx   context.Context

	state State

	clients      *registry.Registry
	transactions *registry.Transactions
	alloc        allocator

	daemonStarted    bool
	socketsMonitored bool
	cleanupToken     uint64
	pendingCleanup   bool

	cfg     config.Config
	flags   config.FlagSource
	engines Engines
	log     Logger
	metrics metrics.Recorder

	timer func(token uint64)

	// group, when set via SetGroup, supervises the cleanup timer
	// goroutine lifecycle.go arms (spec.md §5): the façade's Broker.Close
	// waits on the same errgroup to know every goroutine it started has
	// actually exited, not just that ctx was cancelled. Nil outside of
	// nsd.Broker.Run (e.g. in tests driving the loop directly), in which
	// case the timer falls back to an unsupervised goroutine.
	group *errgroup.Group

	// onStateChange, if set, is invoked on every Default<->Enabled
	// transition. The nsd façade uses it to broadcast enablement to
	// clients over whatever transport it owns; the core has none.
	onStateChange func(State)
}

// SetGroup installs the errgroup that supervises this loop's background
// goroutines. Callers that spawn Run inside an errgroup.Group (nsd.Broker)
// must call this before Run so lifecycle.go's cleanup timer joins that
// same group instead of running unsupervised.
func (l *Loop) SetGroup(eg *errgroup.Group) { l.group = eg }

type allocator interface {
	Next() uint32
}

// Option configures a Loop at construction.
type Option func(*Loop)

func WithLogger(l Logger) Option { return func(lp *Loop) { lp.log = l } }

func WithMetrics(m metrics.Recorder) Option { return func(lp *Loop) { lp.metrics = m } }

func WithOnStateChange(fn func(State)) Option { return func(lp *Loop) { lp.onStateChange = fn } }

// New constructs a Loop. alloc, clients, and transactions are injected so
// tests can observe them directly; production callers use the
// constructors in their respective packages.
func New(cfg config.Config, flags config.FlagSource, engines Engines, alloc allocator, clients *registry.Registry, transactions *registry.Transactions, opts ...Option) *Loop {
	l := &Loop{
		queue:        make(chan Message, 64),
		state:        StateDefault,
		clients:      clients,
		transactions: transactions,
		alloc:        alloc,
		cfg:          cfg,
		flags:        flags,
		engines:      engines,
		log:          noopLogger{},
		metrics:      metrics.Noop{},
	}
	for _, opt := range opts {
		opt(l)
	}
	l.timer = l.scheduleCleanupTimer
	return l
}

// onLegacyEvent is the callback installed on the legacy engine
// (maybeStartDaemon); it never touches state directly, only posts a
// message, since the engine may invoke it from its own goroutine
// (spec.md §5).
func (l *Loop) onLegacyEvent(ev engine.Event) {
	l.Post(&LegacyEngineEvent{base: newBase(), Event: ev})
}

// Post enqueues msg for the loop to process. It never blocks on the
// loop's progress beyond the queue's buffer, matching the "never touch
// state directly" rule of spec.md §5.
func (l *Loop) Post(msg Message) {
	l.queue <- msg
}

// Run drains the message queue until ctx is cancelled, processing
// exactly one message at a time (spec.md §5's single-threaded
// cooperative model). Callers typically run this in its own goroutine.
func (l *Loop) Run(ctx context.Context) {
	l.ctx = ctx
	l.enterEnabled()
	defer l.exitEnabled()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-l.queue:
			l.dispatch(msg)
			if ch := msg.done(); ch != nil {
				close(ch)
			}
		}
	}
}

// dispatch is the state machine's single entry point (spec.md §4.1).
func (l *Loop) dispatch(msg Message) {
	if l.state == StateDefault && !acceptsInDefault(msg) {
		l.rejectInDefault(msg)
		return
	}

	switch m := msg.(type) {
	case *RegisterClient:
		l.handleRegisterClient(m)
	case *UnregisterClient:
		l.handleUnregisterClient(m)
	case *Discover:
		l.handleDiscover(m)
	case *StopDiscovery:
		l.handleStopDiscovery(m)
	case *Register:
		l.handleRegister(m)
	case *Unregister:
		l.handleUnregister(m)
	case *Resolve:
		l.handleResolve(m)
	case *StopResolution:
		l.handleStopResolution(m)
	case *RegisterServiceCallback:
		l.handleRegisterServiceCallback(m)
	case *UnregisterServiceCallback:
		l.handleUnregisterServiceCallback(m)
	case *DaemonStartup:
		l.handleDaemonStartup(m)
	case *DaemonCleanup:
		l.handleDaemonCleanup(m)
	case *LegacyEngineEvent:
		l.handleLegacyEvent(m)
	case *ManagedEngineEvent:
		l.handleManagedEvent(m)
	default:
		l.log.Warnw("unhandled message kind", "type", fmt.Sprintf("%T", msg))
	}
}

// rejectInDefault answers every operation message with the synchronous
// failure callback spec.md §4.1 calls for while in StateDefault.
func (l *Loop) rejectInDefault(msg Message) {
	switch m := msg.(type) {
	case *Discover:
		client, ok := l.clients.Get(m.Conn)
		if ok {
			client.Sink.OnDiscoveryFailed(m.ListenerKey, brokererr.Internal)
		}
	case *StopDiscovery:
		l.replyOpNotRunning(m.Conn, m.ListenerKey)
	case *Register:
		client, ok := l.clients.Get(m.Conn)
		if ok {
			client.Sink.OnRegisterFailed(m.ListenerKey, brokererr.Internal)
		}
	case *Unregister:
		l.replyOpNotRunning(m.Conn, m.ListenerKey)
	case *Resolve:
		client, ok := l.clients.Get(m.Conn)
		if ok {
			client.Sink.OnResolveFailed(m.ListenerKey, brokererr.Internal)
		}
	case *StopResolution:
		l.replyOpNotRunning(m.Conn, m.ListenerKey)
	case *RegisterServiceCallback:
		client, ok := l.clients.Get(m.Conn)
		if ok {
			client.Sink.OnCallbackRegistrationFailed(m.ListenerKey, brokererr.BadParameters)
		}
	case *UnregisterServiceCallback:
		l.replyOpNotRunning(m.Conn, m.ListenerKey)
	default:
		l.log.Warnw("message rejected in default state", "type", fmt.Sprintf("%T", msg))
	}
}

func (l *Loop) replyOpNotRunning(c connector.Connector, listenerKey int) {
	client, ok := l.clients.Get(c)
	if !ok {
		return
	}
	client.Sink.OnStopFailed(listenerKey, brokererr.OperationNotRunning)
}

// ClientCount, TransactionCount, and CurrentState expose read-only diagnostics
// for the façade and for tests; nothing outside this package may mutate
// through them.
func (l *Loop) ClientCount() int      { return l.clients.Len() }
func (l *Loop) TransactionCount() int { return l.transactions.Len() }
func (l *Loop) CurrentState() State   { return l.state }

// runCtx returns the context Run was started with, or context.Background
// if the loop is being driven directly by tests without a Run goroutine.
func (l *Loop) runCtx() context.Context {
	if l.ctx != nil {
		return l.ctx
	}
	return context.Background()
}
