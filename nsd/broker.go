package nsd

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/nsdbroker/nsdbroker/internal/idgen"
	"github.com/nsdbroker/nsdbroker/internal/loop"
	"github.com/nsdbroker/nsdbroker/internal/metrics"
	"github.com/nsdbroker/nsdbroker/internal/registry"
)

// Broker is the public handle onto one running broker instance. Every
// method posts a message to the underlying event loop and returns once
// the loop has fully processed it — mirroring the synchronous half of
// spec.md §6's reply table; the asynchronous half arrives through the
// CallbackSink a client registered.
type Broker struct {
	loop *loop.Loop

	cancel context.CancelFunc
	ready  chan struct{}
	done   chan struct{}
}

// New constructs a Broker. Call Run in its own goroutine before issuing
// any client operation; operations issued before Run starts draining the
// queue block until it does.
func New(cfg Config, flags FlagSource, engines Engines, opts ...Option) *Broker {
	bc := &brokerConfig{metrics: metrics.Noop{}}
	for _, opt := range opts {
		opt(bc)
	}

	loopOpts := []loop.Option{loop.WithMetrics(bc.metrics)}
	if bc.logger != nil {
		loopOpts = append(loopOpts, loop.WithLogger(bc.logger))
	}
	if bc.onStateChange != nil {
		loopOpts = append(loopOpts, loop.WithOnStateChange(func(s loop.State) {
			bc.onStateChange(s == loop.StateEnabled)
		}))
	}

	l := loop.New(cfg, flags, engines, idgen.New(), registry.New(), registry.NewTransactions(), loopOpts...)
	return &Broker{loop: l, ready: make(chan struct{}), done: make(chan struct{})}
}

// Run drains the broker's event queue until ctx is cancelled (or Close is
// called), then blocks until every goroutine this Broker started —
// the loop itself, plus any lifecycle cleanup timer it armed
// (internal/loop/lifecycle.go) — has actually exited, via an
// golang.org/x/sync/errgroup.Group, grounded on the teacher's pattern of
// a single query-handler goroutine paired with a done channel, scaled to
// several cooperating goroutines (spec.md §5). Callers typically invoke
// this in its own goroutine immediately after New, then call Close from
// elsewhere to shut down.
func (b *Broker) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	eg, egCtx := errgroup.WithContext(ctx)
	b.loop.SetGroup(eg)
	b.cancel = cancel
	close(b.ready)

	eg.Go(func() error {
		b.loop.Run(egCtx)
		return nil
	})

	<-ctx.Done()
	_ = eg.Wait()
	close(b.done)
}

// Close requests shutdown and blocks until Run's errgroup has joined
// every goroutine it supervises, so a caller knows the legacy engine's
// receive loop and any outstanding cleanup timer have fully stopped
// before it exits — unlike cancelling a context alone, which has no way
// to report back "done." Safe to call only after Run has started.
func (b *Broker) Close() {
	<-b.ready
	b.cancel()
	<-b.done
}

// post sends msg to the loop and blocks until it has been fully handled.
func (b *Broker) post(msg loop.Message) {
	b.loop.Post(msg)
	if ch := msg.Done(); ch != nil {
		<-ch
	}
}

// RegisterClient installs conn as a client with callback sink sink
// (spec.md §6's register_client).
func (b *Broker) RegisterClient(conn Connector, sink CallbackSink) {
	b.post(loop.NewRegisterClient(conn, sink))
}

// UnregisterClient removes conn's client record, expunging every
// outstanding request.
func (b *Broker) UnregisterClient(conn Connector) {
	b.post(loop.NewUnregisterClient(conn))
}

// DiscoverServices starts discover_services for conn under listenerKey.
func (b *Broker) DiscoverServices(conn Connector, listenerKey int, info ServiceInfo) {
	b.post(loop.NewDiscover(conn, listenerKey, info))
}

// StopDiscovery stops a prior DiscoverServices.
func (b *Broker) StopDiscovery(conn Connector, listenerKey int) {
	b.post(loop.NewStopDiscovery(conn, listenerKey))
}

// RegisterService starts register_service for conn under listenerKey.
func (b *Broker) RegisterService(conn Connector, listenerKey int, info ServiceInfo) {
	b.post(loop.NewRegister(conn, listenerKey, info))
}

// UnregisterService stops a prior RegisterService.
func (b *Broker) UnregisterService(conn Connector, listenerKey int) {
	b.post(loop.NewUnregister(conn, listenerKey))
}

// ResolveService starts a one-shot resolve_service.
func (b *Broker) ResolveService(conn Connector, listenerKey int, info ServiceInfo) {
	b.post(loop.NewResolve(conn, listenerKey, info))
}

// StopResolution stops a prior ResolveService.
func (b *Broker) StopResolution(conn Connector, listenerKey int) {
	b.post(loop.NewStopResolution(conn, listenerKey))
}

// RegisterServiceInfoCallback starts a long-lived "watch" resolve.
func (b *Broker) RegisterServiceInfoCallback(conn Connector, listenerKey int, info ServiceInfo) {
	b.post(loop.NewRegisterServiceCallback(conn, listenerKey, info))
}

// UnregisterServiceInfoCallback stops a prior
// RegisterServiceInfoCallback.
func (b *Broker) UnregisterServiceInfoCallback(conn Connector, listenerKey int) {
	b.post(loop.NewUnregisterServiceCallback(conn, listenerKey))
}

// DaemonStartup marks conn as a legacy client and ensures the legacy
// daemon is running.
func (b *Broker) DaemonStartup(conn Connector) {
	b.post(loop.NewDaemonStartup(conn))
}

// ClientCount, TransactionCount, and Enabled expose read-only diagnostics,
// useful for health checks and tests.
func (b *Broker) ClientCount() int      { return b.loop.ClientCount() }
func (b *Broker) TransactionCount() int { return b.loop.TransactionCount() }
func (b *Broker) Enabled() bool         { return b.loop.CurrentState() == loop.StateEnabled }
