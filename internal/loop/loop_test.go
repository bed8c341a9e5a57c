package loop

import (
	"net"
	"testing"

	"github.com/nsdbroker/nsdbroker/internal/brokererr"
	"github.com/nsdbroker/nsdbroker/internal/config"
	"github.com/nsdbroker/nsdbroker/internal/connector"
	"github.com/nsdbroker/nsdbroker/internal/engine"
	"github.com/nsdbroker/nsdbroker/internal/idgen"
	"github.com/nsdbroker/nsdbroker/internal/registry"
	"github.com/nsdbroker/nsdbroker/internal/svcinfo"
)

// testHarness bundles a Loop wired to fakes, run synchronously: tests
// call l.dispatch directly rather than going through Post/Run, since
// dispatch is what the production event loop calls one message at a
// time anyway (spec.md §5).
type testHarness struct {
	loop       *Loop
	legacy     *fakeLegacyEngine
	managed    *fakeManagedDiscovery
	advertiser *fakeManagedAdvertiser
	sockets    *fakeSockets
	ifaces     *fakeInterfaces
	flags      config.StaticFlags
	timer      *fakeTimer
}

func newHarness(flags config.StaticFlags) *testHarness {
	h := &testHarness{
		legacy:     &fakeLegacyEngine{},
		managed:    &fakeManagedDiscovery{},
		advertiser: &fakeManagedAdvertiser{},
		sockets:    &fakeSockets{},
		ifaces:     &fakeInterfaces{},
		flags:      flags,
		timer:      &fakeTimer{},
	}
	engines := Engines{
		Legacy:            h.legacy,
		ManagedDiscovery:  h.managed,
		ManagedAdvertiser: h.advertiser,
		Sockets:           h.sockets,
		Interfaces:        h.ifaces,
	}
	l := New(config.Default(), flags, engines, idgen.New(), registry.New(), registry.NewTransactions())
	l.timer = h.timer.schedule
	l.enterEnabled()
	h.loop = l
	return h
}

func (h *testHarness) registerClient(conn connector.Connector, sink connector.CallbackSink) {
	h.loop.dispatch(&RegisterClient{base: newBase(), Conn: conn, Sink: sink})
}

func httpInfo() svcinfo.Info {
	return svcinfo.Info{Name: "my printer", Type: "_http._tcp"}
}

// pump drains every message the loop's own handlers posted back onto its
// queue (engine-event callbacks always go through Post, never a direct
// call, per spec.md §5) so a test can observe the effects of a fake
// engine's deliver call synchronously.
func (h *testHarness) pump() {
	for {
		select {
		case msg := <-h.loop.queue:
			h.loop.dispatch(msg)
		default:
			return
		}
	}
}

func TestLoop_DefaultStateRejectsOperations(t *testing.T) {
	h := &testHarness{}
	l := New(config.Default(), config.StaticFlags{}, Engines{}, idgen.New(), registry.New(), registry.NewTransactions())
	h.loop = l

	conn := connector.NewLoopback()
	l.dispatch(&RegisterClient{base: newBase(), Conn: conn, Sink: conn})

	l.dispatch(&Discover{base: newBase(), Conn: conn, ListenerKey: 1, Info: httpInfo()})
	l.dispatch(&StopDiscovery{base: newBase(), Conn: conn, ListenerKey: 1})

	if len(conn.Events) != 2 {
		t.Fatalf("len(Events) = %d, want 2", len(conn.Events))
	}
	if conn.Events[0].Kind != "discovery-failed" || conn.Events[0].Err != brokererr.Internal {
		t.Fatalf("Events[0] = %+v, want discovery-failed/Internal", conn.Events[0])
	}
	if conn.Events[1].Kind != "stop-failed" || conn.Events[1].Err != brokererr.OperationNotRunning {
		t.Fatalf("Events[1] = %+v, want stop-failed/OperationNotRunning", conn.Events[1])
	}
}

func TestLoop_ManagedDiscoverHappyPath(t *testing.T) {
	h := newHarness(config.StaticFlags{Discovery: true})
	conn := connector.NewLoopback()
	h.registerClient(conn, conn)

	h.loop.dispatch(&Discover{base: newBase(), Conn: conn, ListenerKey: 1, Info: httpInfo()})
	if len(conn.Events) != 1 || conn.Events[0].Kind != "discovery-started" {
		t.Fatalf("Events = %+v, want a single discovery-started", conn.Events)
	}
	if !h.sockets.started {
		t.Fatal("managed discovery did not start socket monitoring")
	}

	h.managed.deliver("_http._tcp.local", engine.ManagedEvent{
		Code: engine.ServiceFound,
		Info: svcinfo.Info{Name: "peer", Type: "_http._tcp"},
	})
	h.pump()
	if len(conn.Events) != 2 || conn.Events[1].Kind != "service-found" || conn.Events[1].InfoName != "peer" {
		t.Fatalf("Events = %+v, want service-found for peer", conn.Events)
	}

	h.loop.dispatch(&StopDiscovery{base: newBase(), Conn: conn, ListenerKey: 1})
	if len(conn.Events) != 3 || conn.Events[2].Kind != "stop-succeeded" {
		t.Fatalf("Events = %+v, want stop-succeeded", conn.Events)
	}
	if h.sockets.started {
		t.Fatal("socket monitoring still running after last managed request ended")
	}
}

func TestLoop_LegacyTwoStageResolve(t *testing.T) {
	h := newHarness(config.StaticFlags{})
	conn := connector.NewLoopback()
	h.registerClient(conn, conn)

	h.loop.dispatch(&Resolve{base: newBase(), Conn: conn, ListenerKey: 1, Info: httpInfo()})
	if !h.legacy.started {
		t.Fatal("legacy daemon did not start for a legacy resolve")
	}

	client, _ := h.loop.clients.Get(conn)
	_, req, ok := client.FindByGlobalID(client.Requests[1].GlobalID)
	if !ok {
		t.Fatal("resolve request not tracked")
	}
	stage1ID := req.GlobalID

	h.legacy.deliver(engine.Event{
		Code:          engine.ServiceResolved,
		TransactionID: stage1ID,
		Hostname:      "printer.local.",
		Port:          631,
	})
	h.pump()

	stage2Req := client.Requests[1]
	if stage2Req.GlobalID == stage1ID {
		t.Fatal("stage two did not allocate a fresh transaction id")
	}

	h.legacy.deliver(engine.Event{
		Code:          engine.ServiceGetAddrSuccess,
		TransactionID: stage2Req.GlobalID,
		NetID:         5,
		Address:       "192.0.2.10",
		IfaceIndex:    7,
	})
	h.pump()

	if len(conn.Events) != 1 || conn.Events[0].Kind != "resolve-succeeded" {
		t.Fatalf("Events = %+v, want a single resolve-succeeded", conn.Events)
	}
	if conn.Events[0].InfoName != "my printer" {
		t.Fatalf("resolved info name = %q, want %q", conn.Events[0].InfoName, "my printer")
	}
	if _, stillTracked := client.Requests[1]; stillTracked {
		t.Fatal("resolve request still tracked after completion")
	}
	if client.ResolvedScratch != nil {
		t.Fatal("ResolvedScratch not cleared after resolve completed")
	}
}

func TestLoop_ResolveAlreadyActive(t *testing.T) {
	h := newHarness(config.StaticFlags{})
	conn := connector.NewLoopback()
	h.registerClient(conn, conn)

	h.loop.dispatch(&Resolve{base: newBase(), Conn: conn, ListenerKey: 1, Info: httpInfo()})
	h.loop.dispatch(&Resolve{base: newBase(), Conn: conn, ListenerKey: 2, Info: httpInfo()})

	if len(conn.Events) != 1 {
		t.Fatalf("Events = %+v, want one failure for the second resolve", conn.Events)
	}
	if conn.Events[0].Kind != "resolve-failed" || conn.Events[0].Err != brokererr.AlreadyActive {
		t.Fatalf("Events[0] = %+v, want resolve-failed/AlreadyActive", conn.Events[0])
	}
}

func TestLoop_MaxRequestsPerClient(t *testing.T) {
	cfg := config.Default()
	cfg.MaxRequestsPerClient = 2
	engines := Engines{
		Legacy:            &fakeLegacyEngine{},
		ManagedDiscovery:  &fakeManagedDiscovery{},
		ManagedAdvertiser: &fakeManagedAdvertiser{},
		Sockets:           &fakeSockets{},
		Interfaces:        &fakeInterfaces{},
	}
	l := New(cfg, config.StaticFlags{}, engines, idgen.New(), registry.New(), registry.NewTransactions())
	l.enterEnabled()

	conn := connector.NewLoopback()
	l.dispatch(&RegisterClient{base: newBase(), Conn: conn, Sink: conn})

	l.dispatch(&Discover{base: newBase(), Conn: conn, ListenerKey: 1, Info: httpInfo()})
	l.dispatch(&Discover{base: newBase(), Conn: conn, ListenerKey: 2, Info: httpInfo()})
	l.dispatch(&Discover{base: newBase(), Conn: conn, ListenerKey: 3, Info: httpInfo()})

	if len(conn.Events) != 3 {
		t.Fatalf("Events = %+v, want 3", conn.Events)
	}
	last := conn.Events[2]
	if last.Kind != "discovery-failed" || last.Err != brokererr.MaxLimit {
		t.Fatalf("third discover = %+v, want discovery-failed/MaxLimit", last)
	}
}

func TestLoop_PeerDeathExpungesOutstandingRequests(t *testing.T) {
	h := newHarness(config.StaticFlags{})
	conn := connector.NewLoopback()
	h.registerClient(conn, conn)

	h.loop.dispatch(&Discover{base: newBase(), Conn: conn, ListenerKey: 1, Info: httpInfo()})
	if h.loop.TransactionCount() != 1 {
		t.Fatalf("TransactionCount() = %d, want 1 before death", h.loop.TransactionCount())
	}

	h.loop.dispatch(&UnregisterClient{base: newBase(), Conn: conn})

	if h.loop.ClientCount() != 0 {
		t.Fatalf("ClientCount() = %d, want 0 after death", h.loop.ClientCount())
	}
	if h.loop.TransactionCount() != 0 {
		t.Fatalf("TransactionCount() = %d, want 0 after death", h.loop.TransactionCount())
	}
	if len(h.legacy.stopped) != 1 {
		t.Fatalf("legacy.stopped = %v, want exactly one StopOperation call", h.legacy.stopped)
	}
}

func TestLoop_DaemonCleanupTiming(t *testing.T) {
	h := newHarness(config.StaticFlags{})
	conn := connector.NewLoopback()
	h.registerClient(conn, conn)

	h.loop.dispatch(&Discover{base: newBase(), Conn: conn, ListenerKey: 1, Info: httpInfo()})
	if !h.legacy.started {
		t.Fatal("legacy daemon not started")
	}

	h.loop.dispatch(&StopDiscovery{base: newBase(), Conn: conn, ListenerKey: 1})
	token, ok := h.timer.lastToken()
	if !ok {
		t.Fatal("no cleanup timer scheduled after last legacy request ended")
	}

	h.loop.dispatch(&DaemonCleanup{base: newBase(), token: token})
	if h.legacy.started {
		t.Fatal("legacy daemon still running after its scheduled cleanup fired")
	}
}

func TestLoop_StaleDaemonCleanupIgnored(t *testing.T) {
	h := newHarness(config.StaticFlags{})
	conn := connector.NewLoopback()
	h.registerClient(conn, conn)

	h.loop.dispatch(&Discover{base: newBase(), Conn: conn, ListenerKey: 1, Info: httpInfo()})
	h.loop.dispatch(&StopDiscovery{base: newBase(), Conn: conn, ListenerKey: 1})
	staleToken, _ := h.timer.lastToken()

	// A fresh legacy need cancels the pending stop (bumping the token)
	// before the stale tick arrives.
	h.loop.dispatch(&Discover{base: newBase(), Conn: conn, ListenerKey: 2, Info: httpInfo()})

	h.loop.dispatch(&DaemonCleanup{base: newBase(), token: staleToken})
	if !h.legacy.started {
		t.Fatal("stale cleanup tick stopped the daemon despite fresh legacy work")
	}
}

func TestLoop_WatchCorrelatesLossFromOwnDiscoveryStream(t *testing.T) {
	h := newHarness(config.StaticFlags{})
	conn := connector.NewLoopback()
	h.registerClient(conn, conn)

	h.loop.dispatch(&RegisterServiceCallback{base: newBase(), Conn: conn, ListenerKey: 1, Info: httpInfo()})
	client, _ := h.loop.clients.Get(conn)
	watchReq := client.Requests[1]

	h.legacy.deliver(engine.Event{
		Code:          engine.ServiceResolved,
		TransactionID: watchReq.GlobalID,
		Hostname:      "printer.local.",
		Port:          631,
	})
	h.pump()
	stage2ID := client.Requests[1].GlobalID
	h.legacy.deliver(engine.Event{
		Code:          engine.ServiceGetAddrSuccess,
		TransactionID: stage2ID,
		NetID:         5,
		Address:       "192.0.2.10",
	})
	h.pump()

	// A separate discovery request on the same client observes a loss
	// for the watched instance/type pair.
	h.loop.dispatch(&Discover{base: newBase(), Conn: conn, ListenerKey: 2, Info: httpInfo()})
	discoverReq := client.Requests[2]
	h.legacy.deliver(engine.Event{
		Code:          engine.ServiceLost,
		TransactionID: discoverReq.GlobalID,
		InstanceName:  "my printer",
		ServiceType:   "_http._tcp",
		NetID:         5,
	})
	h.pump()

	var sawLost bool
	for _, ev := range conn.Events {
		if ev.Kind == "service-updated-lost" && ev.ListenerKey == 1 {
			sawLost = true
		}
	}
	if !sawLost {
		t.Fatalf("Events = %+v, want a service-updated-lost for listener key 1", conn.Events)
	}
}

func TestLoop_ManagedResolvePrefersIPv4(t *testing.T) {
	got := preferIPv4([]net.IP{net.ParseIP("2001:db8::1"), net.ParseIP("192.0.2.5")})
	if len(got) != 1 || got[0].String() != "192.0.2.5" {
		t.Fatalf("preferIPv4 = %v, want [192.0.2.5]", got)
	}

	v6Only := []net.IP{net.ParseIP("2001:db8::1")}
	got = preferIPv4(v6Only)
	if len(got) != 1 || !got[0].Equal(net.ParseIP("2001:db8::1")) {
		t.Fatalf("preferIPv4(v6-only) = %v, want the lone v6 address", got)
	}

	if got := preferIPv4(nil); got != nil {
		t.Fatalf("preferIPv4(nil) = %v, want nil", got)
	}
}
