package loop

import (
	"github.com/nsdbroker/nsdbroker/internal/brokererr"
	"github.com/nsdbroker/nsdbroker/internal/connector"
	"github.com/nsdbroker/nsdbroker/internal/engine"
	"github.com/nsdbroker/nsdbroker/internal/label"
	"github.com/nsdbroker/nsdbroker/internal/registry"
	"github.com/nsdbroker/nsdbroker/internal/svcinfo"
)

func (l *Loop) handleRegisterClient(m *RegisterClient) {
	l.clients.Register(m.Conn, m.Sink)
	m.Conn.NotifyOnDeath(func() {
		l.Post(&UnregisterClient{base: newBase(), Conn: m.Conn})
	})
	l.metrics.ClientRegistered()
	l.log.Debugw("client registered", "conn", m.Conn.ID())
}

func (l *Loop) handleUnregisterClient(m *UnregisterClient) {
	client, ok := l.clients.Remove(m.Conn)
	if !ok {
		return
	}
	l.expungeClient(m.Conn, client)
	l.metrics.ClientUnregistered()
	l.maybeStopMonitoringSocketsIfNoActiveRequest()
	l.maybeScheduleStop()
	l.log.Debugw("client unregistered", "conn", m.Conn.ID())
}

// expungeClient tears down every outstanding request a client held,
// invoking the backend teardown appropriate to each request's variant
// (spec.md §4.3). It never touches the client/transaction maps for
// clients other than this one.
func (l *Loop) expungeClient(conn connector.Connector, client *registry.Client) {
	for _, req := range client.Requests {
		l.teardownRequest(req)
		l.transactions.Remove(req.GlobalID)
	}
	client.Requests = nil
	client.ResolvedScratch = nil
	client.WatchedScratch = nil
	client.WatchedListenerKey = nil
}

// expungeAllClients tears down every client in the registry, used by
// Enabled.exit per the documented deviation from the source's
// non-expunging quirk (spec.md §9).
func (l *Loop) expungeAllClients() {
	l.clients.Range(func(conn connector.Connector, client *registry.Client) {
		l.expungeClient(conn, client)
		l.clients.Remove(conn)
	})
}

func (l *Loop) teardownRequest(req *registry.Request) {
	switch req.Kind {
	case registry.ManagedDiscovery:
		if err := l.engines.ManagedDiscovery.UnregisterListener(req.ListenedServiceType, req.ListenerHandle); err != nil {
			l.log.Warnw("managed listener teardown failed", "err", err)
		}
		l.metrics.RequestEnded("managed", "expunged")
	case registry.ManagedAdvertiser:
		if err := l.engines.ManagedAdvertiser.RemoveService(req.GlobalID); err != nil {
			l.log.Warnw("managed advertiser teardown failed", "err", err)
		}
		l.metrics.RequestEnded("managed", "expunged")
	default:
		// Every Legacy* variant shares the same teardown primitive
		// (spec.md §4.3).
		l.engines.Legacy.StopOperation(req.GlobalID)
		l.metrics.RequestEnded("legacy", "expunged")
	}
}

// resolveIface implements the interface-lookup rule shared by every
// legacy start-op (spec.md §4.5): no network means IFACE_ANY; a network
// that fails to resolve is a hard failure, not a silent fallback.
func (l *Loop) resolveIface(info svcinfo.Info) (idx int, ok bool) {
	if info.Network == 0 {
		return engine.IfaceAny, true
	}
	idx = l.engines.Interfaces.ResolveInterfaceIndex(info.Network)
	if idx == engine.IfaceAny {
		return 0, false
	}
	return idx, true
}

func (l *Loop) atCapacity(client *registry.Client) bool {
	limit := l.cfg.MaxRequestsPerClient
	if limit <= 0 {
		limit = registry.MaxRequestsPerClient
	}
	return len(client.Requests) >= limit
}

func (l *Loop) handleDiscover(m *Discover) {
	client, ok := l.clients.Get(m.Conn)
	if !ok {
		return
	}
	if l.atCapacity(client) {
		client.Sink.OnDiscoveryFailed(m.ListenerKey, brokererr.MaxLimit)
		return
	}
	canonical, ok := label.ValidateServiceType(m.Info.Type)
	if !ok {
		client.Sink.OnDiscoveryFailed(m.ListenerKey, brokererr.Internal)
		return
	}

	if l.flags.ManagedDiscoveryEnabled() {
		l.startManagedDiscovery(m.Conn, client, m.ListenerKey, m.Info, canonical)
		return
	}
	l.startLegacyDiscover(m.Conn, client, m.ListenerKey, canonical, m.Info)
}

func (l *Loop) startManagedDiscovery(conn connector.Connector, client *registry.Client, listenerKey int, info svcinfo.Info, canonical string) {
	listenedType := canonical + ".local"
	l.maybeStartMonitoringSockets()

	id := l.alloc.Next()
	fn := func(ev engine.ManagedEvent) {
		l.Post(&ManagedEngineEvent{base: newBase(), TransactionID: id, Event: ev})
	}
	opts := engine.SearchOptions{Network: info.Network, PassiveMode: true}
	handle, err := l.engines.ManagedDiscovery.RegisterListener(listenedType, opts, fn)
	if err != nil {
		l.log.Warnw("managed discover failed", "err", err)
		client.Sink.OnDiscoveryFailed(listenerKey, brokererr.Internal)
		l.maybeStopMonitoringSocketsIfNoActiveRequest()
		return
	}

	client.Requests[listenerKey] = &registry.Request{
		GlobalID:            id,
		Kind:                registry.ManagedDiscovery,
		ListenerHandle:      handle,
		ListenedServiceType: listenedType,
	}
	l.transactions.Put(id, conn)
	l.metrics.RequestStarted("managed")
	client.Sink.OnDiscoveryStarted(listenerKey)
}

func (l *Loop) startLegacyDiscover(conn connector.Connector, client *registry.Client, listenerKey int, canonical string, info svcinfo.Info) {
	l.maybeStartDaemon()
	ifaceIdx, ok := l.resolveIface(info)
	if !ok {
		client.Sink.OnDiscoveryFailed(listenerKey, brokererr.Internal)
		l.maybeScheduleStop()
		return
	}

	id := l.alloc.Next()
	if !l.engines.Legacy.Discover(id, canonical, ifaceIdx) {
		l.engines.Legacy.StopOperation(id)
		client.Sink.OnDiscoveryFailed(listenerKey, brokererr.Internal)
		l.maybeScheduleStop()
		return
	}

	client.Requests[listenerKey] = &registry.Request{GlobalID: id, Kind: registry.LegacyDiscover}
	l.transactions.Put(id, conn)
	l.metrics.RequestStarted("legacy")
	client.Sink.OnDiscoveryStarted(listenerKey)
}

func (l *Loop) handleStopDiscovery(m *StopDiscovery) {
	client, ok := l.clients.Get(m.Conn)
	if !ok {
		l.replyOpNotRunning(m.Conn, m.ListenerKey)
		return
	}
	req, ok := client.Requests[m.ListenerKey]
	if !ok {
		client.Sink.OnStopFailed(m.ListenerKey, brokererr.OperationNotRunning)
		return
	}

	switch req.Kind {
	case registry.ManagedDiscovery:
		err := l.engines.ManagedDiscovery.UnregisterListener(req.ListenedServiceType, req.ListenerHandle)
		l.finishStop(client, m.ListenerKey, req, "managed", err)
		l.maybeStopMonitoringSocketsIfNoActiveRequest()
	default:
		ok := l.engines.Legacy.StopOperation(req.GlobalID)
		var err error
		if !ok {
			err = brokererr.Internal
		}
		l.finishStop(client, m.ListenerKey, req, "legacy", err)
		l.maybeScheduleStop()
	}
}

// finishStop removes req from both indices and answers the client,
// shared by every stop-shaped handler (spec.md §4.1's reply table).
func (l *Loop) finishStop(client *registry.Client, listenerKey int, req *registry.Request, backend string, err error) {
	l.discardRequest(client, listenerKey, req, backend, "stopped")
	if err != nil {
		client.Sink.OnStopFailed(listenerKey, err)
		return
	}
	client.Sink.OnStopSucceeded(listenerKey)
}

// discardRequest removes req from both indices without answering the
// client — used where the reply was already sent through a different
// callback (OnDiscoveryFailed, OnRegisterFailed, ...) than the
// stop-shaped OnStopSucceeded/OnStopFailed pair.
func (l *Loop) discardRequest(client *registry.Client, listenerKey int, req *registry.Request, backend, reason string) {
	delete(client.Requests, listenerKey)
	l.transactions.Remove(req.GlobalID)
	l.metrics.RequestEnded(backend, reason)
}

func (l *Loop) handleRegister(m *Register) {
	client, ok := l.clients.Get(m.Conn)
	if !ok {
		return
	}
	if l.atCapacity(client) {
		client.Sink.OnRegisterFailed(m.ListenerKey, brokererr.MaxLimit)
		return
	}
	canonical, ok := label.ValidateServiceType(m.Info.Type)
	if !ok {
		client.Sink.OnRegisterFailed(m.ListenerKey, brokererr.Internal)
		return
	}
	info := m.Info
	info.Type = canonical
	info.Name = label.TruncateInstanceName(info.Name, l.cfg.MaxLabelLength)

	if l.flags.ManagedAdvertiserEnabled() {
		l.startManagedRegister(m.Conn, client, m.ListenerKey, info)
		return
	}
	l.startLegacyRegister(m.Conn, client, m.ListenerKey, info)
}

func (l *Loop) startManagedRegister(conn connector.Connector, client *registry.Client, listenerKey int, info svcinfo.Info) {
	l.maybeStartMonitoringSockets()
	id := l.alloc.Next()
	if err := l.engines.ManagedAdvertiser.AddService(id, info); err != nil {
		l.log.Warnw("managed register failed", "err", err)
		client.Sink.OnRegisterFailed(listenerKey, brokererr.Internal)
		l.maybeStopMonitoringSocketsIfNoActiveRequest()
		return
	}
	client.Requests[listenerKey] = &registry.Request{GlobalID: id, Kind: registry.ManagedAdvertiser}
	l.transactions.Put(id, conn)
	l.metrics.RequestStarted("managed")
	client.Sink.OnRegisterSucceeded(listenerKey, info)
}

func (l *Loop) startLegacyRegister(conn connector.Connector, client *registry.Client, listenerKey int, info svcinfo.Info) {
	l.maybeStartDaemon()
	ifaceIdx, ok := l.resolveIface(info)
	if !ok {
		client.Sink.OnRegisterFailed(listenerKey, brokererr.Internal)
		l.maybeScheduleStop()
		return
	}

	id := l.alloc.Next()
	if !l.engines.Legacy.Register(id, info, ifaceIdx) {
		l.engines.Legacy.StopOperation(id)
		client.Sink.OnRegisterFailed(listenerKey, brokererr.Internal)
		l.maybeScheduleStop()
		return
	}
	// Legacy success is asynchronous (SERVICE_REGISTERED), delivered
	// from handleLegacyEvent.
	client.Requests[listenerKey] = &registry.Request{GlobalID: id, Kind: registry.LegacyRegister}
	l.transactions.Put(id, conn)
	l.metrics.RequestStarted("legacy")
}

func (l *Loop) handleUnregister(m *Unregister) {
	client, ok := l.clients.Get(m.Conn)
	if !ok {
		l.replyOpNotRunning(m.Conn, m.ListenerKey)
		return
	}
	req, ok := client.Requests[m.ListenerKey]
	if !ok {
		client.Sink.OnStopFailed(m.ListenerKey, brokererr.OperationNotRunning)
		return
	}

	switch req.Kind {
	case registry.ManagedAdvertiser:
		err := l.engines.ManagedAdvertiser.RemoveService(req.GlobalID)
		l.finishStop(client, m.ListenerKey, req, "managed", err)
		l.maybeStopMonitoringSocketsIfNoActiveRequest()
	default:
		ok := l.engines.Legacy.StopOperation(req.GlobalID)
		var err error
		if !ok {
			err = brokererr.Internal
		}
		l.finishStop(client, m.ListenerKey, req, "legacy", err)
		l.maybeScheduleStop()
	}
}

func (l *Loop) handleResolve(m *Resolve) {
	client, ok := l.clients.Get(m.Conn)
	if !ok {
		return
	}
	if l.atCapacity(client) {
		client.Sink.OnResolveFailed(m.ListenerKey, brokererr.MaxLimit)
		return
	}
	canonical, ok := label.ValidateServiceType(m.Info.Type)
	if !ok {
		client.Sink.OnResolveFailed(m.ListenerKey, brokererr.Internal)
		return
	}

	if l.flags.ManagedDiscoveryEnabled() {
		l.startManagedResolve(m.Conn, client, m.ListenerKey, m.Info, canonical)
		return
	}
	l.startLegacyResolve(m.Conn, client, m.ListenerKey, canonical, m.Info)
}

func (l *Loop) startManagedResolve(conn connector.Connector, client *registry.Client, listenerKey int, info svcinfo.Info, canonical string) {
	listenedType := canonical + ".local"
	l.maybeStartMonitoringSockets()

	id := l.alloc.Next()
	fn := func(ev engine.ManagedEvent) {
		l.Post(&ManagedEngineEvent{base: newBase(), TransactionID: id, Event: ev})
	}
	opts := engine.SearchOptions{Network: info.Network, PassiveMode: true, ResolveInstanceName: info.Name}
	handle, err := l.engines.ManagedDiscovery.RegisterListener(listenedType, opts, fn)
	if err != nil {
		l.log.Warnw("managed resolve failed", "err", err)
		client.Sink.OnResolveFailed(listenerKey, brokererr.Internal)
		l.maybeStopMonitoringSocketsIfNoActiveRequest()
		return
	}

	client.Requests[listenerKey] = &registry.Request{
		GlobalID:            id,
		Kind:                registry.ManagedDiscovery,
		ListenerHandle:      handle,
		ListenedServiceType: listenedType,
		WatchedInstanceName: info.Name,
		WatchedServiceType:  canonical,
	}
	l.transactions.Put(id, conn)
	l.metrics.RequestStarted("managed")
	// No synchronous reply for resolve; resolve-succeeded/failed arrives
	// through the managed event path (spec.md §4.5).
}

func (l *Loop) startLegacyResolve(conn connector.Connector, client *registry.Client, listenerKey int, canonical string, info svcinfo.Info) {
	if client.ResolvedScratch != nil {
		client.Sink.OnResolveFailed(listenerKey, brokererr.AlreadyActive)
		return
	}
	ifaceIdx, ok := l.resolveIface(info)
	if !ok {
		client.Sink.OnResolveFailed(listenerKey, brokererr.Internal)
		return
	}

	l.maybeStartDaemon()
	id := l.alloc.Next()
	if !l.engines.Legacy.Resolve(id, info.Name, canonical, ifaceIdx) {
		l.engines.Legacy.StopOperation(id)
		client.Sink.OnResolveFailed(listenerKey, brokererr.Internal)
		l.maybeScheduleStop()
		return
	}

	scratch := &svcinfo.Info{}
	client.ResolvedScratch = scratch
	client.Requests[listenerKey] = &registry.Request{
		GlobalID:            id,
		Kind:                registry.LegacyResolve,
		WatchedInstanceName: info.Name,
		WatchedServiceType:  canonical,
		IfaceIndex:          ifaceIdx,
	}
	l.transactions.Put(id, conn)
	l.metrics.RequestStarted("legacy")
}

func (l *Loop) handleStopResolution(m *StopResolution) {
	client, ok := l.clients.Get(m.Conn)
	if !ok {
		l.replyOpNotRunning(m.Conn, m.ListenerKey)
		return
	}
	req, ok := client.Requests[m.ListenerKey]
	if !ok {
		client.Sink.OnStopFailed(m.ListenerKey, brokererr.OperationNotRunning)
		return
	}

	switch req.Kind {
	case registry.ManagedDiscovery:
		err := l.engines.ManagedDiscovery.UnregisterListener(req.ListenedServiceType, req.ListenerHandle)
		l.finishStop(client, m.ListenerKey, req, "managed", err)
		l.maybeStopMonitoringSocketsIfNoActiveRequest()
	default:
		ok := l.engines.Legacy.StopOperation(req.GlobalID)
		var err error
		if !ok {
			err = brokererr.Internal
		}
		client.ResolvedScratch = nil
		l.finishStop(client, m.ListenerKey, req, "legacy", err)
		l.maybeScheduleStop()
	}
}

func (l *Loop) handleDaemonStartup(m *DaemonStartup) {
	client, ok := l.clients.Get(m.Conn)
	if !ok {
		return
	}
	client.IsLegacyClient = true
	l.maybeStartDaemon()
}

// allLiveRequests returns every outstanding request across every client,
// used by the lifecycle controller's legacy-work check (spec.md §4.7).
func (l *Loop) allLiveRequests() []*registry.Request {
	var out []*registry.Request
	l.clients.Range(func(_ connector.Connector, client *registry.Client) {
		for _, req := range client.Requests {
			out = append(out, req)
		}
	})
	return out
}
