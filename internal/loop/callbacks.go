package loop

import (
	"net"

	"github.com/nsdbroker/nsdbroker/internal/brokererr"
	"github.com/nsdbroker/nsdbroker/internal/connector"
	"github.com/nsdbroker/nsdbroker/internal/engine"
	"github.com/nsdbroker/nsdbroker/internal/registry"
	"github.com/nsdbroker/nsdbroker/internal/svcinfo"
)

// translateNetID implements the net-id policy of spec.md §4.6: 0 and the
// legacy LOCAL_NET sentinel both map to "no network", the difference
// being that LOCAL_NET events still carry a usable interface index.
func translateNetID(netID uint64) svcinfo.Network {
	if netID == 0 || netID == engine.LocalNet {
		return 0
	}
	return svcinfo.Network(netID)
}

func (l *Loop) handleLegacyEvent(m *LegacyEngineEvent) {
	ev := m.Event
	conn, ok := l.transactions.Lookup(ev.TransactionID)
	if !ok {
		l.log.Debugw("legacy event for unknown transaction", "id", ev.TransactionID)
		return
	}
	client, ok := l.clients.Get(conn)
	if !ok {
		return
	}
	listenerKey, req, ok := client.FindByGlobalID(ev.TransactionID)
	if !ok {
		l.log.Debugw("legacy event for unknown request", "id", ev.TransactionID)
		return
	}

	switch ev.Code {
	case engine.ServiceFound:
		if ev.NetID == 0 || ev.NetID == engine.DummyNet {
			return
		}
		info := svcinfo.Info{
			Name:           ev.InstanceName,
			Type:           ev.ServiceType,
			Network:        translateNetID(ev.NetID),
			InterfaceIndex: ev.IfaceIndex,
		}
		client.Sink.OnServiceFound(listenerKey, info)

	case engine.ServiceLost:
		info := svcinfo.Info{
			Name:           ev.InstanceName,
			Type:           ev.ServiceType,
			Network:        translateNetID(ev.NetID),
			InterfaceIndex: ev.IfaceIndex,
		}
		client.Sink.OnServiceLost(listenerKey, info)
		l.correlateWatchLoss(client, ev.InstanceName, ev.ServiceType, info)

	case engine.ServiceRegistered:
		client.Sink.OnRegisterSucceeded(listenerKey, svcinfo.Info{Name: ev.InstanceName, Type: ev.ServiceType})

	case engine.ServiceDiscoveryFailed:
		client.Sink.OnDiscoveryFailed(listenerKey, brokererr.Internal)
		l.discardRequest(client, listenerKey, req, "legacy", "failed")
		l.maybeScheduleStop()

	case engine.ServiceRegistrationFailed:
		client.Sink.OnRegisterFailed(listenerKey, brokererr.Internal)
		l.discardRequest(client, listenerKey, req, "legacy", "failed")
		l.maybeScheduleStop()

	case engine.ServiceResolutionFailed:
		l.failResolve(client, listenerKey, req)

	case engine.ServiceResolved:
		l.advanceToGetAddress(conn, client, listenerKey, req, ev)

	case engine.ServiceGetAddrSuccess:
		l.completeResolve(client, listenerKey, req, ev)

	case engine.ServiceGetAddrFailed:
		l.failResolve(client, listenerKey, req)

	default:
		l.log.Warnw("unhandled legacy event code", "code", ev.Code)
	}
}

// advanceToGetAddress is stage one of the legacy two-stage resolve
// (spec.md §4.5): stop the resolve transaction, allocate a fresh
// transaction id, and issue get-address under it for the same listener
// key.
func (l *Loop) advanceToGetAddress(conn connector.Connector, client *registry.Client, listenerKey int, req *registry.Request, ev engine.Event) {
	l.transactions.Remove(req.GlobalID)

	id2 := l.alloc.Next()
	req.GlobalID = id2
	req.Hostname = ev.Hostname
	req.Port = ev.Port
	req.TXT = ev.TXT
	l.transactions.Put(id2, conn)

	if !l.engines.Legacy.GetServiceAddress(id2, ev.Hostname, req.IfaceIndex) {
		l.failResolve(client, listenerKey, req)
	}
}

// completeResolve is stage two: populate the final ServiceInfo and
// deliver it, branching on whether this is a one-shot resolve or a
// long-lived watch (spec.md §4.5, §4.6).
func (l *Loop) completeResolve(client *registry.Client, listenerKey int, req *registry.Request, ev engine.Event) {
	ip := net.ParseIP(ev.Address)
	if ev.NetID == 0 || ip == nil {
		l.failResolve(client, listenerKey, req)
		return
	}

	info := svcinfo.Info{
		Name:           req.WatchedInstanceName,
		Type:           req.WatchedServiceType,
		Port:           req.Port,
		TXT:            req.TXT,
		Network:        translateNetID(ev.NetID),
		InterfaceIndex: ev.IfaceIndex,
		Addresses:      []net.IP{ip},
	}

	if req.Kind == registry.LegacyResolveViaCallback {
		// WatchedScratch is retained across future events while info
		// also crosses the loop boundary into an external CallbackSink;
		// each side gets its own copy so a sink that mutates the TXT map
		// it was handed can't corrupt the broker's own bookkeeping.
		scratch := info.Clone()
		client.WatchedScratch = &scratch
		client.Sink.OnServiceUpdated(listenerKey, info.Clone())
		return
	}

	client.ResolvedScratch = nil
	client.Sink.OnResolveSucceeded(listenerKey, info)
	l.discardRequest(client, listenerKey, req, "legacy", "resolved")
	l.maybeScheduleStop()
}

// failResolve maps a resolve-stage failure per spec.md §7's legacy-compat
// wart: bad-parameters for watch mode, internal-error for plain resolve.
func (l *Loop) failResolve(client *registry.Client, listenerKey int, req *registry.Request) {
	l.discardRequest(client, listenerKey, req, "legacy", "failed")

	if req.Kind == registry.LegacyResolveViaCallback {
		client.WatchedScratch = nil
		client.WatchedListenerKey = nil
		client.Sink.OnCallbackRegistrationFailed(listenerKey, brokererr.BadParameters)
	} else {
		client.ResolvedScratch = nil
		client.Sink.OnResolveFailed(listenerKey, brokererr.Internal)
	}
	l.maybeScheduleStop()
}

func (l *Loop) handleManagedEvent(m *ManagedEngineEvent) {
	ev := m.Event
	conn, ok := l.transactions.Lookup(m.TransactionID)
	if !ok {
		l.log.Debugw("managed event for unknown transaction", "id", m.TransactionID)
		return
	}
	client, ok := l.clients.Get(conn)
	if !ok {
		return
	}
	listenerKey, req, ok := client.FindByGlobalID(m.TransactionID)
	if !ok {
		l.log.Debugw("managed event for unknown request", "id", m.TransactionID)
		return
	}

	switch ev.Code {
	case engine.ServiceFound:
		client.Sink.OnServiceFound(listenerKey, ev.Info)
	case engine.ServiceLost:
		client.Sink.OnServiceLost(listenerKey, ev.Info)
		l.correlateWatchLoss(client, ev.Info.Name, ev.Info.Type, ev.Info)
	case engine.ServiceResolved:
		l.completeManagedResolve(client, listenerKey, req, ev)
	default:
		l.log.Warnw("unhandled managed event code", "code", ev.Code)
	}
}

// completeManagedResolve mirrors completeResolve for the managed
// backend's single-stage protocol, preferring an IPv4 address when one
// is present (spec.md §4.6).
func (l *Loop) completeManagedResolve(client *registry.Client, listenerKey int, req *registry.Request, ev engine.ManagedEvent) {
	info := ev.Info
	info.Addresses = preferIPv4(ev.Info.Addresses)

	client.Sink.OnResolveSucceeded(listenerKey, info)

	if err := l.engines.ManagedDiscovery.UnregisterListener(req.ListenedServiceType, req.ListenerHandle); err != nil {
		l.log.Warnw("managed resolve listener teardown failed", "err", err)
	}
	l.discardRequest(client, listenerKey, req, "managed", "resolved")
	l.maybeStopMonitoringSocketsIfNoActiveRequest()
}

// preferIPv4 returns a single-element slice holding the first IPv4
// address in addrs, or the first address of any family if none is IPv4.
func preferIPv4(addrs []net.IP) []net.IP {
	for _, a := range addrs {
		if a.To4() != nil {
			return []net.IP{a}
		}
	}
	if len(addrs) > 0 {
		return []net.IP{addrs[0]}
	}
	return nil
}
