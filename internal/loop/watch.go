package loop

import (
	"strings"

	"github.com/nsdbroker/nsdbroker/internal/brokererr"
	"github.com/nsdbroker/nsdbroker/internal/label"
	"github.com/nsdbroker/nsdbroker/internal/registry"
	"github.com/nsdbroker/nsdbroker/internal/svcinfo"
)

// handleRegisterServiceCallback starts a "watch updates" resolve: a
// long-lived legacy two-stage resolve that re-delivers on every update
// and is additionally subscribed to loss events from this client's own
// discovery stream (spec.md §4.5). It always uses the legacy path,
// independent of the managed-discovery flag — the managed path for
// continuous watch is not implemented by the reference managed engine.
func (l *Loop) handleRegisterServiceCallback(m *RegisterServiceCallback) {
	client, ok := l.clients.Get(m.Conn)
	if !ok {
		return
	}
	if client.WatchedScratch != nil {
		client.Sink.OnCallbackRegistrationFailed(m.ListenerKey, brokererr.AlreadyActive)
		return
	}
	if l.atCapacity(client) {
		client.Sink.OnCallbackRegistrationFailed(m.ListenerKey, brokererr.MaxLimit)
		return
	}
	canonical, ok := label.ValidateServiceType(m.Info.Type)
	if !ok {
		client.Sink.OnCallbackRegistrationFailed(m.ListenerKey, brokererr.BadParameters)
		return
	}
	ifaceIdx, ok := l.resolveIface(m.Info)
	if !ok {
		client.Sink.OnCallbackRegistrationFailed(m.ListenerKey, brokererr.BadParameters)
		return
	}

	l.maybeStartDaemon()
	id := l.alloc.Next()
	if !l.engines.Legacy.Resolve(id, m.Info.Name, canonical, ifaceIdx) {
		l.engines.Legacy.StopOperation(id)
		client.Sink.OnCallbackRegistrationFailed(m.ListenerKey, brokererr.BadParameters)
		l.maybeScheduleStop()
		return
	}

	key := m.ListenerKey
	client.WatchedScratch = &svcinfo.Info{Name: m.Info.Name, Type: canonical}
	client.WatchedListenerKey = &key
	client.Requests[m.ListenerKey] = &registry.Request{
		GlobalID:            id,
		Kind:                registry.LegacyResolveViaCallback,
		WatchedInstanceName: m.Info.Name,
		WatchedServiceType:  canonical,
		IfaceIndex:          ifaceIdx,
	}
	l.transactions.Put(id, m.Conn)
	l.metrics.RequestStarted("legacy")
}

func (l *Loop) handleUnregisterServiceCallback(m *UnregisterServiceCallback) {
	client, ok := l.clients.Get(m.Conn)
	if !ok {
		l.replyOpNotRunning(m.Conn, m.ListenerKey)
		return
	}
	req, ok := client.Requests[m.ListenerKey]
	if !ok || req.Kind != registry.LegacyResolveViaCallback {
		client.Sink.OnStopFailed(m.ListenerKey, brokererr.OperationNotRunning)
		return
	}

	ok2 := l.engines.Legacy.StopOperation(req.GlobalID)
	client.WatchedScratch = nil
	client.WatchedListenerKey = nil
	var err error
	if !ok2 {
		err = brokererr.Internal
	}
	l.finishStop(client, m.ListenerKey, req, "legacy", err)
	l.maybeScheduleStop()
}

// correlateWatchLoss implements spec.md §4.5's loss-correlation rule:
// when this client's discovery stream reports a loss matching the
// (instance, type) pair its own watch is tracking, deliver
// onServiceUpdatedLost to the watch's listener key. Matching tolerates
// the leading-dot convention mismatch between resolved and discovered
// service types.
func (l *Loop) correlateWatchLoss(client *registry.Client, instanceName, serviceType string, info svcinfo.Info) {
	if client.WatchedScratch == nil || client.WatchedListenerKey == nil {
		return
	}
	if client.WatchedScratch.Name != instanceName {
		return
	}
	if normalizeType(client.WatchedScratch.Type) != normalizeType(serviceType) {
		return
	}
	client.Sink.OnServiceUpdatedLost(*client.WatchedListenerKey, info)
}

func normalizeType(t string) string {
	return strings.TrimPrefix(t, ".")
}
