package loop

import "time"

// maybeStartDaemon idempotently starts the legacy daemon (spec.md §4.7).
// It cancels any pending delayed stop unconditionally, before the
// idempotency check, since a stop can be scheduled while the daemon is
// still running — new legacy work arriving in that window must keep it
// up rather than let the stale timer tear it down underneath the new
// request.
func (l *Loop) maybeStartDaemon() {
	l.cancelStop()
	if l.daemonStarted {
		return
	}
	l.engines.Legacy.RegisterEventListener(l.onLegacyEvent)
	if err := l.engines.Legacy.Start(l.runCtx()); err != nil {
		l.log.Errorw("legacy daemon start failed", "err", err)
		return
	}
	l.daemonStarted = true
	l.metrics.DaemonStateChanged(true)
	l.log.Infow("legacy daemon started")
}

// maybeStopDaemon idempotently stops the legacy daemon.
func (l *Loop) maybeStopDaemon() {
	if !l.daemonStarted {
		return
	}
	if err := l.engines.Legacy.Stop(); err != nil {
		l.log.Errorw("legacy daemon stop failed", "err", err)
	}
	l.daemonStarted = false
	l.metrics.DaemonStateChanged(false)
	l.log.Infow("legacy daemon stopped")
}

// maybeScheduleStop arms the cleanup timer iff there is no outstanding
// legacy work and no legacy client remains (spec.md §3 lifecycle,
// invariant I6).
func (l *Loop) maybeScheduleStop() {
	if !l.daemonStarted {
		return
	}
	if l.anyLegacyRequestActive() || l.clients.LegacyClientCount() > 0 {
		return
	}
	l.scheduleStop()
}

// scheduleStop arms the single outstanding cleanup timer, replacing any
// previous one (spec.md §4.7: "only one may be outstanding").
func (l *Loop) scheduleStop() {
	l.cleanupToken++
	token := l.cleanupToken
	l.pendingCleanup = true
	l.timer(token)
}

// cancelStop invalidates any pending cleanup tick. DaemonCleanup messages
// carrying a stale token are dropped on arrival (handleDaemonCleanup).
func (l *Loop) cancelStop() {
	l.cleanupToken++
	l.pendingCleanup = false
}

// scheduleCleanupTimer is the default l.timer implementation: it posts a
// DaemonCleanup message to this same loop's queue after cfg.CleanupDelay,
// from a throwaway timer goroutine — the only concurrency this package
// introduces, and it never touches state directly (spec.md §5). The
// goroutine also exits on context cancellation rather than only posting
// after the delay, so a supervising errgroup's Wait (nsd.Broker.Close)
// doesn't block the whole CleanupDelay just to shut down.
func (l *Loop) scheduleCleanupTimer(token uint64) {
	delay := l.cfg.CleanupDelay
	fire := func() error {
		tm := time.NewTimer(delay)
		defer tm.Stop()
		select {
		case <-tm.C:
			l.Post(&DaemonCleanup{base: newBase(), token: token})
		case <-l.runCtx().Done():
		}
		return nil
	}
	if l.group != nil {
		l.group.Go(fire)
		return
	}
	go func() { _ = fire() }()
}

func (l *Loop) handleDaemonCleanup(m *DaemonCleanup) {
	if !l.pendingCleanup || m.token != l.cleanupToken {
		// Stale tick: either cancelled or superseded by a later
		// reschedule. Dropped silently per spec.md §4.7.
		return
	}
	l.pendingCleanup = false
	l.maybeStopDaemon()
}

// maybeStartMonitoringSockets idempotently starts multi-network socket
// monitoring (spec.md §4.7).
func (l *Loop) maybeStartMonitoringSockets() {
	if l.socketsMonitored {
		return
	}
	if err := l.engines.Sockets.StartMonitoringSockets(); err != nil {
		l.log.Errorw("socket monitoring start failed", "err", err)
		return
	}
	l.socketsMonitored = true
	l.log.Infow("socket monitoring started")
}

// maybeStopMonitoringSocketsIfNoActiveRequest stops socket monitoring
// once the transaction index is empty (spec.md §4.7, invariant I5/P7).
func (l *Loop) maybeStopMonitoringSocketsIfNoActiveRequest() {
	if !l.socketsMonitored {
		return
	}
	if l.transactions.Len() > 0 {
		return
	}
	if err := l.engines.Sockets.StopMonitoringSockets(); err != nil {
		l.log.Errorw("socket monitoring stop failed", "err", err)
		return
	}
	l.socketsMonitored = false
	l.log.Infow("socket monitoring stopped")
}

func (l *Loop) anyLegacyRequestActive() bool {
	for _, req := range l.allLiveRequests() {
		if req.Kind.IsLegacy() {
			return true
		}
	}
	return false
}
