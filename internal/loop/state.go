package loop

// State is the event loop's top-level state (spec.md §4.1).
type State int

const (
	// StateDefault rejects every client operation except the four
	// lifecycle messages that must work even before enablement
	// (RegisterClient, UnregisterClient, DaemonCleanup, DaemonStartup).
	// New starts the loop in this state; Run enters StateEnabled before it
	// dispatches any message and returns to StateDefault only as it exits,
	// so messages queued before Run are handled in StateEnabled.
	StateDefault State = iota
	// StateEnabled processes every operation.
	StateEnabled
)

func (s State) String() string {
	if s == StateEnabled {
		return "enabled"
	}
	return "default"
}

// acceptsInDefault reports whether kind may be handled while the loop is
// in StateDefault (spec.md §4.1).
func acceptsInDefault(msg Message) bool {
	switch msg.(type) {
	case *RegisterClient, *UnregisterClient, *DaemonCleanup, *DaemonStartup:
		return true
	default:
		return false
	}
}

// enterEnabled performs StateEnabled's on-entry action: broadcasting
// enablement (spec.md §4.1). The broadcast is a log line plus an
// optional hook set by the façade — the core has no transport of its
// own to broadcast over (spec.md §1's scope boundary).
func (l *Loop) enterEnabled() {
	l.state = StateEnabled
	l.log.Infow("nsd enabled")
	if l.onStateChange != nil {
		l.onStateChange(StateEnabled)
	}
}

// exitEnabled performs StateEnabled's on-exit action. Run only calls this
// once, as it returns for good (spec.md §4.1, §4.7), so — unlike
// maybeScheduleStop's debounced stop during ordinary runtime client
// churn — there is no later DaemonCleanup delivery to rely on: it tears
// the daemon and socket monitoring down immediately instead of arming
// the delayed-stop timer, so Run (and nsd.Broker.Close, which joins it)
// only returns once the legacy engine's own receive-loop goroutine has
// actually stopped. Per the deviation recorded in DESIGN.md (spec.md
// §9's first open question), it also expunges every outstanding request
// so clients are not left believing cancelled work is still in flight.
func (l *Loop) exitEnabled() {
	l.expungeAllClients()
	l.cancelStop()
	l.maybeStopDaemon()
	l.maybeStopMonitoringSocketsIfNoActiveRequest()
	l.state = StateDefault
	l.log.Infow("nsd disabled")
	if l.onStateChange != nil {
		l.onStateChange(StateDefault)
	}
}
