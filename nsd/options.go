package nsd

import (
	"github.com/nsdbroker/nsdbroker/internal/config"
	"github.com/nsdbroker/nsdbroker/internal/engine"
	"github.com/nsdbroker/nsdbroker/internal/loop"
	"github.com/nsdbroker/nsdbroker/internal/metrics"
)

// Connector is the opaque per-client handle spec.md's IPC boundary hands
// the broker: a stable id plus death notification.
type Connector = connectorAlias

// CallbackSink is the set of asynchronous callbacks the broker delivers
// results through (spec.md §6's reply table).
type CallbackSink = callbackSinkAlias

// Engines bundles the backend collaborators a Broker routes requests to
// (spec.md §6's "Backend interfaces consumed").
type Engines = loop.Engines

// LegacyEngine, ManagedDiscoveryManager, ManagedAdvertiser,
// SocketProvider, and NetworkInterfaceResolver name the engine package's
// interfaces for callers assembling an
// Engines value without importing internal/engine directly.
type (
	LegacyEngine             = engine.LegacyEngine
	ManagedDiscoveryManager  = engine.ManagedDiscoveryManager
	ManagedAdvertiser        = engine.ManagedAdvertiser
	SocketProvider           = engine.SocketProvider
	NetworkInterfaceResolver = engine.NetworkInterfaceResolver
)

// Config is the broker's tunable configuration (spec.md §6).
type Config = config.Config

// DefaultConfig returns Config populated with the spec's defaults.
func DefaultConfig() Config { return config.Default() }

// FlagSource is the read-only feature-flag interface the backend router
// consults per operation (spec.md §4.5).
type FlagSource = config.FlagSource

// StaticFlags is the simplest FlagSource: two fixed booleans.
type StaticFlags = config.StaticFlags

// MetricsRecorder is the narrow Prometheus-shaped interface a Broker
// reports to; pass metrics.Noop{} (the default) to opt out.
type MetricsRecorder = metrics.Recorder

// Option configures a Broker at construction, mirroring internal/loop's
// functional-option pattern.
type Option func(*brokerConfig)

type brokerConfig struct {
	logger        loop.Logger
	metrics       MetricsRecorder
	onStateChange func(Enabled bool)
}

// Logger is the narrow structured-logging interface the broker depends
// on; *zap.SugaredLogger satisfies it directly.
type Logger = loop.Logger

// WithLogger installs a structured logger.
func WithLogger(l Logger) Option { return func(c *brokerConfig) { c.logger = l } }

// WithMetrics installs a Prometheus (or other) metrics recorder.
func WithMetrics(m MetricsRecorder) Option { return func(c *brokerConfig) { c.metrics = m } }

// WithOnStateChange installs a hook fired on every Default<->Enabled
// transition; enabled is true on entry to Enabled.
func WithOnStateChange(fn func(enabled bool)) Option {
	return func(c *brokerConfig) { c.onStateChange = fn }
}
