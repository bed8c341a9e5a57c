package nsd

import "github.com/nsdbroker/nsdbroker/internal/connector"

type connectorAlias = connector.Connector
type callbackSinkAlias = connector.CallbackSink

// NewLoopback returns an in-process Connector/CallbackSink pair — the
// connector the CLI's smoke-test command and this package's own tests
// use in place of a real IPC transport (spec.md §1's scope boundary).
// Its recorded Events let a caller assert on broker behavior directly.
func NewLoopback() *connector.Loopback { return connector.NewLoopback() }
