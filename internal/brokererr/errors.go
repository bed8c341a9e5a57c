// Package brokererr defines the broker's error taxonomy (spec.md §7) as
// sentinel errors usable with errors.Is, matching the teacher's use of
// typed error values over bare strings.
package brokererr

import "errors"

var (
	// Internal covers engine-side failures the broker cannot attribute
	// to a specific client mistake, and the Default state's rejection
	// of every operation.
	Internal = errors.New("internal error")

	// MaxLimit is returned when a client is already holding
	// MaxRequestsPerClient outstanding requests.
	MaxLimit = errors.New("max-limit exceeded")

	// AlreadyActive is returned for a resolve/watch request that
	// collides with one already in flight for the same client.
	AlreadyActive = errors.New("already active")

	// BadParameters is returned for malformed watch-registration
	// requests.
	BadParameters = errors.New("bad parameters")

	// OperationNotRunning is returned by stop-ops that name an
	// operation the client has no record of.
	OperationNotRunning = errors.New("operation not running")
)
