package services

import (
	"errors"
	"fmt"
)

// ErrGatewayUnavailable marks a cycle aborted because the broker could not be
// reached or returned incomplete data. No ledger mutation is applied; the
// cycle is retried wholesale on the next tick.
var ErrGatewayUnavailable = errors.New("broker gateway unavailable")

// ErrSyncInFlight marks a reconciliation tick skipped because the previous
// pass is still running.
var ErrSyncInFlight = errors.New("reconciliation pass already in flight")

// ErrNoActiveTransition is returned by transition operations that require an
// active (pending or in_progress) transition.
var ErrNoActiveTransition = errors.New("no active transition")

// ErrTransitionTerminal is returned when an operation targets a transition
// that has already reached a terminal status.
var ErrTransitionTerminal = errors.New("transition already terminal")

// ConflictError rejects an attempt to start a transition while another one is
// still active. It names the existing transition so callers can cancel it.
type ConflictError struct {
	ActiveTransitionID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("transition %s is still active", e.ActiveTransitionID)
}

// MigrationError marks an unrecoverable failure of a per-position migration
// step. It always terminates the transition as failed with a full unlock.
type MigrationError struct {
	PositionID string
	Symbol     string
	Err        error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration step failed for %s (%s): %v", e.Symbol, e.PositionID, e.Err)
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}
