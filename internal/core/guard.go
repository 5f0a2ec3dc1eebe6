package core

import "errors"

// ErrReentrantCall is returned when an external collaborator re-enters the
// core while an operation is still in flight.
var ErrReentrantCall = errors.New("reentrant call into credit core")

// ErrUnauthorized is returned when a non-admin actor attempts an
// administrative operation.
var ErrUnauthorized = errors.New("unauthorized: admin access required")

// ReentrancyGuard rejects nested entries into ProcessOperation. External
// asset-link and registry calls happen while the guard is held, so a hostile
// collaborator calling back into the core is refused instead of observing
// half-applied state.
// Not thread-safe; only accessed from the single-threaded deterministic core.
type ReentrancyGuard struct {
	locked bool
}

func NewReentrancyGuard() *ReentrancyGuard {
	return &ReentrancyGuard{}
}

// Enter acquires the guard, failing if already held
func (g *ReentrancyGuard) Enter() error {
	if g.locked {
		return ErrReentrantCall
	}
	g.locked = true
	return nil
}

// Exit releases the guard
func (g *ReentrancyGuard) Exit() {
	g.locked = false
}
