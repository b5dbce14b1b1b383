// Package worklock provides the single exclusive build/run slot a worker
// owns. Acquisition is attempted, never queued: a losing caller gets false
// immediately. Status reads never touch this lock.
package worklock

import "sync"

type Lock struct {
	mu     sync.Mutex
	held   bool
	ticket string
}

func New() *Lock {
	return &Lock{}
}

// TryAcquire claims the slot for ticket. It never blocks; it returns false
// if the slot is already held.
func (l *Lock) TryAcquire(ticket string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return false
	}
	l.held = true
	l.ticket = ticket
	return true
}

// Release frees the slot. Callers must hold the lock; the executor
// guarantees this structurally by releasing on every exit path of the
// owning background unit.
func (l *Lock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
	l.ticket = ""
}

// Active reports whether a build/run is in flight.
func (l *Lock) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

// Ticket returns the ticket of the in-flight build/run, or "" when idle.
func (l *Lock) Ticket() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ticket
}
