package server

import (
	"sync"
	"time"
)

// operatorLockout blocks a (client, username) pair after repeated failed
// basic-auth attempts. A nil lockout never blocks.
type operatorLockout struct {
	mu        sync.Mutex
	attempts  map[string]*lockoutState
	threshold int
	window    time.Duration
	penalty   time.Duration
	lastSweep time.Time
}

type lockoutState struct {
	failures    int
	windowStart time.Time
	lockedUntil time.Time
	touched     time.Time
}

func newOperatorLockout(threshold int, window, penalty time.Duration) *operatorLockout {
	if threshold <= 0 || window <= 0 || penalty <= 0 {
		return nil
	}
	return &operatorLockout{
		attempts:  make(map[string]*lockoutState),
		threshold: threshold,
		window:    window,
		penalty:   penalty,
	}
}

// Locked reports whether key is currently serving a penalty.
func (l *operatorLockout) Locked(key string, now time.Time) bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep(now)

	state, ok := l.attempts[key]
	if !ok {
		return false
	}
	state.touched = now
	return now.Before(state.lockedUntil)
}

// Fail counts one failed attempt and starts the penalty once the threshold is
// reached inside the window.
func (l *operatorLockout) Fail(key string, now time.Time) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep(now)

	state, ok := l.attempts[key]
	if !ok {
		state = &lockoutState{}
		l.attempts[key] = state
	}
	state.touched = now
	if state.windowStart.IsZero() || now.Sub(state.windowStart) > l.window {
		state.failures = 0
		state.windowStart = now
	}
	state.failures++
	if state.failures >= l.threshold {
		state.lockedUntil = now.Add(l.penalty)
		state.failures = 0
		state.windowStart = time.Time{}
	}
}

// Clear forgets key after a successful login.
func (l *operatorLockout) Clear(key string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	delete(l.attempts, key)
	l.mu.Unlock()
}

// sweep drops idle entries at most once per window. Callers hold mu.
func (l *operatorLockout) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	l.lastSweep = now
	idle := 2 * max(l.window, l.penalty)
	for key, state := range l.attempts {
		if now.Sub(state.touched) > idle {
			delete(l.attempts, key)
		}
	}
}
