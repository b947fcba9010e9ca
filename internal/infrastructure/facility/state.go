package facility

import (
	"sync"

	"github.com/rosterlink/backend/internal/domain/integration"
)

// stateTracker holds the per-facility AuthState of one adapter, for
// diagnostics only. It lives in process memory and is keyed by facility
// alone: every caller of the adapter shares one entry per facility, and the
// last operation to finish sets it. It says nothing about whether a given
// session token is still valid; the error returned by each call does.
type stateTracker struct {
	mu     sync.RWMutex
	states map[string]integration.AuthState
}

func newStateTracker() *stateTracker {
	return &stateTracker{states: make(map[string]integration.AuthState)}
}

// get returns the facility state, UNAUTHENTICATED when never seen
func (t *stateTracker) get(facilityID string) integration.AuthState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s, ok := t.states[facilityID]; ok {
		return s
	}
	return integration.AuthStateUnauthenticated
}

func (t *stateTracker) set(facilityID string, s integration.AuthState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states[facilityID] = s
}

// begin moves the facility into a transient state and returns the function
// that settles it once the operation finishes. An auth failure always lands
// in UNAUTHENTICATED; otherwise the state returns to settled.
func (t *stateTracker) begin(facilityID string, transient, settled integration.AuthState) func(err error) {
	t.set(facilityID, transient)
	return func(err error) {
		switch integration.KindOf(err) {
		case integration.ErrorKindNeedsReauth, integration.ErrorKindInvalidCredentials:
			t.set(facilityID, integration.AuthStateUnauthenticated)
		default:
			if err != nil && transient == integration.AuthStateAuthenticating {
				t.set(facilityID, integration.AuthStateUnauthenticated)
				return
			}
			t.set(facilityID, settled)
		}
	}
}
