package facility

import (
	"errors"
	"testing"

	"github.com/rosterlink/backend/internal/domain/integration"
	"github.com/stretchr/testify/assert"
)

func TestStateTracker_Begin(t *testing.T) {
	reauth := integration.NewError(integration.ErrorKindNeedsReauth, "activities", 401, nil)
	unreachable := integration.NewError(integration.ErrorKindUnreachable, "activities", 0, errors.New("timeout"))

	tests := []struct {
		name      string
		transient integration.AuthState
		settled   integration.AuthState
		err       error
		want      integration.AuthState
	}{
		{"login succeeds", integration.AuthStateAuthenticating, integration.AuthStateAuthenticated, nil, integration.AuthStateAuthenticated},
		{"login unreachable", integration.AuthStateAuthenticating, integration.AuthStateAuthenticated, unreachable, integration.AuthStateUnauthenticated},
		{"sync succeeds", integration.AuthStateSyncingActivities, integration.AuthStateAuthenticated, nil, integration.AuthStateAuthenticated},
		{"sync unreachable keeps the session", integration.AuthStateSyncingActivities, integration.AuthStateAuthenticated, unreachable, integration.AuthStateAuthenticated},
		{"sync session expired", integration.AuthStateSyncingActivities, integration.AuthStateAuthenticated, reauth, integration.AuthStateUnauthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			states := newStateTracker()
			done := states.begin("rec", tt.transient, tt.settled)
			assert.Equal(t, tt.transient, states.get("rec"))

			done(tt.err)
			assert.Equal(t, tt.want, states.get("rec"))
			assert.Equal(t, integration.AuthStateUnauthenticated, states.get("other"))
		})
	}
}

func TestStateTracker_SharedAcrossSessions(t *testing.T) {
	states := newStateTracker()
	reauth := integration.NewError(integration.ErrorKindNeedsReauth, "activities", 401, nil)

	// Two sessions on one facility overlap; the last to finish sets the state.
	first := states.begin("rec", integration.AuthStateSyncingActivities, integration.AuthStateAuthenticated)
	second := states.begin("rec", integration.AuthStateSyncingActivities, integration.AuthStateAuthenticated)
	second(reauth)
	assert.Equal(t, integration.AuthStateUnauthenticated, states.get("rec"))

	first(nil)
	assert.Equal(t, integration.AuthStateAuthenticated, states.get("rec"))
}
