package tdauth

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rusq/tdauth/td"
)

func TestStateOf(t *testing.T) {
	tests := []struct {
		st   td.AuthorizationState
		want ClientState
	}{
		{nil, ClientStateAuthorizing},
		{&td.AuthorizationStateWaitTdlibParameters{}, ClientStateAuthorizing},
		{&td.AuthorizationStateWaitEncryptionKey{}, ClientStateAuthorizing},
		{&td.AuthorizationStateWaitPhoneNumber{}, ClientStateAuthorizing},
		{&td.AuthorizationStateWaitCode{}, ClientStateAuthorizing},
		{&td.AuthorizationStateWaitOtherDeviceConfirmation{}, ClientStateAuthorizing},
		{&td.AuthorizationStateWaitRegistration{}, ClientStateAuthorizing},
		{&td.AuthorizationStateWaitPassword{}, ClientStateAuthorizing},
		{&td.AuthorizationStateReady{}, ClientStateOpened},
		{&td.AuthorizationStateLoggingOut{}, ClientStateAuthorizing},
		{&td.AuthorizationStateClosing{}, ClientStateAuthorizing},
		{&td.AuthorizationStateClosed{}, ClientStateClosed},
	}
	for _, tt := range tests {
		name := "nil"
		if tt.st != nil {
			name = tt.st.AuthorizationStateType()
		}
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, StateOf(tt.st))
		})
	}
}

func TestClientState_String(t *testing.T) {
	assert.Equal(t, "Authorizing", ClientStateAuthorizing.String())
	assert.Equal(t, "Opened", ClientStateOpened.String())
	assert.Equal(t, "Closed", ClientStateClosed.String())
	assert.Equal(t, "ClientState(unknown)", ClientState(42).String())
}
