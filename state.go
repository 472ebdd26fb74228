package tdauth

import "github.com/rusq/tdauth/td"

// ClientState is the coarse state of the client.
type ClientState int

const (
	ClientStateAuthorizing ClientState = iota
	ClientStateOpened
	ClientStateClosed
)

func (s ClientState) String() string {
	switch s {
	case ClientStateAuthorizing:
		return "Authorizing"
	case ClientStateOpened:
		return "Opened"
	case ClientStateClosed:
		return "Closed"
	}
	return "ClientState(unknown)"
}

// StateOf returns the client state for the authorization state.  Ready is
// Opened, Closed is Closed, anything else, including no state yet, is
// Authorizing.
func StateOf(st td.AuthorizationState) ClientState {
	switch st.(type) {
	case *td.AuthorizationStateReady:
		return ClientStateOpened
	case *td.AuthorizationStateClosed:
		return ClientStateClosed
	}
	return ClientStateAuthorizing
}
