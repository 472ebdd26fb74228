package tdauth

import (
	"fmt"

	"github.com/rusq/tdauth/authflow"
)

// Client describes the session that the application wants to authorize.
type Client struct {
	// Name identifies the client to the application.
	Name string
	// Handler overrides the worker handler for this client.  Set it, if the
	// worker handler can't tell the clients apart, i.e. authflow.SignalAuth.
	Handler authflow.Handler
	// Parameters override the worker parameters for this client.  Each
	// client should have its own database directory.
	Parameters *Parameters
}

// BoundClient is the client registered with the worker.  It's a lightweight
// key and can be copied freely; it's invalid after the worker stops or the
// session is closed.
type BoundClient struct {
	name string
	id   int32
}

// ID returns the engine client handle.
func (b BoundClient) ID() int32 {
	return b.id
}

func (b BoundClient) Name() string {
	return b.name
}

func (b BoundClient) String() string {
	if b.name == "" {
		return fmt.Sprintf("client %d", b.id)
	}
	return fmt.Sprintf("client %d (%s)", b.id, b.name)
}
