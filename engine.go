package tdauth

import "time"

// Engine is the native protocol engine, reached through the JSON
// request/update stream.  Receive is only ever called from the worker's
// goroutine.
type Engine interface {
	// CreateClient allocates a new client handle.  The client is started by
	// the first request sent to it.
	CreateClient() int32
	// Send sends the JSON request to the client.
	Send(clientID int32, request []byte)
	// Receive waits up to timeout for the next update or reply.  ok is false
	// if there was none.
	Receive(timeout time.Duration) (clientID int32, update []byte, ok bool)
	// SetLogVerbosity sets the engine's log verbosity level.
	SetLogVerbosity(level int)
}
