package client

import (
	"errors"
	"fmt"
)

// ErrNotBuffering is returned by SendToServer when the client is already
// waiting for a response. In the terminal Error state SendToServer
// returns ErrNotConnected instead.
var ErrNotBuffering = errors.New("client: not in buffering state")

// ErrNoBuffer is returned by SendToServer when the client is Buffering but
// has no locally pushed operation to send.
var ErrNoBuffer = errors.New("client: no operation buffered")

// ErrSyncing is returned by SendGetPatch while a prior operation is still
// awaiting the server's response.
var ErrSyncing = errors.New("client: already syncing with server")

// ErrNotConnected wraps the terminal Error state's message.
type ErrNotConnected struct {
	Reason string
}

func (e *ErrNotConnected) Error() string {
	return fmt.Sprintf("client: not connected: %s", e.Reason)
}

// ConnectionError wraps a transport-level error surfaced through a
// Connection call.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("client: connection error: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
