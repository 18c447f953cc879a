// Package client implements C5 (the Buffering/WaitingForResponse/Error
// client state machine) and C6 (the Connection transport contract) that
// reconciles a local editing buffer against a pkg/server.Server.
package client

import (
	"context"

	"github.com/shiv248/quillpad/pkg/server"
)

// Connection is the transport contract a Client is driven through. Every
// call is synchronous and takes a context — the idiomatic Go shape for
// what the original design expresses as boxed futures.
type Connection[O any, T any] interface {
	// GetLatestState fetches the server's current revision and content,
	// used once to seed a new Client.
	GetLatestState(ctx context.Context) (server.State[O, T], error)
	// GetPatchSince fetches the composed operation the caller needs to
	// apply to catch up from sinceID to the server's latest revision.
	GetPatchSince(ctx context.Context, sinceID server.Id) (server.Id, O, error)
	// SendOperation submits operation, authored against parent, and
	// returns the new revision id plus the client-side half of the
	// server's transform.
	SendOperation(ctx context.Context, parent server.Id, operation O) (server.Id, O, error)
}
