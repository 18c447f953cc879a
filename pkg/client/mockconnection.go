package client

import (
	"context"

	"github.com/shiv248/quillpad/pkg/ot"
	"github.com/shiv248/quillpad/pkg/server"
)

// MockConnection is an in-process Connection backed directly by a
// pkg/server.Server, with no network or serialization in between. It is
// the reference transport every S1/S2-style end-to-end scenario in this
// repository's tests is driven through, ported from the Rust source's
// mock_connection.rs. Unlike the random-operation generators spec.md
// excludes as testing aids, this is the transport contract's own
// in-process implementation, so it lives alongside the non-test code.
type MockConnection[O ot.Operation[O, T], T any] struct {
	srv *server.Server[O, T]
}

// NewMockConnection wraps srv as a Connection.
func NewMockConnection[O ot.Operation[O, T], T any](srv *server.Server[O, T]) *MockConnection[O, T] {
	return &MockConnection[O, T]{srv: srv}
}

func (m *MockConnection[O, T]) GetLatestState(ctx context.Context) (server.State[O, T], error) {
	return m.srv.CurrentState(), nil
}

func (m *MockConnection[O, T]) GetPatchSince(ctx context.Context, sinceID server.Id) (server.Id, O, error) {
	return m.srv.GetPatch(sinceID)
}

func (m *MockConnection[O, T]) SendOperation(ctx context.Context, parent server.Id, operation O) (server.Id, O, error) {
	return m.srv.Modify(parent, operation)
}
