package client

import (
	"context"
	"testing"

	"github.com/shiv248/quillpad/pkg/ot"
	"github.com/shiv248/quillpad/pkg/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestClientSingleClientRoundTrip is spec scenario S1.
func TestClientSingleClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	srv := server.NewServer("", ot.CharOpNop)
	conn := NewMockConnection(srv)

	c, err := WithConnection[*ot.CharOp, string](ctx, conn, ot.CharOpNop)
	require.NoError(t, err)

	require.NoError(t, c.PushOperation(ot.NewCharOp().Insert("こんにちは 世界")))
	require.NoError(t, c.SendToServer(ctx))

	content, err := c.CurrentContent()
	require.NoError(t, err)
	assert.Equal(t, "こんにちは 世界", content)
	assert.Equal(t, server.Id(1), srv.Revision())
}

// TestClientConcurrentConvergence is spec scenario S2, using its exact
// literals: two independently reconciling clients must both converge on
// "!さようなら 世界".
func TestClientConcurrentConvergence(t *testing.T) {
	ctx := context.Background()
	srv := server.NewServer("", ot.CharOpNop)

	connA := NewMockConnection(srv)
	connB := NewMockConnection(srv)

	a, err := WithConnection[*ot.CharOp, string](ctx, connA, ot.CharOpNop)
	require.NoError(t, err)
	b, err := WithConnection[*ot.CharOp, string](ctx, connB, ot.CharOpNop)
	require.NoError(t, err)

	// A inserts the opening line and commits it.
	require.NoError(t, a.PushOperation(ot.NewCharOp().Insert("こんにちは 世界")))
	require.NoError(t, a.SendToServer(ctx))
	aContent, err := a.CurrentContent()
	require.NoError(t, err)
	assert.Equal(t, "こんにちは 世界", aContent)

	// B, still at revision 0, concurrently inserts "!" at the start.
	require.NoError(t, b.PushOperation(ot.NewCharOp().Insert("!")))
	require.NoError(t, b.SendToServer(ctx))
	bContent, err := b.CurrentContent()
	require.NoError(t, err)
	assert.Equal(t, "!こんにちは 世界", bContent)

	// A, now at its own post-commit revision, rewrites the greeting.
	greetingBytes := len("こんにちは")
	tailBytes := len(" 世界")
	require.NoError(t, a.PushOperation(
		ot.NewCharOp().Delete(greetingBytes).Insert("さようなら").Retain(tailBytes),
	))
	require.NoError(t, a.SendToServer(ctx))
	aContent, err = a.CurrentContent()
	require.NoError(t, err)
	assert.Equal(t, "!さようなら 世界", aContent)

	// B pulls the patch it missed and converges.
	require.NoError(t, b.SendGetPatch(ctx))
	bContent, err = b.CurrentContent()
	require.NoError(t, err)
	assert.Equal(t, "!さようなら 世界", bContent)

	assert.Equal(t, aContent, bContent)
}

// TestClientStateMachineTransitions exercises the Buffering /
// WaitingForResponse control-flow errors from spec section 7.
func TestClientStateMachineTransitions(t *testing.T) {
	ctx := context.Background()
	srv := server.NewServer("hi", ot.CharOpNop)
	conn := NewMockConnection(srv)

	c, err := WithConnection[*ot.CharOp, string](ctx, conn, ot.CharOpNop)
	require.NoError(t, err)

	// Sending with nothing buffered is an error.
	err = c.SendToServer(ctx)
	assert.ErrorIs(t, err, ErrNoBuffer)

	require.NoError(t, c.PushOperation(ot.NewCharOp().Retain(2).Insert("!")))
	require.NoError(t, c.SendToServer(ctx))

	content, err := c.CurrentContent()
	require.NoError(t, err)
	assert.Equal(t, "hi!", content)
}

// TestClientUnsyncedContentIncludesBuffer checks that UnsyncedContent
// includes a pushed but unsent edit while CurrentContent does not.
// Pushing while a send is in flight is not exercised in these tests:
// MockConnection resolves synchronously.
func TestClientUnsyncedContentIncludesBuffer(t *testing.T) {
	ctx := context.Background()
	srv := server.NewServer("ab", ot.CharOpNop)
	conn := NewMockConnection(srv)

	c, err := WithConnection[*ot.CharOp, string](ctx, conn, ot.CharOpNop)
	require.NoError(t, err)

	require.NoError(t, c.PushOperation(ot.NewCharOp().Retain(2).Insert("c")))

	unsynced, err := c.UnsyncedContent()
	require.NoError(t, err)
	assert.Equal(t, "abc", unsynced)

	current, err := c.CurrentContent()
	require.NoError(t, err)
	assert.Equal(t, "ab", current)
}
