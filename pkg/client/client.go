package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/shiv248/quillpad/pkg/ot"
	"github.com/shiv248/quillpad/pkg/server"
)

type clientState int

const (
	stateBuffering clientState = iota
	stateWaitingForResponse
	stateError
)

type baseState[T any] struct {
	id      server.Id
	content T
}

// Client is the Buffering/WaitingForResponse/Error state machine that
// keeps a local editing buffer reconciled against a Connection. It is
// safe for concurrent use: a caller can keep typing (PushOperation) while
// a prior operation is in flight to the server.
type Client[O ot.Operation[O, T], T any] struct {
	mu    sync.Mutex
	state clientState

	base         baseState[T]
	currentDiff  *O  // buffered, not-yet-sent local edits
	sentDiff     O   // the operation currently in flight, while WaitingForResponse
	errorMessage string

	conn Connection[O, T]
	nop  func(T) O
}

// WithConnection seeds a new Client by fetching conn's latest state.
func WithConnection[O ot.Operation[O, T], T any](ctx context.Context, conn Connection[O, T], nop func(T) O) (*Client[O, T], error) {
	state, err := conn.GetLatestState(ctx)
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}
	return &Client[O, T]{
		state: stateBuffering,
		base:  baseState[T]{id: state.ID, content: state.Content},
		conn:  conn,
		nop:   nop,
	}, nil
}

// CurrentContent returns the last content the server confirmed, ignoring
// any locally buffered, unsent edits.
func (c *Client[O, T]) CurrentContent() (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	if c.state == stateError {
		return zero, &ErrNotConnected{Reason: c.errorMessage}
	}
	return c.base.content, nil
}

// UnsyncedContent returns the content including any locally buffered,
// unsent edits.
func (c *Client[O, T]) UnsyncedContent() (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	if c.state == stateError {
		return zero, &ErrNotConnected{Reason: c.errorMessage}
	}
	if c.currentDiff == nil {
		return c.base.content, nil
	}
	return (*c.currentDiff).Apply(c.base.content)
}

// PushOperation buffers a locally authored edit, composing it with any
// edit already buffered. In the terminal Error state this is a no-op.
func (c *Client[O, T]) PushOperation(operation O) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateError {
		return nil
	}
	if c.currentDiff == nil {
		c.currentDiff = &operation
		return nil
	}
	composed, err := (*c.currentDiff).Compose(operation)
	if err != nil {
		return err
	}
	c.currentDiff = &composed
	return nil
}

// SendToServer sends the buffered operation, if any, to the server and
// applies its response. It transitions Buffering -> WaitingForResponse for
// the duration of the round trip — PushOperation remains usable by
// another goroutine while this call is outstanding — then back to
// Buffering once the server replies.
func (c *Client[O, T]) SendToServer(ctx context.Context) error {
	c.mu.Lock()
	if c.state == stateError {
		c.mu.Unlock()
		return &ErrNotConnected{Reason: c.errorMessage}
	}
	if c.state != stateBuffering {
		c.mu.Unlock()
		return ErrNotBuffering
	}
	if c.currentDiff == nil {
		c.mu.Unlock()
		return ErrNoBuffer
	}

	sent := *c.currentDiff
	parent := c.base.id
	c.sentDiff = sent
	c.currentDiff = nil
	c.state = stateWaitingForResponse
	c.mu.Unlock()

	id, op, err := c.conn.SendOperation(ctx, parent, sent)
	if err != nil {
		c.mu.Lock()
		c.state = stateError
		c.errorMessage = err.Error()
		c.mu.Unlock()
		return &ConnectionError{Err: err}
	}

	return c.applyResponse(id, op)
}

// applyResponse is the Rust source's apply_response: it consumes the
// WaitingForResponse state, composes the sent diff with the server's
// reply to compute the new base content, and transforms any diff buffered
// in the meantime through the server's reply so it still applies cleanly.
func (c *Client[O, T]) applyResponse(id server.Id, op O) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != stateWaitingForResponse {
		return fmt.Errorf("client: applyResponse called outside WaitingForResponse")
	}

	composed, err := c.sentDiff.Compose(op)
	if err != nil {
		c.state = stateError
		c.errorMessage = err.Error()
		return err
	}
	content, err := composed.Apply(c.base.content)
	if err != nil {
		c.state = stateError
		c.errorMessage = err.Error()
		return err
	}

	if c.currentDiff != nil {
		transformed, _, err := (*c.currentDiff).Transform(op)
		if err != nil {
			c.state = stateError
			c.errorMessage = err.Error()
			return err
		}
		c.currentDiff = &transformed
	}

	c.base = baseState[T]{id: id, content: content}
	c.state = stateBuffering
	return nil
}

// ApplyPatch folds a patch broadcast by the server (an edit the client
// didn't author) into the local state. While WaitingForResponse, this is
// the same bookkeeping as applyResponse since the in-flight operation's
// base content still needs to move forward; while Buffering, the buffered
// diff (if any) is transformed through the patch directly.
func (c *Client[O, T]) ApplyPatch(latestID server.Id, diff O) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case stateError:
		return &ErrNotConnected{Reason: c.errorMessage}
	case stateWaitingForResponse:
		content, err := mustCompose(c.sentDiff, diff, c.base.content)
		if err != nil {
			c.state = stateError
			c.errorMessage = err.Error()
			return err
		}
		if c.currentDiff != nil {
			transformed, _, err := (*c.currentDiff).Transform(diff)
			if err != nil {
				c.state = stateError
				c.errorMessage = err.Error()
				return err
			}
			c.currentDiff = &transformed
		}
		c.base = baseState[T]{id: latestID, content: content}
		return nil
	default: // stateBuffering
		var content T
		var err error
		if c.currentDiff != nil {
			current := *c.currentDiff
			currentPrime, _, terr := current.Transform(diff)
			if terr != nil {
				c.state = stateError
				c.errorMessage = terr.Error()
				return terr
			}
			composed, cerr := diff.Compose(currentPrime)
			if cerr != nil {
				c.state = stateError
				c.errorMessage = cerr.Error()
				return cerr
			}
			content, err = composed.Apply(c.base.content)
		} else {
			content, err = diff.Apply(c.base.content)
		}
		if err != nil {
			c.state = stateError
			c.errorMessage = err.Error()
			return err
		}
		c.base = baseState[T]{id: latestID, content: content}
		return nil
	}
}

func mustCompose[O ot.Operation[O, T], T any](a, b O, target T) (T, error) {
	composed, err := a.Compose(b)
	if err != nil {
		var zero T
		return zero, err
	}
	return composed.Apply(target)
}

// SendGetPatch asks the connection for a patch bringing the client from
// its current base revision up to the server's latest, then folds it in
// via ApplyPatch. Returns ErrSyncing while WaitingForResponse (the
// original design treats get-patch-while-syncing as a protocol misuse),
// and ErrNotConnected in the terminal Error state.
func (c *Client[O, T]) SendGetPatch(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case stateError:
		reason := c.errorMessage
		c.mu.Unlock()
		return &ErrNotConnected{Reason: reason}
	case stateWaitingForResponse:
		c.mu.Unlock()
		return ErrSyncing
	}
	sinceID := c.base.id
	c.mu.Unlock()

	latestID, diff, err := c.conn.GetPatchSince(ctx, sinceID)
	if err != nil {
		return &ConnectionError{Err: err}
	}
	return c.ApplyPatch(latestID, diff)
}

// BaseRevision reports the revision id the client's confirmed content is
// currently at.
func (c *Client[O, T]) BaseRevision() server.Id {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.base.id
}
