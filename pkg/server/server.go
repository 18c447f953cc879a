package server

import (
	"sync"

	"github.com/shiv248/quillpad/pkg/ot"
)

// Server holds the linear history of an editing session and reconciles
// concurrently submitted operations against it. It is generic over any
// operation type satisfying ot.Operation — CharOp, LineOp, CharSelOp, and
// LineSelOp all instantiate it.
//
// Server is safe for concurrent use: every exported method takes the
// internal mutex.
type Server[O ot.Operation[O, T], T any] struct {
	mu      sync.RWMutex
	history []State[O, T]
	nop     func(T) O
}

// NewServer starts a session whose revision 0 is initialContent. nop must
// construct the identity operation over any value of T (ot.CharOpNop,
// ot.LineOpNop, selop.CharSelOpNop, or selop.LineSelOpNop, partially
// applied).
func NewServer[O ot.Operation[O, T], T any](initialContent T, nop func(T) O) *Server[O, T] {
	return &Server[O, T]{
		history: []State[O, T]{{
			Parent:  0,
			ID:      0,
			Diff:    nop(initialContent),
			Content: initialContent,
		}},
		nop: nop,
	}
}

// GetPatch composes every diff recorded strictly after sinceID into a
// single operation that, applied to the content at sinceID, reproduces the
// server's latest content. It returns the id of that latest revision
// alongside the composed operation.
func (s *Server[O, T]) GetPatch(sinceID Id) (Id, O, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getPatchLocked(sinceID)
}

func (s *Server[O, T]) getPatchLocked(sinceID Id) (Id, O, error) {
	var zero O
	if sinceID < 0 || int(sinceID) >= len(s.history) {
		return 0, zero, ErrIndexOutOfRange
	}

	parentID := Id(len(s.history) - 1)
	op := s.nop(s.history[sinceID].Content)

	for _, state := range s.history[sinceID+1:] {
		composed, err := op.Compose(state.Diff)
		if err != nil {
			return 0, zero, err
		}
		op = composed
	}

	return parentID, op, nil
}

// ContentAt returns the content recorded at revision id, e.g. so a
// caller can validate an incoming operation's boundaries against the
// exact content it was authored against before transforming it.
func (s *Server[O, T]) ContentAt(id Id) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var zero T
	if id < 0 || int(id) >= len(s.history) {
		return zero, ErrIndexOutOfRange
	}
	return s.history[id].Content, nil
}

// CurrentState returns the server's latest history entry.
func (s *Server[O, T]) CurrentState() State[O, T] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history[len(s.history)-1]
}

// Revision reports the id of the latest history entry.
func (s *Server[O, T]) Revision() Id {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history[len(s.history)-1].ID
}

// History returns every entry recorded strictly after sinceID.
func (s *Server[O, T]) History(sinceID Id) []State[O, T] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if int(sinceID)+1 >= len(s.history) {
		return nil
	}
	out := make([]State[O, T], len(s.history)-int(sinceID)-1)
	copy(out, s.history[sinceID+1:])
	return out
}

// Modify submits operation, authored against revision parent, for
// inclusion in the history. It transforms operation against every diff
// the caller hasn't seen yet, appends the server-side half of that
// transform as a new history entry, and returns the new revision id
// alongside the client-side half — the operation the submitter must apply
// locally to reach the same content the server now holds.
func (s *Server[O, T]) Modify(parent Id, operation O) (Id, O, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero O
	parentID, serverOp, err := s.getPatchLocked(parent)
	if err != nil {
		return 0, zero, err
	}

	serverDiff, clientDiff, err := operation.Transform(serverOp)
	if err != nil {
		return 0, zero, err
	}

	contentSource := s.history[parent].Content
	composed, err := serverOp.Compose(serverDiff)
	if err != nil {
		return 0, zero, err
	}
	content, err := composed.Apply(contentSource)
	if err != nil {
		return 0, zero, err
	}

	id := Id(len(s.history))
	s.history = append(s.history, State[O, T]{
		Parent:  parentID,
		ID:      id,
		Diff:    serverDiff,
		Content: content,
	})

	return id, clientDiff, nil
}
