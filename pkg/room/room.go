// Package room wires C3 (the char-wise selection algebra), C4 (the
// generic revision server) and a websocket transport into a single live
// collaborative document, the one concrete consumer of the algebra in
// this repository. It does not use the pkg/client state machine.
package room

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shiv248/quillpad/internal/protocol"
	"github.com/shiv248/quillpad/pkg/logger"
	"github.com/shiv248/quillpad/pkg/ot"
	"github.com/shiv248/quillpad/pkg/selop"
	"github.com/shiv248/quillpad/pkg/server"
)

// Room is a single collaboratively-edited document: a generic C4
// Server[*selop.CharSelOp, selop.CharSelTarget] plus the session-level
// bookkeeping (connected users, cursors, language tag, OTP) the teacher's
// Kolabpad carried as flat fields.
type Room struct {
	mu  sync.RWMutex
	srv *server.Server[*selop.CharSelOp, selop.CharSelTarget]

	authors map[server.Id]uint64 // revision id -> authoring user, for history replay

	language *string
	otp      *string
	users    map[uint64]protocol.UserInfo
	cursors  map[uint64][]selop.CharSelection

	count             atomic.Uint64
	killed            atomic.Bool
	lastEditTime      atomic.Int64
	lastCriticalWrite atomic.Int64

	subscribers         map[uint64]chan *protocol.ServerMsg
	notify              chan struct{}
	maxDocumentSize     int
	broadcastBufferSize int
}

// New creates an empty Room.
func New(maxDocumentSize, broadcastBufferSize int) *Room {
	return &Room{
		srv:                 server.NewServer(selop.CharSelTarget{Base: ""}, selop.CharSelOpNop),
		authors:             make(map[server.Id]uint64),
		users:               make(map[uint64]protocol.UserInfo),
		cursors:             make(map[uint64][]selop.CharSelection),
		subscribers:         make(map[uint64]chan *protocol.ServerMsg),
		notify:              make(chan struct{}),
		maxDocumentSize:     maxDocumentSize,
		broadcastBufferSize: broadcastBufferSize,
	}
}

// FromPersistedDocument seeds a Room from a previously stored snapshot. The
// loaded text becomes revision 0's content directly (mirroring the
// teacher's system-authored "initial insert" by simply starting the
// history there, since the generic Server already seeds revision 0 with
// initialContent).
func FromPersistedDocument(text string, language, otp *string, maxDocumentSize, broadcastBufferSize int) *Room {
	r := New(maxDocumentSize, broadcastBufferSize)
	r.srv = server.NewServer(selop.CharSelTarget{Base: text}, selop.CharSelOpNop)
	r.language = language
	r.otp = otp
	return r
}

// NextUserID returns the next available user ID.
func (r *Room) NextUserID() uint64 {
	return r.count.Add(1) - 1
}

// Revision returns the current revision number.
func (r *Room) Revision() server.Id {
	return r.srv.Revision()
}

// Text returns the current document text.
func (r *Room) Text() string {
	return r.srv.CurrentState().Content.Base
}

// Snapshot returns the state persisted to storage.
func (r *Room) Snapshot() (text string, language, otp *string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.srv.CurrentState().Content.Base, r.language, r.otp
}

// GetOTP returns the current OTP, or nil if the document isn't protected.
func (r *Room) GetOTP() *string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.otp
}

// UserCount returns the number of connected users.
func (r *Room) UserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// HasUser reports whether userID is currently connected.
func (r *Room) HasUser(userID uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.users[userID]
	return ok
}

// LastEditTime returns the time of the last edit, or the zero time if the
// room has never been edited.
func (r *Room) LastEditTime() time.Time {
	ts := r.lastEditTime.Load()
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0)
}

// Kill disconnects every subscriber and marks the room destroyed.
func (r *Room) Kill() {
	if r.killed.CompareAndSwap(false, true) {
		r.mu.Lock()
		for _, ch := range r.subscribers {
			close(ch)
		}
		r.subscribers = make(map[uint64]chan *protocol.ServerMsg)
		close(r.notify)
		r.mu.Unlock()
	}
}

// Killed reports whether Kill has been called.
func (r *Room) Killed() bool {
	return r.killed.Load()
}

// Subscribe opens a channel for metadata broadcasts to userID.
func (r *Room) Subscribe(userID uint64) <-chan *protocol.ServerMsg {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := make(chan *protocol.ServerMsg, r.broadcastBufferSize)
	r.subscribers[userID] = ch
	return ch
}

// Unsubscribe closes userID's broadcast channel.
func (r *Room) Unsubscribe(userID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.subscribers[userID]; ok {
		close(ch)
		delete(r.subscribers, userID)
	}
}

// Updates returns the channel that is closed whenever a new revision is
// committed, so a connection's read loop can wake up and drain history.
func (r *Room) Updates() <-chan struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.notify
}

func (r *Room) broadcast(msg *protocol.ServerMsg) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ch := range r.subscribers {
		select {
		case ch <- msg:
		default:
		}
	}
}

// GetInitialState returns everything a newly connecting client needs:
// the full operation history, the language tag, and every other user's
// display info and cursor.
func (r *Room) GetInitialState() ([]protocol.UserOperation, *string, map[uint64]protocol.UserInfo, map[uint64][]selop.CharSelection) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ops := r.historyLocked(0)

	users := make(map[uint64]protocol.UserInfo, len(r.users))
	for id, info := range r.users {
		users[id] = info
	}

	cursors := make(map[uint64][]selop.CharSelection, len(r.cursors))
	for id, sels := range r.cursors {
		cursors[id] = append([]selop.CharSelection(nil), sels...)
	}

	return ops, r.language, users, cursors
}

// GetHistory returns every operation committed strictly after start.
func (r *Room) GetHistory(start server.Id) []protocol.UserOperation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.historyLocked(start)
}

func (r *Room) historyLocked(start server.Id) []protocol.UserOperation {
	states := r.srv.History(start)
	ops := make([]protocol.UserOperation, 0, len(states))
	for _, s := range states {
		ops = append(ops, protocol.UserOperation{ID: r.authors[s.ID], Operation: s.Diff})
	}
	return ops
}

// errDocumentTooLarge is returned by ApplyEdit when committing operation
// would grow the document past the configured maximum size.
type errDocumentTooLarge struct {
	got, max int
}

func (e *errDocumentTooLarge) Error() string {
	return fmt.Sprintf("room: resulting document size %d exceeds maximum of %d bytes", e.got, e.max)
}

// ApplyEdit submits operation, authored by userID against parent, for
// inclusion in the room's history. It enforces the document size limit
// before committing, then rebases every other connected user's cached
// selection through the diff that was actually applied — replacing the
// teacher's hand-rolled transformIndex with selop.TransformCharSelection.
// A CursorOnly update is just operation wrapping a nop base CharOp, so
// it is submitted the exact same way and still advances the revision.
func (r *Room) ApplyEdit(userID uint64, parent server.Id, operation *selop.CharSelOp) (server.Id, *selop.CharSelOp, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastEditTime.Store(time.Now().Unix())

	if base := operation.Base(); base != nil {
		parentContent, err := r.srv.ContentAt(parent)
		if err != nil {
			return 0, nil, err
		}
		if err := ot.ValidateUTF8Boundaries(parentContent.Base, base); err != nil {
			return 0, nil, fmt.Errorf("room: %w", err)
		}
	}

	if r.maxDocumentSize > 0 {
		_, serverOp, err := r.srv.GetPatch(parent)
		if err != nil {
			return 0, nil, err
		}
		serverDiff, _, err := operation.Transform(serverOp)
		if err != nil {
			return 0, nil, err
		}
		if n := serverDiff.TargetLen(); n > r.maxDocumentSize {
			return 0, nil, &errDocumentTooLarge{got: n, max: r.maxDocumentSize}
		}
	}

	id, clientOp, err := r.srv.Modify(parent, operation)
	if err != nil {
		return 0, nil, err
	}
	r.authors[id] = userID

	states := r.srv.History(id - 1)
	if len(states) == 0 {
		return 0, nil, fmt.Errorf("room: missing committed state for revision %d", id)
	}
	committed := states[0].Diff

	for other, sels := range r.cursors {
		if other == userID {
			continue
		}
		r.cursors[other] = rebaseSelections(sels, committed.Base())
	}
	// operation.Selections() are the submitter's own post-edit selections,
	// computed against the result of their own edit alone; clientOp.Base()
	// is what they still need to fold in to reach the converged content,
	// so rebasing through it lands their cursor in the same coordinate
	// space everyone else's does.
	r.cursors[userID] = rebaseSelections(operation.Selections(), clientOp.Base())

	logger.Debug("ApplyEdit: user=%d revision=%d docLen=%d", userID, id, len(r.srv.CurrentState().Content.Base))

	if !r.killed.Load() {
		close(r.notify)
		r.notify = make(chan struct{})
	}

	return id, clientOp, nil
}

func rebaseSelections(sels []selop.CharSelection, op *ot.CharOp) []selop.CharSelection {
	if op == nil {
		return sels
	}
	out := make([]selop.CharSelection, 0, len(sels))
	for _, s := range sels {
		if rebased, ok := selop.TransformCharSelection(s, op); ok {
			out = append(out, rebased)
		}
	}
	return out
}

// SetLanguage sets the document's syntax-highlighting tag and broadcasts
// it to every connected client.
func (r *Room) SetLanguage(lang string, userID uint64, userName string) {
	r.mu.Lock()
	r.language = &lang
	r.mu.Unlock()
	r.lastEditTime.Store(time.Now().Unix())
	r.broadcast(protocol.NewLanguageMsg(lang, userID, userName))
}

// SetOTP updates the document's protection token.
func (r *Room) SetOTP(otp *string, userID uint64, userName string) {
	r.mu.Lock()
	r.otp = otp
	r.mu.Unlock()
	r.lastCriticalWrite.Store(time.Now().Unix())
	r.broadcast(protocol.NewOTPMsg(otp, userID, userName))
}

// SetUserInfo records userID's display info and broadcasts it.
func (r *Room) SetUserInfo(userID uint64, info protocol.UserInfo) {
	r.mu.Lock()
	r.users[userID] = info
	r.mu.Unlock()
	r.broadcast(protocol.NewUserInfoMsg(userID, &info))
}

// RemoveUser drops userID's connection-scoped state and notifies peers.
func (r *Room) RemoveUser(userID uint64) {
	r.mu.Lock()
	delete(r.users, userID)
	delete(r.cursors, userID)
	r.mu.Unlock()

	r.Unsubscribe(userID)
	r.broadcast(protocol.NewUserInfoMsg(userID, nil))
}
