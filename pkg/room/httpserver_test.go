package room

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/shiv248/quillpad/internal/protocol"
	"github.com/shiv248/quillpad/pkg/ot"
	"github.com/shiv248/quillpad/pkg/selop"
	"github.com/stretchr/testify/require"
)

// testServer builds an in-memory (no sqlite) room server with
// test-friendly timeouts, mirroring the teacher's testServerNoDb helper.
func testServer(t *testing.T) *Server {
	t.Helper()
	const maxDocumentSize = 256 * 1024
	const broadcastBufferSize = 256
	return NewServer(nil, maxDocumentSize, broadcastBufferSize, 5*time.Minute, 5*time.Second)
}

func connectWebSocket(t *testing.T, ts *httptest.Server, docID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/socket/" + docID

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readServerMsg(t *testing.T, conn *websocket.Conn) *protocol.ServerMsg {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var msg protocol.ServerMsg
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	return &msg
}

func sendClientMsg(t *testing.T, conn *websocket.Conn, msg *protocol.ClientMsg) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, conn, msg))
}

// TestSingleUserConnection mirrors the teacher's test of the same name:
// a freshly connecting client's first message is its own Identity.
func TestSingleUserConnection(t *testing.T) {
	srv := testServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	conn := connectWebSocket(t, ts, "test123")

	msg := readServerMsg(t, conn)
	require.NotNil(t, msg.Identity)
	require.Equal(t, uint64(0), *msg.Identity)
}

// TestMultipleUsersConnection checks user ids are assigned in join order.
func TestMultipleUsersConnection(t *testing.T) {
	srv := testServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	conn1 := connectWebSocket(t, ts, "test123")
	msg1 := readServerMsg(t, conn1)
	require.Equal(t, uint64(0), *msg1.Identity)

	conn2 := connectWebSocket(t, ts, "test123")
	msg2 := readServerMsg(t, conn2)
	require.Equal(t, uint64(1), *msg2.Identity)
}

// TestEditBroadcast checks an Edit from one client is visible to a peer
// as a History message carrying the CharSelOp that was committed.
func TestEditBroadcast(t *testing.T) {
	srv := testServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	conn1 := connectWebSocket(t, ts, "test123")
	readServerMsg(t, conn1) // Identity

	conn2 := connectWebSocket(t, ts, "test123")
	readServerMsg(t, conn2) // Identity

	op := selop.NewCharSelOp(
		[]selop.CharSelection{selop.NewCharCursor(len("hello"))},
		ot.NewCharOp().Insert("hello"),
	)

	sendClientMsg(t, conn1, &protocol.ClientMsg{
		Edit: &protocol.EditMsg{Revision: 0, Operation: op},
	})

	msg1 := readServerMsg(t, conn1)
	msg2 := readServerMsg(t, conn2)

	require.NotNil(t, msg1.History)
	require.NotNil(t, msg2.History)
	require.Len(t, msg1.History.Operations, 1)
	require.Len(t, msg2.History.Operations, 1)
}

// TestCursorOnlyUpdateAdvancesRevision checks that a CursorOnly message
// (no text edit) is still committed as a revision-advancing CharSelOp
// wrapping a nop base op, per the CursorOnly wiring in connection.go.
func TestCursorOnlyUpdateAdvancesRevision(t *testing.T) {
	srv := testServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	conn1 := connectWebSocket(t, ts, "test123")
	readServerMsg(t, conn1) // Identity

	conn2 := connectWebSocket(t, ts, "test123")
	readServerMsg(t, conn2) // Identity

	sendClientMsg(t, conn1, &protocol.ClientMsg{
		CursorOnly: []selop.CharSelection{selop.NewCharCursor(0)},
	})

	msg2 := readServerMsg(t, conn2)
	require.NotNil(t, msg2.History)
	require.Len(t, msg2.History.Operations, 1)
}

// TestLanguageBroadcast checks a SetLanguage message reaches other
// connected users.
func TestLanguageBroadcast(t *testing.T) {
	srv := testServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	conn1 := connectWebSocket(t, ts, "test123")
	readServerMsg(t, conn1) // Identity

	conn2 := connectWebSocket(t, ts, "test123")
	readServerMsg(t, conn2) // Identity

	lang := "go"
	sendClientMsg(t, conn1, &protocol.ClientMsg{SetLanguage: &lang})

	msg2 := readServerMsg(t, conn2)
	require.NotNil(t, msg2.Language)
	require.Equal(t, "go", msg2.Language.Language)
}

// TestHandleTextReflectsCommittedEdits checks the plaintext snapshot
// endpoint serves whatever the room's in-memory content currently is.
func TestHandleTextReflectsCommittedEdits(t *testing.T) {
	srv := testServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	conn := connectWebSocket(t, ts, "snaptest")
	readServerMsg(t, conn) // Identity

	op := selop.NewCharSelOp(nil, ot.NewCharOp().Insert("snapshot me"))
	sendClientMsg(t, conn, &protocol.ClientMsg{
		Edit: &protocol.EditMsg{Revision: 0, Operation: op},
	})
	readServerMsg(t, conn) // History echo

	doc := srv.getOrCreateRoom("snaptest")
	require.Equal(t, "snapshot me", doc.room.Text())
}

// TestDocumentSizeLimitRejectsOversizedEdit checks Room.ApplyEdit's size
// guard surfaces as an error rather than silently committing.
func TestDocumentSizeLimitRejectsOversizedEdit(t *testing.T) {
	r := New(4, 16)

	_, _, err := r.ApplyEdit(0, 0, selop.NewCharSelOp(nil, ot.NewCharOp().Insert("way too long")))
	require.Error(t, err)
	require.Equal(t, "", r.Text())
}
