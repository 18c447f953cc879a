package room

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/shiv248/quillpad/internal/protocol"
	"github.com/shiv248/quillpad/pkg/logger"
	"github.com/shiv248/quillpad/pkg/ot"
	"github.com/shiv248/quillpad/pkg/selop"
	"github.com/shiv248/quillpad/pkg/server"
)

// Connection drives a single client's websocket for the lifetime of one
// room membership: sending the initial snapshot, streaming history and
// metadata broadcasts as they occur, and applying whatever edits the
// client submits.
type Connection struct {
	userID uint64
	room   *Room
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	sendMu sync.Mutex

	readTimeout  time.Duration
	writeTimeout time.Duration
}

// NewConnection creates a connection handler for a newly accepted socket.
func NewConnection(r *Room, conn *websocket.Conn, readTimeout, writeTimeout time.Duration) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		userID:       r.NextUserID(),
		room:         r,
		conn:         conn,
		ctx:          ctx,
		cancel:       cancel,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}
}

// Handle runs the connection's event loop until the client disconnects,
// the context is cancelled, or an unrecoverable error occurs.
func (c *Connection) Handle(ctx context.Context) error {
	defer c.cleanup()

	logger.Info("connection opened: user=%d", c.userID)

	revision, err := c.sendInitial()
	if err != nil {
		return fmt.Errorf("send initial: %w", err)
	}

	broadcasts := c.room.Subscribe(c.userID)

	msgCh := make(chan protocol.ClientMsg)
	errCh := make(chan error, 1)
	go c.readLoop(msgCh, errCh)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.ctx.Done():
			return c.ctx.Err()

		case err := <-errCh:
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return fmt.Errorf("read message: %w", err)

		case msg := <-msgCh:
			if err := c.handleMessage(&msg); err != nil {
				logger.Error("user %d: %v", c.userID, err)
				return err
			}
			// The commit above (if any) already closed and replaced
			// room.notify, so this connection's own select case would
			// never see that edge: catch up explicitly rather than
			// waiting on the next unrelated notification.
			newRev, err := c.sendHistory(revision)
			if err != nil {
				return fmt.Errorf("send history: %w", err)
			}
			revision = newRev

		case <-c.room.Updates():
			newRev, err := c.sendHistory(revision)
			if err != nil {
				return fmt.Errorf("send history: %w", err)
			}
			revision = newRev

		case m, ok := <-broadcasts:
			if !ok {
				return nil // room killed
			}
			if err := c.send(m); err != nil {
				return fmt.Errorf("broadcast: %w", err)
			}
		}
	}
}

// readLoop decodes client messages off the websocket and forwards them to
// msgCh, reporting any read error (including a normal close) on errCh.
func (c *Connection) readLoop(msgCh chan<- protocol.ClientMsg, errCh chan<- error) {
	for {
		readCtx, readCancel := context.WithTimeout(c.ctx, c.readTimeout)
		var msg protocol.ClientMsg
		err := wsjson.Read(readCtx, c.conn, &msg)
		readCancel()
		if err != nil {
			select {
			case errCh <- err:
			case <-c.ctx.Done():
			}
			return
		}
		select {
		case msgCh <- msg:
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Connection) sendInitial() (server.Id, error) {
	if err := c.send(protocol.NewIdentityMsg(c.userID)); err != nil {
		return 0, err
	}

	ops, lang, users, cursors := c.room.GetInitialState()

	if len(ops) > 0 {
		if err := c.send(protocol.NewHistoryMsg(0, ops)); err != nil {
			return 0, err
		}
	}

	if lang != nil {
		if err := c.send(protocol.NewLanguageMsg(*lang, protocol.SystemUserID, "")); err != nil {
			return 0, err
		}
	}

	for id, info := range users {
		infoCopy := info
		if err := c.send(protocol.NewUserInfoMsg(id, &infoCopy)); err != nil {
			return 0, err
		}
	}

	for id, sels := range cursors {
		if err := c.send(protocol.NewUserCursorMsg(id, sels)); err != nil {
			return 0, err
		}
	}

	return server.Id(len(ops)), nil
}

func (c *Connection) sendHistory(start server.Id) (server.Id, error) {
	ops := c.room.GetHistory(start)
	if len(ops) > 0 {
		if err := c.send(protocol.NewHistoryMsg(int(start), ops)); err != nil {
			return start, err
		}
	}
	return start + server.Id(len(ops)), nil
}

func (c *Connection) handleMessage(msg *protocol.ClientMsg) error {
	switch {
	case msg.Edit != nil:
		_, _, err := c.room.ApplyEdit(c.userID, server.Id(msg.Edit.Revision), msg.Edit.Operation)
		if err != nil {
			return fmt.Errorf("apply edit: %w", err)
		}
		return nil

	case msg.CursorOnly != nil:
		nop := ot.CharOpNop(c.room.Text())
		op := selop.NewCharSelOp(msg.CursorOnly, nop)
		if _, _, err := c.room.ApplyEdit(c.userID, c.room.Revision(), op); err != nil {
			return fmt.Errorf("apply cursor update: %w", err)
		}
		return nil

	case msg.SetLanguage != nil:
		c.room.SetLanguage(*msg.SetLanguage, c.userID, c.displayName())
		return nil

	case msg.ClientInfo != nil:
		c.room.SetUserInfo(c.userID, *msg.ClientInfo)
		return nil
	}

	return nil
}

func (c *Connection) displayName() string {
	_, _, users, _ := c.room.GetInitialState()
	if info, ok := users[c.userID]; ok {
		return info.Name
	}
	return ""
}

func (c *Connection) send(msg *protocol.ServerMsg) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	writeCtx, writeCancel := context.WithTimeout(c.ctx, c.writeTimeout)
	defer writeCancel()
	return c.conn.Write(writeCtx, websocket.MessageText, data)
}

func (c *Connection) cleanup() {
	logger.Info("connection closed: user=%d", c.userID)
	c.room.RemoveUser(c.userID)
	c.cancel()
}
