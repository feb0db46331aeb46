package control

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/lanchat/internal/util"
)

const (
	outboxSize = 64
	closeGrace = time.Second
)

// client is one WebSocket connection. writeLoop is the only writer of conn.
type client struct {
	id   string
	conn *websocket.Conn

	outbox    chan Envelope
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(id string, conn *websocket.Conn) *client {
	return &client{
		id:     id,
		conn:   conn,
		outbox: make(chan Envelope, outboxSize),
		done:   make(chan struct{}),
	}
}

// enqueue queues env without blocking.
func (c *client) enqueue(env Envelope) {
	select {
	case c.outbox <- env:
	case <-c.done:
	default:
		util.LogDebug("control: client %s is slow, dropped %s", c.id, env.Type)
	}
}

// readLoop decodes intents until the connection fails or ctx is done. The
// reply to each intent goes through the outbox so it is ordered with events.
func (c *client) readLoop(ctx context.Context, handle func(context.Context, Message) Envelope) {
	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				!util.IsBenignDisconnect(err) && ctx.Err() == nil {
				util.LogDebug("control: client %s read error: %v", c.id, err)
			}
			return
		}

		reply := handle(ctx, msg)
		select {
		case c.outbox <- reply:
		case <-c.done:
			return
		}
	}
}

func (c *client) writeLoop() {
	for {
		select {
		case env := <-c.outbox:
			if err := c.conn.WriteJSON(env); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGrace))
		c.conn.Close()
	})
}
