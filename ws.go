/*
Copyright © 2026 Wei-Hsuan Chen <weihsuan.c@fastmail.com>
*/

package main

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const clientSendBuffer = 32

// client is one websocket connection. roomID/playerID/spectatorID are
// bound by the join handlers; the game identifies players by their id,
// not the connection, so a reconnect simply binds a fresh client.
type client struct {
	conn *websocket.Conn
	out  chan any

	roomID      string
	playerID    string
	spectatorID string
}

// send queues an outbound message without blocking the game loop. A
// client that cannot drain its buffer loses messages and resyncs on
// reconnect.
func (c *client) send(v any) {
	select {
	case c.out <- v:
	default:
		logger.Warn("dropping message to slow client",
			zap.String("room", c.roomID),
			zap.String("player", c.playerID))
	}
}

func serveWS(g *gameServer) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		c := &client{
			conn: conn,
			out:  make(chan any, clientSendBuffer),
		}

		go c.writePump()
		c.readPump(g)
	}
}

func (c *client) readPump(g *gameServer) {
	defer func() {
		g.handleDisconnect(c)
		close(c.out)
		c.conn.Close()
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.dispatch(g, raw)
	}
}

// dispatch isolates panics per message: a malformed frame or a handler
// bug drops that frame, not the connection and not the room.
func (c *client) dispatch(g *gameServer, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("message handler panicked",
				zap.String("room", c.roomID),
				zap.String("player", c.playerID),
				zap.Any("panic", r))
			c.send(errMessage("處理訊息時發生錯誤"))
		}
	}()

	g.handleMessage(c, raw)
}

func (c *client) writePump() {
	defer c.conn.Close()

	for msg := range c.out {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}
