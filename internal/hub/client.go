package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// conn is one downstream client connection. The hub owns its interest set;
// the send queue decouples broadcasts from the socket write.
type conn struct {
	id   uuid.UUID
	sock *websocket.Conn

	send chan []byte
	done chan struct{}

	closeOnce sync.Once

	// Guarded by the hub mutex
	tickers  map[string]struct{}
	wildcard bool
}

func newConn(id uuid.UUID, sock *websocket.Conn, sendBuffer int) *conn {
	return &conn{
		id:      id,
		sock:    sock,
		send:    make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
		tickers: make(map[string]struct{}),
	}
}

// enqueue offers a frame to the send queue without blocking. A full queue
// means the client cannot keep up; the caller schedules its removal.
func (c *conn) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	case c.send <- data:
		return true
	default:
		return false
	}
}

// interestedIn is called under the hub mutex.
func (c *conn) interestedIn(ticker string) bool {
	if c.wildcard {
		return true
	}
	_, ok := c.tickers[ticker]
	return ok
}

// close tears down the socket and stops the write pump. Idempotent.
func (c *conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.sock.Close()
	})
}

// writePump drains the send queue onto the socket. A write failure marks the
// connection dead; the hub prunes it on the next broadcast or read error.
func (h *Hub) writePump(c *conn) {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			c.sock.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := c.sock.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug("client write failed", "conn_id", c.id, "error", err)
				h.RemoveClient(c.id)
				return
			}
		}
	}
}

// readPump handles inbound frames until the client disconnects.
func (h *Hub) readPump(c *conn) {
	defer h.RemoveClient(c.id)

	for {
		_, data, err := c.sock.ReadMessage()
		if err != nil {
			return
		}

		var req clientRequest
		if err := json.Unmarshal(data, &req); err != nil {
			h.logger.Debug("bad client frame", "conn_id", c.id, "error", err)
			continue
		}

		switch req.Action {
		case ActionSubscribe:
			h.Subscribe(c.id, req.Tickers)
		case ActionUnsubscribe:
			h.Unsubscribe(c.id, req.Tickers)
		case ActionPing:
			if pong, err := json.Marshal(serverMessage{Type: TypePong}); err == nil {
				c.enqueue(pong)
			}
		default:
			h.logger.Debug("unknown client action", "conn_id", c.id, "action", req.Action)
		}
	}
}
