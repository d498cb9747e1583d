package server

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Client is an upgraded websocket connection. Reads come from a single
// goroutine; writes are serialized.
type Client struct {
	conn    *websocket.Conn
	log     *log.Logger
	writeMu sync.Mutex
}

func newClient(conn *websocket.Conn, l *log.Logger) *Client {
	c := &Client{
		conn: conn,
		log:  l,
	}

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	return c
}

// Read returns the next data frame. Control frames are handled by the
// transport.
func (c *Client) Read() (int, []byte, error) {
	msgType, data, err := c.conn.ReadMessage()
	if err != nil && IsUnexpectedCloseError(err) {
		c.log.Printf("ws: read: %v", err)
	}

	return msgType, data, err
}

// Discard reads and drops frames until the connection fails, which is how a
// streaming handler notices that the peer went away.
func (c *Client) Discard() {
	for {
		if _, _, err := c.Read(); err != nil {
			return
		}
	}
}

func (c *Client) WriteText(data []byte) error {
	return c.write(websocket.TextMessage, data)
}

func (c *Client) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return c.write(websocket.TextMessage, data)
}

func (c *Client) write(msgType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(msgType, data); err != nil {
		if IsUnexpectedCloseError(err) {
			c.log.Printf("ws: write: %v", err)
		}
		return err
	}

	return nil
}

// CloseWith sends a close frame carrying code and reason, then closes the
// connection.
func (c *Client) CloseWith(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		c.log.Printf("ws: write close: %v", err)
	}

	c.Close()
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// keepalive pings the peer until ctx is done or a ping fails.
func (c *Client) keepalive(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.log.Printf("ws: ping: %v", err)
				return
			}
		}
	}
}

// IsUnexpectedCloseError reports errors other than an ordinary close by the
// peer.
func IsUnexpectedCloseError(err error) bool {
	return websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
		websocket.CloseNormalClosure)
}
