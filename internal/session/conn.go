package session

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the duplex channel to one client. The gorilla adapter below
// is the production implementation; tests substitute a scripted fake.
type Conn interface {
	ReadText() (string, error)
	SendJSON(v any) error
	SendText(text string) error
	SetReadDeadline(t time.Time) error
	Close(code int, reason string) error
}

// wsConn adapts a gorilla connection. Writes come from the command
// loop, the price streamer and the settlement loop, so they are
// serialized behind a mutex.
type wsConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func NewConn(ws *websocket.Conn) Conn {
	return &wsConn{ws: ws}
}

func (c *wsConn) ReadText() (string, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (c *wsConn) SendJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

func (c *wsConn) SendText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, []byte(text))
}

func (c *wsConn) SetReadDeadline(t time.Time) error {
	return c.ws.SetReadDeadline(t)
}

func (c *wsConn) Close(code int, reason string) error {
	c.mu.Lock()
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(time.Second))
	c.mu.Unlock()
	return c.ws.Close()
}
