package stream

import (
	"context"

	"github.com/gorilla/websocket"
)

// WebsocketDialer is the production Dialer, connecting over a websocket.
type WebsocketDialer struct {
	dialer *websocket.Dialer
}

// NewWebsocketDialer creates a WebsocketDialer. A nil dialer uses the
// package default.
func NewWebsocketDialer(d *websocket.Dialer) *WebsocketDialer {
	if d == nil {
		d = websocket.DefaultDialer
	}
	return &WebsocketDialer{dialer: d}
}

// Dial opens a websocket connection to the stream endpoint.
func (w *WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	ws, _, err := w.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{ws: ws}, nil
}

type wsConn struct {
	ws *websocket.Conn
}

func (c *wsConn) ReadMessage() (string, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (c *wsConn) WriteJSON(v any) error {
	return c.ws.WriteJSON(v)
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}
