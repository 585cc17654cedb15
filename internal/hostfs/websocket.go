package hostfs

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketStream implements channel.Channel over one websocket connection.
// Each JSON-RPC message is one text frame.
type WebSocketStream struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

// NewWebSocketStream wraps an established connection.
func NewWebSocketStream(conn *websocket.Conn) *WebSocketStream {
	return &WebSocketStream{conn: conn}
}

// DialWebSocket opens a websocket to url.
func DialWebSocket(ctx context.Context, url string) (*WebSocketStream, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return NewWebSocketStream(conn), nil
}

func (ws *WebSocketStream) Send(data []byte) error {
	ws.wmu.Lock()
	defer ws.wmu.Unlock()
	return ws.conn.WriteMessage(websocket.TextMessage, data)
}

func (ws *WebSocketStream) Recv() ([]byte, error) {
	_, data, err := ws.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (ws *WebSocketStream) Close() error {
	return ws.conn.Close()
}
