package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jamesainslie/ferry/pkg/ferry/logging"
	"github.com/jamesainslie/ferry/pkg/ferry/protocol"
	"github.com/jamesainslie/ferry/pkg/ferry/wire"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var dialer = websocket.Dialer{
	HandshakeTimeout: 5 * time.Second,
}

// WebSocket carries commands over a WebSocket connection, one encoded
// payload per text message.
type WebSocket struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

var _ Transport = (*WebSocket)(nil)

// DialWebSocket connects to a peer at url.
func DialWebSocket(ctx context.Context, url string) (*WebSocket, error) {
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if len(body) > 0 {
				return nil, fmt.Errorf("websocket upgrade failed (%d): %s", resp.StatusCode, string(body))
			}
			return nil, fmt.Errorf("websocket upgrade failed (%d)", resp.StatusCode)
		}
		return nil, err
	}
	return NewWebSocket(conn), nil
}

// NewWebSocket wraps an established connection.
func NewWebSocket(conn *websocket.Conn) *WebSocket {
	return &WebSocket{conn: conn}
}

// Send writes one command.
func (w *WebSocket) Send(cmd protocol.Command) error {
	return w.write(websocket.TextMessage, []byte(wire.Encode(cmd)))
}

func (w *WebSocket) write(messageType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteMessage(messageType, data)
}

// Run reads messages until the connection closes or ctx is done. A normal
// close by the peer returns nil.
func (w *WebSocket) Run(ctx context.Context, onCommand func(protocol.Command)) error {
	log := logging.Get("transport")
	handle := decodeTo(onCommand)

	_ = w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		return w.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if err := w.write(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	go func() {
		<-runCtx.Done()
		// Unblocks ReadMessage.
		_ = w.conn.Close()
	}()

	for {
		messageType, message, err := w.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				log.Error("websocket read error", "error", err)
			}
			return err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		handle(string(message))
	}
}

// Close sends a close message and closes the connection.
func (w *WebSocket) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = w.write(websocket.CloseMessage, msg)
	return w.conn.Close()
}
