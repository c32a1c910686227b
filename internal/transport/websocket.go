package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const defaultHandshakeTimeout = 10 * time.Second

// WebsocketTransport carries push events over a websocket connection.
type WebsocketTransport struct {
	endpoint  string
	authToken string

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func NewWebsocketTransport(endpoint, authToken string) *WebsocketTransport {
	return &WebsocketTransport{endpoint: endpoint, authToken: authToken}
}

func (t *WebsocketTransport) Name() string {
	return "websocket"
}

func (t *WebsocketTransport) StatusTarget() string {
	parsed, err := url.Parse(t.endpoint)
	if err != nil {
		return t.endpoint
	}

	return parsed.Host
}

func (t *WebsocketTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.conn != nil
}

func (t *WebsocketTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	logger := transportLogger("websocket", "target", t.endpoint)

	if t.conn != nil {
		logger.Debug("connect skipped: already connected")

		return nil
	}
	if t.endpoint == "" {
		logger.Warn("connect failed: endpoint is empty")

		return errors.New("websocket endpoint is empty")
	}

	dialer := websocket.Dialer{HandshakeTimeout: defaultHandshakeTimeout}
	header := http.Header{}
	if t.authToken != "" {
		header.Set("Authorization", "Bearer "+t.authToken)
	}

	logger.Info("connecting")
	conn, resp, err := dialer.DialContext(ctx, t.endpoint, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		logger.Warn("connect failed", "error", err)

		return fmt.Errorf("dial websocket: %w", err)
	}
	t.conn = conn
	logger.Info("connected", "remote", conn.RemoteAddr().String())

	return nil
}

func (t *WebsocketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	logger := transportLogger("websocket", "target", t.endpoint)

	if t.conn == nil {
		logger.Debug("close skipped: not connected")

		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	if err != nil {
		logger.Warn("close failed", "error", err)

		return err
	}
	logger.Info("closed")

	return nil
}

func (t *WebsocketTransport) ReadMessage(ctx context.Context) ([]byte, error) {
	logger := transportLogger("websocket")
	conn, err := t.currentConn()
	if err != nil {
		logger.Debug("read failed: not connected", "error", err)

		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	} else {
		_ = conn.SetReadDeadline(time.Time{})
	}

	_, payload, err := conn.ReadMessage()
	if err != nil {
		logger.Debug("read failed", "error", err)

		return nil, fmt.Errorf("read websocket message: %w", err)
	}
	logger.Debug("read message", "len", len(payload))

	return payload, nil
}

func (t *WebsocketTransport) WriteMessage(ctx context.Context, payload []byte) error {
	logger := transportLogger("websocket")
	conn, err := t.currentConn()
	if err != nil {
		logger.Debug("write failed: not connected", "error", err)

		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	} else {
		_ = conn.SetWriteDeadline(time.Time{})
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		logger.Warn("write failed", "payload_len", len(payload), "error", err)

		return fmt.Errorf("write websocket message: %w", err)
	}
	logger.Debug("write message", "payload_len", len(payload))

	return nil
}

func (t *WebsocketTransport) currentConn() (*websocket.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil, errors.New("transport is not connected")
	}

	return t.conn, nil
}
