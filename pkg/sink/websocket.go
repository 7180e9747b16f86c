package sink

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

const (
	webSocketDefaultWriteTimeout = 10 * time.Second
)

// WebSocket is a Sink that sends every chunk as a binary WebSocket message.
type WebSocket struct {
	// ws:// or wss:// URL.
	URL string

	// timeout of write operations.
	// It defaults to 10 seconds.
	WriteTimeout time.Duration

	// function used to initialize the TCP connection.
	// It defaults to (&net.Dialer{}).DialContext.
	DialContext func(ctx context.Context, network, address string) (net.Conn, error)

	wconn *websocket.Conn
}

// Initialize connects to the server.
func (s *WebSocket) Initialize(ctx context.Context) error {
	if s.WriteTimeout == 0 {
		s.WriteTimeout = webSocketDefaultWriteTimeout
	}
	if s.DialContext == nil {
		s.DialContext = (&net.Dialer{}).DialContext
	}

	var err error
	s.wconn, _, err = (&websocket.Dialer{
		NetDialContext: s.DialContext,
	}).DialContext(ctx, s.URL, nil) //nolint:bodyclose
	if err != nil {
		return fmt.Errorf("unable to connect to %s: %w", s.URL, err)
	}

	return nil
}

// Append implements Sink.
func (s *WebSocket) Append(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	err := s.wconn.SetWriteDeadline(time.Now().Add(s.WriteTimeout))
	if err != nil {
		return err
	}

	return s.wconn.WriteMessage(websocket.BinaryMessage, chunk)
}

// Close sends a close frame and closes the connection.
func (s *WebSocket) Close() error {
	s.wconn.WriteControl(websocket.CloseMessage, //nolint:errcheck
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(s.WriteTimeout))
	return s.wconn.Close()
}
