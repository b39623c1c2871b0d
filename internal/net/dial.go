package net

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Dial connects to a host and starts a session for it. Addresses starting
// with ws:// or wss:// use WebSocket, anything else is a TCP host:port.
func Dial(ctx context.Context, addr string, opts SessionOptions, log *zap.Logger) (*Session, error) {
	var conn FrameConn
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		c, _, err := websocket.DefaultDialer.DialContext(ctx, addr, nil)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		}
		conn = NewWSConn(c)
	} else {
		var d net.Dialer
		c, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		}
		conn = NewTCPConn(c)
	}
	sess := NewSession(conn, 0, opts, log)
	sess.Start()
	return sess, nil
}
