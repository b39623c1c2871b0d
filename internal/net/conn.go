package net

import (
	"fmt"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

// FrameConn is a message-oriented connection. One goroutine may read while
// another writes; Close may be called from anywhere.
type FrameConn interface {
	ReadFrame() ([]byte, error)
	WriteFrame(data []byte, deadline time.Time) error
	RemoteAddr() string
	Close() error
}

// tcpConn frames messages with a length prefix over a byte stream.
type tcpConn struct {
	c net.Conn
}

func NewTCPConn(c net.Conn) FrameConn { return &tcpConn{c: c} }

func (t *tcpConn) ReadFrame() ([]byte, error) { return ReadFrame(t.c) }

func (t *tcpConn) WriteFrame(data []byte, deadline time.Time) error {
	if err := t.c.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return WriteFrame(t.c, data)
}

func (t *tcpConn) RemoteAddr() string { return t.c.RemoteAddr().String() }
func (t *tcpConn) Close() error       { return t.c.Close() }

// wsConn carries one message per binary WebSocket message.
type wsConn struct {
	c *websocket.Conn
}

func NewWSConn(c *websocket.Conn) FrameConn {
	c.SetReadLimit(MaxFrameSize)
	return &wsConn{c: c}
}

func (w *wsConn) ReadFrame() ([]byte, error) {
	for {
		mt, data, err := w.c.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("read ws message: %w", err)
		}
		if mt == websocket.BinaryMessage && len(data) > 0 {
			return data, nil
		}
	}
}

func (w *wsConn) WriteFrame(data []byte, deadline time.Time) error {
	if len(data) > MaxFrameSize {
		return fmt.Errorf("frame of %d bytes: %w", len(data), ErrFrameTooLarge)
	}
	if err := w.c.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return w.c.WriteMessage(websocket.BinaryMessage, data)
}

func (w *wsConn) RemoteAddr() string { return w.c.RemoteAddr().String() }
func (w *wsConn) Close() error       { return w.c.Close() }
