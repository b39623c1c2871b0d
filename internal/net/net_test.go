package net

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tradewind/server/internal/net/packet"
)

var testOpts = SessionOptions{InQueueSize: 8, OutQueueSize: 8, WriteTimeout: time.Second}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte{6, 1, 2, 3}))
	assert.Equal(t, []byte{4, 0, 0, 0, 6, 1, 2, 3}, buf.Bytes())

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{6, 1, 2, 3}, got)
}

func TestFrameLimits(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0x7f}))
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	_, err = ReadFrame(bytes.NewReader([]byte{0, 0, 0, 0}))
	assert.Error(t, err)

	_, err = ReadFrame(bytes.NewReader([]byte{5, 0, 0, 0, 1}))
	assert.Error(t, err, "truncated payload")

	assert.Error(t, WriteFrame(&bytes.Buffer{}, nil))
}

func TestSessionStoreOrder(t *testing.T) {
	st := NewSessionStore()
	for _, id := range []uint64{3, 1, 2} {
		st.Add(&Session{ID: id})
	}
	var seen []uint64
	st.ForEach(func(s *Session) { seen = append(seen, s.ID) })
	assert.Equal(t, []uint64{1, 2, 3}, seen)

	st.Remove(2)
	assert.Nil(t, st.Get(2))
	assert.Equal(t, 2, st.Len())

	// Removing a later session from inside the callback skips it.
	st.Add(&Session{ID: 5})
	seen = nil
	st.ForEach(func(s *Session) {
		seen = append(seen, s.ID)
		if s.ID == 1 {
			st.Remove(3)
		}
	})
	assert.Equal(t, []uint64{1, 5}, seen)
}

func waitSession(t *testing.T, srv *Server) *Session {
	t.Helper()
	select {
	case s := <-srv.NewSessions():
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no session accepted")
		return nil
	}
}

func recv(t *testing.T, s *Session) []byte {
	t.Helper()
	select {
	case data := <-s.InQueue:
		return data
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func exchange(t *testing.T, srv *Server, addr string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := Dial(ctx, addr, testOpts, zap.NewNop())
	require.NoError(t, err)
	defer client.Close()

	host := waitSession(t, srv)
	defer host.Close()
	assert.Equal(t, packet.StateConnected, host.State())

	client.Send([]byte{1, 'h', 'i'})
	client.FlushOutput()
	assert.Equal(t, []byte{1, 'h', 'i'}, recv(t, host))

	host.Send([]byte{2, 'o', 'k'})
	host.FlushOutput()
	assert.Equal(t, []byte{2, 'o', 'k'}, recv(t, client))
}

func TestTCPSessionExchange(t *testing.T) {
	srv, err := NewServer(ServerConfig{BindAddr: "127.0.0.1:0", Session: testOpts}, zap.NewNop())
	require.NoError(t, err)
	defer srv.Shutdown()
	go srv.AcceptLoop()

	exchange(t, srv, srv.Addr().String())
}

func TestWebSocketSessionExchange(t *testing.T) {
	srv, err := NewServer(ServerConfig{
		BindAddr: "127.0.0.1:0",
		WSAddr:   "127.0.0.1:0",
		Session:  testOpts,
	}, zap.NewNop())
	require.NoError(t, err)
	defer srv.Shutdown()
	go srv.ServeWS()

	exchange(t, srv, fmt.Sprintf("ws://%s%s", srv.WSAddr(), WSPath))
}

func TestRateLimitDisconnects(t *testing.T) {
	opts := testOpts
	opts.MessagesPerSecond = 1
	srv, err := NewServer(ServerConfig{BindAddr: "127.0.0.1:0", Session: opts}, zap.NewNop())
	require.NoError(t, err)
	defer srv.Shutdown()
	go srv.AcceptLoop()

	client, err := Dial(context.Background(), srv.Addr().String(), testOpts, zap.NewNop())
	require.NoError(t, err)
	defer client.Close()
	host := waitSession(t, srv)

	for i := 0; i < 5; i++ {
		client.Send([]byte{1, byte(i)})
	}
	client.FlushOutput()

	select {
	case <-host.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session survived a message burst")
	}
	assert.Equal(t, packet.StateClosed, host.State())
}
