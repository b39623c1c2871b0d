package system

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tradewind/server/internal/core/event"
	"github.com/tradewind/server/internal/net"
	"github.com/tradewind/server/internal/net/packet"
	"github.com/tradewind/server/internal/replication"
	"github.com/tradewind/server/internal/world"
)

func TestInputAndOutputServePeers(t *testing.T) {
	f := newFixture(t)
	f.place(t, 0, "market", 0, 0)
	log := zap.NewNop()
	opts := net.SessionOptions{InQueueSize: 16, OutQueueSize: 16, WriteTimeout: time.Second}

	srv, err := net.NewServer(net.ServerConfig{BindAddr: "127.0.0.1:0", Session: opts}, log)
	require.NoError(t, err)
	defer srv.Shutdown()
	go srv.AcceptLoop()

	hostCodec, err := replication.NewCodec(0)
	require.NoError(t, err)
	defer hostCodec.Close()
	store := net.NewSessionStore()
	reg := packet.NewRegistry(log)
	host := replication.NewHost(f.ws, hostCodec, store, replication.HostOptions{Nickname: "keeper", SnapshotEvery: 1}, log)
	host.Register(reg)
	input := NewInputSystem(srv, reg, store, host, 8, log)
	output := NewOutputSystem(host, store)

	peerCodec, err := replication.NewCodec(0)
	require.NoError(t, err)
	defer peerCodec.Close()
	sess, err := net.Dial(context.Background(), srv.Addr().String(), opts, log)
	require.NoError(t, err)
	mirror := replication.NewMirror(world.NewState(world.Options{MapWidth: 64, MapHeight: 64}, nil), log)
	peer := replication.NewPeer(sess, peerCodec, mirror, log)
	require.NoError(t, peer.Join(0, "ada"))

	require.Eventually(t, func() bool {
		input.Update(0)
		output.Update(0)
		_, _ = peer.Poll()
		return host.Joined() == 1 && mirror.Len() > 0
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, host.WorldID(), mirror.WorldID())
	assert.True(t, mirror.World().Site.Has(f.ws.Market.IDs()[0]))

	peer.Close()
	require.Eventually(t, func() bool {
		input.Update(0)
		return store.Len() == 0
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, event.Pending[event.PeerJoined](f.ws.Bus))
	assert.Equal(t, 1, event.Pending[event.PeerLeft](f.ws.Bus))
}

func TestHandlerPanicClosesSession(t *testing.T) {
	f := newFixture(t)
	log := zap.NewNop()
	opts := net.SessionOptions{InQueueSize: 16, OutQueueSize: 16, WriteTimeout: time.Second}

	srv, err := net.NewServer(net.ServerConfig{BindAddr: "127.0.0.1:0", Session: opts}, log)
	require.NoError(t, err)
	defer srv.Shutdown()
	go srv.AcceptLoop()

	codec, err := replication.NewCodec(0)
	require.NoError(t, err)
	defer codec.Close()
	store := net.NewSessionStore()
	reg := packet.NewRegistry(log)
	const kindBad = 0x70
	handled := 0
	reg.Register(kindBad, []packet.SessionState{packet.StateConnected}, func(any, *packet.Reader) {
		handled++
		panic("bad message")
	})
	host := replication.NewHost(f.ws, codec, store, replication.HostOptions{}, log)
	input := NewInputSystem(srv, reg, store, host, 8, log)

	client, err := net.Dial(context.Background(), srv.Addr().String(), opts, log)
	require.NoError(t, err)
	defer client.Close()
	client.Send([]byte{kindBad})
	client.Send([]byte{kindBad})
	client.FlushOutput()

	var server *net.Session
	select {
	case server = <-srv.NewSessions():
		store.Add(server)
	case <-time.After(2 * time.Second):
		t.Fatal("no session accepted")
	}
	require.Eventually(t, func() bool {
		input.Update(0)
		return store.Len() == 0
	}, 3*time.Second, 10*time.Millisecond)

	assert.True(t, server.IsClosed())
	assert.Equal(t, 1, handled, "draining stops at the first panic")
}
