package replication

import (
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/width"

	"github.com/tradewind/server/internal/core/event"
	"github.com/tradewind/server/internal/net"
	"github.com/tradewind/server/internal/net/packet"
	"github.com/tradewind/server/internal/world"
)

// HostOptions tunes snapshot delivery.
type HostOptions struct {
	Nickname      string // sender name on host-originated chat
	ReadyPeers    int    // joined peers required before snapshots flow
	SnapshotEvery int    // simulation ticks between snapshots
}

// Host is the authoritative side of replication. It owns the world id,
// answers hello and chat, and pushes whole-state snapshots to joined peers.
// Game loop only.
type Host struct {
	ws      *world.State
	codec   *Codec
	store   *net.SessionStore
	opts    HostOptions
	worldID uuid.UUID
	ticks   uint64
	log     *zap.Logger
}

func NewHost(ws *world.State, codec *Codec, store *net.SessionStore, opts HostOptions, log *zap.Logger) *Host {
	if opts.SnapshotEvery < 1 {
		opts.SnapshotEvery = 1
	}
	if opts.ReadyPeers < 1 {
		opts.ReadyPeers = 1
	}
	return &Host{
		ws:      ws,
		codec:   codec,
		store:   store,
		opts:    opts,
		worldID: uuid.New(),
		log:     log,
	}
}

func (h *Host) WorldID() uuid.UUID { return h.worldID }

// Register installs the peer-to-host message handlers.
func (h *Host) Register(reg *packet.Registry) {
	reg.Register(byte(KindHello), []packet.SessionState{packet.StateConnected}, h.handleHello)
	reg.Register(byte(KindChat), []packet.SessionState{packet.StateJoined}, h.handleChat)
}

// Subscribe forwards spawn and destroy events to joined peers as they are
// delivered. Only entities carrying the replicated set are announced.
func (h *Host) Subscribe(bus *event.Bus) {
	event.Subscribe(bus, func(ev event.EntitySpawned) {
		if !h.ws.ECS.Alive(ev.Entity) || !replicated(h.ws, ev.Entity) {
			return
		}
		h.Broadcast(EntityCreate{Entity: ev.Entity})
		for _, m := range replaceAll(h.ws, ev.Entity) {
			h.Broadcast(m)
		}
	})
	event.Subscribe(bus, func(ev event.EntityDestroyed) {
		h.Broadcast(EntityDelete{Entity: ev.Entity})
	})
}

// Joined counts sessions that completed hello.
func (h *Host) Joined() int {
	n := 0
	h.store.ForEach(func(s *net.Session) {
		if s.State() == packet.StateJoined {
			n++
		}
	})
	return n
}

// Broadcast sends msg to every joined session.
func (h *Host) Broadcast(msg Message) {
	data, err := h.codec.Encode(msg)
	if err != nil {
		h.log.Error("encode failed", zap.Stringer("kind", msg.Kind()), zap.Error(err))
		return
	}
	h.store.ForEach(func(s *net.Session) {
		if s.State() == packet.StateJoined {
			s.Send(data)
		}
	})
}

// Say broadcasts a chat line from the host.
func (h *Host) Say(text string) {
	h.Broadcast(Chat{From: h.opts.Nickname, Content: text})
}

// Tick runs once per simulation tick and pushes a snapshot every
// SnapshotEvery ticks once enough peers have joined.
func (h *Host) Tick() {
	h.ticks++
	if h.ticks%uint64(h.opts.SnapshotEvery) != 0 || h.Joined() < h.opts.ReadyPeers {
		return
	}
	h.Broadcast(Snapshot(h.ws, h.worldID, h.ticks))
}

// Disconnect drops a closed session from replication.
func (h *Host) Disconnect(sess *net.Session) {
	if sess.Nickname == "" {
		return
	}
	event.Emit(h.ws.Bus, event.PeerLeft{SessionID: sess.ID})
	h.log.Info("peer left", zap.Uint64("session", sess.ID), zap.String("nickname", sess.Nickname))
	h.Say(sess.Nickname + " left")
}

func (h *Host) handleHello(sess any, r *packet.Reader) {
	s := sess.(*net.Session)
	hello := ReadHello(r)
	if r.Err() != nil {
		h.log.Warn("malformed hello", zap.Uint64("session", s.ID))
		s.Close()
		return
	}
	family := int(hello.FamilyID)
	if h.ws.Family(family) == nil {
		family = -1
	}
	// Fullwidth and halfwidth forms of the same name compare equal.
	nick := width.Fold.String(strings.TrimSpace(hello.Nickname))
	if nick == "" {
		nick = "peer"
	}
	s.Nickname = nick
	s.FamilyID = family
	s.SetState(packet.StateJoined)

	event.Emit(h.ws.Bus, event.PeerJoined{SessionID: s.ID, FamilyID: family, Nickname: nick})
	h.log.Info("peer joined",
		zap.Uint64("session", s.ID),
		zap.String("nickname", nick),
		zap.Int("family", family),
	)
	h.Say(nick + " joined")

	if h.Joined() >= h.opts.ReadyPeers {
		data, err := h.codec.Encode(Snapshot(h.ws, h.worldID, h.ticks))
		if err != nil {
			h.log.Error("encode snapshot failed", zap.Error(err))
			return
		}
		s.Send(data)
	}
}

func (h *Host) handleChat(sess any, r *packet.Reader) {
	s := sess.(*net.Session)
	msg := ReadChat(r)
	if r.Err() != nil {
		h.log.Warn("malformed chat", zap.Uint64("session", s.ID))
		return
	}
	msg.From = s.Nickname
	h.log.Info("chat", zap.String("from", msg.From), zap.String("content", msg.Content))
	h.Broadcast(msg)
}
