package system

import (
	"errors"
	"time"

	"go.uber.org/zap"

	coresys "github.com/tradewind/server/internal/core/system"
	"github.com/tradewind/server/internal/net"
	"github.com/tradewind/server/internal/net/packet"
	"github.com/tradewind/server/internal/replication"
)

// InputSystem adopts new sessions, drains each session's inbound queue
// through the packet registry and retires closed sessions. Closed sessions
// are found by polling IsClosed, so nothing reports deaths back to it.
// Phase 0 (Input).
type InputSystem struct {
	netServer  *net.Server
	registry   *packet.Registry
	store      *net.SessionStore
	host       *replication.Host
	maxPerTick int
	log        *zap.Logger
}

func NewInputSystem(netServer *net.Server, registry *packet.Registry, store *net.SessionStore, host *replication.Host, maxPerTick int, log *zap.Logger) *InputSystem {
	if maxPerTick < 1 {
		maxPerTick = 1
	}
	return &InputSystem{
		netServer:  netServer,
		registry:   registry,
		store:      store,
		host:       host,
		maxPerTick: maxPerTick,
		log:        log,
	}
}

func (s *InputSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *InputSystem) Update(_ time.Duration) {
adopt:
	for {
		select {
		case sess := <-s.netServer.NewSessions():
			s.store.Add(sess)
		default:
			break adopt
		}
	}

	s.store.ForEach(func(sess *net.Session) {
		s.drain(sess)
		if sess.IsClosed() {
			s.host.Disconnect(sess)
			s.store.Remove(sess.ID)
			s.log.Info("peer disconnected", zap.Uint64("session", sess.ID))
		}
	})

	// Early flush so replies produced here reach the writer goroutines while
	// the simulation phases run. PhaseOutput flushes the rest.
	s.store.ForEach(func(sess *net.Session) {
		sess.FlushOutput()
	})
}

// drain dispatches at most maxPerTick queued messages. A closed session
// still gets its last messages handled before removal. A message that
// panics its handler closes the session.
func (s *InputSystem) drain(sess *net.Session) {
	for i := 0; i < s.maxPerTick; i++ {
		select {
		case data := <-sess.InQueue:
			err := s.registry.Dispatch(sess, sess.State(), data)
			if errors.Is(err, packet.ErrHandlerPanic) {
				s.log.Warn("closing session after handler panic", zap.Uint64("session", sess.ID), zap.Error(err))
				sess.Close()
				return
			}
			if err != nil {
				s.log.Debug("dispatch failed", zap.Uint64("session", sess.ID), zap.Error(err))
			}
		default:
			return
		}
	}
}
