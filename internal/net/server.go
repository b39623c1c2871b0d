package net

import (
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tradewind/server/internal/net/packet"
)

// WSPath is where the WebSocket listener upgrades connections.
const WSPath = "/ws"

// ServerConfig configures the listeners and every accepted session.
type ServerConfig struct {
	BindAddr string // TCP listen address
	WSAddr   string // optional WebSocket listen address; empty disables it
	Session  SessionOptions
}

// Server accepts TCP and WebSocket connections and creates Sessions.
// New/dead sessions are communicated to the game loop via channels.
type Server struct {
	listener net.Listener
	wsLn     net.Listener
	http     *http.Server
	upgrader websocket.Upgrader

	nextID   atomic.Uint64
	newConns chan *Session
	opts     SessionOptions
	log      *zap.Logger

	closeCh   chan struct{}
	closeOnce sync.Once
}

func NewServer(cfg ServerConfig, log *zap.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", cfg.BindAddr)
	if err != nil {
		return nil, err
	}
	s := &Server{
		listener: ln,
		newConns: make(chan *Session, 64),
		opts:     cfg.Session,
		log:      log,
		closeCh:  make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	if cfg.WSAddr != "" {
		wsLn, err := net.Listen("tcp", cfg.WSAddr)
		if err != nil {
			ln.Close()
			return nil, err
		}
		mux := http.NewServeMux()
		mux.HandleFunc(WSPath, s.handleWS)
		s.wsLn = wsLn
		s.http = &http.Server{Handler: mux}
	}
	return s, nil
}

// AcceptLoop runs in its own goroutine. It accepts TCP connections and
// hands them to admit.
func (s *Server) AcceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closeCh:
				return // server shutting down
			default:
			}
			s.log.Error("accept failed", zap.Error(err))
			continue
		}
		s.admit(NewTCPConn(conn))
	}
}

// ServeWS runs the WebSocket listener until Shutdown. It returns nil when no
// WebSocket address was configured.
func (s *Server) ServeWS() error {
	if s.http == nil {
		return nil
	}
	if err := s.http.Serve(s.wsLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	c, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.String("ip", r.RemoteAddr), zap.Error(err))
		return
	}
	s.admit(NewWSConn(c))
}

// admit wraps conn in a session and queues it for the game loop. A full
// queue rejects the connection.
func (s *Server) admit(conn FrameConn) {
	id := s.nextID.Add(1)
	sess := NewSession(conn, id, s.opts, s.log)
	sess.SetState(packet.StateAccepted)

	select {
	case s.newConns <- sess:
		sess.Start()
		s.log.Info("peer connected", zap.Uint64("session", id), zap.String("ip", sess.Addr))
	default:
		sess.SetState(packet.StateRejected)
		s.log.Warn("connection queue full, rejecting", zap.String("ip", sess.Addr))
		sess.Close()
	}
}

// NewSessions returns the channel of newly connected sessions.
func (s *Server) NewSessions() <-chan *Session {
	return s.newConns
}

// Shutdown stops accepting new connections.
func (s *Server) Shutdown() {
	s.closeOnce.Do(func() {
		close(s.closeCh)
		s.listener.Close()
		if s.http != nil {
			s.http.Close()
		}
	})
}

// Addr returns the TCP listener's address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// WSAddr returns the WebSocket listener's address, or nil.
func (s *Server) WSAddr() net.Addr {
	if s.wsLn == nil {
		return nil
	}
	return s.wsLn.Addr()
}
