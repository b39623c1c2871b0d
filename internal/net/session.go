package net

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tradewind/server/internal/net/packet"
)

const defaultWriteTimeout = 10 * time.Second

// SessionOptions sizes a session's queues and limits.
type SessionOptions struct {
	InQueueSize       int
	OutQueueSize      int
	MessagesPerSecond int // 0 = unlimited
	WriteTimeout      time.Duration
}

// Session represents a single connection. Network I/O runs in dedicated
// goroutines; game state is accessed only from the game loop.
type Session struct {
	ID   uint64
	conn FrameConn

	state atomic.Int32 // packet.SessionState stored as int32

	InQueue  chan []byte // game loop reads messages from here
	OutQueue chan []byte // writer goroutine reads from here

	Addr     string
	Nickname string
	FamilyID int

	outBuf [][]byte // buffered messages, flushed by the output phase (game loop only)

	closeCh   chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	limiter      *rate.Limiter // readLoop goroutine only
	writeTimeout time.Duration

	log *zap.Logger
}

func NewSession(conn FrameConn, id uint64, opts SessionOptions, log *zap.Logger) *Session {
	s := &Session{
		ID:           id,
		conn:         conn,
		InQueue:      make(chan []byte, opts.InQueueSize),
		OutQueue:     make(chan []byte, opts.OutQueueSize),
		Addr:         conn.RemoteAddr(),
		FamilyID:     -1,
		closeCh:      make(chan struct{}),
		writeTimeout: opts.WriteTimeout,
		log:          log.With(zap.Uint64("session", id)),
	}
	if s.writeTimeout <= 0 {
		s.writeTimeout = defaultWriteTimeout
	}
	if opts.MessagesPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.MessagesPerSecond), 2*opts.MessagesPerSecond)
	}
	s.state.Store(int32(packet.StateConnecting))
	return s
}

func (s *Session) State() packet.SessionState {
	return packet.SessionState(s.state.Load())
}

func (s *Session) SetState(st packet.SessionState) {
	old := packet.SessionState(s.state.Swap(int32(st)))
	if old != st {
		s.log.Debug("session state", zap.Stringer("from", old), zap.Stringer("to", st))
	}
}

// Start launches the reader and writer goroutines.
func (s *Session) Start() {
	s.SetState(packet.StateConnected)
	go s.readLoop()
	go s.writeLoop()
}

// Send buffers a message for sending. The message is not written until
// FlushOutput is called by the output phase.
// Called only from the game loop goroutine, so outBuf needs no lock.
func (s *Session) Send(data []byte) {
	if s.closed.Load() {
		return
	}
	s.outBuf = append(s.outBuf, data)
}

// FlushOutput drains the output buffer to OutQueue for the writeLoop goroutine.
// Non-blocking: if OutQueue is full, the session is disconnected (backpressure).
func (s *Session) FlushOutput() {
	for _, data := range s.outBuf {
		select {
		case s.OutQueue <- data:
		default:
			s.log.Warn("output queue full, dropping slow connection")
			s.Close()
			s.outBuf = s.outBuf[:0]
			return
		}
	}
	s.outBuf = s.outBuf[:0]
}

// Close shuts down the session. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.State() != packet.StateRejected {
			s.SetState(packet.StateClosed)
		}
		close(s.closeCh)
		s.conn.Close()
	})
}

func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// Done is closed once the session has shut down.
func (s *Session) Done() <-chan struct{} {
	return s.closeCh
}

// readLoop runs in its own goroutine. It reads frames from the connection
// and pushes them onto InQueue for the game loop to consume.
func (s *Session) readLoop() {
	defer s.Close()

	for {
		select {
		case <-s.closeCh:
			return
		default:
		}

		payload, err := s.conn.ReadFrame()
		if err != nil {
			if !s.closed.Load() {
				s.log.Debug("read error", zap.Error(err))
			}
			return
		}

		if s.limiter != nil && !s.limiter.Allow() {
			s.log.Warn("message rate exceeded, disconnecting")
			return
		}

		// Block until InQueue has space or the session closes. Only this
		// client's reader stalls.
		select {
		case s.InQueue <- payload:
		case <-s.closeCh:
			return
		}
	}
}

// writeLoop runs in its own goroutine. It reads messages from OutQueue and
// writes them as frames to the connection.
func (s *Session) writeLoop() {
	defer s.Close()

	for {
		select {
		case data := <-s.OutQueue:
			if !s.writeOne(data) {
				return
			}
		case <-s.closeCh:
			return
		}
	}
}

func (s *Session) writeOne(data []byte) bool {
	if len(data) > 0 {
		s.log.Debug("TX",
			zap.Uint8("kind", data[0]),
			zap.Int("len", len(data)),
		)
	}
	if err := s.conn.WriteFrame(data, time.Now().Add(s.writeTimeout)); err != nil {
		if !s.closed.Load() {
			s.log.Debug("write error", zap.Error(err))
		}
		return false
	}
	return true
}
