package packet

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// SessionState represents a connection's lifecycle phase.
type SessionState int

const (
	StateConnecting SessionState = iota
	StateAccepted                // transport set up, loops not yet running
	StateRejected                // refused by the server, never connected
	StateConnected               // exchanging messages, no hello yet
	StateJoined                  // hello accepted
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "Connecting"
	case StateAccepted:
		return "Accepted"
	case StateRejected:
		return "Rejected"
	case StateConnected:
		return "Connected"
	case StateJoined:
		return "Joined"
	case StateClosed:
		return "Closed"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// ErrHandlerPanic wraps a recovered handler panic. The sender of the message
// is not trusted afterwards.
var ErrHandlerPanic = errors.New("packet: handler panicked")

// HandlerFunc is the callback signature for message handlers.
// The session pointer is passed as an opaque interface to avoid import cycles.
type HandlerFunc func(sess any, r *Reader)

type handlerEntry struct {
	fn            HandlerFunc
	allowedStates map[SessionState]bool
}

// Registry maps kind bytes to handlers with state-based access control.
type Registry struct {
	handlers map[byte]*handlerEntry
	log      *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		handlers: make(map[byte]*handlerEntry),
		log:      log,
	}
}

// Register maps a kind to a handler, restricted to the given session states.
func (reg *Registry) Register(kind byte, states []SessionState, fn HandlerFunc) {
	allowed := make(map[SessionState]bool, len(states))
	for _, s := range states {
		allowed[s] = true
	}
	reg.handlers[kind] = &handlerEntry{
		fn:            fn,
		allowedStates: allowed,
	}
}

// Dispatch finds the handler for the kind in data[0], validates the session
// state, and calls the handler. Unknown kinds are logged and dropped.
func (reg *Registry) Dispatch(sess any, state SessionState, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty message")
	}
	kind := data[0]
	reg.log.Debug("message received",
		zap.Uint8("kind", kind),
		zap.Int("size", len(data)),
		zap.Stringer("state", state),
	)

	entry, ok := reg.handlers[kind]
	if !ok {
		reg.log.Warn("unknown message kind dropped", zap.Uint8("kind", kind), zap.Stringer("state", state))
		return nil
	}

	if !entry.allowedStates[state] {
		reg.log.Warn("message kind not allowed in state",
			zap.Uint8("kind", kind),
			zap.Stringer("state", state),
		)
		return fmt.Errorf("kind %d not allowed in state %s", kind, state)
	}

	r := NewReader(data)
	return reg.safeCall(entry.fn, sess, r, kind)
}

// safeCall executes a handler with panic recovery to prevent a single
// bad message from crashing the entire game loop.
func (reg *Registry) safeCall(fn HandlerFunc, sess any, r *Reader, kind byte) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			reg.log.Error("handler panic recovered",
				zap.Uint8("kind", kind),
				zap.Any("panic", rec),
			)
			err = fmt.Errorf("kind %d: %w: %v", kind, ErrHandlerPanic, rec)
		}
	}()
	fn(sess, r)
	return nil
}
