package system

import (
	"time"

	coresys "github.com/tradewind/server/internal/core/system"
	"github.com/tradewind/server/internal/net"
	"github.com/tradewind/server/internal/replication"
)

// OutputSystem pushes the periodic snapshot and flushes every session's
// buffered output to its writer goroutine. Phase 4 (Output).
type OutputSystem struct {
	host  *replication.Host
	store *net.SessionStore
}

func NewOutputSystem(host *replication.Host, store *net.SessionStore) *OutputSystem {
	return &OutputSystem{host: host, store: store}
}

func (s *OutputSystem) Phase() coresys.Phase { return coresys.PhaseOutput }

func (s *OutputSystem) Update(_ time.Duration) {
	s.host.Tick()
	s.store.ForEach(func(sess *net.Session) {
		sess.FlushOutput()
	})
}
