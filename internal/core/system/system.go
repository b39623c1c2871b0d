package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput      Phase = iota // 0: drain message queues, console lines
	PhasePreUpdate               // 1: deliver last tick's events
	PhaseUpdate                  // 2: economy
	PhasePostUpdate              // 3: merchant itineraries
	PhaseOutput                  // 4: build + send replication messages
	PhasePersist                 // 5: ledger flush
)

// System is the interface every ECS system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
