package system

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Runner executes systems in phase order each tick. Systems sharing a phase
// run in registration order.
type Runner struct {
	systems  []System
	sorted   bool
	budget   time.Duration // 0 disables overrun reporting
	overruns uint64
	log      *zap.Logger
}

func NewRunner(log *zap.Logger, budget time.Duration) *Runner {
	return &Runner{
		systems: make([]System, 0, 16),
		budget:  budget,
		log:     log,
	}
}

func (r *Runner) Register(s System) {
	r.systems = append(r.systems, s)
	r.sorted = false
}

// Tick runs every system once. A tick that takes longer than the budget is
// reported together with the slowest system.
func (r *Runner) Tick(dt time.Duration) {
	r.ensureSorted()
	start := time.Now()
	var slowest System
	var slowestTook time.Duration
	for _, s := range r.systems {
		t0 := time.Now()
		s.Update(dt)
		if took := time.Since(t0); took > slowestTook {
			slowest, slowestTook = s, took
		}
	}
	if elapsed := time.Since(start); r.budget > 0 && elapsed > r.budget {
		r.overruns++
		r.log.Warn("tick over budget",
			zap.Duration("elapsed", elapsed),
			zap.Duration("budget", r.budget),
			zap.String("slowest", fmt.Sprintf("%T", slowest)),
			zap.Duration("slowest_took", slowestTook),
		)
	}
}

// TickPhase runs only the systems of one phase. The outer loop uses it to
// drain network input every frame between simulation ticks.
func (r *Runner) TickPhase(phase Phase, dt time.Duration) {
	r.ensureSorted()
	for _, s := range r.systems {
		if s.Phase() == phase {
			s.Update(dt)
		}
	}
}

// Overruns counts ticks that exceeded the budget.
func (r *Runner) Overruns() uint64 { return r.overruns }

func (r *Runner) ensureSorted() {
	if !r.sorted {
		sort.SliceStable(r.systems, func(i, j int) bool {
			return r.systems[i].Phase() < r.systems[j].Phase()
		})
		r.sorted = true
	}
}
