package system

import (
	"time"

	"go.uber.org/zap"

	coresys "github.com/tradewind/server/internal/core/system"
)

// LineRunner executes one console line.
type LineRunner interface {
	Exec(line string) error
}

// ConsoleSystem runs console lines queued by the stdin reader inside the
// game loop, so scripts see the world between ticks. Phase 0 (Input).
type ConsoleSystem struct {
	runner LineRunner
	lines  <-chan string
	log    *zap.Logger
}

func NewConsoleSystem(runner LineRunner, lines <-chan string, log *zap.Logger) *ConsoleSystem {
	return &ConsoleSystem{runner: runner, lines: lines, log: log}
}

func (s *ConsoleSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *ConsoleSystem) Update(_ time.Duration) {
	for {
		select {
		case line, ok := <-s.lines:
			if !ok {
				return
			}
			if err := s.runner.Exec(line); err != nil {
				s.log.Warn("console error", zap.String("line", line), zap.Error(err))
			}
		default:
			return
		}
	}
}
