package system

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tradewind/server/internal/component"
	"github.com/tradewind/server/internal/core/ecs"
	"github.com/tradewind/server/internal/core/event"
	coresys "github.com/tradewind/server/internal/core/system"
	"github.com/tradewind/server/internal/persist"
	"github.com/tradewind/server/internal/world"
)

// LedgerSystem journals every settled trade plus periodic market price
// samples, and flushes them to the ledger every interval ticks. Phase 5
// (Persist).
type LedgerSystem struct {
	world     *world.State
	journal   *persist.Journal
	worldID   uuid.UUID
	log       *zap.Logger
	ticks     uint64
	tickCount int
	interval  int // flush every N ticks
}

func NewLedgerSystem(ws *world.State, journal *persist.Journal, worldID uuid.UUID, log *zap.Logger, intervalTicks int) *LedgerSystem {
	if intervalTicks < 1 {
		intervalTicks = 1
	}
	s := &LedgerSystem{
		world:    ws,
		journal:  journal,
		worldID:  worldID,
		log:      log,
		interval: intervalTicks,
	}
	event.Subscribe(ws.Bus, s.onTrade)
	return s
}

func (s *LedgerSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *LedgerSystem) Update(_ time.Duration) {
	s.ticks++
	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0
	s.samplePrices()
	s.Flush()
}

// Flush writes the journal now. Also called on shutdown.
func (s *LedgerSystem) Flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	trades, prices := s.journal.Pending()
	if trades == 0 && prices == 0 {
		return
	}
	if err := s.journal.Flush(ctx); err != nil {
		s.log.Error("ledger flush failed", zap.Int("trades", trades), zap.Int("prices", prices), zap.Error(err))
		return
	}
	s.log.Debug("ledger flushed", zap.Int("trades", trades), zap.Int("prices", prices))
}

func (s *LedgerSystem) onTrade(ev event.TradeCompleted) {
	s.journal.Record(persist.TradeRecord{
		WorldID:      s.worldID,
		Tick:         s.ticks,
		Market:       uint64(ev.Market),
		Commodity:    s.world.NameOf(ev.Commodity),
		Buyer:        uint64(ev.Buyer),
		Seller:       uint64(ev.Seller),
		BuyerFamily:  s.familyOf(ev.Buyer),
		SellerFamily: s.familyOf(ev.Seller),
		Units:        ev.Units,
		Price:        ev.Price,
	})
}

func (s *LedgerSystem) samplePrices() {
	s.world.Market.Each(func(id ecs.EntityID, m *component.Market) {
		for c, p := range m.Prices {
			s.journal.Sample(persist.PriceSample{
				WorldID:   s.worldID,
				Tick:      s.ticks,
				Market:    uint64(id),
				Commodity: s.world.NameOf(c),
				Price:     p,
				Demand:    m.Demand[c],
			})
		}
	})
}

func (s *LedgerSystem) familyOf(id ecs.EntityID) int {
	if t, ok := s.world.Trader.Get(id); ok {
		return t.FamilyID
	}
	return component.NoFamily
}
