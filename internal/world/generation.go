package world

import (
	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/tradewind/server/internal/component"
	"github.com/tradewind/server/internal/core/ecs"
)

// GenConfig holds initial world population parameters.
type GenConfig struct {
	Seed      int64
	Markets   int // markets spawned at random positions
	Fields    int // generator buildings placed inside market discs
	Merchants int // merchants shuttling between consecutive markets
	Owner     int // family owning generated fields and merchants
}

// GenResult counts what Populate actually placed.
type GenResult struct {
	Markets   int
	Fields    int
	Merchants int
}

const (
	fertilityFrequency = 0.09
	attemptsPerField   = 40
	attemptsPerMarket  = 200
	merchantCargo      = 4
)

// Populate seeds an empty world with markets, fields and merchants. Fields
// favour fertile ground: a candidate position is kept with probability equal
// to the noise value there.
func (s *State) Populate(cfg GenConfig) GenResult {
	var res GenResult
	fertility := opensimplex.NewNormalized(cfg.Seed)

	var marketProto, merchantProto ecs.EntityID
	var fieldProtos []ecs.EntityID
	for _, bp := range s.blueprints {
		switch {
		case s.Market.Has(bp) && marketProto == ecs.Nil:
			marketProto = bp
		case s.Merchant.Has(bp) && merchantProto == ecs.Nil:
			merchantProto = bp
		case s.Generator.Has(bp):
			fieldProtos = append(fieldProtos, bp)
		}
	}
	if marketProto == ecs.Nil {
		return res
	}

	var markets []ecs.EntityID
	for i := 0; i < cfg.Markets; i++ {
		id, ok := s.SpawnAttempts(marketProto, attemptsPerMarket)
		if !ok {
			break
		}
		markets = append(markets, id)
		res.Markets++
	}
	if len(markets) == 0 {
		return res
	}

	if len(fieldProtos) > 0 {
		for i := 0; i < cfg.Fields; i++ {
			proto := fieldProtos[i%len(fieldProtos)]
			market := markets[s.Rand.Intn(len(markets))]
			m := s.Market.MustGet(market)
			centre := s.Site.MustGet(market).Position
			placed := retry(attemptsPerField, func() bool {
				p := s.SamplePointInDisc(centre, m.Radius)
				if s.Rand.Float64() >= fertility.Eval2(p.X*fertilityFrequency, p.Y*fertilityFrequency) {
					return false
				}
				_, ok := s.TryPlace(cfg.Owner, proto, p)
				return ok
			})
			if placed {
				res.Fields++
			}
		}
	}

	if merchantProto == ecs.Nil || len(markets) < 2 || len(fieldProtos) == 0 {
		return res
	}
	for i := 0; i < cfg.Merchants; i++ {
		from, to := markets[i%len(markets)], markets[(i+1)%len(markets)]
		cargo := s.Generator.MustGet(fieldProtos[i%len(fieldProtos)]).Output
		id, ok := s.CreateMerchant(cfg.Owner, merchantProto, s.Site.MustGet(from).Position)
		if !ok {
			continue
		}
		s.Embark(id, component.Route{Stops: []component.Stop{
			{Where: from, LeaveWith: map[ecs.EntityID]int{cargo: merchantCargo}},
			{Where: to, LeaveWith: map[ecs.EntityID]int{}},
		}})
		res.Merchants++
	}
	return res
}
