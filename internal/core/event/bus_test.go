package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventsAreDeliveredNextTick(t *testing.T) {
	b := NewBus()
	var got []TradeCompleted
	Subscribe(b, func(ev TradeCompleted) { got = append(got, ev) })

	Emit(b, TradeCompleted{Units: 1})
	Emit(b, TradeCompleted{Units: 2})
	assert.Equal(t, 2, Pending[TradeCompleted](b))

	b.DispatchAll()
	assert.Empty(t, got, "nothing is visible before the swap")

	b.SwapBuffers()
	b.DispatchAll()
	assert.Equal(t, []TradeCompleted{{Units: 1}, {Units: 2}}, got)

	b.SwapBuffers()
	b.DispatchAll()
	assert.Len(t, got, 2, "events are delivered once")
}

func TestFanOutAndTypeIsolation(t *testing.T) {
	b := NewBus()
	var trades, spawns, second int
	Subscribe(b, func(TradeCompleted) { trades++ })
	Subscribe(b, func(TradeCompleted) { second++ })
	Subscribe(b, func(EntitySpawned) { spawns++ })

	Emit(b, TradeCompleted{})
	Emit(b, EntitySpawned{})
	Emit(b, EntitySpawned{})
	b.SwapBuffers()
	b.DispatchAll()

	assert.Equal(t, 1, trades)
	assert.Equal(t, 1, second)
	assert.Equal(t, 2, spawns)
}

func TestEmitFromHandlerLandsNextTick(t *testing.T) {
	b := NewBus()
	var left int
	Subscribe(b, func(ev PeerJoined) { Emit(b, PeerLeft{SessionID: ev.SessionID}) })
	Subscribe(b, func(PeerLeft) { left++ })

	Emit(b, PeerJoined{SessionID: 7})
	b.SwapBuffers()
	b.DispatchAll()
	assert.Equal(t, 0, left)

	b.SwapBuffers()
	b.DispatchAll()
	assert.Equal(t, 1, left)
}
