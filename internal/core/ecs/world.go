package ecs

// World is the top-level ECS container. It owns the entity pool and the
// component registry. Destruction is immediate: the id is invalidated and every
// registered store drops the entity's data.
type World struct {
	pool     *EntityPool
	registry *Registry
}

func NewWorld() *World {
	return &World{
		pool:     NewEntityPool(),
		registry: NewRegistry(),
	}
}

func (w *World) Pool() *EntityPool   { return w.pool }
func (w *World) Registry() *Registry { return w.registry }

func (w *World) CreateEntity() EntityID {
	return w.pool.Create()
}

// CreateEntityWithID revives a specific id, failing with ErrEntityAlive if it is
// already live.
func (w *World) CreateEntityWithID(id EntityID) error {
	return w.pool.CreateWithID(id)
}

func (w *World) Alive(id EntityID) bool {
	return w.pool.Alive(id)
}

// Destroy removes id and all of its components. Stale ids are ignored.
func (w *World) Destroy(id EntityID) bool {
	if !w.pool.Alive(id) {
		return false
	}
	w.registry.RemoveAll(id)
	return w.pool.Destroy(id)
}

// Len returns the number of live entities.
func (w *World) Len() int { return w.pool.Len() }
