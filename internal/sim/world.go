package sim

import (
	"github.com/mlange-42/ark/ecs"
	"github.com/pkg/errors"

	"github.com/andersfylling/slipstream/internal/protocol"
	"github.com/andersfylling/slipstream/internal/tilemap"
)

// World is the entity registry. Entities are addressed by their session-wide
// protocol.EntityID; the ark entity handles stay internal so that client and
// server code never hold cross-references by pointer.
//
// Only the owning simulation task mutates a World.
type World struct {
	registry   *ecs.World
	bodies     *ecs.Map5[Input, Position, PreviousPosition, Velocity, BoundingBox]
	bodyFilter *ecs.Filter5[Input, Position, PreviousPosition, Velocity, BoundingBox]

	byID map[protocol.EntityID]ecs.Entity
	ids  map[ecs.Entity]protocol.EntityID

	dirty  map[protocol.EntityID]struct{}
	nextID protocol.EntityID

	tiles *tilemap.TileMap
}

// NewWorld creates an empty world over the given tile map.
func NewWorld(tiles *tilemap.TileMap) *World {
	w := &World{
		byID:  make(map[protocol.EntityID]ecs.Entity),
		ids:   make(map[ecs.Entity]protocol.EntityID),
		dirty: make(map[protocol.EntityID]struct{}),
		tiles: tiles,
	}
	w.registry = ecs.NewWorld()
	w.bodies = ecs.NewMap5[Input, Position, PreviousPosition, Velocity, BoundingBox](w.registry)
	w.bodyFilter = ecs.NewFilter5[Input, Position, PreviousPosition, Velocity, BoundingBox](w.registry)
	return w
}

// Tiles returns the world's tile map.
func (w *World) Tiles() *tilemap.TileMap { return w.tiles }

// SetTiles replaces the tile map; used by the client once the server's map
// size arrives.
func (w *World) SetTiles(tiles *tilemap.TileMap) { w.tiles = tiles }

// Spawn creates a new entity at pos and returns its freshly allocated ID.
// Server side only; clients receive their IDs from the server.
func (w *World) Spawn(pos Position) protocol.EntityID {
	w.nextID++
	id := w.nextID
	w.spawn(id, pos)
	return id
}

// SpawnWithID creates an entity under a server-assigned ID.
func (w *World) SpawnWithID(id protocol.EntityID, pos Position) error {
	if _, exists := w.byID[id]; exists {
		return errors.Errorf("entity %d already exists", id)
	}
	w.spawn(id, pos)
	return nil
}

func (w *World) spawn(id protocol.EntityID, pos Position) {
	prev := PreviousPosition{X: pos.X, Y: pos.Y, Z: pos.Z, Initialized: true}
	bounds := DefaultBounds(pos)
	entity := w.bodies.NewEntity(
		&Input{},
		&pos,
		&prev,
		&Velocity{},
		&bounds,
	)
	w.byID[id] = entity
	w.ids[entity] = id
}

// Remove destroys an entity. Removing an unknown ID is a no-op.
func (w *World) Remove(id protocol.EntityID) {
	entity, ok := w.byID[id]
	if !ok {
		return
	}
	delete(w.byID, id)
	delete(w.ids, entity)
	delete(w.dirty, id)
	w.registry.RemoveEntity(entity)
}

// Has reports whether an entity with the given ID exists.
func (w *World) Has(id protocol.EntityID) bool {
	_, ok := w.byID[id]
	return ok
}

// Body returns pointers to an entity's components. The pointers are valid
// until the next structural world change.
func (w *World) Body(id protocol.EntityID) (*Input, *Position, *PreviousPosition, *Velocity, *BoundingBox, bool) {
	entity, ok := w.byID[id]
	if !ok {
		return nil, nil, nil, nil, nil, false
	}
	in, pos, prev, vel, box := w.bodies.Get(entity)
	return in, pos, prev, vel, box, true
}

// ForEachBody runs fn for every entity, in registry iteration order.
func (w *World) ForEachBody(fn func(id protocol.EntityID, in *Input, pos *Position, prev *PreviousPosition, vel *Velocity, box *BoundingBox)) {
	query := w.bodyFilter.Query()
	for query.Next() {
		in, pos, prev, vel, box := query.Get()
		fn(w.ids[query.Entity()], in, pos, prev, vel, box)
	}
}

// Count returns the number of live entities.
func (w *World) Count() int { return len(w.byID) }

// MarkDirty flags an entity as changed this tick.
func (w *World) MarkDirty(id protocol.EntityID) {
	if _, ok := w.byID[id]; ok {
		w.dirty[id] = struct{}{}
	}
}

// Dirty returns the set of entities changed this tick. The map is owned by
// the world; callers must not retain it past ClearDirty.
func (w *World) Dirty() map[protocol.EntityID]struct{} { return w.dirty }

// ClearDirty resets the dirty set at the end of a tick.
func (w *World) ClearDirty() {
	for id := range w.dirty {
		delete(w.dirty, id)
	}
}

// Snapshot captures an entity's wire-level state.
func (w *World) Snapshot(id protocol.EntityID) (protocol.EntityState, bool) {
	in, pos, _, vel, _, ok := w.Body(id)
	if !ok {
		return protocol.EntityState{}, false
	}
	return protocol.EntityState{
		Entity:   id,
		Input:    in.States,
		Position: pos.Vec3(),
		Velocity: vel.Vec3(),
	}, true
}

// Clear removes every entity; used when a client connection is torn down.
func (w *World) Clear() {
	for id := range w.byID {
		w.Remove(id)
	}
	w.nextID = 0
}
