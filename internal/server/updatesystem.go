package server

import (
	"github.com/andersfylling/slipstream/internal/protocol"
)

// sendClientUpdates is the replication filter: for each connected client it
// centers the client's area of interest on its entity, collects the dirty
// entities inside it, and queues the resulting update. A client whose input
// was dropped since the last update additionally gets its own authoritative
// state so it can correct its prediction. Clients with nothing in range get
// an explicit no-change confirmation so their replication buffer can
// advance without waiting.
func (s *Sim) sendClientUpdates() {
	tick := s.currentTick.Load()

	// Snapshot the dirty entities once; each client filters the same set.
	dirty := s.world.Dirty()
	snapshots := make([]protocol.EntityState, 0, len(dirty))
	for id := range dirty {
		if snap, ok := s.world.Snapshot(id); ok {
			snapshots = append(snapshots, snap)
		}
	}

	radiusSq := float32(s.cfg.AOIRadius * s.cfg.AOIRadius)

	for netID, entry := range s.clients {
		_, clientPos, _, _, _, ok := s.world.Body(entry.entity)
		if !ok {
			continue
		}

		update := protocol.EntityUpdate{Tick: tick}
		for i := range snapshots {
			if inAOI(clientPos.X, clientPos.Y, snapshots[i].Position, radiusSq) {
				update.Entities = append(update.Entities, snapshots[i])
			}
		}

		// A mispredicting client needs to know the state it's actually in,
		// even if its own entity didn't change this tick.
		if client, found := s.network.Client(netID); found && client.ConsumeInputDropped() {
			if !containsEntity(update.Entities, entry.entity) {
				if snap, found := s.world.Snapshot(entry.entity); found {
					update.Entities = append(update.Entities, snap)
				}
			}
		}

		if len(update.Entities) > 0 {
			s.network.Send(netID, &update)
		} else {
			s.network.Send(netID, &protocol.ExplicitConfirmation{Tick: tick})
		}
	}

	s.world.ClearDirty()
}

func inAOI(cx, cy float32, pos protocol.Vec3, radiusSq float32) bool {
	dx := pos.X - cx
	dy := pos.Y - cy
	return dx*dx+dy*dy <= radiusSq
}

func containsEntity(states []protocol.EntityState, id protocol.EntityID) bool {
	for i := range states {
		if states[i].Entity == id {
			return true
		}
	}
	return false
}
