package sim

import (
	"github.com/andersfylling/slipstream/internal/protocol"
	"github.com/andersfylling/slipstream/internal/tilemap"
)

// MovementSpeed is the constant movement speed in world units per second.
const MovementSpeed = 30.0

// diagonalNormalization scales a diagonal direction vector to the same
// magnitude as cardinal movement. sin(45) == cos(45) == 0.70710678118.
const diagonalNormalization = 0.70710678118

// UpdateVelocity derives an entity's velocity from its input vector.
// Opposite inputs cancel each other out.
func UpdateVelocity(states protocol.InputVector) Velocity {
	xDir := float32(boolToInt(states.IsPressed(protocol.XUp)) - boolToInt(states.IsPressed(protocol.XDown)))
	yDir := float32(boolToInt(states.IsPressed(protocol.YUp)) - boolToInt(states.IsPressed(protocol.YDown)))
	zDir := float32(boolToInt(states.IsPressed(protocol.ZUp)) - boolToInt(states.IsPressed(protocol.ZDown)))

	if xDir != 0 && yDir != 0 {
		xDir *= diagonalNormalization
		yDir *= diagonalNormalization
	}

	return Velocity{
		X: xDir * MovementSpeed,
		Y: yDir * MovementSpeed,
		Z: zDir * MovementSpeed,
	}
}

// UpdatePosition advances a position by one timestep of the given velocity,
// clamped to the walkable interior of the map.
func UpdatePosition(pos Position, vel Velocity, delta float64, tiles *tilemap.TileMap) Position {
	next := Position{
		X: pos.X + float32(delta)*vel.X,
		Y: pos.Y + float32(delta)*vel.Y,
		Z: pos.Z + float32(delta)*vel.Z,
	}
	if tiles != nil {
		next.X, next.Y = tiles.ClampPosition(next.X, next.Y)
	}
	return next
}

// Step advances one entity by one simulation step under the given input.
// This is the single movement routine used by the server's authoritative
// advance, the client's prediction and replay, and NPC replication, so all
// of them agree bit-for-bit.
func Step(in *Input, pos *Position, vel *Velocity, box *BoundingBox, states protocol.InputVector, delta float64, tiles *tilemap.TileMap) {
	in.States = states
	*vel = UpdateVelocity(states)
	*pos = UpdatePosition(*pos, *vel, delta, tiles)
	box.Box = box.Box.CenteredOn(pos.X, pos.Y)
}

// Interpolate blends the previous and current position for display.
func Interpolate(prev PreviousPosition, pos Position, alpha float64) (float32, float32, float32) {
	a := float32(alpha)
	return pos.X*a + prev.X*(1-a),
		pos.Y*a + prev.Y*(1-a),
		pos.Z*a + prev.Z*(1-a)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
