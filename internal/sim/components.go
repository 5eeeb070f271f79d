// Package sim holds the entity registry, the components shared by both
// sides, and the movement model they step entities with.
package sim

import (
	"github.com/andersfylling/slipstream/internal/protocol"
	"github.com/andersfylling/slipstream/internal/tilemap"
)

// Position component, in world units.
type Position struct {
	X, Y, Z float32
}

// PreviousPosition component; the position at the start of the current tick,
// kept for display interpolation.
type PreviousPosition struct {
	X, Y, Z float32
	Initialized bool
}

// Velocity component, in world units per second.
type Velocity struct {
	X, Y, Z float32
}

// Input component; the entity's current input vector.
type Input struct {
	States protocol.InputVector
}

// BoundingBox component; the entity's world-space bounds.
type BoundingBox struct {
	Box tilemap.AABB
}

// DefaultBounds is the bounding box given to freshly spawned entities,
// centered on their position.
func DefaultBounds(pos Position) BoundingBox {
	return BoundingBox{Box: tilemap.NewAABB(0, 0, 0.9, 0.9).CenteredOn(pos.X, pos.Y)}
}

// Vec3 converts a position to its wire representation.
func (p Position) Vec3() protocol.Vec3 {
	return protocol.Vec3{X: p.X, Y: p.Y, Z: p.Z}
}

// Vec3 converts a velocity to its wire representation.
func (v Velocity) Vec3() protocol.Vec3 {
	return protocol.Vec3{X: v.X, Y: v.Y, Z: v.Z}
}

// PositionFromVec3 converts a wire vector to a position component.
func PositionFromVec3(v protocol.Vec3) Position {
	return Position{X: v.X, Y: v.Y, Z: v.Z}
}

// VelocityFromVec3 converts a wire vector to a velocity component.
func VelocityFromVec3(v protocol.Vec3) Velocity {
	return Velocity{X: v.X, Y: v.Y, Z: v.Z}
}
