package tilemap

// AABB is an axis-aligned bounding box.
type AABB struct {
	X, Y          float32 // Top-left corner
	Width, Height float32
}

// NewAABB creates a bounding box.
func NewAABB(x, y, w, h float32) AABB {
	return AABB{X: x, Y: y, Width: w, Height: h}
}

// Center returns the center point of the box.
func (a AABB) Center() (float32, float32) {
	return a.X + a.Width/2, a.Y + a.Height/2
}

// Overlaps checks if two boxes overlap.
func (a AABB) Overlaps(b AABB) bool {
	return a.X < b.X+b.Width &&
		a.X+a.Width > b.X &&
		a.Y < b.Y+b.Height &&
		a.Y+a.Height > b.Y
}

// Contains checks if a point is inside the box.
func (a AABB) Contains(x, y float32) bool {
	return x >= a.X && x < a.X+a.Width &&
		y >= a.Y && y < a.Y+a.Height
}

// CenteredOn returns a copy of the box repositioned so its center is (x, y).
func (a AABB) CenteredOn(x, y float32) AABB {
	return AABB{
		X:      x - a.Width/2,
		Y:      y - a.Height/2,
		Width:  a.Width,
		Height: a.Height,
	}
}
