// Package tilemap holds the world's tile grid and the bounding-box math
// shared by both sides of the simulation.
package tilemap

// TileFlag represents the properties of a tile.
type TileFlag uint8

const (
	TileEmpty  TileFlag = 0
	TileSolid  TileFlag = 1 << iota // Blocks movement
	TileHazard                      // Damages on contact
)

// TileSize is the world-unit extent of one tile on each axis.
const TileSize = 1.0

// TileMap holds the collision data for the world.
type TileMap struct {
	Width  int
	Height int
	Tiles  []TileFlag
}

// New creates a tile map with the given dimensions, walled on all edges.
func New(width, height int) *TileMap {
	m := &TileMap{
		Width:  width,
		Height: height,
		Tiles:  make([]TileFlag, width*height),
	}
	for x := 0; x < width; x++ {
		m.Set(x, 0, TileSolid)
		m.Set(x, height-1, TileSolid)
	}
	for y := 0; y < height; y++ {
		m.Set(0, y, TileSolid)
		m.Set(width-1, y, TileSolid)
	}
	return m
}

// Get returns the tile flag at the given position. Out of bounds reads as
// solid.
func (m *TileMap) Get(x, y int) TileFlag {
	if x < 0 || x >= m.Width || y < 0 || y >= m.Height {
		return TileSolid
	}
	return m.Tiles[y*m.Width+x]
}

// Set sets the tile flag at the given position.
func (m *TileMap) Set(x, y int, flag TileFlag) {
	if x < 0 || x >= m.Width || y < 0 || y >= m.Height {
		return
	}
	m.Tiles[y*m.Width+x] = flag
}

// IsSolid checks if the tile blocks movement.
func (m *TileMap) IsSolid(x, y int) bool {
	return m.Get(x, y)&TileSolid != 0
}

// ClampPosition clamps a world position to the walkable interior of the
// map: inside the edge walls on x and y.
func (m *TileMap) ClampPosition(x, y float32) (float32, float32) {
	minEdge := float32(TileSize)
	maxX := float32(m.Width-1) * TileSize
	maxY := float32(m.Height-1) * TileSize
	if x < minEdge {
		x = minEdge
	} else if x > maxX {
		x = maxX
	}
	if y < minEdge {
		y = minEdge
	} else if y > maxY {
		y = maxY
	}
	return x, y
}
