package chunkmap

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"tilelight.ai/internal/sim/mathx"
)

const (
	TileSizeUnits         float32 = 16
	DefaultChunkDim               = 16
	DefaultRenderDistance         = 3
)

// Point is an absolute tile coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Point) Add(o Point) Point { return Point{X: p.X + o.X, Y: p.Y + o.Y} }
func (p Point) Sub(o Point) Point { return Point{X: p.X - o.X, Y: p.Y - o.Y} }

// ChunkCoords is an absolute chunk coordinate.
type ChunkCoords struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// TileFromWorld floors a world position into tile space.
func TileFromWorld(pos mgl32.Vec2, tileSize float32) Point {
	return Point{
		X: int(math.Floor(float64(pos.X() / tileSize))),
		Y: int(math.Floor(float64(pos.Y() / tileSize))),
	}
}

// TileRounded snaps a world position to the nearest tile centre.
func TileRounded(pos mgl32.Vec2, tileSize float32) Point {
	return Point{
		X: int(math.Round(float64(pos.X() / tileSize))),
		Y: int(math.Round(float64(pos.Y() / tileSize))),
	}
}

func ChunkFromPoint(p Point, dim int) ChunkCoords {
	return ChunkCoords{X: mathx.FloorDiv(p.X, dim), Y: mathx.FloorDiv(p.Y, dim)}
}

func ChunkFromWorld(pos mgl32.Vec2, chunkSizeUnits float32) ChunkCoords {
	return ChunkCoords{
		X: int(math.Floor(float64(pos.X() / chunkSizeUnits))),
		Y: int(math.Floor(float64(pos.Y() / chunkSizeUnits))),
	}
}

// LocalFromTile returns the in-chunk cell of an absolute tile.
func LocalFromTile(p Point, dim int) (x, y int) {
	return mathx.Mod(p.X, dim), mathx.Mod(p.Y, dim)
}

func (c ChunkCoords) BottomLeftTile(dim int) Point {
	return Point{X: c.X * dim, Y: c.Y * dim}
}

func (c ChunkCoords) WorldCorner(chunkSizeUnits float32) mgl32.Vec2 {
	return mgl32.Vec2{float32(c.X) * chunkSizeUnits, float32(c.Y) * chunkSizeUnits}
}

// Contains reports whether p lies inside the chunk's tile bounding box.
func (c ChunkCoords) Contains(p Point, dim int) bool {
	bl := c.BottomLeftTile(dim)
	return p.X >= bl.X && p.X < bl.X+dim && p.Y >= bl.Y && p.Y < bl.Y+dim
}

func lessCoords(a, b ChunkCoords) bool {
	if a.X != b.X {
		return a.X < b.X
	}
	return a.Y < b.Y
}
