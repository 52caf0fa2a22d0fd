package chunkmap

// Grid is a square, row-major array of cells (index = y*dim + x).
type Grid[T any] struct {
	dim   int
	cells []T
}

func NewGrid[T any](dim int, fill T) *Grid[T] {
	if dim < 0 {
		dim = 0
	}
	cells := make([]T, dim*dim)
	for i := range cells {
		cells[i] = fill
	}
	return &Grid[T]{dim: dim, cells: cells}
}

func (g *Grid[T]) index(x, y int) (int, bool) {
	if x < 0 || y < 0 || x >= g.dim || y >= g.dim {
		return 0, false
	}
	return y*g.dim + x, true
}

func (g *Grid[T]) Dimension() int { return g.dim }

func (g *Grid[T]) Get(x, y int) (T, bool) {
	i, ok := g.index(x, y)
	if !ok {
		var zero T
		return zero, false
	}
	return g.cells[i], true
}

// Ptr returns a pointer to the cell, or nil when out of bounds.
func (g *Grid[T]) Ptr(x, y int) *T {
	i, ok := g.index(x, y)
	if !ok {
		return nil
	}
	return &g.cells[i]
}

func (g *Grid[T]) Set(x, y int, v T) bool {
	i, ok := g.index(x, y)
	if !ok {
		return false
	}
	g.cells[i] = v
	return true
}

func (g *Grid[T]) Cells() []T { return g.cells }

func (g *Grid[T]) Clone() *Grid[T] {
	out := &Grid[T]{dim: g.dim, cells: make([]T, len(g.cells))}
	copy(out.cells, g.cells)
	return out
}

// Chunk is the unit of generation and storage. The owning map keys it by coordinate.
type Chunk[T any] struct {
	Grid *Grid[T]

	version uint64
}

func NewChunk[T any](dim int, fill T) *Chunk[T] {
	return &Chunk[T]{Grid: NewGrid(dim, fill)}
}

// Version increments on every cell write applied through a map.
func (c *Chunk[T]) Version() uint64 { return c.version }

func (c *Chunk[T]) Clone() *Chunk[T] {
	return &Chunk[T]{Grid: c.Grid.Clone(), version: c.version}
}

func (c *Chunk[T]) set(x, y int, v T) bool {
	if !c.Grid.Set(x, y, v) {
		return false
	}
	c.version++
	return true
}
