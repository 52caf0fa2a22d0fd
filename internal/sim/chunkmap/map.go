package chunkmap

import "github.com/go-gl/mathgl/mgl32"

// Map is the single-buffered chunk cache. Every method must be called from the
// goroutine that owns the map; only chunk generation runs elsewhere.
type Map[T any] struct {
	pipeline[T]

	loaded chunkTable[T]
}

func New[T any](producer Producer[T], opts Options) *Map[T] {
	return &Map[T]{
		pipeline: newPipeline(producer, opts),
		loaded:   chunkTable[T]{},
	}
}

func (m *Map[T]) isLoaded(c ChunkCoords) bool {
	_, ok := m.loaded[c]
	return ok
}

// Get returns the cell at p. On a miss it requests the chunk and returns the
// producer's default.
func (m *Map[T]) Get(p Point) T {
	v, _ := m.get(m.loaded, p, m.isLoaded)
	return v
}

// GetOption is Get without the default: a miss still requests the chunk.
func (m *Map[T]) GetOption(p Point) (T, bool) {
	v, ok := m.get(m.loaded, p, m.isLoaded)
	if !ok {
		var zero T
		return zero, false
	}
	return v, true
}

func (m *Map[T]) GetRounded(pos mgl32.Vec2) T {
	return m.Get(TileRounded(pos, m.tileSize))
}

func (m *Map[T]) GetRoundedOption(pos mgl32.Vec2) (T, bool) {
	return m.GetOption(TileRounded(pos, m.tileSize))
}

// Read never requests anything.
func (m *Map[T]) Read(p Point) (T, bool) {
	return m.lookup(m.loaded, p)
}

func (m *Map[T]) ReadRounded(pos mgl32.Vec2) (T, bool) {
	return m.Read(TileRounded(pos, m.tileSize))
}

// Write sets p directly when its chunk is loaded; otherwise the value is queued
// (last write wins) and the chunk is requested.
func (m *Map[T]) Write(p Point, v T) {
	m.write(m.loaded, p, v, m.isLoaded)
}

// Init requests the square of chunks around the origin that covers radiusTiles.
func (m *Map[T]) Init(radiusTiles int) int {
	return m.initRadius(radiusTiles, m.isLoaded)
}

// LoadAround is the per-actor loader: chunks outside the focus square are
// evicted and missing ones requested.
func (m *Map[T]) LoadAround(focus mgl32.Vec2) {
	required := RequiredAround(ChunkFromWorld(focus, m.chunkSize), m.renderDistance)
	m.Retain(required)
	m.reveal(required, m.isLoaded)
}

// RevealAround is the shared loader: it only requests, never evicts.
func (m *Map[T]) RevealAround(focus mgl32.Vec2) int {
	required := RequiredAround(ChunkFromWorld(focus, m.chunkSize), m.renderDistance)
	return m.reveal(required, m.isLoaded)
}

// Retain evicts every loaded chunk not in required.
func (m *Map[T]) Retain(required map[ChunkCoords]struct{}) int {
	n := 0
	for c := range m.loaded {
		if _, ok := required[c]; !ok {
			delete(m.loaded, c)
			n++
		}
	}
	m.evicted += uint64(n)
	return n
}

func (m *Map[T]) SpawnRequested() int { return m.spawn() }

func (m *Map[T]) CompleteFinished() []Generated {
	return m.complete(func(c ChunkCoords, ch *Chunk[T]) { m.loaded[c] = ch })
}

// Tick runs one loader, spawn and completion pass. Each focus reveals its
// square; with at least one focus, chunks outside the union are evicted.
func (m *Map[T]) Tick(focuses []mgl32.Vec2) []Generated {
	if len(focuses) > 0 {
		centers := make([]ChunkCoords, 0, len(focuses))
		for _, f := range focuses {
			m.RevealAround(f)
			centers = append(centers, ChunkFromWorld(f, m.chunkSize))
		}
		m.Retain(RequiredUnion(centers, m.renderDistance))
	}
	m.SpawnRequested()
	return m.CompleteFinished()
}

func (m *Map[T]) State(c ChunkCoords) ChunkState { return m.state(c, m.isLoaded) }

func (m *Map[T]) Chunk(c ChunkCoords) (*Chunk[T], bool) {
	ch, ok := m.loaded[c]
	return ch, ok
}

// LoadedChunks returns loaded coordinates sorted by X then Y.
func (m *Map[T]) LoadedChunks() []ChunkCoords { return sortedCoords(m.loaded) }

func (m *Map[T]) Stats() Stats { return m.stats(len(m.loaded)) }
