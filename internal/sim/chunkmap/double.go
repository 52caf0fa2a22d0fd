package chunkmap

import "github.com/go-gl/mathgl/mgl32"

type changeKind uint8

const (
	changeInsert changeKind = iota + 1
	changeCell
	changeEvict
)

// change is one mutation of the write buffer, replayed into the other
// generation after the next swap.
type change[T any] struct {
	kind   changeKind
	coords ChunkCoords
	chunk  *Chunk[T]
	x, y   int
	value  T
}

// DoubleMap exposes a read snapshot that stays fixed for a whole tick while
// writes and merges accumulate in the write buffer. Per tick the owner must run
// LoadUnload, SpawnRequested, CompleteFinished and then SwapBuffers, in that order.
type DoubleMap[T any] struct {
	pipeline[T]

	readBuf  chunkTable[T]
	writeBuf chunkTable[T]

	// journal records this tick's write-buffer mutations; behind holds the
	// mutations the current write buffer has not seen yet.
	journal []change[T]
	behind  []change[T]
}

func NewDouble[T any](producer Producer[T], opts Options) *DoubleMap[T] {
	return &DoubleMap[T]{
		pipeline: newPipeline(producer, opts),
		readBuf:  chunkTable[T]{},
		writeBuf: chunkTable[T]{},
	}
}

func (d *DoubleMap[T]) isLoaded(c ChunkCoords) bool {
	if _, ok := d.readBuf[c]; ok {
		return true
	}
	_, ok := d.writeBuf[c]
	return ok
}

func (d *DoubleMap[T]) inWrite(c ChunkCoords) bool {
	_, ok := d.writeBuf[c]
	return ok
}

// SwapBuffers exchanges the buffers in O(1). The journal becomes the backlog of
// the new write buffer and is replayed before its first mutation.
func (d *DoubleMap[T]) SwapBuffers() {
	// Only non-empty when no mutation ran since the previous swap.
	d.settle()
	d.readBuf, d.writeBuf = d.writeBuf, d.readBuf
	d.behind, d.journal = d.journal, d.behind
}

// settle brings the write buffer up to date with the previous tick's mutations.
func (d *DoubleMap[T]) settle() {
	if len(d.behind) == 0 {
		return
	}
	for _, ch := range d.behind {
		switch ch.kind {
		case changeInsert:
			d.writeBuf[ch.coords] = ch.chunk.Clone()
		case changeCell:
			if dst, ok := d.writeBuf[ch.coords]; ok {
				dst.set(ch.x, ch.y, ch.value)
			}
		case changeEvict:
			delete(d.writeBuf, ch.coords)
		}
	}
	clear(d.behind)
	d.behind = d.behind[:0]
}

// Get, GetOption, Init and State settle first: a write buffer still holding
// chunks evicted last tick must not count as loaded.
func (d *DoubleMap[T]) Get(p Point) T {
	d.settle()
	v, _ := d.get(d.readBuf, p, d.isLoaded)
	return v
}

func (d *DoubleMap[T]) GetOption(p Point) (T, bool) {
	d.settle()
	v, ok := d.get(d.readBuf, p, d.isLoaded)
	if !ok {
		var zero T
		return zero, false
	}
	return v, true
}

func (d *DoubleMap[T]) GetRounded(pos mgl32.Vec2) T {
	return d.Get(TileRounded(pos, d.tileSize))
}

func (d *DoubleMap[T]) GetRoundedOption(pos mgl32.Vec2) (T, bool) {
	return d.GetOption(TileRounded(pos, d.tileSize))
}

func (d *DoubleMap[T]) Read(p Point) (T, bool) {
	return d.lookup(d.readBuf, p)
}

func (d *DoubleMap[T]) ReadRounded(pos mgl32.Vec2) (T, bool) {
	return d.Read(TileRounded(pos, d.tileSize))
}

// Write targets the write buffer; the value becomes readable after the next swap
// (or immediately through the write queue when the read snapshot lacks the chunk).
func (d *DoubleMap[T]) Write(p Point, v T) {
	d.settle()
	c, applied := d.write(d.writeBuf, p, v, d.inWrite)
	if !applied {
		return
	}
	lx, ly := LocalFromTile(p, d.dim)
	d.journal = append(d.journal, change[T]{kind: changeCell, coords: c, x: lx, y: ly, value: v})
}

func (d *DoubleMap[T]) Init(radiusTiles int) int {
	d.settle()
	return d.initRadius(radiusTiles, d.isLoaded)
}

// LoadUnload trims the write buffer to required and requests what is missing
// from it.
func (d *DoubleMap[T]) LoadUnload(required map[ChunkCoords]struct{}) {
	d.settle()
	n := 0
	for c := range d.writeBuf {
		if _, ok := required[c]; ok {
			continue
		}
		delete(d.writeBuf, c)
		d.journal = append(d.journal, change[T]{kind: changeEvict, coords: c})
		n++
	}
	d.evicted += uint64(n)
	d.reveal(required, d.inWrite)
}

func (d *DoubleMap[T]) LoadAround(focus mgl32.Vec2) {
	d.LoadUnload(RequiredAround(ChunkFromWorld(focus, d.chunkSize), d.renderDistance))
}

func (d *DoubleMap[T]) SpawnRequested() int { return d.spawn() }

// CompleteFinished merges finished jobs into the write buffer.
func (d *DoubleMap[T]) CompleteFinished() []Generated {
	d.settle()
	return d.complete(func(c ChunkCoords, ch *Chunk[T]) {
		d.writeBuf[c] = ch
		d.journal = append(d.journal, change[T]{kind: changeInsert, coords: c, chunk: ch})
	})
}

// Tick runs load/unload, spawn, merge and swap for the given focuses.
func (d *DoubleMap[T]) Tick(focuses []mgl32.Vec2) []Generated {
	if len(focuses) > 0 {
		centers := make([]ChunkCoords, 0, len(focuses))
		for _, f := range focuses {
			centers = append(centers, ChunkFromWorld(f, d.chunkSize))
		}
		d.LoadUnload(RequiredUnion(centers, d.renderDistance))
	}
	d.SpawnRequested()
	gen := d.CompleteFinished()
	d.SwapBuffers()
	return gen
}

func (d *DoubleMap[T]) State(c ChunkCoords) ChunkState {
	d.settle()
	return d.state(c, d.isLoaded)
}

// Chunk looks c up in the read snapshot.
func (d *DoubleMap[T]) Chunk(c ChunkCoords) (*Chunk[T], bool) {
	ch, ok := d.readBuf[c]
	return ch, ok
}

// LoadedChunks lists the read snapshot, sorted by X then Y.
func (d *DoubleMap[T]) LoadedChunks() []ChunkCoords { return sortedCoords(d.readBuf) }

func (d *DoubleMap[T]) WriteChunks() []ChunkCoords {
	d.settle()
	return sortedCoords(d.writeBuf)
}

func (d *DoubleMap[T]) Stats() Stats { return d.stats(len(d.readBuf)) }
