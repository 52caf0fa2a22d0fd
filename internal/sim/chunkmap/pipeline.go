package chunkmap

import (
	"log"
	"sort"
	"time"

	"tilelight.ai/internal/sim/mathx"
)

type Options struct {
	// Name labels log lines and metrics.
	Name string

	ChunkDim       int
	TileSize       float32
	RenderDistance int

	// StaleAfterTicks abandons jobs still pending after this many spawn passes.
	// Zero leaves them pending forever.
	StaleAfterTicks uint64

	Executor Executor
	Logger   *log.Logger
}

func (o *Options) normalize() {
	if o.ChunkDim <= 0 {
		o.ChunkDim = DefaultChunkDim
	}
	if o.TileSize <= 0 {
		o.TileSize = TileSizeUnits
	}
	if o.RenderDistance < 0 {
		o.RenderDistance = 0
	}
	if o.Executor == nil {
		o.Executor = InlineExecutor{}
	}
	if o.Name == "" {
		o.Name = "map"
	}
}

// Generated describes one chunk merged by a completion pass.
type Generated struct {
	Coords  ChunkCoords   `json:"coords"`
	Took    time.Duration `json:"took"`
	Flushed int           `json:"flushed"`
}

type chunkTable[T any] map[ChunkCoords]*Chunk[T]

// pipeline holds the request/spawn/complete state shared by both map variants.
// It is owned by a single goroutine.
type pipeline[T any] struct {
	name           string
	producer       Producer[T]
	exec           Executor
	dim            int
	tileSize       float32
	chunkSize      float32
	renderDistance int
	staleAfter     uint64
	log            *log.Logger

	requested  map[ChunkCoords]struct{}
	pending    map[ChunkCoords]*Job[T]
	writeQueue map[Point]T

	tick      uint64
	spawned   uint64
	completed uint64
	evicted   uint64
	failed    uint64
	abandoned uint64
}

func newPipeline[T any](producer Producer[T], opts Options) pipeline[T] {
	opts.normalize()
	return pipeline[T]{
		name:           opts.Name,
		producer:       producer,
		exec:           opts.Executor,
		dim:            opts.ChunkDim,
		tileSize:       opts.TileSize,
		chunkSize:      float32(opts.ChunkDim) * opts.TileSize,
		renderDistance: opts.RenderDistance,
		staleAfter:     opts.StaleAfterTicks,
		log:            opts.Logger,
		requested:      map[ChunkCoords]struct{}{},
		pending:        map[ChunkCoords]*Job[T]{},
		writeQueue:     map[Point]T{},
	}
}

func (pl *pipeline[T]) Name() string            { return pl.name }
func (pl *pipeline[T]) ChunkDim() int           { return pl.dim }
func (pl *pipeline[T]) TileSize() float32       { return pl.tileSize }
func (pl *pipeline[T]) ChunkSizeUnits() float32 { return pl.chunkSize }
func (pl *pipeline[T]) RenderDistance() int     { return pl.renderDistance }
func (pl *pipeline[T]) DefaultValue() T         { return pl.producer.DefaultValue() }

func (pl *pipeline[T]) logf(format string, args ...any) {
	if pl.log != nil {
		pl.log.Printf("%s: "+format, append([]any{pl.name}, args...)...)
	}
}

// request moves c from Unknown to Requested. loaded reports membership in the
// storage the caller considers authoritative.
func (pl *pipeline[T]) request(c ChunkCoords, loaded func(ChunkCoords) bool) bool {
	if loaded(c) {
		return false
	}
	if _, ok := pl.pending[c]; ok {
		return false
	}
	if _, ok := pl.requested[c]; ok {
		return false
	}
	pl.requested[c] = struct{}{}
	return true
}

// lookup reads store first. The write queue only answers for chunks store
// lacks: a chunk trimmed from a double map's write buffer mid-tick still
// serves its snapshot until the swap.
func (pl *pipeline[T]) lookup(store chunkTable[T], p Point) (T, bool) {
	ch, ok := store[ChunkFromPoint(p, pl.dim)]
	if !ok {
		if v, ok := pl.writeQueue[p]; ok {
			return v, true
		}
		var zero T
		return zero, false
	}
	lx, ly := LocalFromTile(p, pl.dim)
	if v, ok := ch.Grid.Get(lx, ly); ok {
		return v, true
	}
	// Unreachable while LocalFromTile stays in range.
	return pl.producer.DefaultValue(), true
}

// get is the side-effecting lookup: a miss requests the chunk.
func (pl *pipeline[T]) get(store chunkTable[T], p Point, loaded func(ChunkCoords) bool) (T, bool) {
	if v, ok := pl.lookup(store, p); ok {
		return v, true
	}
	pl.request(ChunkFromPoint(p, pl.dim), loaded)
	return pl.producer.DefaultValue(), false
}

// write applies v to the chunk in store when present, otherwise queues it.
// It reports whether the write was applied in place.
func (pl *pipeline[T]) write(store chunkTable[T], p Point, v T, loaded func(ChunkCoords) bool) (ChunkCoords, bool) {
	c := ChunkFromPoint(p, pl.dim)
	if ch, ok := store[c]; ok {
		lx, ly := LocalFromTile(p, pl.dim)
		ch.set(lx, ly, v)
		delete(pl.writeQueue, p)
		return c, true
	}
	pl.writeQueue[p] = v
	pl.request(c, loaded)
	return c, false
}

func (pl *pipeline[T]) initRadius(radiusTiles int, loaded func(ChunkCoords) bool) int {
	r := 0
	if radiusTiles > 0 {
		r = mathx.CeilDiv(radiusTiles, pl.dim)
	}
	n := 0
	for dx := -r; dx <= r; dx++ {
		for dy := -r; dy <= r; dy++ {
			c := ChunkCoords{X: dx, Y: dy}
			if loaded(c) {
				continue
			}
			if _, ok := pl.pending[c]; ok {
				continue
			}
			if _, ok := pl.requested[c]; ok {
				continue
			}
			pl.requested[c] = struct{}{}
			n++
		}
	}
	pl.logf("init requested %d chunks up to %d tiles (%d chunks)", n, radiusTiles, r)
	return n
}

func (pl *pipeline[T]) reveal(required map[ChunkCoords]struct{}, loaded func(ChunkCoords) bool) int {
	n := 0
	for c := range required {
		if pl.request(c, loaded) {
			n++
		}
	}
	return n
}

// spawn starts one job per requested coordinate and clears the request set.
func (pl *pipeline[T]) spawn() int {
	pl.tick++
	n := 0
	for c := range pl.requested {
		if _, ok := pl.pending[c]; ok {
			continue
		}
		pl.pending[c] = spawnJob(pl.exec, pl.producer, c, pl.dim, pl.tick)
		n++
	}
	clear(pl.requested)
	pl.spawned += uint64(n)
	return n
}

// complete polls every pending job once. Finished chunks get their queued
// writes flushed and are handed to insert.
func (pl *pipeline[T]) complete(insert func(ChunkCoords, *Chunk[T])) []Generated {
	var out []Generated
	for c, job := range pl.pending {
		res, ok := job.Poll()
		if !ok {
			if pl.staleAfter > 0 && pl.tick-job.SpawnTick >= pl.staleAfter {
				delete(pl.pending, c)
				pl.abandoned++
				pl.logf("abandoned chunk (%d,%d) after %d ticks", c.X, c.Y, pl.tick-job.SpawnTick)
			}
			continue
		}
		delete(pl.pending, c)
		if res.Err != nil {
			pl.failed++
			pl.logf("%v", res.Err)
			continue
		}
		flushed := pl.flush(c, res.Chunk)
		insert(c, res.Chunk)
		pl.completed++
		out = append(out, Generated{Coords: c, Took: res.Took, Flushed: flushed})
	}
	sort.Slice(out, func(i, j int) bool { return lessCoords(out[i].Coords, out[j].Coords) })
	return out
}

func (pl *pipeline[T]) flush(c ChunkCoords, ch *Chunk[T]) int {
	n := 0
	for p, v := range pl.writeQueue {
		if !c.Contains(p, pl.dim) {
			continue
		}
		lx, ly := LocalFromTile(p, pl.dim)
		if !ch.set(lx, ly, v) {
			panic("chunkmap: queued write outside chunk bounds")
		}
		delete(pl.writeQueue, p)
		n++
	}
	return n
}

func (pl *pipeline[T]) state(c ChunkCoords, loaded func(ChunkCoords) bool) ChunkState {
	switch {
	case loaded(c):
		return StateLoaded
	case pl.pending[c] != nil:
		return StatePending
	}
	if _, ok := pl.requested[c]; ok {
		return StateRequested
	}
	return StateUnknown
}

func (pl *pipeline[T]) stats(loaded int) Stats {
	return Stats{
		Loaded:       loaded,
		Requested:    len(pl.requested),
		Pending:      len(pl.pending),
		QueuedWrites: len(pl.writeQueue),
		Spawned:      pl.spawned,
		Completed:    pl.completed,
		Evicted:      pl.evicted,
		Failed:       pl.failed,
		Abandoned:    pl.abandoned,
	}
}

func sortedCoords[T any](store chunkTable[T]) []ChunkCoords {
	out := make([]ChunkCoords, 0, len(store))
	for c := range store {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return lessCoords(out[i], out[j]) })
	return out
}
