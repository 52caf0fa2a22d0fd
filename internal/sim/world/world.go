package world

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"tilelight.ai/internal/observerproto"
	"tilelight.ai/internal/sim/chunkmap"
	"tilelight.ai/internal/sim/lightsim"
	"tilelight.ai/internal/sim/terrain"
	"tilelight.ai/internal/sim/tuning"
)

type Options struct {
	Logger *log.Logger
	// Executor runs chunk generation. Nil starts a Pool of tuning.WorkerCount
	// workers owned by the world.
	Executor chunkmap.Executor
	RunID    string
}

// World hosts the chunk maps and drives them from a single goroutine. All map,
// focus and observer state belongs to the Run loop.
type World struct {
	cfg   tuning.Tuning
	runID string
	log   *log.Logger

	pool *chunkmap.Pool
	gen  *terrain.Generator

	passability *chunkmap.Map[terrain.Passability]
	emitters    *chunkmap.Map[lightsim.EmitterCell]
	pbr         *chunkmap.DoubleMap[lightsim.PbrCell]
	layers      []layer

	light *lightsim.Simulator

	focuses   map[string]*Focus
	observers map[string]*observerClient
	// Last value written per layer tile, replayed on restore.
	edits map[editKey]byte

	tickLogger TickLogger

	tick    atomic.Uint64
	metrics atomic.Value

	stop     chan struct{}
	stopOnce sync.Once

	focusCmds     chan focusCmd
	writeCmds     chan writeCmd
	stateReqs     chan stateReq
	snapshotReqs  chan snapshotReq
	restoreCmds   chan restoreCmd
	observerJoin  chan ObserverJoinRequest
	observerSub   chan ObserverSubscribeRequest
	observerLeave chan string
}

func New(t tuning.Tuning, opts Options) (*World, error) {
	t.Normalize()
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("world config: %w", err)
	}
	light, err := lightsim.New(t.Lights)
	if err != nil {
		return nil, fmt.Errorf("light simulator: %w", err)
	}

	w := &World{
		cfg:           t,
		runID:         opts.RunID,
		log:           opts.Logger,
		gen:           terrain.NewGenerator(t.Terrain),
		light:         light,
		focuses:       map[string]*Focus{},
		observers:     map[string]*observerClient{},
		edits:         map[editKey]byte{},
		stop:          make(chan struct{}),
		focusCmds:     make(chan focusCmd, 64),
		writeCmds:     make(chan writeCmd, 256),
		stateReqs:     make(chan stateReq, 16),
		snapshotReqs:  make(chan snapshotReq, 4),
		restoreCmds:   make(chan restoreCmd, 1),
		observerJoin:  make(chan ObserverJoinRequest, 16),
		observerSub:   make(chan ObserverSubscribeRequest, 64),
		observerLeave: make(chan string, 16),
	}
	if w.runID == "" {
		w.runID = uuid.NewString()
	}

	exec := opts.Executor
	if exec == nil {
		w.pool = chunkmap.NewPool(t.WorkerCount)
		exec = w.pool
	}
	mapOpts := func(name string) chunkmap.Options {
		return chunkmap.Options{
			Name:            name,
			ChunkDim:        t.ChunkSize,
			TileSize:        t.TileSizeUnits,
			RenderDistance:  t.RenderDistanceChunks,
			StaleAfterTicks: t.StaleJobTicks,
			Executor:        exec,
			Logger:          opts.Logger,
		}
	}
	w.passability = chunkmap.New[terrain.Passability](terrain.NewPassabilityProducer(w.gen), mapOpts(observerproto.LayerPassability))
	w.emitters = chunkmap.New[lightsim.EmitterCell](lightsim.NewEmitterProducer(w.gen, t.Lights.EmitterPermille), mapOpts(observerproto.LayerEmitters))
	w.pbr = chunkmap.NewDouble[lightsim.PbrCell](lightsim.NewPbrProducer(w.gen, t.Lights.WallAbsorption, t.Lights.GroundAbsorption), mapOpts(observerproto.LayerPbr))
	w.layers = []layer{
		newLayer[terrain.Passability](w.passability, w.passability.Stats, passabilityByte),
		newLayer[lightsim.EmitterCell](w.emitters, w.emitters.Stats, lightsim.EmitterCell.Byte),
		newLayer[lightsim.PbrCell](w.pbr, w.pbr.Stats, lightsim.PbrCell.Byte),
	}

	n := w.passability.Init(t.InitRadiusTiles)
	n += w.emitters.Init(t.InitRadiusTiles)
	n += w.pbr.Init(t.InitRadiusTiles)
	w.logf("world: run %s, %d initial chunk requests (radius %d tiles, seed %d, terrain %s)",
		w.runID, n, t.InitRadiusTiles, t.Terrain.Seed, t.Terrain.Mode)

	w.publishMetrics(0, nil)
	return w, nil
}

func (w *World) logf(format string, args ...any) {
	if w.log != nil {
		w.log.Printf(format, args...)
	}
}

func (w *World) SetTickLogger(l TickLogger) { w.tickLogger = l }

func (w *World) Config() tuning.Tuning { return w.cfg }

func (w *World) RunID() string { return w.runID }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

// Close releases the generation pool. Call after Run has returned.
func (w *World) Close() {
	if w.pool != nil {
		w.pool.Close()
	}
}

func (w *World) layerByName(name string) *layer {
	for i := range w.layers {
		if w.layers[i].name == name {
			return &w.layers[i]
		}
	}
	return nil
}

func passabilityByte(p terrain.Passability) byte { return byte(p) }
