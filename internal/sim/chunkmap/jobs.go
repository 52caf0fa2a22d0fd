package chunkmap

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Executor runs generation work off the owner goroutine. Go must not block.
type Executor interface {
	Go(fn func())
}

// Pool bounds the number of generation jobs running at once. Submissions never
// block the caller; excess jobs wait for a slot on their own goroutine.
type Pool struct {
	sem     chan struct{}
	wg      sync.WaitGroup
	closed  atomic.Bool
	running atomic.Int64
}

func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pool{sem: make(chan struct{}, workers)}
}

// Go runs fn on the caller's goroutine once the pool is closed, so a job
// spawned during shutdown still completes.
func (p *Pool) Go(fn func()) {
	if p.closed.Load() {
		fn()
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.sem <- struct{}{}
		p.running.Add(1)
		defer func() {
			p.running.Add(-1)
			<-p.sem
		}()
		fn()
	}()
}

// Running is the number of jobs currently holding a worker slot.
func (p *Pool) Running() int { return int(p.running.Load()) }

func (p *Pool) Workers() int { return cap(p.sem) }

// Close stops handing work to workers and waits for submitted jobs.
func (p *Pool) Close() {
	if p.closed.Swap(true) {
		return
	}
	p.wg.Wait()
}

// InlineExecutor runs jobs on the caller's goroutine, so every job is finished
// by the time it is polled. Used by tools and tests.
type InlineExecutor struct{}

func (InlineExecutor) Go(fn func()) { fn() }

type Result[T any] struct {
	Chunk *Chunk[T]
	Took  time.Duration
	Err   error
}

// Job is the pollable handle of one in-flight chunk generation.
type Job[T any] struct {
	Coords    ChunkCoords
	SpawnTick uint64

	done chan struct{}
	res  Result[T]
}

func spawnJob[T any](exec Executor, producer Producer[T], coords ChunkCoords, dim int, tick uint64) *Job[T] {
	j := &Job[T]{Coords: coords, SpawnTick: tick, done: make(chan struct{})}
	exec.Go(func() {
		start := time.Now()
		defer close(j.done)
		defer func() {
			j.res.Took = time.Since(start)
			if r := recover(); r != nil {
				j.res.Chunk = nil
				j.res.Err = fmt.Errorf("generate chunk (%d,%d): panic: %v", coords.X, coords.Y, r)
			}
		}()
		c := producer.GenerateChunk(coords, dim)
		switch {
		case c == nil || c.Grid == nil:
			j.res.Err = fmt.Errorf("generate chunk (%d,%d): producer returned no grid", coords.X, coords.Y)
		case c.Grid.Dimension() != dim:
			j.res.Err = fmt.Errorf("generate chunk (%d,%d): dimension %d, want %d", coords.X, coords.Y, c.Grid.Dimension(), dim)
		default:
			j.res.Chunk = c
		}
	})
	return j
}

// Poll reports the job's result without blocking.
func (j *Job[T]) Poll() (Result[T], bool) {
	select {
	case <-j.done:
		return j.res, true
	default:
		return Result[T]{}, false
	}
}
