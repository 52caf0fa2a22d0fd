package chunkmap

import (
	"testing"
	"time"
)

type gateProducer struct{ gate chan struct{} }

func (gateProducer) DefaultValue() uint8 { return 0 }

func (p gateProducer) GenerateChunk(c ChunkCoords, dim int) *Chunk[uint8] {
	<-p.gate
	return NewChunk(dim, uint8(5))
}

func TestPoolJobPollIsNonBlocking(t *testing.T) {
	pool := NewPool(2)
	defer pool.Close()

	gate := make(chan struct{})
	job := spawnJob[uint8](pool, gateProducer{gate: gate}, ChunkCoords{X: 1}, 4, 1)
	if _, ok := job.Poll(); ok {
		t.Fatalf("job finished before gate opened")
	}
	close(gate)

	deadline := time.Now().Add(2 * time.Second)
	for {
		res, ok := job.Poll()
		if ok {
			if res.Err != nil {
				t.Fatalf("job error: %v", res.Err)
			}
			if v, _ := res.Chunk.Grid.Get(3, 3); v != 5 {
				t.Fatalf("chunk content %d", v)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("job did not finish")
		}
		time.Sleep(time.Millisecond)
	}
}

type wrongDimProducer struct{}

func (wrongDimProducer) DefaultValue() uint8 { return 0 }

func (wrongDimProducer) GenerateChunk(c ChunkCoords, dim int) *Chunk[uint8] {
	return NewChunk(dim+1, uint8(0))
}

func TestJobRejectsWrongDimension(t *testing.T) {
	job := spawnJob[uint8](InlineExecutor{}, wrongDimProducer{}, ChunkCoords{}, 8, 1)
	res, ok := job.Poll()
	if !ok || res.Err == nil {
		t.Fatalf("expected dimension error, ok=%v err=%v", ok, res.Err)
	}
}

func TestPoolCloseWaitsForJobs(t *testing.T) {
	pool := NewPool(1)
	done := make(chan struct{})
	pool.Go(func() {
		time.Sleep(10 * time.Millisecond)
		close(done)
	})
	pool.Close()
	select {
	case <-done:
	default:
		t.Fatalf("Close returned before job finished")
	}
	ran := false
	pool.Go(func() { ran = true })
	if !ran {
		t.Fatalf("job submitted after close was dropped")
	}
}

func TestMapCompletesJobsAfterPoolClose(t *testing.T) {
	pool := NewPool(2)
	pool.Close()
	m := newTestMap(fillProducer{fill: 4}, pool, 0)
	m.Init(0)
	if gen := m.Tick(nil); len(gen) != 1 {
		t.Fatalf("generated %d chunks, want 1", len(gen))
	}
	if v, ok := m.Read(Point{}); !ok || v != 4 {
		t.Fatalf("Read = %d,%v", v, ok)
	}
	if st := m.Stats(); st.Pending != 0 || st.Failed != 0 {
		t.Fatalf("stats = %+v", st)
	}
}
