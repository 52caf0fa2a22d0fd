package world

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-gl/mathgl/mgl32"

	"tilelight.ai/internal/persistence/snapshot"
	"tilelight.ai/internal/sim/chunkmap"
)

type editKey struct {
	layer string
	p     chunkmap.Point
}

type snapshotReq struct {
	resp chan snapshot.SnapshotV1
}

type restoreCmd struct {
	snap snapshot.SnapshotV1
	resp chan error
}

// Snapshot captures focuses and the tile edit journal between ticks.
func (w *World) Snapshot(ctx context.Context) (snapshot.SnapshotV1, error) {
	req := snapshotReq{resp: make(chan snapshot.SnapshotV1, 1)}
	select {
	case w.snapshotReqs <- req:
	case <-ctx.Done():
		return snapshot.SnapshotV1{}, ctx.Err()
	}
	select {
	case s := <-req.resp:
		return s, nil
	case <-ctx.Done():
		return snapshot.SnapshotV1{}, ctx.Err()
	}
}

// Restore re-adds the snapshot's focuses and replays its edits. Edits to
// chunks that are not loaded wait in the map's write queue.
func (w *World) Restore(ctx context.Context, snap snapshot.SnapshotV1) error {
	cmd := restoreCmd{snap: snap, resp: make(chan error, 1)}
	select {
	case w.restoreCmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *World) exportSnapshot() snapshot.SnapshotV1 {
	s := snapshot.SnapshotV1{
		Header:      snapshot.Header{Version: snapshot.Version, RunID: w.runID, Tick: w.tick.Load()},
		Seed:        w.cfg.Terrain.Seed,
		TerrainMode: w.cfg.Terrain.Mode,
	}
	for _, f := range w.sortedFocuses() {
		s.Focuses = append(s.Focuses, snapshot.FocusV1{ID: f.ID, Pos: [2]float32{f.Pos.X(), f.Pos.Y()}})
	}
	for k, v := range w.edits {
		s.Edits = append(s.Edits, snapshot.EditV1{Layer: k.layer, X: k.p.X, Y: k.p.Y, Value: v})
	}
	sort.Slice(s.Edits, func(i, j int) bool {
		a, b := s.Edits[i], s.Edits[j]
		if a.Layer != b.Layer {
			return a.Layer < b.Layer
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})
	return s
}

func (w *World) handleRestore(snap snapshot.SnapshotV1) error {
	if snap.Seed != w.cfg.Terrain.Seed || snap.TerrainMode != w.cfg.Terrain.Mode {
		return fmt.Errorf("snapshot terrain (seed %d, %s) does not match world (seed %d, %s)",
			snap.Seed, snap.TerrainMode, w.cfg.Terrain.Seed, w.cfg.Terrain.Mode)
	}
	for _, e := range snap.Edits {
		if w.layerByName(e.Layer) == nil {
			return fmt.Errorf("snapshot edit: unknown layer %q", e.Layer)
		}
	}
	for _, f := range snap.Focuses {
		pos := mgl32.Vec2{f.Pos[0], f.Pos[1]}
		if err := w.handleFocusCmd(focusCmd{kind: focusSet, id: f.ID, vec: pos}); err != nil {
			return err
		}
	}
	for _, e := range snap.Edits {
		if err := w.handleWriteCmd(writeCmd{layer: e.Layer, p: chunkmap.Point{X: e.X, Y: e.Y}, value: e.Value}); err != nil {
			return err
		}
	}
	w.logf("world: restored %d focuses and %d edits from run %s tick %d",
		len(snap.Focuses), len(snap.Edits), snap.Header.RunID, snap.Header.Tick)
	return nil
}
