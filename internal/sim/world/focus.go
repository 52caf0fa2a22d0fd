package world

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-gl/mathgl/mgl32"

	"tilelight.ai/internal/observerproto"
	"tilelight.ai/internal/sim/chunkmap"
	"tilelight.ai/internal/sim/lightsim"
	"tilelight.ai/internal/sim/terrain"
)

const (
	// A focus stepping onto passability below bounceBelow is returned to its
	// previous position.
	bounceBelow = 10
	// The passability sample marks a focus blocked below blockedBelow.
	blockedBelow = 200
)

// Focus is a tracked position that drives chunk loading and light simulation.
type Focus struct {
	ID  string
	Pos mgl32.Vec2

	Tile        chunkmap.Point
	Passability terrain.Passability
	Blocked     bool
	Bounced     bool
	Light       lightsim.Energy

	move mgl32.Vec2
}

func (f *Focus) state() observerproto.FocusState {
	return observerproto.FocusState{
		ID:          f.ID,
		Pos:         [2]float32{f.Pos.X(), f.Pos.Y()},
		Tile:        [2]int{f.Tile.X, f.Tile.Y},
		Passability: int(f.Passability),
		Blocked:     f.Blocked,
		Light:       [3]int32(f.Light),
	}
}

type focusCmdKind int

const (
	focusSet focusCmdKind = iota + 1
	focusRemove
	focusMove
)

type focusCmd struct {
	kind focusCmdKind
	id   string
	vec  mgl32.Vec2
	resp chan error
}

type writeCmd struct {
	layer string
	p     chunkmap.Point
	value byte
	resp  chan error
}

// SetFocus creates or teleports a focus.
func (w *World) SetFocus(ctx context.Context, id string, pos mgl32.Vec2) error {
	return w.sendFocusCmd(ctx, focusCmd{kind: focusSet, id: id, vec: pos})
}

func (w *World) RemoveFocus(ctx context.Context, id string) error {
	return w.sendFocusCmd(ctx, focusCmd{kind: focusRemove, id: id})
}

// MoveFocus queues a displacement applied during the next tick's movement pass.
func (w *World) MoveFocus(ctx context.Context, id string, delta mgl32.Vec2) error {
	return w.sendFocusCmd(ctx, focusCmd{kind: focusMove, id: id, vec: delta})
}

func (w *World) sendFocusCmd(ctx context.Context, cmd focusCmd) error {
	cmd.id = strings.TrimSpace(cmd.id)
	cmd.resp = make(chan error, 1)
	select {
	case w.focusCmds <- cmd:
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

// WriteTile stores a layer byte at tile p, decoded the same way the observer
// stream encodes it.
func (w *World) WriteTile(ctx context.Context, layer string, p chunkmap.Point, value byte) error {
	cmd := writeCmd{layer: layer, p: p, value: value, resp: make(chan error, 1)}
	select {
	case w.writeCmds <- cmd:
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

func (w *World) handleFocusCmd(cmd focusCmd) error {
	if cmd.id == "" {
		return fmt.Errorf("focus id required")
	}
	switch cmd.kind {
	case focusSet:
		f := w.focuses[cmd.id]
		if f == nil {
			f = &Focus{ID: cmd.id}
			w.focuses[cmd.id] = f
			w.logf("world: focus %s added at (%.1f,%.1f)", cmd.id, cmd.vec.X(), cmd.vec.Y())
		}
		f.Pos = cmd.vec
		f.move = mgl32.Vec2{}
	case focusRemove:
		if _, ok := w.focuses[cmd.id]; !ok {
			return fmt.Errorf("unknown focus %q", cmd.id)
		}
		delete(w.focuses, cmd.id)
		w.logf("world: focus %s removed", cmd.id)
	case focusMove:
		f := w.focuses[cmd.id]
		if f == nil {
			return fmt.Errorf("unknown focus %q", cmd.id)
		}
		f.move = f.move.Add(cmd.vec)
	default:
		return fmt.Errorf("unknown focus command %d", cmd.kind)
	}
	return nil
}

func (w *World) handleWriteCmd(cmd writeCmd) error {
	switch cmd.layer {
	case observerproto.LayerPassability:
		w.passability.Write(cmd.p, terrain.Passability(cmd.value))
	case observerproto.LayerEmitters:
		cell := lightsim.EmitterCell{}
		if cmd.value > 0 {
			cell = lightsim.EmitterCell{Lit: true, Light: lightsim.FromRGBA(whiteWithAlpha(cmd.value))}
		}
		w.emitters.Write(cmd.p, cell)
	case observerproto.LayerPbr:
		w.pbr.Write(cmd.p, lightsim.PbrCell{Absorption: float32(cmd.value) / 255})
	default:
		return fmt.Errorf("unknown layer %q", cmd.layer)
	}
	w.edits[editKey{layer: cmd.layer, p: cmd.p}] = cmd.value
	return nil
}

// moveFocuses applies queued displacements. A focus that lands on a loaded,
// near-impassable tile bounces back; unloaded tiles never bounce.
func (w *World) moveFocuses() {
	for _, f := range w.focuses {
		f.Bounced = false
		if f.move == (mgl32.Vec2{}) {
			continue
		}
		prev := f.Pos
		f.Pos = f.Pos.Add(f.move)
		f.move = mgl32.Vec2{}
		if p, ok := w.passability.ReadRounded(f.Pos); ok && p < bounceBelow {
			f.Pos = prev
			f.Bounced = true
		}
	}
}

// sampleFocuses samples passability under every focus, requesting the chunk
// when it is missing.
func (w *World) sampleFocuses() {
	for _, f := range w.focuses {
		f.Tile = chunkmap.TileRounded(f.Pos, w.cfg.TileSizeUnits)
		f.Passability = w.passability.GetRounded(f.Pos)
		f.Blocked = f.Passability < blockedBelow
	}
}

func (w *World) sortedFocuses() []*Focus {
	out := make([]*Focus, 0, len(w.focuses))
	for _, f := range w.focuses {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (w *World) focusPositions(sorted []*Focus) []mgl32.Vec2 {
	out := make([]mgl32.Vec2, 0, len(sorted))
	for _, f := range sorted {
		out = append(out, f.Pos)
	}
	return out
}
