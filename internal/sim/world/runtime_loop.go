package world

import (
	"context"
	"time"

	"tilelight.ai/internal/observerproto"
	"tilelight.ai/internal/sim/chunkmap"
)

// StateSnapshot is a consistent copy of world state taken between ticks.
type StateSnapshot struct {
	RunID   string                     `json:"run_id"`
	Tick    uint64                     `json:"tick"`
	Focuses []observerproto.FocusState `json:"focuses"`
	Maps    []observerproto.MapStats   `json:"maps"`
	Loaded  map[string]int             `json:"loaded_by_layer"`
}

type stateReq struct {
	resp chan StateSnapshot
}

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.logf("world: running at %d Hz", w.cfg.TickRateHz)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case cmd := <-w.focusCmds:
			cmd.resp <- w.handleFocusCmd(cmd)
		case cmd := <-w.writeCmds:
			cmd.resp <- w.handleWriteCmd(cmd)
		case req := <-w.stateReqs:
			req.resp <- w.snapshotState()
		case req := <-w.snapshotReqs:
			req.resp <- w.exportSnapshot()
		case cmd := <-w.restoreCmds:
			cmd.resp <- w.handleRestore(cmd.snap)
		case req := <-w.observerJoin:
			w.handleObserverJoin(req)
		case req := <-w.observerSub:
			w.handleObserverSubscribe(req)
		case id := <-w.observerLeave:
			w.handleObserverLeave(id)
		case <-ticker.C:
			w.step()
		}
	}
}

func (w *World) Stop() { w.stopOnce.Do(func() { close(w.stop) }) }

// StepOnce advances the world by a single tick on the caller's goroutine.
// Only for use when Run is not running (tools and tests).
func (w *World) StepOnce() uint64 {
	w.step()
	return w.tick.Load()
}

// State asks the loop for a snapshot.
func (w *World) State(ctx context.Context) (StateSnapshot, error) {
	req := stateReq{resp: make(chan StateSnapshot, 1)}
	select {
	case w.stateReqs <- req:
	case <-ctx.Done():
		return StateSnapshot{}, ctx.Err()
	}
	select {
	case s := <-req.resp:
		return s, nil
	case <-ctx.Done():
		return StateSnapshot{}, ctx.Err()
	}
}

func (w *World) snapshotState() StateSnapshot {
	s := StateSnapshot{
		RunID:  w.runID,
		Tick:   w.tick.Load(),
		Loaded: map[string]int{},
	}
	for _, f := range w.sortedFocuses() {
		s.Focuses = append(s.Focuses, f.state())
	}
	for i := range w.layers {
		l := &w.layers[i]
		s.Maps = append(s.Maps, l.mapStats())
		s.Loaded[l.name] = len(l.loaded())
	}
	return s
}

func (w *World) step() {
	start := time.Now()
	nowTick := w.tick.Load() + 1

	w.moveFocuses()
	w.sampleFocuses()

	focuses := w.sortedFocuses()
	positions := w.focusPositions(focuses)
	generated := map[string][]chunkmap.Generated{
		observerproto.LayerPassability: w.passability.Tick(positions),
		observerproto.LayerEmitters:    w.emitters.Tick(positions),
		observerproto.LayerPbr:         w.pbr.Tick(positions),
	}

	overlays := w.stepLight(nowTick, focuses)

	w.tick.Store(nowTick)
	stepMS := float64(time.Since(start).Microseconds()) / 1000

	states := make([]observerproto.FocusState, 0, len(focuses))
	for _, f := range focuses {
		states = append(states, f.state())
	}
	w.stepObservers(nowTick, stepMS, states, generated, overlays)

	if w.tickLogger != nil {
		entry := w.tickLogEntry(nowTick, stepMS, states, generated)
		if err := w.tickLogger.WriteTick(entry); err != nil {
			w.logf("world: tick log: %v", err)
		}
	}
	w.publishMetrics(stepMS, states)
}
