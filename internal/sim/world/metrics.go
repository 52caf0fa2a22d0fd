package world

import "tilelight.ai/internal/observerproto"

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick   uint64  `json:"tick"`
	StepMS float64 `json:"step_ms"`

	Focuses   []observerproto.FocusState `json:"focuses"`
	Observers int                        `json:"observers"`
	Maps      []observerproto.MapStats   `json:"maps"`

	PoolWorkers int `json:"pool_workers"`
	PoolRunning int `json:"pool_running"`

	QueueDepths QueueDepths `json:"queue_depths"`
}

type QueueDepths struct {
	Focus    int `json:"focus"`
	Write    int `json:"write"`
	Observer int `json:"observer"`
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}

func (w *World) publishMetrics(stepMS float64, focuses []observerproto.FocusState) {
	m := WorldMetrics{
		Tick:      w.tick.Load(),
		StepMS:    stepMS,
		Focuses:   focuses,
		Observers: len(w.observers),
		Maps:      make([]observerproto.MapStats, 0, len(w.layers)),
		QueueDepths: QueueDepths{
			Focus:    len(w.focusCmds),
			Write:    len(w.writeCmds),
			Observer: len(w.observerJoin) + len(w.observerSub) + len(w.observerLeave),
		},
	}
	for i := range w.layers {
		m.Maps = append(m.Maps, w.layers[i].mapStats())
	}
	if w.pool != nil {
		m.PoolWorkers = w.pool.Workers()
		m.PoolRunning = w.pool.Running()
	}
	w.metrics.Store(m)
}

// Bootstrap describes the run for observers. Safe to call from any goroutine.
func (w *World) Bootstrap() observerproto.BootstrapResponse {
	m := w.Metrics()
	return observerproto.BootstrapResponse{
		ProtocolVersion: observerproto.Version,
		RunID:           w.runID,
		Tick:            m.Tick,
		WorldParams: observerproto.WorldParams{
			TickRateHz:     w.cfg.TickRateHz,
			TileSizeUnits:  w.cfg.TileSizeUnits,
			ChunkSize:      w.cfg.ChunkSize,
			RenderDistance: w.cfg.RenderDistanceChunks,
			Seed:           w.cfg.Terrain.Seed,
			TerrainMode:    w.cfg.Terrain.Mode,
			OverlayTiles:   w.cfg.Lights.OverlayTiles,
		},
		Layers:  append([]string(nil), observerproto.Layers...),
		Focuses: m.Focuses,
	}
}
