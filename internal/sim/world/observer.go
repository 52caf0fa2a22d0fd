package world

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"tilelight.ai/internal/observerproto"
	"tilelight.ai/internal/sim/chunkmap"
	"tilelight.ai/internal/sim/encoding"
	"tilelight.ai/internal/sim/mathx"
)

// Subscription selects what an observer session streams.
type Subscription struct {
	FocusID       string
	ChunkRadius   int
	Layers        []string
	Light         bool
	ChunksPerTick int
}

// ObserverJoinRequest registers a read-only observer session that receives:
// - chunk layers, evictions and light overlays (dataOut)
// - per-tick global state (tickOut)
//
// All observer state is maintained by the world loop goroutine.
type ObserverJoinRequest struct {
	SessionID string
	TickOut   chan []byte
	DataOut   chan []byte
	Sub       Subscription
}

// ObserverSubscribeRequest replaces the subscription of an existing session.
type ObserverSubscribeRequest struct {
	SessionID string
	Sub       Subscription
}

type observerClient struct {
	id      string
	tickOut chan []byte
	dataOut chan []byte

	sub Subscription

	// Chunks tracked per layer (may be pending full send).
	chunks map[string]map[chunkmap.ChunkCoords]*observerChunk
}

type observerChunk struct {
	// lastWantedTick is updated whenever the chunk is in the current wanted set.
	lastWantedTick uint64

	// sent indicates we have enqueued at least one CHUNK for this chunk.
	sent bool

	// version is the chunk version of the last CHUNK sent.
	version uint64

	// needsFull forces a resend (e.g. the chunk was regenerated).
	needsFull bool
}

const observerEvictAfterTicks = 20

func (w *World) JoinObserver(ctx context.Context, req ObserverJoinRequest) error {
	select {
	case w.observerJoin <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *World) SubscribeObserver(ctx context.Context, req ObserverSubscribeRequest) error {
	select {
	case w.observerSub <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LeaveObserver never blocks; if the loop is gone the session is gone too.
func (w *World) LeaveObserver(sessionID string) {
	select {
	case w.observerLeave <- sessionID:
	case <-w.stop:
	}
}

func (w *World) normalizeSubscription(s Subscription) Subscription {
	o := w.cfg.Observer
	s.FocusID = strings.TrimSpace(s.FocusID)
	s.ChunkRadius = mathx.ClampInt(s.ChunkRadius, 0, o.MaxChunkRadius)
	if s.ChunksPerTick <= 0 {
		s.ChunksPerTick = o.DefaultChunksPerTick
	}
	s.ChunksPerTick = mathx.ClampInt(s.ChunksPerTick, 1, o.MaxChunksPerTick)

	var layers []string
	seen := map[string]bool{}
	for _, name := range s.Layers {
		name = strings.TrimSpace(name)
		if seen[name] || w.layerByName(name) == nil {
			continue
		}
		seen[name] = true
		layers = append(layers, name)
	}
	if len(s.Layers) == 0 {
		layers = append(layers, observerproto.Layers...)
	}
	s.Layers = layers
	return s
}

func (w *World) handleObserverJoin(req ObserverJoinRequest) {
	if req.SessionID == "" || req.TickOut == nil || req.DataOut == nil {
		return
	}

	// Replace existing session id if any.
	if old := w.observers[req.SessionID]; old != nil {
		close(old.tickOut)
		close(old.dataOut)
	}

	w.observers[req.SessionID] = &observerClient{
		id:      req.SessionID,
		tickOut: req.TickOut,
		dataOut: req.DataOut,
		sub:     w.normalizeSubscription(req.Sub),
		chunks:  map[string]map[chunkmap.ChunkCoords]*observerChunk{},
	}
	w.logf("world: observer %s joined (focus %q)", req.SessionID, req.Sub.FocusID)
}

func (w *World) handleObserverSubscribe(req ObserverSubscribeRequest) {
	c := w.observers[req.SessionID]
	if c == nil {
		return
	}
	sub := w.normalizeSubscription(req.Sub)
	// Layers dropped from the subscription are evicted on the next tick.
	c.sub = sub
}

func (w *World) handleObserverLeave(sessionID string) {
	if sessionID == "" {
		return
	}
	c := w.observers[sessionID]
	if c == nil {
		return
	}
	delete(w.observers, sessionID)
	close(c.tickOut)
	close(c.dataOut)
	w.logf("world: observer %s left", sessionID)
}

func (w *World) stepObservers(nowTick uint64, stepMS float64, focuses []observerproto.FocusState, generated map[string][]chunkmap.Generated, overlays map[string][]byte) {
	if len(w.observers) == 0 {
		return
	}

	maps := make([]observerproto.MapStats, 0, len(w.layers))
	for i := range w.layers {
		maps = append(maps, w.layers[i].mapStats())
	}
	msg := observerproto.TickMsg{
		Type:            observerproto.TypeTick,
		ProtocolVersion: observerproto.Version,
		Tick:            nowTick,
		StepMS:          stepMS,
		Focuses:         focuses,
		Maps:            maps,
	}
	tickBytes, err := json.Marshal(msg)
	if err != nil {
		return
	}

	for _, c := range w.observers {
		w.stepObserverChunksForClient(nowTick, c, generated)
		if b := overlays[c.sub.FocusID]; b != nil && c.sub.Light {
			trySend(c.dataOut, b)
		}
		sendLatest(c.tickOut, tickBytes)
	}
}

// wantedChunks lists the chunks around the client's focus, nearest first.
func (w *World) wantedChunks(c *observerClient) []chunkmap.ChunkCoords {
	f := w.focuses[c.sub.FocusID]
	if f == nil {
		return nil
	}
	center := chunkmap.ChunkFromWorld(f.Pos, w.cfg.ChunkSizeUnits())
	required := chunkmap.RequiredAround(center, c.sub.ChunkRadius)
	keys := make([]chunkmap.ChunkCoords, 0, len(required))
	for k := range required {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		di := mathx.Chebyshev(keys[i].X-center.X, keys[i].Y-center.Y)
		dj := mathx.Chebyshev(keys[j].X-center.X, keys[j].Y-center.Y)
		if di != dj {
			return di < dj
		}
		if keys[i].X != keys[j].X {
			return keys[i].X < keys[j].X
		}
		return keys[i].Y < keys[j].Y
	})
	return keys
}

func (w *World) stepObserverChunksForClient(nowTick uint64, c *observerClient, generated map[string][]chunkmap.Generated) {
	wantKeys := w.wantedChunks(c)
	subscribed := map[string]bool{}
	for _, name := range c.sub.Layers {
		subscribed[name] = true
	}

	budget := c.sub.ChunksPerTick
	canSend := true
	for i := range w.layers {
		l := &w.layers[i]
		tracked := c.chunks[l.name]
		if !subscribed[l.name] {
			if len(tracked) > 0 {
				w.evictObserverChunks(c, l.name, tracked, nil, nowTick, true)
			}
			continue
		}
		if tracked == nil {
			tracked = map[chunkmap.ChunkCoords]*observerChunk{}
			c.chunks[l.name] = tracked
		}

		// Regenerated chunks may have lost writes; resend them whole.
		for _, g := range generated[l.name] {
			if st := tracked[g.Coords]; st != nil {
				st.needsFull = true
			}
		}

		wantSet := make(map[chunkmap.ChunkCoords]struct{}, len(wantKeys))
		for _, k := range wantKeys {
			wantSet[k] = struct{}{}
			st := tracked[k]
			if st == nil {
				st = &observerChunk{needsFull: true}
				tracked[k] = st
			}
			st.lastWantedTick = nowTick

			if !canSend || budget <= 0 {
				continue
			}
			ver, ok := l.version(k)
			if !ok {
				continue
			}
			if st.sent && !st.needsFull && st.version == ver {
				continue
			}
			if w.sendChunk(c, l, k, ver) {
				st.sent = true
				st.needsFull = false
				st.version = ver
				budget--
			} else {
				// Channel is likely full; don't spend more CPU on sends this tick.
				canSend = false
			}
		}

		w.evictObserverChunks(c, l.name, tracked, wantSet, nowTick, false)
	}
}

// evictObserverChunks drops tracked chunks not wanted for a while, telling the
// client about the ones it has seen. force evicts everything not wanted now.
func (w *World) evictObserverChunks(c *observerClient, layerName string, tracked map[chunkmap.ChunkCoords]*observerChunk, wantSet map[chunkmap.ChunkCoords]struct{}, nowTick uint64, force bool) {
	var evictKeys []chunkmap.ChunkCoords
	for k, st := range tracked {
		if _, ok := wantSet[k]; ok {
			continue
		}
		if !force && nowTick-st.lastWantedTick < observerEvictAfterTicks {
			continue
		}
		if !st.sent {
			evictKeys = append(evictKeys, k)
			continue
		}
		msg := observerproto.ChunkEvictMsg{
			Type:            observerproto.TypeChunkEvict,
			ProtocolVersion: observerproto.Version,
			Layer:           layerName,
			CX:              k.X,
			CY:              k.Y,
		}
		b, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		if trySend(c.dataOut, b) {
			evictKeys = append(evictKeys, k)
		}
	}
	for _, k := range evictKeys {
		delete(tracked, k)
	}
}

func (w *World) sendChunk(c *observerClient, l *layer, k chunkmap.ChunkCoords, version uint64) bool {
	cells, ok := l.encode(k)
	if !ok {
		return true
	}
	msg := observerproto.ChunkMsg{
		Type:            observerproto.TypeChunk,
		ProtocolVersion: observerproto.Version,
		Layer:           l.name,
		CX:              k.X,
		CY:              k.Y,
		Dim:             l.dim,
		Version:         version,
		Encoding:        observerproto.EncodingRLE8,
		Data:            encoding.EncodeRLE(cells),
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return true
	}
	return trySend(c.dataOut, b)
}

func trySend(ch chan []byte, b []byte) bool {
	select {
	case ch <- b:
		return true
	default:
		return false
	}
}

// sendLatest replaces a stale queued frame rather than blocking.
func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
