package world

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"tilelight.ai/internal/observerproto"
	"tilelight.ai/internal/sim/chunkmap"
	"tilelight.ai/internal/sim/encoding"
	"tilelight.ai/internal/sim/terrain"
	"tilelight.ai/internal/sim/tuning"
)

func testTuning() tuning.Tuning {
	t := tuning.Defaults()
	t.Terrain.Mode = terrain.ModeRadial
	t.InitRadiusTiles = 0
	t.RenderDistanceChunks = 1
	return t
}

func newTestWorld(t *testing.T) *World {
	t.Helper()
	w, err := New(testTuning(), Options{Executor: chunkmap.InlineExecutor{}, RunID: "test"})
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	return w
}

func mustFocus(t *testing.T, w *World, id string, pos mgl32.Vec2) *Focus {
	t.Helper()
	if err := w.handleFocusCmd(focusCmd{kind: focusSet, id: id, vec: pos}); err != nil {
		t.Fatalf("set focus: %v", err)
	}
	return w.focuses[id]
}

func TestProbeRequestsThenReadsPassability(t *testing.T) {
	w := newTestWorld(t)
	f := mustFocus(t, w, "a", mgl32.Vec2{0, 0})

	w.StepOnce()
	if !f.Blocked || f.Passability != terrain.Impassable {
		t.Fatalf("first sample: passability=%d blocked=%v, want default impassable", f.Passability, f.Blocked)
	}
	w.StepOnce()
	if f.Blocked || f.Passability != terrain.Free {
		t.Fatalf("second sample: passability=%d blocked=%v, want free", f.Passability, f.Blocked)
	}
}

func TestProbeMarksImpassableFocusBlocked(t *testing.T) {
	w := newTestWorld(t)
	f := mustFocus(t, w, "a", mgl32.Vec2{30 * 16, 0})
	w.StepOnce()
	w.StepOnce()
	if !f.Blocked || f.Tile != (chunkmap.Point{X: 30, Y: 0}) {
		t.Fatalf("focus = %+v, want blocked on tile (30,0)", f)
	}
}

func TestMoveBouncesOffLoadedWall(t *testing.T) {
	w := newTestWorld(t)
	f := mustFocus(t, w, "a", mgl32.Vec2{0, 0})
	w.StepOnce()

	if err := w.handleFocusCmd(focusCmd{kind: focusMove, id: "a", vec: mgl32.Vec2{30 * 16, 0}}); err != nil {
		t.Fatalf("move: %v", err)
	}
	w.StepOnce()
	if !f.Bounced || f.Pos != (mgl32.Vec2{0, 0}) {
		t.Fatalf("after wall move pos=%v bounced=%v, want bounce to origin", f.Pos, f.Bounced)
	}

	if err := w.handleFocusCmd(focusCmd{kind: focusMove, id: "a", vec: mgl32.Vec2{5 * 16, 0}}); err != nil {
		t.Fatalf("move: %v", err)
	}
	w.StepOnce()
	if f.Bounced || f.Pos != (mgl32.Vec2{80, 0}) {
		t.Fatalf("after open move pos=%v bounced=%v", f.Pos, f.Bounced)
	}
}

func TestMoveIntoUnloadedTileNeverBounces(t *testing.T) {
	w := newTestWorld(t)
	f := mustFocus(t, w, "a", mgl32.Vec2{0, 0})
	if err := w.handleFocusCmd(focusCmd{kind: focusMove, id: "a", vec: mgl32.Vec2{100 * 16, 0}}); err != nil {
		t.Fatalf("move: %v", err)
	}
	w.StepOnce()
	if f.Bounced || f.Pos != (mgl32.Vec2{1600, 0}) {
		t.Fatalf("pos=%v bounced=%v, want accepted move", f.Pos, f.Bounced)
	}
}

func TestFocusCommandErrors(t *testing.T) {
	w := newTestWorld(t)
	if err := w.handleFocusCmd(focusCmd{kind: focusSet}); err == nil {
		t.Fatalf("expected error for empty id")
	}
	if err := w.handleFocusCmd(focusCmd{kind: focusMove, id: "ghost"}); err == nil {
		t.Fatalf("expected error for unknown focus")
	}
	mustFocus(t, w, "a", mgl32.Vec2{})
	if err := w.handleFocusCmd(focusCmd{kind: focusRemove, id: "a"}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(w.focuses) != 0 {
		t.Fatalf("focuses = %d, want 0", len(w.focuses))
	}
}

func TestWriteTileQueuesUntilGenerated(t *testing.T) {
	w := newTestWorld(t)
	p := chunkmap.Point{X: 2, Y: 2}
	if err := w.handleWriteCmd(writeCmd{layer: observerproto.LayerPassability, p: p, value: 7}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, ok := w.passability.Read(p); !ok {
		t.Fatalf("queued write should be readable")
	}
	w.StepOnce()
	if v, ok := w.passability.Read(p); !ok || v != 7 {
		t.Fatalf("Read(%v) = %d,%v, want 7", p, v, ok)
	}
	if err := w.handleWriteCmd(writeCmd{layer: "nope", p: p, value: 1}); err == nil {
		t.Fatalf("expected error for unknown layer")
	}
}

func TestPbrWriteVisibleAfterNextTick(t *testing.T) {
	w := newTestWorld(t)
	p := chunkmap.Point{X: 3, Y: 3}
	w.StepOnce()
	before, ok := w.pbr.Read(p)
	if !ok {
		t.Fatalf("pbr chunk not loaded after first tick")
	}

	if err := w.handleWriteCmd(writeCmd{layer: observerproto.LayerPbr, p: p, value: 255}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got, _ := w.pbr.Read(p); got != before {
		t.Fatalf("write visible before swap: %+v", got)
	}
	w.StepOnce()
	if got, _ := w.pbr.Read(p); got.Absorption != 1 {
		t.Fatalf("after swap absorption = %v, want 1", got.Absorption)
	}
}

type fakeTickLogger struct {
	entries []TickLogEntry
	err     error
}

func (l *fakeTickLogger) WriteTick(e TickLogEntry) error {
	l.entries = append(l.entries, e)
	return l.err
}

func TestTickLoggerReceivesGeneratedChunks(t *testing.T) {
	w := newTestWorld(t)
	logger := &fakeTickLogger{}
	w.SetTickLogger(logger)

	w.StepOnce()
	logger.err = errors.New("disk full")
	w.StepOnce()

	if len(logger.entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(logger.entries))
	}
	e := logger.entries[0]
	if e.Tick != 1 || e.RunID != "test" || len(e.Maps) != 3 {
		t.Fatalf("entry = %+v", e)
	}
	if len(e.Generated) != 3 {
		t.Fatalf("generated = %+v, want origin chunk in each layer", e.Generated)
	}
	for _, g := range e.Generated {
		if g.CX != 0 || g.CY != 0 {
			t.Fatalf("unexpected generated chunk %+v", g)
		}
	}
	if len(logger.entries[1].Generated) != 0 {
		t.Fatalf("second tick regenerated chunks: %+v", logger.entries[1].Generated)
	}
	if got := w.CurrentTick(); got != 2 {
		t.Fatalf("tick = %d, want 2", got)
	}
}

func joinTestObserver(w *World, sub Subscription) (tickOut, dataOut chan []byte) {
	tickOut = make(chan []byte, 4)
	dataOut = make(chan []byte, 64)
	w.handleObserverJoin(ObserverJoinRequest{SessionID: "O1", TickOut: tickOut, DataOut: dataOut, Sub: sub})
	return tickOut, dataOut
}

func drain(ch chan []byte) [][]byte {
	var out [][]byte
	for {
		select {
		case b := <-ch:
			out = append(out, b)
		default:
			return out
		}
	}
}

func msgType(t *testing.T, b []byte) string {
	t.Helper()
	var base struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(b, &base); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return base.Type
}

func TestObserverStreamsChunksOnce(t *testing.T) {
	w := newTestWorld(t)
	mustFocus(t, w, "a", mgl32.Vec2{})
	tickOut, dataOut := joinTestObserver(w, Subscription{FocusID: "a", Layers: []string{observerproto.LayerPassability}})

	w.StepOnce()
	frames := drain(dataOut)
	if len(frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(frames))
	}
	var chunk observerproto.ChunkMsg
	if err := json.Unmarshal(frames[0], &chunk); err != nil {
		t.Fatalf("unmarshal chunk: %v", err)
	}
	if chunk.Type != observerproto.TypeChunk || chunk.Layer != observerproto.LayerPassability || chunk.CX != 0 || chunk.CY != 0 {
		t.Fatalf("chunk = %+v", chunk)
	}
	cells, err := encoding.DecodeRLE(chunk.Data, chunk.Dim*chunk.Dim)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cells[0] != 255 || cells[15] != 252 {
		t.Fatalf("cells[0]=%d cells[15]=%d, want 255 and 252", cells[0], cells[15])
	}

	ticks := drain(tickOut)
	if len(ticks) != 1 {
		t.Fatalf("tick frames = %d, want 1", len(ticks))
	}
	var tick observerproto.TickMsg
	if err := json.Unmarshal(ticks[0], &tick); err != nil {
		t.Fatalf("unmarshal tick: %v", err)
	}
	if tick.Tick != 1 || len(tick.Focuses) != 1 || len(tick.Maps) != 3 {
		t.Fatalf("tick = %+v", tick)
	}

	w.StepOnce()
	if frames := drain(dataOut); len(frames) != 0 {
		t.Fatalf("unchanged chunk resent: %d frames", len(frames))
	}
}

func TestObserverResubscribeEvictsDroppedLayer(t *testing.T) {
	w := newTestWorld(t)
	mustFocus(t, w, "a", mgl32.Vec2{})
	_, dataOut := joinTestObserver(w, Subscription{FocusID: "a", Layers: []string{observerproto.LayerPassability}})
	w.StepOnce()
	drain(dataOut)

	w.handleObserverSubscribe(ObserverSubscribeRequest{SessionID: "O1", Sub: Subscription{FocusID: "a", Layers: []string{observerproto.LayerEmitters}}})
	w.StepOnce()
	frames := drain(dataOut)
	if len(frames) != 2 {
		t.Fatalf("frames = %d, want evict + chunk", len(frames))
	}
	var evict observerproto.ChunkEvictMsg
	if err := json.Unmarshal(frames[0], &evict); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if evict.Type != observerproto.TypeChunkEvict || evict.Layer != observerproto.LayerPassability {
		t.Fatalf("first frame = %+v", evict)
	}
	var chunk observerproto.ChunkMsg
	if err := json.Unmarshal(frames[1], &chunk); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	cells, err := encoding.DecodeRLE(chunk.Data, chunk.Dim*chunk.Dim)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if chunk.Layer != observerproto.LayerEmitters || cells[0] != 255 {
		t.Fatalf("chunk layer=%s origin=%d, want emitters with lit origin", chunk.Layer, cells[0])
	}
}

func TestObserverLightOverlay(t *testing.T) {
	w := newTestWorld(t)
	f := mustFocus(t, w, "a", mgl32.Vec2{})
	_, dataOut := joinTestObserver(w, Subscription{FocusID: "a", Layers: []string{observerproto.LayerPbr}, Light: true})
	w.StepOnce()

	var overlay *observerproto.LightOverlayMsg
	for _, b := range drain(dataOut) {
		if msgType(t, b) != observerproto.TypeLightOverlay {
			continue
		}
		overlay = &observerproto.LightOverlayMsg{}
		if err := json.Unmarshal(b, overlay); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
	}
	if overlay == nil {
		t.Fatalf("no light overlay frame")
	}
	if overlay.Size != 32 || overlay.Origin != [2]int{-16, -16} || overlay.Encoding != observerproto.EncodingRGBA8 {
		t.Fatalf("overlay = %+v", overlay)
	}
	pix, err := base64.StdEncoding.DecodeString(overlay.Data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(pix) != 32*32*4 {
		t.Fatalf("pixels = %d bytes", len(pix))
	}
	if i := (16*32 + 16) * 4; pix[i] == 0 {
		t.Fatalf("focus pixel is dark")
	}
	if f.Light[0] <= 0 {
		t.Fatalf("focus light = %v", f.Light)
	}
}

func TestObserverLeaveClosesChannels(t *testing.T) {
	w := newTestWorld(t)
	tickOut, dataOut := joinTestObserver(w, Subscription{})
	w.handleObserverLeave("O1")
	if _, ok := <-tickOut; ok {
		t.Fatalf("tickOut still open")
	}
	if _, ok := <-dataOut; ok {
		t.Fatalf("dataOut still open")
	}
	if len(w.observers) != 0 {
		t.Fatalf("observers = %d", len(w.observers))
	}
}

func TestNormalizeSubscriptionClamps(t *testing.T) {
	w := newTestWorld(t)
	s := w.normalizeSubscription(Subscription{ChunkRadius: 100, ChunksPerTick: 1000, Layers: []string{"nope", "pbr", "pbr"}})
	if s.ChunkRadius != 8 || s.ChunksPerTick != 64 {
		t.Fatalf("limits = %d/%d", s.ChunkRadius, s.ChunksPerTick)
	}
	if len(s.Layers) != 1 || s.Layers[0] != observerproto.LayerPbr {
		t.Fatalf("layers = %v", s.Layers)
	}
	s = w.normalizeSubscription(Subscription{})
	if s.ChunksPerTick != 16 || len(s.Layers) != len(observerproto.Layers) {
		t.Fatalf("defaults = %+v", s)
	}
}

func TestRunServesCommandsAndState(t *testing.T) {
	w := newTestWorld(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	callCtx, callCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer callCancel()
	if err := w.SetFocus(callCtx, "a", mgl32.Vec2{16, 16}); err != nil {
		t.Fatalf("set focus: %v", err)
	}
	if err := w.MoveFocus(callCtx, "ghost", mgl32.Vec2{1, 0}); err == nil {
		t.Fatalf("expected error moving unknown focus")
	}
	if err := w.WriteTile(callCtx, observerproto.LayerPassability, chunkmap.Point{X: 1, Y: 1}, 9); err != nil {
		t.Fatalf("write tile: %v", err)
	}
	s, err := w.State(callCtx)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if s.RunID != "test" || len(s.Focuses) != 1 || s.Focuses[0].ID != "a" || len(s.Maps) != 3 {
		t.Fatalf("state = %+v", s)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop")
	}
}

func TestBootstrapDescribesRun(t *testing.T) {
	w := newTestWorld(t)
	b := w.Bootstrap()
	if b.RunID != "test" || b.WorldParams.ChunkSize != 16 || b.WorldParams.TerrainMode != terrain.ModeRadial {
		t.Fatalf("bootstrap = %+v", b)
	}
	if len(b.Layers) != 3 || b.WorldParams.OverlayTiles != 32 {
		t.Fatalf("bootstrap layers/overlay = %v/%d", b.Layers, b.WorldParams.OverlayTiles)
	}
}

func TestTickLogDigestsMatchRegeneration(t *testing.T) {
	w := newTestWorld(t)
	logger := &fakeTickLogger{}
	w.SetTickLogger(logger)
	if err := w.handleWriteCmd(writeCmd{layer: observerproto.LayerPassability, p: chunkmap.Point{X: 1, Y: 1}, value: 3}); err != nil {
		t.Fatalf("write: %v", err)
	}
	w.StepOnce()

	r, err := NewRegenerator(testTuning())
	if err != nil {
		t.Fatalf("regenerator: %v", err)
	}
	for _, g := range logger.entries[0].Generated {
		want, err := r.Digest(g.Layer, chunkmap.ChunkCoords{X: g.CX, Y: g.CY})
		if err != nil {
			t.Fatalf("digest: %v", err)
		}
		if g.Flushed > 0 {
			if g.Digest == want {
				t.Fatalf("%s digest ignores flushed write", g.Layer)
			}
			continue
		}
		if g.Digest != want {
			t.Fatalf("%s digest = %s, want %s", g.Layer, g.Digest, want)
		}
	}
	if _, err := r.Chunk("nope", chunkmap.ChunkCoords{}); err == nil {
		t.Fatalf("expected error for unknown layer")
	}
}
