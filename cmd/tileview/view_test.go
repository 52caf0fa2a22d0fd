package main

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"tilelight.ai/internal/observerproto"
	"tilelight.ai/internal/sim/chunkmap"
	"tilelight.ai/internal/sim/encoding"
)

func frame(t *testing.T, msg any) []byte {
	t.Helper()
	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestView_AppliesChunksAndEvicts(t *testing.T) {
	v := newView("player", 4)
	cells := make([]byte, 16)
	cells[1*4+2] = 200
	chunk := observerproto.ChunkMsg{
		Type: observerproto.TypeChunk, Layer: observerproto.LayerPassability,
		CX: -1, CY: 0, Dim: 4, Encoding: observerproto.EncodingRLE8, Data: encoding.EncodeRLE(cells),
	}
	if err := v.apply(frame(t, chunk)); err != nil {
		t.Fatalf("apply chunk: %v", err)
	}
	// Local (2,1) of chunk (-1,0) is tile (-2,1).
	if got, ok := v.passability(chunkmap.Point{X: -2, Y: 1}); !ok || got != 200 {
		t.Fatalf("passability=%d ok=%v want 200", got, ok)
	}
	if _, ok := v.passability(chunkmap.Point{X: 0, Y: 0}); ok {
		t.Fatalf("expected chunk (0,0) unknown")
	}

	other := chunk
	other.Layer = observerproto.LayerPbr
	other.CX = 0
	if err := v.apply(frame(t, other)); err != nil {
		t.Fatalf("apply pbr: %v", err)
	}
	if len(v.chunks) != 1 {
		t.Fatalf("pbr chunk should be ignored, have %d chunks", len(v.chunks))
	}

	evict := observerproto.ChunkEvictMsg{Type: observerproto.TypeChunkEvict, Layer: observerproto.LayerPassability, CX: -1, CY: 0}
	if err := v.apply(frame(t, evict)); err != nil {
		t.Fatalf("apply evict: %v", err)
	}
	if len(v.chunks) != 0 {
		t.Fatalf("expected evicted, have %d chunks", len(v.chunks))
	}
}

func TestView_TickTracksFocus(t *testing.T) {
	v := newView("player", 16)
	msg := observerproto.TickMsg{
		Type: observerproto.TypeTick, Tick: 9,
		Focuses: []observerproto.FocusState{{ID: "other"}, {ID: "player", Tile: [2]int{3, -4}}},
	}
	if err := v.apply(frame(t, msg)); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if v.tick != 9 || v.focus == nil || v.focus.Tile != [2]int{3, -4} {
		t.Fatalf("tick=%d focus=%+v", v.tick, v.focus)
	}
	// Centre cell is the focus tile; the row above is one tile higher.
	if p := v.screenToTile(5, 5, 10, 10); p != (chunkmap.Point{X: 3, Y: -4}) {
		t.Fatalf("centre=%+v", p)
	}
	if p := v.screenToTile(5, 4, 10, 10); p != (chunkmap.Point{X: 3, Y: -3}) {
		t.Fatalf("row above=%+v", p)
	}
}

func TestView_TileColorUsesLight(t *testing.T) {
	v := newView("player", 2)
	cells := []byte{255, 255, 0, 0}
	chunk := observerproto.ChunkMsg{Type: observerproto.TypeChunk, Layer: observerproto.LayerPassability, Dim: 2, Data: encoding.EncodeRLE(cells)}
	if err := v.apply(frame(t, chunk)); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if got := v.tileColor(chunkmap.Point{X: 9, Y: 9}); got != unknown {
		t.Fatalf("unloaded tile color=%v", got)
	}
	dark := v.tileColor(chunkmap.Point{X: 0, Y: 0})

	pix := make([]byte, 2*2*4)
	for i := 0; i < len(pix); i += 4 {
		pix[i], pix[i+1], pix[i+2], pix[i+3] = 255, 255, 255, 255
	}
	overlay := observerproto.LightOverlayMsg{
		Type: observerproto.TypeLightOverlay, Origin: [2]int{0, 0}, Size: 2,
		Encoding: observerproto.EncodingRGBA8, Data: base64.StdEncoding.EncodeToString(pix),
	}
	if err := v.apply(frame(t, overlay)); err != nil {
		t.Fatalf("apply overlay: %v", err)
	}
	lit := v.tileColor(chunkmap.Point{X: 0, Y: 0})
	if lit.G <= dark.G {
		t.Fatalf("lit=%v should be brighter than dark=%v", lit, dark)
	}
	if !lit.AlmostEqualRgb(groundColor) {
		t.Fatalf("full white light should keep ground color, got %v", lit)
	}
	wall := v.tileColor(chunkmap.Point{X: 0, Y: 1})
	if wall.G >= lit.G {
		t.Fatalf("wall=%v should be darker than ground=%v", wall, lit)
	}
}

func TestView_RejectsShortOverlay(t *testing.T) {
	v := newView("player", 16)
	overlay := observerproto.LightOverlayMsg{Type: observerproto.TypeLightOverlay, Size: 4, Data: base64.StdEncoding.EncodeToString([]byte{1, 2, 3})}
	if err := v.apply(frame(t, overlay)); err == nil {
		t.Fatalf("expected size error")
	}
}

func TestClient_WSURL(t *testing.T) {
	c := newClient("https://example.test:9000")
	u, err := c.wsURL()
	if err != nil {
		t.Fatalf("wsURL: %v", err)
	}
	if u != "wss://example.test:9000/admin/v1/observer/ws" {
		t.Fatalf("got %s", u)
	}
}
