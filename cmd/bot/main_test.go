package main

import (
	"context"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"

	"tilelight.ai/internal/observerproto"
)

func TestWalker_TurnsWhenStalledOrBlocked(t *testing.T) {
	w := newWalker(rand.New(rand.NewSource(7)))
	f := observerproto.FocusState{ID: "bot", Tile: [2]int{0, 0}}
	dx, dy := w.next(f)
	if dx*dx+dy*dy != 1 {
		t.Fatalf("step (%d,%d) is not a unit step", dx, dy)
	}

	// A stalled focus must re-roll its heading; over many stalls every
	// direction shows up.
	seen := map[[2]int]bool{}
	for i := 0; i < 200; i++ {
		dx, dy := w.next(f)
		seen[[2]int{dx, dy}] = true
	}
	if len(seen) != len(directions) {
		t.Fatalf("stalled walker used %d directions, want %d", len(seen), len(directions))
	}
}

func TestWalker_KeepsHeadingWhileMoving(t *testing.T) {
	w := newWalker(rand.New(rand.NewSource(1)))
	tile := [2]int{0, 0}
	same := 0
	prev := w.dir
	for i := 0; i < 400; i++ {
		dx, dy := w.next(observerproto.FocusState{Tile: tile})
		if [2]int{dx, dy} == prev {
			same++
		}
		prev = [2]int{dx, dy}
		tile[0] += dx
		tile[1] += dy
	}
	// Turns happen about one move in eight and may pick the same heading.
	if same < 300 {
		t.Fatalf("heading kept %d/400 times", same)
	}
}

func TestPostJSONReportsStatus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			rw.WriteHeader(http.StatusNotFound)
			return
		}
		rw.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := postJSON(ctx, srv.Client(), srv.URL+"/ok", map[string]int{"a": 1}); err != nil {
		t.Fatalf("ok: %v", err)
	}
	if err := postJSON(ctx, srv.Client(), srv.URL+"/bad", nil); err == nil {
		t.Fatalf("expected error for 404")
	}
}
