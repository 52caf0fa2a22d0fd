package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"tilelight.ai/internal/persistence/indexdb"
	"tilelight.ai/internal/persistence/snapshot"
	"tilelight.ai/internal/sim/chunkmap"
	"tilelight.ai/internal/sim/world"
)

type adminAPI struct {
	world       *world.World
	index       *indexdb.SQLiteIndex
	log         *log.Logger
	snapshotDir string
}

func (a *adminAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("/admin/v1/state", a.localOnly(a.handleState))
	mux.HandleFunc("/admin/v1/focus", a.localOnly(a.handleFocus))
	mux.HandleFunc("/admin/v1/focus/move", a.localOnly(a.handleFocusMove))
	mux.HandleFunc("/admin/v1/write", a.localOnly(a.handleWrite))
	mux.HandleFunc("/admin/v1/chunk_history", a.localOnly(a.handleChunkHistory))
	mux.HandleFunc("/admin/v1/snapshot", a.localOnly(a.handleSnapshot))
}

func (a *adminAPI) localOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

func (a *adminAPI) handleState(rw http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	state, err := a.world.State(ctx)
	if err != nil {
		writeError(rw, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(rw, http.StatusOK, struct {
		State   world.StateSnapshot `json:"state"`
		Metrics world.WorldMetrics  `json:"metrics"`
		Index   *indexdb.Stats      `json:"index,omitempty"`
	}{
		State:   state,
		Metrics: a.world.Metrics(),
		Index:   a.indexStats(),
	})
}

type focusBody struct {
	ID string  `json:"id"`
	X  float32 `json:"x"`
	Y  float32 `json:"y"`
}

// handleFocus: POST creates or teleports a focus, DELETE ?id= removes it.
func (a *adminAPI) handleFocus(rw http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	switch r.Method {
	case http.MethodPost:
		var body focusBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(rw, http.StatusBadRequest, err)
			return
		}
		if err := a.world.SetFocus(ctx, body.ID, mgl32.Vec2{body.X, body.Y}); err != nil {
			writeError(rw, http.StatusBadRequest, err)
			return
		}
	case http.MethodDelete:
		if err := a.world.RemoveFocus(ctx, r.URL.Query().Get("id")); err != nil {
			writeError(rw, http.StatusNotFound, err)
			return
		}
	default:
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true})
}

type moveBody struct {
	ID string  `json:"id"`
	DX float32 `json:"dx"`
	DY float32 `json:"dy"`
}

func (a *adminAPI) handleFocusMove(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var body moveBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(rw, http.StatusBadRequest, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := a.world.MoveFocus(ctx, body.ID, mgl32.Vec2{body.DX, body.DY}); err != nil {
		writeError(rw, http.StatusNotFound, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true})
}

type writeBody struct {
	Layer string `json:"layer"`
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Value int    `json:"value"`
}

func (a *adminAPI) handleWrite(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var body writeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(rw, http.StatusBadRequest, err)
		return
	}
	if body.Value < 0 || body.Value > 255 {
		writeError(rw, http.StatusBadRequest, fmt.Errorf("value %d out of range 0..255", body.Value))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := a.world.WriteTile(ctx, body.Layer, chunkmap.Point{X: body.X, Y: body.Y}, byte(body.Value)); err != nil {
		writeError(rw, http.StatusBadRequest, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true})
}

func (a *adminAPI) handleChunkHistory(rw http.ResponseWriter, r *http.Request) {
	if a.index == nil {
		writeError(rw, http.StatusNotFound, fmt.Errorf("index disabled"))
		return
	}
	q := r.URL.Query()
	cx, err1 := strconv.Atoi(q.Get("cx"))
	cy, err2 := strconv.Atoi(q.Get("cy"))
	if err1 != nil || err2 != nil {
		writeError(rw, http.StatusBadRequest, fmt.Errorf("cx and cy must be integers"))
		return
	}
	runID := q.Get("run_id")
	if runID == "" {
		runID = a.world.RunID()
	}
	rows, err := a.index.ChunkHistory(r.Context(), runID, q.Get("layer"), cx, cy)
	if err != nil {
		writeError(rw, http.StatusInternalServerError, err)
		return
	}
	writeJSON(rw, http.StatusOK, rows)
}

func (a *adminAPI) handleSnapshot(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	path, snap, err := a.saveSnapshot(ctx)
	if err != nil {
		writeError(rw, http.StatusInternalServerError, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{
		"ok":      true,
		"path":    path,
		"tick":    snap.Header.Tick,
		"focuses": len(snap.Focuses),
		"edits":   len(snap.Edits),
	})
}

func (a *adminAPI) saveSnapshot(ctx context.Context) (string, snapshot.SnapshotV1, error) {
	if a.snapshotDir == "" {
		return "", snapshot.SnapshotV1{}, fmt.Errorf("snapshots disabled")
	}
	snap, err := a.world.Snapshot(ctx)
	if err != nil {
		return "", snap, err
	}
	path := snapshot.Path(a.snapshotDir, snap.Header.Tick)
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		return "", snap, err
	}
	if a.log != nil {
		a.log.Printf("snapshot: tick %d, %d focuses, %d edits -> %s", snap.Header.Tick, len(snap.Focuses), len(snap.Edits), path)
	}
	return path, snap, nil
}

func (a *adminAPI) indexStats() *indexdb.Stats {
	if a.index == nil {
		return nil
	}
	s := a.index.Stats()
	return &s
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeError(rw http.ResponseWriter, status int, err error) {
	writeJSON(rw, status, map[string]any{"ok": false, "error": err.Error()})
}

type initialFocus struct {
	id  string
	pos mgl32.Vec2
}

// parseFocusFlag reads "id@x,y;id2@x,y".
func parseFocusFlag(s string) ([]initialFocus, error) {
	var out []initialFocus
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, coords, ok := strings.Cut(part, "@")
		if !ok || strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("bad focus %q, want id@x,y", part)
		}
		xs, ys, ok := strings.Cut(coords, ",")
		if !ok {
			return nil, fmt.Errorf("bad focus %q, want id@x,y", part)
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(xs), 32)
		if err != nil {
			return nil, fmt.Errorf("focus %s: x: %w", id, err)
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(ys), 32)
		if err != nil {
			return nil, fmt.Errorf("focus %s: y: %w", id, err)
		}
		out = append(out, initialFocus{id: strings.TrimSpace(id), pos: mgl32.Vec2{float32(x), float32(y)}})
	}
	return out, nil
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
