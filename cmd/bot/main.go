package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"tilelight.ai/internal/observerproto"
)

// bot random-walks one focus through the world, turning whenever it lands on
// a blocked tile or fails to move. Several bots make a cheap loader workload.
func main() {
	var (
		baseURL = flag.String("url", "http://127.0.0.1:8080", "server base url")
		name    = flag.String("name", "bot", "focus id")
		startX  = flag.Float64("x", 0, "start x (world units)")
		startY  = flag.Float64("y", 0, "start y (world units)")
		stepHz  = flag.Float64("moves_per_sec", 4, "move rate")
		seed    = flag.Int64("seed", 0, "walk seed (0 = time based)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	base := strings.TrimRight(strings.TrimSpace(*baseURL), "/")
	api := &http.Client{Timeout: 5 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := postJSON(ctx, api, base+"/admin/v1/focus", map[string]any{"id": *name, "x": *startX, "y": *startY}); err != nil {
		logger.Fatalf("create focus: %v", err)
	}
	defer func() {
		ctx2, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		req, _ := http.NewRequestWithContext(ctx2, http.MethodDelete, base+"/admin/v1/focus?id="+url.QueryEscape(*name), nil)
		if resp, err := api.Do(req); err == nil {
			resp.Body.Close()
		}
	}()

	wsURL := strings.Replace(base, "http", "ws", 1) + "/admin/v1/observer/ws"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	sub := observerproto.SubscribeMsg{
		Type:            observerproto.TypeSubscribe,
		ProtocolVersion: observerproto.Version,
		FocusID:         *name,
		ChunkRadius:     0,
		Layers:          []string{observerproto.LayerPassability},
		ChunksPerTick:   1,
	}
	if err := conn.WriteJSON(sub); err != nil {
		logger.Fatalf("send SUBSCRIBE: %v", err)
	}

	tileSize := float32(16)
	if boot, err := fetchBootstrap(ctx, api, base); err == nil && boot.WorldParams.TileSizeUnits > 0 {
		tileSize = boot.WorldParams.TileSizeUnits
	}
	walk := newWalker(rand.New(rand.NewSource(*seed)))
	limiter := rate.NewLimiter(rate.Limit(*stepHz), 1)
	moves := 0

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			logger.Printf("stopped after %d moves: %v", moves, err)
			return
		}
		var tick observerproto.TickMsg
		if err := json.Unmarshal(msg, &tick); err != nil || tick.Type != observerproto.TypeTick {
			continue
		}
		f, ok := findFocus(tick.Focuses, *name)
		if !ok || !limiter.Allow() {
			continue
		}
		dx, dy := walk.next(f)
		if err := postJSON(ctx, api, base+"/admin/v1/focus/move", map[string]any{
			"id": *name, "dx": float32(dx) * tileSize, "dy": float32(dy) * tileSize,
		}); err != nil {
			logger.Printf("move: %v", err)
			continue
		}
		moves++
		if moves%100 == 0 {
			logger.Printf("%s: %d moves, tick %d, tile (%d,%d)", *name, moves, tick.Tick, f.Tile[0], f.Tile[1])
		}
	}
}

var directions = [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}

type walker struct {
	rng      *rand.Rand
	dir      [2]int
	lastTile [2]int
	moved    bool
}

func newWalker(rng *rand.Rand) *walker {
	w := &walker{rng: rng}
	w.turn()
	return w
}

func (w *walker) turn() {
	w.dir = directions[w.rng.Intn(len(directions))]
}

// next picks the tile step for this move. The walker keeps its heading until
// the focus stalls or stands on a blocked tile, and turns at random one move
// in eight.
func (w *walker) next(f observerproto.FocusState) (dx, dy int) {
	stalled := w.moved && f.Tile == w.lastTile
	if stalled || f.Blocked || w.rng.Intn(8) == 0 {
		w.turn()
	}
	w.lastTile = f.Tile
	w.moved = true
	return w.dir[0], w.dir[1]
}

func findFocus(fs []observerproto.FocusState, id string) (observerproto.FocusState, bool) {
	for _, f := range fs {
		if f.ID == id {
			return f, true
		}
	}
	return observerproto.FocusState{}, false
}

func fetchBootstrap(ctx context.Context, cl *http.Client, base string) (observerproto.BootstrapResponse, error) {
	var out observerproto.BootstrapResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/admin/v1/observer/bootstrap", nil)
	if err != nil {
		return out, err
	}
	resp, err := cl.Do(req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return out, fmt.Errorf("bootstrap: %s", resp.Status)
	}
	err = json.NewDecoder(resp.Body).Decode(&out)
	return out, err
}

func postJSON(ctx context.Context, cl *http.Client, u string, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := cl.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %s", u, resp.Status)
	}
	return nil
}
