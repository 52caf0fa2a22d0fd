package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/gorilla/websocket"

	"tilelight.ai/internal/observerproto"
	"tilelight.ai/internal/sim/chunkmap"
)

func main() {
	var (
		server = flag.String("server", "http://127.0.0.1:8080", "server base url")
		focus  = flag.String("focus", "player", "focus id to follow")
		radius = flag.Int("radius", 2, "chunk radius to stream")
	)
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := newClient(*server)
	boot, err := c.bootstrap(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bootstrap: %v\n", err)
		os.Exit(1)
	}

	frames := make(chan []byte, 256)
	conn, err := c.stream(ctx, subscribeMsg(*focus, *radius, true), frames)
	if err != nil {
		fmt.Fprintf(os.Stderr, "observer: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	screen, err := tcell.NewScreen()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	if err := screen.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer screen.Fini()

	a := &app{
		screen:   screen,
		client:   c,
		conn:     conn,
		view:     newView(*focus, boot.WorldParams.ChunkSize),
		tileSize: boot.WorldParams.TileSizeUnits,
		runID:    boot.RunID,
		radius:   *radius,
		light:    true,
	}
	a.run(ctx, frames)
}

type app struct {
	screen   tcell.Screen
	client   *client
	conn     *websocket.Conn
	view     *view
	tileSize float32
	runID    string
	radius   int
	light    bool
	status   string
}

func (a *app) run(ctx context.Context, frames <-chan []byte) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	eventChan := make(chan tcell.Event, 100)
	go func() {
		for {
			ev := a.screen.PollEvent()
			if ev == nil {
				return
			}
			eventChan <- ev
		}
	}()

	for {
		select {
		case ev := <-eventChan:
			if !a.handleInput(ctx, ev) {
				return
			}
		case f, ok := <-frames:
			if !ok {
				return
			}
			if err := a.view.apply(f); err != nil {
				a.status = err.Error()
			}
		case <-ticker.C:
			a.draw()
		}
	}
}

func (a *app) handleInput(ctx context.Context, ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC || (ev.Key() == tcell.KeyRune && ev.Rune() == 'q') {
			return false
		}
		var dx, dy float32
		switch ev.Key() {
		case tcell.KeyUp:
			dy = a.tileSize
		case tcell.KeyDown:
			dy = -a.tileSize
		case tcell.KeyLeft:
			dx = -a.tileSize
		case tcell.KeyRight:
			dx = a.tileSize
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'w':
				a.toggleWall(ctx)
			case 'l':
				a.light = !a.light
				if err := a.conn.WriteJSON(subscribeMsg(a.view.focusID, a.radius, a.light)); err != nil {
					a.status = err.Error()
				}
			}
			return true
		default:
			return true
		}
		if err := a.client.moveFocus(ctx, a.view.focusID, dx, dy); err != nil {
			a.status = err.Error()
		}
	case *tcell.EventResize:
		a.screen.Sync()
	}
	return true
}

func (a *app) toggleWall(ctx context.Context) {
	f := a.view.focus
	if f == nil {
		return
	}
	// The focus tile itself is never a wall, so toggle the tile above it.
	x, y := f.Tile[0], f.Tile[1]+1
	pass, _ := a.view.passability(chunkmap.Point{X: x, Y: y})
	wall := pass >= 10
	passValue, pbrValue := 255, 13
	if wall {
		passValue, pbrValue = 0, 255
	}
	if err := a.client.writeTile(ctx, observerproto.LayerPassability, x, y, passValue); err != nil {
		a.status = err.Error()
		return
	}
	if err := a.client.writeTile(ctx, observerproto.LayerPbr, x, y, pbrValue); err != nil {
		a.status = err.Error()
	}
}

func (a *app) draw() {
	a.screen.Clear()
	width, height := a.screen.Size()
	mapHeight := height - 1
	for row := 0; row < mapHeight; row++ {
		for col := 0; col < width; col++ {
			p := a.view.screenToTile(col, row, width, mapHeight)
			r, g, b := a.view.tileColor(p).RGB255()
			style := tcell.StyleDefault.Background(tcell.NewRGBColor(int32(r), int32(g), int32(b)))
			ch := ' '
			if f := a.view.focus; f != nil && p.X == f.Tile[0] && p.Y == f.Tile[1] {
				ch = '@'
				style = style.Foreground(tcell.ColorWhite).Bold(true)
				if f.Blocked {
					style = style.Foreground(tcell.ColorRed)
				}
			}
			a.screen.SetContent(col, row, ch, nil, style)
		}
	}

	status := fmt.Sprintf(" run %s  tick %d  chunks %d  light %v ", shortID(a.runID), a.view.tick, len(a.view.chunks), a.light)
	if f := a.view.focus; f != nil {
		status += fmt.Sprintf(" tile (%d,%d) pass %d ", f.Tile[0], f.Tile[1], f.Passability)
	}
	if a.status != "" {
		status += " " + a.status
	}
	statusStyle := tcell.StyleDefault.Reverse(true)
	for i, r := range []rune(status) {
		if i >= width {
			break
		}
		a.screen.SetContent(i, height-1, r, nil, statusStyle)
	}
	a.screen.Show()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
