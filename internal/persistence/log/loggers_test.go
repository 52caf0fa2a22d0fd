package log

import (
	"path/filepath"
	"testing"
	"time"

	"tilelight.ai/internal/sim/world"
)

func TestTickLoggerRotatesHourlyAndReadsBack(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLogger(dir)
	clock := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	l.w.now = func() time.Time { return clock }

	for tick := uint64(1); tick <= 4; tick++ {
		if tick == 3 {
			clock = clock.Add(2 * time.Minute)
		}
		e := world.TickLogEntry{RunID: "r", Tick: tick, Generated: []world.GeneratedLog{{Layer: "pbr", CX: int(tick), Digest: "d"}}}
		if err := l.WriteTick(e); err != nil {
			t.Fatalf("write tick %d: %v", tick, err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := ListTickFiles(TickDir(dir))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("files = %v, want 2 hourly files", files)
	}
	if got := filepath.Base(files[0]); got != "ticks-2026-03-01-10.jsonl.zst" {
		t.Fatalf("first file = %s", got)
	}

	var ticks []uint64
	for _, f := range files {
		if err := ReadTickFile(f, func(e world.TickLogEntry) error {
			if len(e.Generated) != 1 || e.Generated[0].CX != int(e.Tick) {
				t.Fatalf("entry %d generated = %+v", e.Tick, e.Generated)
			}
			ticks = append(ticks, e.Tick)
			return nil
		}); err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
	}
	if len(ticks) != 4 || ticks[0] != 1 || ticks[3] != 4 {
		t.Fatalf("ticks = %v", ticks)
	}
}

func TestReadTickFileStopsEarly(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLogger(dir)
	l.w.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }
	for tick := uint64(1); tick <= 5; tick++ {
		if err := l.WriteTick(world.TickLogEntry{Tick: tick}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	_ = l.Close()

	files, err := ListTickFiles(TickDir(dir))
	if err != nil || len(files) == 0 {
		t.Fatalf("list: %v %v", files, err)
	}
	n := 0
	err = ReadTickFile(files[0], func(e world.TickLogEntry) error {
		n++
		if e.Tick == 2 {
			return ErrStop
		}
		return nil
	})
	if err != nil || n != 2 {
		t.Fatalf("read = %d, %v; want stop after 2", n, err)
	}
}
