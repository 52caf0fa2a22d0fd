package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	persistlog "tilelight.ai/internal/persistence/log"
	"tilelight.ai/internal/sim/chunkmap"
	"tilelight.ai/internal/sim/tuning"
	"tilelight.ai/internal/sim/world"
)

func main() {
	var (
		dataDir    = flag.String("data", "./data", "runtime data directory (reads <data>/ticks)")
		runID      = flag.String("run", "", "only entries of this run id (optional)")
		fromTick   = flag.Uint64("from_tick", 0, "first tick to include (inclusive, optional)")
		toTick     = flag.Uint64("to_tick", 0, "last tick to include (inclusive, optional)")
		top        = flag.Int("top", 5, "number of slowest ticks to print")
		tuningPath = flag.String("verify_tuning", "", "tuning.yaml to regenerate chunks with and compare digests (optional)")
	)
	flag.Parse()

	files, err := persistlog.ListTickFiles(persistlog.TickDir(*dataDir))
	if err != nil {
		fmt.Fprintln(os.Stderr, "list tick logs:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no tick logs found in", persistlog.TickDir(*dataDir))
		os.Exit(1)
	}

	var regen *world.Regenerator
	if *tuningPath != "" {
		tune, err := tuning.Load(*tuningPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
		if regen, err = world.NewRegenerator(tune); err != nil {
			fmt.Fprintln(os.Stderr, "regenerator:", err)
			os.Exit(1)
		}
	}

	s := newSummary(*top, regen)
	for _, path := range files {
		err := persistlog.ReadTickFile(path, func(e world.TickLogEntry) error {
			if *runID != "" && e.RunID != *runID {
				return nil
			}
			if e.Tick < *fromTick {
				return nil
			}
			if *toTick != 0 && e.Tick > *toTick {
				return persistlog.ErrStop
			}
			return s.add(filepath.Base(path), e)
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "ticklog:", err)
			os.Exit(1)
		}
	}
	s.print(os.Stdout)
	if s.mismatches > 0 {
		os.Exit(1)
	}
}

type layerTotals struct {
	chunks  int
	flushed int
	micros  int64
}

type slowTick struct {
	run    string
	tick   uint64
	stepMS float64
}

type summary struct {
	top   int
	regen *world.Regenerator

	ticks    int
	runs     map[string]uint64
	gaps     int
	layers   map[string]*layerTotals
	slowest  []slowTick
	verified int

	mismatches int
}

func newSummary(top int, regen *world.Regenerator) *summary {
	return &summary{
		top:    top,
		regen:  regen,
		runs:   map[string]uint64{},
		layers: map[string]*layerTotals{},
	}
}

func (s *summary) add(file string, e world.TickLogEntry) error {
	s.ticks++
	if last, ok := s.runs[e.RunID]; ok && e.Tick != last+1 {
		s.gaps++
	}
	s.runs[e.RunID] = e.Tick

	for _, g := range e.Generated {
		lt := s.layers[g.Layer]
		if lt == nil {
			lt = &layerTotals{}
			s.layers[g.Layer] = lt
		}
		lt.chunks++
		lt.flushed += g.Flushed
		lt.micros += g.Micros

		if s.regen == nil || g.Flushed > 0 || g.Digest == "" {
			continue
		}
		want, err := s.regen.Digest(g.Layer, chunkmap.ChunkCoords{X: g.CX, Y: g.CY})
		if err != nil {
			return fmt.Errorf("%s: tick %d: %w", file, e.Tick, err)
		}
		s.verified++
		if want != g.Digest {
			s.mismatches++
			fmt.Printf("digest mismatch: run=%s tick=%d layer=%s chunk=(%d,%d) got=%s want=%s\n",
				e.RunID, e.Tick, g.Layer, g.CX, g.CY, g.Digest, want)
		}
	}

	s.slowest = append(s.slowest, slowTick{run: e.RunID, tick: e.Tick, stepMS: e.StepMS})
	sort.Slice(s.slowest, func(i, j int) bool { return s.slowest[i].stepMS > s.slowest[j].stepMS })
	if len(s.slowest) > s.top {
		s.slowest = s.slowest[:s.top]
	}
	return nil
}

func (s *summary) print(out io.Writer) {
	fmt.Fprintf(out, "ticks=%d runs=%d gaps=%d\n", s.ticks, len(s.runs), s.gaps)

	names := make([]string, 0, len(s.layers))
	for name := range s.layers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		lt := s.layers[name]
		avg := float64(0)
		if lt.chunks > 0 {
			avg = float64(lt.micros) / float64(lt.chunks) / 1000
		}
		fmt.Fprintf(out, "layer %-12s chunks=%d flushed_writes=%d avg_gen_ms=%.3f\n", name, lt.chunks, lt.flushed, avg)
	}
	for _, t := range s.slowest {
		fmt.Fprintf(out, "slow tick run=%s tick=%d step_ms=%.3f\n", t.run, t.tick, t.stepMS)
	}
	if s.regen != nil {
		fmt.Fprintf(out, "verified=%d mismatches=%d\n", s.verified, s.mismatches)
	}
}
