package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"tilelight.ai/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "rollback":
			rollbackCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	dir := filepath.Join(*dataDir, "snapshots")
	entries, err := os.ReadDir(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".snap.zst") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		h, err := snapshot.ReadHeader(filepath.Join(dir, name))
		if err != nil {
			fmt.Printf("%s\terror=%v\n", name, err)
			continue
		}
		fmt.Printf("%s\trun=%s tick=%d\n", name, h.RunID, h.Tick)
	}
}

func rollbackCmd(args []string) {
	fs := flag.NewFlagSet("rollback", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	snapPath := fs.String("snapshot", "", "snapshot path to rollback from (optional; defaults to latest)")
	box := fs.String("box", "", "tile box filter: x1,y1:x2,y2 (required)")
	layer := fs.String("layer", "", "only drop edits of this layer (optional)")
	outPath := fs.String("out", "", "output snapshot path (optional)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*box) == "" {
		fmt.Fprintln(os.Stderr, "missing -box")
		os.Exit(2)
	}
	min, max, err := parseBox(*box)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -box:", err)
		os.Exit(2)
	}

	dir := filepath.Join(*dataDir, "snapshots")
	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" {
		snapshotToLoad, err = snapshot.Latest(dir)
		if errors.Is(err, snapshot.ErrNoSnapshot) {
			fmt.Fprintln(os.Stderr, "no snapshot found; provide -snapshot or stop the server so it writes one")
			os.Exit(2)
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "find snapshot:", err)
			os.Exit(1)
		}
	}

	snap, err := snapshot.ReadSnapshot(snapshotToLoad)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}

	dropped := applyRollback(&snap, *layer, min, max)
	if dropped == 0 {
		fmt.Println("no matching edits; nothing to rollback")
		return
	}

	if strings.TrimSpace(*outPath) == "" {
		*outPath = filepath.Join(dir, fmt.Sprintf("%d.rollback.snap.zst", snap.Header.Tick))
	}
	if err := snapshot.WriteSnapshot(*outPath, snap); err != nil {
		fmt.Fprintln(os.Stderr, "write snapshot:", err)
		os.Exit(1)
	}

	fmt.Printf("rollback ok: snapshot=%s tick=%d box=%s dropped=%d kept=%d out=%s\n",
		filepath.Base(snapshotToLoad), snap.Header.Tick, *box, dropped, len(snap.Edits), *outPath)
	fmt.Printf("restart with: server -restore_from %s\n", *outPath)
}

// applyRollback removes edits inside [min,max] (inclusive) and returns how
// many were dropped. An empty layer matches every layer.
func applyRollback(snap *snapshot.SnapshotV1, layer string, min, max [2]int) int {
	kept := snap.Edits[:0]
	dropped := 0
	for _, e := range snap.Edits {
		if (layer == "" || e.Layer == layer) && withinBox([2]int{e.X, e.Y}, min, max) {
			dropped++
			continue
		}
		kept = append(kept, e)
	}
	snap.Edits = kept
	return dropped
}

func withinBox(p [2]int, min, max [2]int) bool {
	return p[0] >= min[0] && p[0] <= max[0] &&
		p[1] >= min[1] && p[1] <= max[1]
}

func parseBox(s string) (min, max [2]int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return min, max, fmt.Errorf("expected x1,y1:x2,y2")
	}
	a, err := parseVec2(parts[0])
	if err != nil {
		return min, max, err
	}
	b, err := parseVec2(parts[1])
	if err != nil {
		return min, max, err
	}
	for i := 0; i < 2; i++ {
		if a[i] <= b[i] {
			min[i], max[i] = a[i], b[i]
		} else {
			min[i], max[i] = b[i], a[i]
		}
	}
	return min, max, nil
}

func parseVec2(s string) ([2]int, error) {
	var v [2]int
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 2 {
		return v, fmt.Errorf("expected x,y")
	}
	for i := 0; i < 2; i++ {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return v, err
		}
		v[i] = n
	}
	return v, nil
}
