package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional; defaults to <data>/index/tilelight.sqlite)")
	runID := fs.String("run", "", "run id (optional; defaults to latest run)")
	focusID := fs.String("focus", "", "focus id filter (focus)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "runs"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "tilelight.sqlite")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := runQuery(os.Stdout, db, q, *runID, *focusID, *limit); err != nil {
		fmt.Fprintln(os.Stderr, q+":", err)
		os.Exit(1)
	}
}

func runQuery(out io.Writer, db *sql.DB, q, runID, focusID string, limit int) error {
	if limit <= 0 {
		limit = 20
	}
	if q != "runs" && runID == "" {
		lr, err := latestRunID(db)
		if err != nil {
			return fmt.Errorf("latest run: %w", err)
		}
		if lr == "" {
			return fmt.Errorf("no runs recorded")
		}
		runID = lr
	}

	switch q {
	case "runs":
		rows, err := db.Query(`SELECT run_id,started_at,seed,terrain_mode,tuning_digest FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				RunID        string `json:"run_id"`
				StartedAt    string `json:"started_at"`
				Seed         int64  `json:"seed"`
				TerrainMode  string `json:"terrain_mode"`
				TuningDigest string `json:"tuning_digest"`
			}
			if err := rows.Scan(&r.RunID, &r.StartedAt, &r.Seed, &r.TerrainMode, &r.TuningDigest); err != nil {
				return err
			}
			printJSON(out, r)
		}
		return rows.Err()

	case "slow":
		rows, err := db.Query(`SELECT tick,step_ms,focuses,generated FROM ticks WHERE run_id=? ORDER BY step_ms DESC, tick LIMIT ?`, runID, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick      int64   `json:"tick"`
				StepMS    float64 `json:"step_ms"`
				Focuses   int     `json:"focuses"`
				Generated int     `json:"generated"`
			}
			if err := rows.Scan(&r.Tick, &r.StepMS, &r.Focuses, &r.Generated); err != nil {
				return err
			}
			printJSON(out, r)
		}
		return rows.Err()

	case "layers":
		rows, err := db.Query(`SELECT layer,COUNT(*),COALESCE(AVG(micros),0),COALESCE(SUM(flushed),0) FROM generations WHERE run_id=? GROUP BY layer ORDER BY layer`, runID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Layer         string  `json:"layer"`
				Chunks        int     `json:"chunks"`
				AvgMicros     float64 `json:"avg_micros"`
				FlushedWrites int     `json:"flushed_writes"`
			}
			if err := rows.Scan(&r.Layer, &r.Chunks, &r.AvgMicros, &r.FlushedWrites); err != nil {
				return err
			}
			printJSON(out, r)
		}
		return rows.Err()

	case "focus":
		if strings.TrimSpace(focusID) == "" {
			return fmt.Errorf("missing -focus")
		}
		rows, err := db.Query(`SELECT tick,tile_x,tile_y,passability,blocked FROM focus_samples WHERE run_id=? AND focus_id=? ORDER BY tick DESC LIMIT ?`, runID, focusID, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick        int64 `json:"tick"`
				TileX       int   `json:"tile_x"`
				TileY       int   `json:"tile_y"`
				Passability int   `json:"passability"`
				Blocked     bool  `json:"blocked"`
			}
			var blocked int
			if err := rows.Scan(&r.Tick, &r.TileX, &r.TileY, &r.Passability, &blocked); err != nil {
				return err
			}
			r.Blocked = blocked != 0
			printJSON(out, r)
		}
		return rows.Err()

	default:
		return fmt.Errorf("unknown query %q (runs|slow|layers|focus)", q)
	}
}

func latestRunID(db *sql.DB) (string, error) {
	if db == nil {
		return "", fmt.Errorf("nil db")
	}
	var id sql.NullString
	if err := db.QueryRow(`SELECT run_id FROM runs ORDER BY started_at DESC LIMIT 1`).Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return id.String, nil
}

func printJSON(out io.Writer, v any) {
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
