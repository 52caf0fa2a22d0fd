package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"tilelight.ai/internal/sim/tuning"
	"tilelight.ai/internal/sim/world"
)

// SQLiteIndex is a queryable secondary index of the tick log. Writes are queued
// and applied in batches by one goroutine; the JSONL logs stay authoritative.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick    atomic.Uint64
	writtenTick atomic.Uint64
	failedTx    atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
)

type req struct {
	kind reqKind
	tick world.TickLogEntry
}

// Stats reports queue pressure for /metrics.
type Stats struct {
	QueueDepth    int    `json:"queue_depth"`
	QueueCapacity int    `json:"queue_capacity"`
	DropTickTotal uint64 `json:"drop_tick_total"`
	TickTotal     uint64 `json:"tick_total"`
	FailedTxTotal uint64 `json:"failed_tx_total"`
}

// GenerationRow is one merged chunk as recorded in the index.
type GenerationRow struct {
	RunID   string `json:"run_id"`
	Tick    uint64 `json:"tick"`
	Layer   string `json:"layer"`
	CX      int    `json:"cx"`
	CY      int    `json:"cy"`
	Micros  int64  `json:"us"`
	Flushed int    `json:"flushed"`
	Digest  string `json:"digest"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// Room for a few minutes of ticks if the disk stalls.
		ch: make(chan req, 16384),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	// NORMAL is a decent durability/perf tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			seed INTEGER NOT NULL,
			terrain_mode TEXT NOT NULL,
			tuning_digest TEXT NOT NULL,
			tuning_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			step_ms REAL NOT NULL,
			focuses INTEGER NOT NULL,
			generated INTEGER NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (run_id, tick)
		);`,
		`CREATE TABLE IF NOT EXISTS generations (
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			layer TEXT NOT NULL,
			cx INTEGER NOT NULL,
			cy INTEGER NOT NULL,
			micros INTEGER NOT NULL,
			flushed INTEGER NOT NULL,
			digest TEXT NOT NULL,
			PRIMARY KEY (run_id, tick, layer, cx, cy)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_generations_chunk ON generations(run_id, layer, cx, cy, tick);`,
		`CREATE TABLE IF NOT EXISTS focus_samples (
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			focus_id TEXT NOT NULL,
			tile_x INTEGER NOT NULL,
			tile_y INTEGER NOT NULL,
			passability INTEGER NOT NULL,
			blocked INTEGER NOT NULL,
			PRIMARY KEY (run_id, tick, focus_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_focus_samples_focus ON focus_samples(run_id, focus_id, tick);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
		DropTickTotal: s.dropTick.Load(),
		TickTotal:     s.writtenTick.Load(),
		FailedTxTotal: s.failedTx.Load(),
	}
}

func (s *SQLiteIndex) WriteTick(entry world.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: entry}:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
		s.dropTick.Add(1)
	}
	return nil
}

// RecordRun stores the tuning a run started with. It writes synchronously so
// the row exists before the first tick is indexed.
func (s *SQLiteIndex) RecordRun(ctx context.Context, runID string, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs(run_id,started_at,seed,terrain_mode,tuning_digest,tuning_json) VALUES(?,?,?,?,?,?)`,
		runID, now, tune.Terrain.Seed, tune.Terrain.Mode, hex.EncodeToString(sum[:]), string(b),
	); err != nil {
		return err
	}
	return tx.Commit()
}

// ChunkHistory lists every recorded generation of one chunk, oldest first.
func (s *SQLiteIndex) ChunkHistory(ctx context.Context, runID, layer string, cx, cy int) ([]GenerationRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id,tick,layer,cx,cy,micros,flushed,digest FROM generations
		 WHERE run_id=? AND layer=? AND cx=? AND cy=? ORDER BY tick`,
		runID, layer, cx, cy)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []GenerationRow
	for rows.Next() {
		var r GenerationRow
		var tick int64
		if err := rows.Scan(&r.RunID, &tick, &r.Layer, &r.CX, &r.CY, &r.Micros, &r.Flushed, &r.Digest); err != nil {
			return nil, err
		}
		r.Tick = uint64(tick)
		out = append(out, r)
	}
	return out, rows.Err()
}

// TickCount reports how many ticks of runID have been indexed.
func (s *SQLiteIndex) TickCount(ctx context.Context, runID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ticks WHERE run_id=?`, runID).Scan(&n)
	return n, err
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	// Prepared statements (on db; executed within tx).
	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(run_id,tick,step_ms,focuses,generated,raw_json) VALUES(?,?,?,?,?,?)`)
	insertGen, _ := s.db.Prepare(`INSERT OR REPLACE INTO generations(run_id,tick,layer,cx,cy,micros,flushed,digest) VALUES(?,?,?,?,?,?,?,?)`)
	insertFocus, _ := s.db.Prepare(`INSERT OR REPLACE INTO focus_samples(run_id,tick,focus_id,tile_x,tile_y,passability,blocked) VALUES(?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertGen, insertFocus} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			// If we can't start a tx, we can't do much; sleep a bit.
			s.failedTx.Add(1)
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.failedTx.Add(1)
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		s.failedTx.Add(1)
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			if err := s.insertTick(tx, insertTick, insertGen, insertFocus, r.tick, &opCount); err != nil {
				rollback()
				continue
			}
			s.writtenTick.Add(1)
		}
		flushIfNeeded()
	}

	commit()
}

func (s *SQLiteIndex) insertTick(tx *sql.Tx, insertTick, insertGen, insertFocus *sql.Stmt, e world.TickLogEntry, opCount *int) error {
	if insertTick == nil || insertGen == nil || insertFocus == nil {
		return fmt.Errorf("statements not prepared")
	}
	tick := int64(e.Tick)
	raw, _ := json.Marshal(e)
	if _, err := tx.Stmt(insertTick).Exec(e.RunID, tick, e.StepMS, len(e.Focuses), len(e.Generated), string(raw)); err != nil {
		return err
	}
	*opCount++
	for _, g := range e.Generated {
		if _, err := tx.Stmt(insertGen).Exec(e.RunID, tick, g.Layer, g.CX, g.CY, g.Micros, g.Flushed, g.Digest); err != nil {
			return err
		}
		*opCount++
	}
	for _, f := range e.Focuses {
		blocked := 0
		if f.Blocked {
			blocked = 1
		}
		if _, err := tx.Stmt(insertFocus).Exec(e.RunID, tick, f.ID, f.Tile[0], f.Tile[1], f.Passability, blocked); err != nil {
			return err
		}
		*opCount++
	}
	return nil
}
