package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"tilelight.ai/internal/persistence/indexdb"
	persistlog "tilelight.ai/internal/persistence/log"
	"tilelight.ai/internal/persistence/snapshot"
	"tilelight.ai/internal/sim/tuning"
	"tilelight.ai/internal/sim/world"
	"tilelight.ai/internal/transport/observer"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite generation index")
		focuses    = flag.String("focus", "player@0,0", "initial focuses as id@x,y separated by ';' (world units)")
		seed       = flag.Int64("seed", 0, "terrain seed override (0 keeps tuning.yaml)")
		restore    = flag.Bool("restore", false, "restore focuses and tile edits from the latest snapshot")
		restoreAt  = flag.String("restore_from", "", "restore from this snapshot file instead of the latest")
		noSnapshot = flag.Bool("disable_snapshot", false, "do not write a snapshot on shutdown")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}
	if *seed != 0 {
		tune.Terrain.Seed = *seed
	}
	initial, err := parseFocusFlag(*focuses)
	if err != nil {
		logger.Fatalf("-focus: %v", err)
	}

	runID := uuid.NewString()
	_ = os.MkdirAll(*dataDir, 0o755)

	// Optional: read-model index (does not affect the simulation).
	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(*dataDir, "index", "tilelight.sqlite"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
		if err := idx.RecordRun(context.Background(), runID, tune); err != nil {
			logger.Printf("index: record run: %v", err)
		}
	}

	w, err := world.New(tune, world.Options{Logger: logger, RunID: runID})
	if err != nil {
		logger.Fatalf("world: %v", err)
	}
	defer w.Close()

	tickLog := persistlog.NewTickLogger(*dataDir)
	defer tickLog.Close()
	w.SetTickLogger(multiTickLogger{a: tickLog, b: idx})

	ctx, cancel := signalContext()
	defer cancel()

	// The world outlives the HTTP server so the shutdown snapshot can still
	// query it.
	worldCtx, stopWorld := context.WithCancel(context.Background())
	defer stopWorld()
	worldDone := make(chan struct{})
	go func() {
		defer close(worldDone)
		if err := w.Run(worldCtx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	snapDir := filepath.Join(*dataDir, "snapshots")
	restored := false
	switch {
	case strings.TrimSpace(*restoreAt) != "":
		restored = restoreFrom(ctx, w, strings.TrimSpace(*restoreAt), logger)
	case *restore:
		restored = restoreLatest(ctx, w, snapDir, logger)
	}
	if !restored {
		for _, f := range initial {
			ctx2, cancel2 := context.WithTimeout(ctx, 5*time.Second)
			if err := w.SetFocus(ctx2, f.id, f.pos); err != nil {
				logger.Printf("initial focus %s: %v", f.id, err)
			}
			cancel2()
		}
	}

	mux := http.NewServeMux()
	api := &adminAPI{world: w, index: idx, log: logger, snapshotDir: snapDir}
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", api.metricsHandler())

	enableAdminHTTP := envBool("TL_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("TL_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		// Local-only admin endpoints.
		api.register(mux)
		obsSrv := observer.NewServer(w, tune.Observer, logger)
		mux.HandleFunc("/admin/v1/observer/bootstrap", obsSrv.BootstrapHandler())
		mux.HandleFunc("/admin/v1/observer/ws", obsSrv.WSHandler())
	} else {
		logger.Printf("admin endpoints disabled (TL_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (TL_ENABLE_PPROF_HTTP=false)")
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("run %s listening on %s", runID, *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	cancel()
	if !*noSnapshot {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		if _, _, err := api.saveSnapshot(ctx2); err != nil {
			logger.Printf("shutdown snapshot: %v", err)
		}
		cancel2()
	}
	stopWorld()
	<-worldDone
}

// restoreLatest reports whether a snapshot was applied.
func restoreLatest(ctx context.Context, w *world.World, dir string, logger *log.Logger) bool {
	path, err := snapshot.Latest(dir)
	if err != nil {
		if errors.Is(err, snapshot.ErrNoSnapshot) {
			logger.Printf("restore: no snapshot in %s", dir)
		} else {
			logger.Printf("restore: %v", err)
		}
		return false
	}
	return restoreFrom(ctx, w, path, logger)
}

func restoreFrom(ctx context.Context, w *world.World, path string, logger *log.Logger) bool {
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		logger.Printf("restore %s: %v", path, err)
		return false
	}
	ctx2, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := w.Restore(ctx2, snap); err != nil {
		logger.Printf("restore %s: %v", path, err)
		return false
	}
	return true
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

type multiTickLogger struct {
	a world.TickLogger
	b world.TickLogger
}

func (m multiTickLogger) WriteTick(entry world.TickLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteTick(entry)
	}
	if m.b != nil {
		_ = m.b.WriteTick(entry)
	}
	return nil
}
