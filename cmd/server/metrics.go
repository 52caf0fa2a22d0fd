package main

import (
	"fmt"
	"net/http"
)

func (a *adminAPI) metricsHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		m := a.world.Metrics()
		run := a.world.RunID()

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP tilelight_world_tick Current world tick.\n")
		fmt.Fprintf(rw, "# TYPE tilelight_world_tick gauge\n")
		fmt.Fprintf(rw, "tilelight_world_tick{run=%q} %d\n", run, m.Tick)

		fmt.Fprintf(rw, "# HELP tilelight_world_step_ms Last tick step duration in milliseconds.\n")
		fmt.Fprintf(rw, "# TYPE tilelight_world_step_ms gauge\n")
		fmt.Fprintf(rw, "tilelight_world_step_ms{run=%q} %.3f\n", run, m.StepMS)

		fmt.Fprintf(rw, "# HELP tilelight_world_focuses Tracked focuses.\n")
		fmt.Fprintf(rw, "# TYPE tilelight_world_focuses gauge\n")
		fmt.Fprintf(rw, "tilelight_world_focuses{run=%q} %d\n", run, len(m.Focuses))

		fmt.Fprintf(rw, "# HELP tilelight_world_observers Connected observer sessions.\n")
		fmt.Fprintf(rw, "# TYPE tilelight_world_observers gauge\n")
		fmt.Fprintf(rw, "tilelight_world_observers{run=%q} %d\n", run, m.Observers)

		fmt.Fprintf(rw, "# HELP tilelight_world_queue_depth Channel backlog depth.\n")
		fmt.Fprintf(rw, "# TYPE tilelight_world_queue_depth gauge\n")
		fmt.Fprintf(rw, "tilelight_world_queue_depth{run=%q,queue=%q} %d\n", run, "focus", m.QueueDepths.Focus)
		fmt.Fprintf(rw, "tilelight_world_queue_depth{run=%q,queue=%q} %d\n", run, "write", m.QueueDepths.Write)
		fmt.Fprintf(rw, "tilelight_world_queue_depth{run=%q,queue=%q} %d\n", run, "observer", m.QueueDepths.Observer)

		fmt.Fprintf(rw, "# HELP tilelight_pool_workers Generation pool size.\n")
		fmt.Fprintf(rw, "# TYPE tilelight_pool_workers gauge\n")
		fmt.Fprintf(rw, "tilelight_pool_workers{run=%q} %d\n", run, m.PoolWorkers)
		fmt.Fprintf(rw, "# HELP tilelight_pool_running Generation jobs currently executing.\n")
		fmt.Fprintf(rw, "# TYPE tilelight_pool_running gauge\n")
		fmt.Fprintf(rw, "tilelight_pool_running{run=%q} %d\n", run, m.PoolRunning)

		fmt.Fprintf(rw, "# HELP tilelight_map_chunks Chunks per lifecycle state.\n")
		fmt.Fprintf(rw, "# TYPE tilelight_map_chunks gauge\n")
		for _, s := range m.Maps {
			fmt.Fprintf(rw, "tilelight_map_chunks{run=%q,map=%q,state=%q} %d\n", run, s.Name, "loaded", s.Loaded)
			fmt.Fprintf(rw, "tilelight_map_chunks{run=%q,map=%q,state=%q} %d\n", run, s.Name, "requested", s.Requested)
			fmt.Fprintf(rw, "tilelight_map_chunks{run=%q,map=%q,state=%q} %d\n", run, s.Name, "pending", s.Pending)
		}
		fmt.Fprintf(rw, "# HELP tilelight_map_queued_writes Writes waiting for their chunk.\n")
		fmt.Fprintf(rw, "# TYPE tilelight_map_queued_writes gauge\n")
		for _, s := range m.Maps {
			fmt.Fprintf(rw, "tilelight_map_queued_writes{run=%q,map=%q} %d\n", run, s.Name, s.QueuedWrites)
		}
		fmt.Fprintf(rw, "# HELP tilelight_map_jobs_total Generation job outcomes.\n")
		fmt.Fprintf(rw, "# TYPE tilelight_map_jobs_total counter\n")
		for _, s := range m.Maps {
			fmt.Fprintf(rw, "tilelight_map_jobs_total{run=%q,map=%q,outcome=%q} %d\n", run, s.Name, "spawned", s.Spawned)
			fmt.Fprintf(rw, "tilelight_map_jobs_total{run=%q,map=%q,outcome=%q} %d\n", run, s.Name, "completed", s.Completed)
			fmt.Fprintf(rw, "tilelight_map_jobs_total{run=%q,map=%q,outcome=%q} %d\n", run, s.Name, "failed", s.Failed)
			fmt.Fprintf(rw, "tilelight_map_jobs_total{run=%q,map=%q,outcome=%q} %d\n", run, s.Name, "abandoned", s.Abandoned)
		}
		fmt.Fprintf(rw, "# HELP tilelight_map_evicted_total Chunks evicted by the loader.\n")
		fmt.Fprintf(rw, "# TYPE tilelight_map_evicted_total counter\n")
		for _, s := range m.Maps {
			fmt.Fprintf(rw, "tilelight_map_evicted_total{run=%q,map=%q} %d\n", run, s.Name, s.Evicted)
		}

		if st := a.indexStats(); st != nil {
			fmt.Fprintf(rw, "# HELP tilelight_index_queue_depth SQLite index queue depth.\n")
			fmt.Fprintf(rw, "# TYPE tilelight_index_queue_depth gauge\n")
			fmt.Fprintf(rw, "tilelight_index_queue_depth %d\n", st.QueueDepth)
			fmt.Fprintf(rw, "# HELP tilelight_index_dropped_total Ticks dropped because the index queue was full.\n")
			fmt.Fprintf(rw, "# TYPE tilelight_index_dropped_total counter\n")
			fmt.Fprintf(rw, "tilelight_index_dropped_total %d\n", st.DropTickTotal)
		}
	}
}
