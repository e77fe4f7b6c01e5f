package main

import (
	"fmt"
	"io"

	"fastterrain.ai/internal/sim/world"
)

type metricsSnapshot struct {
	World          world.Metrics
	Connected      bool
	Forwarded      uint64
	Dropped        uint64
	IndexDropped   uint64
	EventLogErrors int
	Snapshots      uint64
}

// writeMetrics renders the minimal Prometheus text exposition format.
func writeMetrics(w io.Writer, m metricsSnapshot) {
	id := m.World.WorldID
	s := m.World.Stream

	gauge := func(name, help string, v any) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s gauge\n", name)
		fmt.Fprintf(w, "%s{world=%q} %v\n", name, id, v)
	}
	counter := func(name, help string, v uint64) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s counter\n", name)
		fmt.Fprintf(w, "%s{world=%q} %d\n", name, id, v)
	}

	fmt.Fprintf(w, "# HELP fastterrain_chunks Chunk slots by state.\n")
	fmt.Fprintf(w, "# TYPE fastterrain_chunks gauge\n")
	fmt.Fprintf(w, "fastterrain_chunks{world=%q,state=%q} %d\n", id, "loaded", s.Loaded)
	fmt.Fprintf(w, "fastterrain_chunks{world=%q,state=%q} %d\n", id, "loading", s.Loading)
	fmt.Fprintf(w, "fastterrain_chunks{world=%q,state=%q} %d\n", id, "unloaded", s.Unloaded)

	gauge("fastterrain_queue_depth", "Messages waiting for the presentation side.", s.QueueDepth)
	gauge("fastterrain_step_ms", "Last streaming step duration in milliseconds.", fmt.Sprintf("%.3f", s.StepMS))
	gauge("fastterrain_build_ms_avg", "Mean chunk build time in milliseconds.", fmt.Sprintf("%.3f", s.BuildMSAvg))
	gauge("fastterrain_player_x", "Latest published player column.", m.World.PlayerX)
	gauge("fastterrain_player_y", "Latest published player row.", m.World.PlayerY)
	gauge("fastterrain_session_connected", "1 when a presentation session is attached.", boolInt(m.Connected))

	counter("fastterrain_steps_total", "Streaming steps run.", s.Steps)
	counter("fastterrain_chunk_loads_total", "Chunks built and committed.", s.LoadsTotal)
	counter("fastterrain_chunk_unloads_total", "Chunks unloaded.", s.UnloadsTotal)
	counter("fastterrain_chunk_failures_total", "Chunk builds that failed.", s.FailedTotal)
	counter("fastterrain_edits_total", "Accepted set-cell edits.", s.EditsTotal)
	counter("fastterrain_messages_forwarded_total", "Chunk messages sent to a session.", m.Forwarded)
	counter("fastterrain_messages_dropped_total", "Chunk messages with no session to receive them.", m.Dropped)
	counter("fastterrain_index_dropped_total", "Index rows dropped while the writer was behind.", m.IndexDropped)
	counter("fastterrain_eventlog_errors_total", "Chunk event log write errors.", uint64(m.EventLogErrors))
	counter("fastterrain_snapshots_total", "Snapshots written by this process.", m.Snapshots)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
