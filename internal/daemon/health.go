package daemon

import (
	"context"
	"runtime"
	"time"

	"github.com/rs/zerolog"

	"foldermcp/internal/config"
	"foldermcp/internal/model"
	"foldermcp/internal/orchestrator"
)

// healthMonitor periodically probes liveness signals: folder store
// availability, failed folders, and the process memory ceiling.
type healthMonitor struct {
	orch      *orchestrator.Orchestrator
	interval  time.Duration
	ceilingMB int
	log       zerolog.Logger
}

func newHealthMonitor(orch *orchestrator.Orchestrator, cfg config.DaemonConfig, log zerolog.Logger) *healthMonitor {
	interval := time.Duration(cfg.HealthCheckSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &healthMonitor{
		orch:      orch,
		interval:  interval,
		ceilingMB: cfg.MemoryCeilingMB,
		log:       log,
	}
}

func (m *healthMonitor) run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check()
		}
	}
}

func (m *healthMonitor) check() {
	var failed, storeless int
	for _, r := range m.orch.Runners() {
		state := r.State()
		if state == model.StateFailed {
			failed++
			m.log.Warn().Str("folder", r.Folder().Path).Err(r.LastErr()).Msg("folder in failed state")
			continue
		}
		if !state.Terminal() && r.Store() == nil {
			storeless++
		}
	}

	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	heapMB := int(stats.HeapAlloc / (1 << 20))
	if m.ceilingMB > 0 && heapMB > m.ceilingMB {
		m.log.Warn().Int("heap_mb", heapMB).Int("ceiling_mb", m.ceilingMB).
			Msg("memory ceiling exceeded")
	}

	m.log.Debug().
		Int("folders", len(m.orch.Runners())).
		Int("failed", failed).
		Int("stores_unavailable", storeless).
		Int("heap_mb", heapMB).
		Msg("health check")
}
