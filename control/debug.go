// control/debug.go
// Author: momentics <momentics@gmail.com>
//
// Debug probe registry for runtime inspection of a running proxy.

package control

import (
	"runtime"
	"sync"

	"github.com/momentics/hioload-proxy/server"
)

// DebugProbes holds registered probe functions.
type DebugProbes struct {
	mu     sync.RWMutex
	probes map[string]func() any
}

// NewDebugProbes creates a probe registry.
func NewDebugProbes() *DebugProbes {
	return &DebugProbes{
		probes: make(map[string]func() any),
	}
}

// RegisterProbe inserts a named debug hook.
func (dp *DebugProbes) RegisterProbe(name string, fn func() any) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.probes[name] = fn
}

// DumpState returns output of all probes.
func (dp *DebugProbes) DumpState() map[string]any {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	out := make(map[string]any, len(dp.probes))
	for k, fn := range dp.probes {
		out[k] = fn()
	}
	return out
}

// StatsSource is anything exposing a proxy stats snapshot.
type StatsSource interface {
	Stats() server.Stats
}

// RegisterServerProbes exposes the proxy counters. Probes read atomics only,
// so they are safe to call while the loop runs.
func RegisterServerProbes(dp *DebugProbes, src StatsSource) {
	dp.RegisterProbe("proxy.halves.live", func() any { return src.Stats().Live })
	dp.RegisterProbe("proxy.halves.connecting", func() any { return src.Stats().Connecting })
	dp.RegisterProbe("proxy.halves.closed", func() any { return src.Stats().Closed })
	dp.RegisterProbe("proxy.pairs.accepted", func() any { return src.Stats().Accepted })
	dp.RegisterProbe("proxy.pairs.rejected", func() any { return src.Stats().Rejected })
	dp.RegisterProbe("proxy.timeouts.connect", func() any { return src.Stats().Timeouts })
	dp.RegisterProbe("proxy.timeouts.idle", func() any { return src.Stats().Idle })
}

// RegisterRuntimeProbes adds process-level probes.
func RegisterRuntimeProbes(dp *DebugProbes) {
	dp.RegisterProbe("runtime.cpus", func() any { return runtime.NumCPU() })
	dp.RegisterProbe("runtime.goroutines", func() any { return runtime.NumGoroutine() })
}
