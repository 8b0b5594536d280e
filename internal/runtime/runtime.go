// Package runtime holds the plant-wide system mode and dispatches the
// periodic tick to the plant orchestrator, per spec.md §2 "Runtime". It
// plays the role the teacher's cmd/hvac-controller main loop plays when it
// polls zonecontroller/buffercontroller on a ticker, generalized to a
// single explicit dispatch call driven by an externally-owned clock rather
// than each controller running its own goroutine loop.
package runtime

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/oebus-project/rwchcd-go/internal/model"
	"github.com/oebus-project/rwchcd-go/internal/plant"
	"github.com/oebus-project/rwchcd-go/internal/timekeep"
)

// Runtime owns the current system mode and dispatches ticks to a Plant.
type Runtime struct {
	log   zerolog.Logger
	clock *timekeep.Clock
	plant *plant.Plant

	mode atomic.Value // model.SystemMode

	mu      sync.Mutex
	running bool
}

// New builds a Runtime bound to a clock and plant, starting in system mode
// "manual" per spec.md §3 ("manual (startup-only variant where run modes
// are taken from config)").
func New(log zerolog.Logger, clock *timekeep.Clock, p *plant.Plant) *Runtime {
	r := &Runtime{log: log, clock: clock, plant: p}
	r.mode.Store(model.SysManual)
	return r
}

// SetMode updates the system mode atomically; entities observe it at the
// start of their next Logic call.
func (r *Runtime) SetMode(m model.SystemMode) {
	r.mode.Store(m)
	r.log.Info().Str("mode", string(m)).Msg("runtime: system mode changed")
}

// Mode returns the current system mode.
func (r *Runtime) Mode() model.SystemMode {
	return r.mode.Load().(model.SystemMode)
}

// Start brings the plant online and returns an error if it was already
// running.
func (r *Runtime) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}
	if err := r.plant.Online(); err != nil {
		return err
	}
	r.running = true
	return nil
}

// Tick dispatches one plant pass at the given tick, the control-flow order
// of spec.md §2: "timekeep advances -> backends input -> inputs aggregator
// -> models -> plant orchestrator ... -> outputs aggregator -> backends
// output". Backend input/output refresh brackets this call; see cmd/plantd.
func (r *Runtime) Tick(now timekeep.Tick) {
	r.mu.Lock()
	running := r.running
	r.mu.Unlock()
	if !running {
		return
	}
	r.plant.Run(now, r.Mode())
}

// Stop completes the current pass (the caller must not call Tick again
// after Stop returns) and drives every entity offline in reverse
// dependency order.
func (r *Runtime) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	r.plant.Offline()
	r.running = false
}

// Run drives the tick loop until stop is closed, sleeping one tick period
// between passes via the shared clock. This is the tick thread of spec.md
// §5.
func (r *Runtime) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		r.Tick(r.clock.Now())
		r.clock.Sleep(1)
	}
}
