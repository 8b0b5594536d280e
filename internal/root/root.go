// Package root assembles the plant's shared collaborators into a single
// struct passed explicitly to every goroutine, per spec.md §9's design note
// that handles/indices replace pointers and no package carries ambient
// global state. It plays the role the teacher's internal/env package plays
// (env.Cfg, env.SystemState read from anywhere) but as an explicit value
// threaded through constructors instead of two package-level variables.
package root

import (
	"github.com/rs/zerolog"

	"github.com/oebus-project/rwchcd-go/internal/alarms"
	"github.com/oebus-project/rwchcd-go/internal/config"
	"github.com/oebus-project/rwchcd-go/internal/hwbackend"
	"github.com/oebus-project/rwchcd-go/internal/ioagg"
	"github.com/oebus-project/rwchcd-go/internal/outagg"
	"github.com/oebus-project/rwchcd-go/internal/plant"
	"github.com/oebus-project/rwchcd-go/internal/plantdata"
	"github.com/oebus-project/rwchcd-go/internal/plantstore"
	"github.com/oebus-project/rwchcd-go/internal/runtime"
	"github.com/oebus-project/rwchcd-go/internal/scheduler"
	"github.com/oebus-project/rwchcd-go/internal/telemetry"
	"github.com/oebus-project/rwchcd-go/internal/timekeep"
)

// Root bundles every long-lived collaborator a running plant needs: the
// logger, hardware backend registry, input/output aggregators, shared plant
// data and flags, scheduler, storage, telemetry, alarms, clock and runtime.
// cmd/plantd builds one Root at startup and passes it (or the narrow slice
// of it each constructor needs) down the call chain; nothing here is a
// package-level variable.
type Root struct {
	Log zerolog.Logger
	Cfg config.Config

	Backends *hwbackend.Registry
	Ins      *ioagg.Aggregator
	Outs     *outagg.Aggregator

	Sched scheduler.Source
	Data  *plantdata.PlantData
	Plant *plant.Plant

	Store     *plantstore.Store
	Telemetry *telemetry.Telemetry
	Alarms    *alarms.Notifier

	Clock   *timekeep.Clock
	Runtime *runtime.Runtime
}

// Close releases every collaborator that owns an OS resource. Safe to call
// with a partially-populated Root (e.g. if construction failed partway).
func (r *Root) Close() error {
	var firstErr error
	if r.Store != nil {
		if err := r.Store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if r.Telemetry != nil {
		if err := r.Telemetry.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
