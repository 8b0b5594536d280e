// Command plantd is the hydronic plant controller binary: load
// configuration, materialize the plant graph, bring it online, and drive
// the tick loop until a shutdown signal arrives. Structured the way the
// teacher's cmd/hvac-controller/main.go is structured (config.Load, then
// logging.Init, then bring the core online, then block on signals), widened
// to also own the sensor-refresh/actuator-commit bracket spec.md §2 places
// around each orchestrator pass.
package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oebus-project/rwchcd-go/internal/alarms"
	"github.com/oebus-project/rwchcd-go/internal/config"
	"github.com/oebus-project/rwchcd-go/internal/logging"
	"github.com/oebus-project/rwchcd-go/internal/plantbuild"
	"github.com/oebus-project/rwchcd-go/internal/plantstore"
	"github.com/oebus-project/rwchcd-go/internal/root"
	"github.com/oebus-project/rwchcd-go/internal/runtime"
	"github.com/oebus-project/rwchcd-go/internal/telemetry"
	"github.com/oebus-project/rwchcd-go/internal/timekeep"
)

func main() {
	cfg := config.Load()

	log, err := logging.New(cfg.LogLevel, cfg.Telemetry.LogFile)
	if err != nil {
		panic(err)
	}
	log.Info().Str("config_file", cfg.ConfigFile).Str("state_file", cfg.StateFile).Msg("starting plant controller")

	clock := timekeep.NewClock(time.Duration(cfg.TickPeriodMS) * time.Millisecond)

	built, err := plantbuild.Build(log, cfg, clock)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to materialize plant configuration")
	}

	store, err := plantstore.Open(cfg.StateFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open plant state store")
	}
	defer store.Close()

	if err := built.Plant.LoadState(store); err != nil {
		log.Warn().Err(err).Msg("failed to restore latched plant state, continuing with cold state")
	}

	var tel *telemetry.Telemetry
	if cfg.Telemetry.StatsdAddr != "" {
		tel, err = telemetry.New(cfg.Telemetry.StatsdAddr, "service:rwchcd-go")
		if err != nil {
			log.Warn().Err(err).Msg("failed to init telemetry, continuing without it")
		}
	}
	built.Plant.Telemetry = tel

	notifier := alarms.New(cfg.Alarms.NtfyTopic)
	built.Plant.Alarms = notifier

	rt := runtime.New(log, clock, built.Plant)

	r := &root.Root{
		Log: log, Cfg: cfg,
		Backends: built.Backends, Ins: built.Ins, Outs: built.Outs,
		Sched: built.Sched, Data: built.Data, Plant: built.Plant,
		Store: store, Telemetry: tel, Alarms: notifier,
		Clock: clock, Runtime: rt,
	}
	defer r.Close()

	if err := r.Backends.OnlineAll(); err != nil {
		log.Fatal().Err(err).Msg("failed to bring hardware backends online")
	}
	if err := r.Runtime.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to bring plant online")
	}

	stop := make(chan struct{})
	go r.Clock.Run(stop)
	go tickLoop(r, stop)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("shutdown signal received, stopping plant")
	close(stop)
	r.Runtime.Stop()
	if err := built.Plant.SaveState(store); err != nil {
		log.Warn().Err(err).Msg("failed to persist latched plant state")
	}
	r.Backends.OfflineAll()
}

// stateSaveIntervalTicks controls how often tickLoop persists latched plant
// state, balancing write wear on the state file against how much filter
// history a crash between saves would lose.
const stateSaveIntervalTicks = 3600

// tickLoop brackets each plant pass with backend sensor refresh (before) and
// actuator commit (after), per spec.md §2's control-flow order: "timekeep
// advances -> backends input -> inputs aggregator -> ... -> outputs
// aggregator -> backends output".
func tickLoop(r *root.Root, stop <-chan struct{}) {
	var sinceSave timekeep.Tick
	for {
		select {
		case <-stop:
			return
		default:
		}

		now := r.Clock.Now()
		if errs := r.Backends.InputAll(); len(errs) > 0 {
			for _, e := range errs {
				r.Log.Warn().Err(e).Msg("backend input refresh failed")
			}
		}

		r.Runtime.Tick(now)

		if errs := r.Outs.Commit(); len(errs) > 0 {
			for _, e := range errs {
				r.Log.Warn().Err(e).Msg("logical output commit failed")
			}
		}
		if errs := r.Backends.OutputAll(); len(errs) > 0 {
			for _, e := range errs {
				r.Log.Warn().Err(e).Msg("backend output commit failed")
			}
		}

		sinceSave++
		if sinceSave >= stateSaveIntervalTicks {
			sinceSave = 0
			if err := r.Plant.SaveState(r.Store); err != nil {
				r.Log.Warn().Err(err).Msg("failed to persist latched plant state")
			}
		}

		r.Clock.Sleep(1)
	}
}
