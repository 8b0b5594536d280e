package runtime

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/oebus-project/rwchcd-go/internal/hwbackend"
	"github.com/oebus-project/rwchcd-go/internal/ioagg"
	"github.com/oebus-project/rwchcd-go/internal/model"
	"github.com/oebus-project/rwchcd-go/internal/outagg"
	"github.com/oebus-project/rwchcd-go/internal/plant"
	"github.com/oebus-project/rwchcd-go/internal/plantdata"
	"github.com/oebus-project/rwchcd-go/internal/scheduler"
	"github.com/oebus-project/rwchcd-go/internal/timekeep"
)

func newTestRuntime() *Runtime {
	reg := hwbackend.NewRegistry()
	ins := ioagg.NewAggregator(reg, timekeep.NewClock(1))
	outs := outagg.NewAggregator(reg)
	data := plantdata.New(plantdata.Defaults{})
	p := plant.New(zerolog.Nop(), reg, ins, outs, scheduler.NewStatic(nil), data)
	return New(zerolog.Nop(), timekeep.NewClock(1), p)
}

func TestNewRuntimeStartsInManualMode(t *testing.T) {
	r := newTestRuntime()
	assert.Equal(t, model.SysManual, r.Mode())
}

func TestSetModeRoundTrips(t *testing.T) {
	r := newTestRuntime()
	r.SetMode(model.SysAuto)
	assert.Equal(t, model.SysAuto, r.Mode())
}

func TestTickBeforeStartIsANoOp(t *testing.T) {
	r := newTestRuntime()
	// must not panic: the plant hasn't been brought online, so dispatching a
	// tick should simply be ignored.
	r.Tick(1)
}

func TestStartIsIdempotent(t *testing.T) {
	r := newTestRuntime()
	assert.NoError(t, r.Start())
	assert.NoError(t, r.Start())
}

func TestStopBeforeStartIsANoOp(t *testing.T) {
	r := newTestRuntime()
	r.Stop()
}

func TestStopAfterStartStopsDispatchingTicks(t *testing.T) {
	r := newTestRuntime()
	assert.NoError(t, r.Start())
	r.Tick(1)
	r.Stop()
	// a tick after Stop must be a no-op rather than operating on an offline plant.
	r.Tick(2)
}
