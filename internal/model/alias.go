package model

import (
	"github.com/oebus-project/rwchcd-go/internal/lib"
	"github.com/oebus-project/rwchcd-go/internal/timekeep"
)

// Temp and Tick are re-exported here so the rest of the model package (and
// importers that already depend on model) can describe plant parameters
// without importing lib/timekeep directly.
type (
	Temp = lib.Temp
	Tick = timekeep.Tick
)
