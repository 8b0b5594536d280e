package model

// EntityBase is the common shell every active entity embeds: a settings
// sub-struct (externally configured), a run sub-struct (internal,
// tick-owned), a name, and an online flag. Concrete entities (pump, valve,
// hcircuit, dhwt, heatsource) embed this and add their own Set/Run types.
type EntityBase struct {
	Name       string
	Configured bool
	Online     bool
}

// CircuitParams are the per-circuit overrides for target ambients, outdoor
// cutoff behavior, water-temperature bounds and heat-request shaping. Any
// zero-valued field falls back to the plant's DefConfig equivalent; see
// plantdata.Defaults.
type CircuitParams struct {
	TargetComfort   Temp // target ambient in comfort mode
	TargetEco       Temp
	TargetFrostFree Temp
	TargetOffset    Temp // global target offset added to the selected target

	OutdoorCutoffComfort   Temp
	OutdoorCutoffEco       Temp
	OutdoorCutoffFrostFree Temp
	OutdoorCutoffHysteresis Temp

	LimitWTMin Temp
	LimitWTMax Temp

	TempInOffset Temp // heat-request offset added to the commanded water temp

	WTempRorh     Temp // rate-of-rise, K per hour; 0 disables the limiter
	AmbientFactor int  // percent, bounded to +-100 by Valid()

	FastCooldown bool
	BoostDelta   Temp
	BoostMaxTime Tick
	AmTambientTK Tick // am_tambient_tK constant used in TRANS_UP modelling
}

// DHWTCPrio is the DHWT-vs-circuit priority policy during a charge.
type DHWTCPrio string

const (
	CPrioParalMax DHWTCPrio = "paralmax"
	CPrioParalDHW DHWTCPrio = "paraldhw"
	CPrioSlidMax  DHWTCPrio = "slidmax"
	CPrioSlidDHW  DHWTCPrio = "sliddhw"
	CPrioAbsolute DHWTCPrio = "absolute"
)

// DHWTForceMode controls when a manual "force charge now" request fires.
type DHWTForceMode string

const (
	ForceNever  DHWTForceMode = "never"
	ForceFirst  DHWTForceMode = "first"  // only if not already charged today
	ForceAlways DHWTForceMode = "always"
)

// DHWTParams are the per-tank overrides, falling back to plant defaults.
type DHWTParams struct {
	TargetComfort   Temp
	TargetEco       Temp
	TargetFrostFree Temp
	TargetLegionella Temp

	LimitTMin Temp
	LimitTMax Temp
	LimitInletMax Temp

	Hysteresis   Temp
	TempInOffset Temp

	LimitChargeTime Tick

	CPrio     DHWTCPrio
	ForceMode DHWTForceMode

	ElectricFailover bool
}

// Tick is a re-export of timekeep.Tick at the model layer so param structs
// don't need to import timekeep directly; see model/alias.go.
