// Package lib holds the numeric primitives used pervasively by the plant
// entities: scaled fixed-point temperatures, an exponentially-weighted
// moving average, an exponentially-weighted discrete derivative, and a
// jacketed threshold integral. These mirror the small self-contained helper
// style of the teacher repo's internal packages: no state beyond what's
// passed in, saturating arithmetic where the spec calls for it.
package lib

import "github.com/oebus-project/rwchcd-go/internal/errkind"

// Temp is a signed fixed-point Kelvin scalar, KPRECISION = 1000 (millikelvin).
type Temp int64

const KPrecision = 1000

// Sentinels distinguish "unset", "shorted" and "disconnected" from any valid
// reading. They sit outside the valid operational range so a stray arithmetic
// slip cannot accidentally produce one.
const (
	TempUnset        Temp = -1 << 40
	TempShort        Temp = -1<<40 + 1
	TempDisconnected Temp = -1<<40 + 2
)

// Valid operational range: [-50C, +150C] expressed in Kelvin millikelvin.
const (
	TempMin = Temp((-50 + 273) * KPrecision)
	TempMax = Temp((150 + 273) * KPrecision)
)

// FromCelsius converts a Celsius float into the fixed-point Kelvin scale.
func FromCelsius(c float64) Temp {
	return Temp((c+273.15)*KPrecision + 0.5)
}

// ToCelsius converts a fixed-point Kelvin Temp back to a Celsius float.
func (t Temp) ToCelsius() float64 {
	return float64(t)/KPrecision - 273.15
}

// ValidateTemp returns an error tag if t is a sentinel or out of the
// operational range, nil otherwise.
func ValidateTemp(t Temp) error {
	switch t {
	case TempUnset:
		return errkind.New(errkind.SensorInvalid, "temperature unset")
	case TempShort:
		return errkind.New(errkind.SensorShort, "temperature sensor shorted")
	case TempDisconnected:
		return errkind.New(errkind.SensorDisconnect, "temperature sensor disconnected")
	}
	if t < TempMin || t > TempMax {
		return errkind.New(errkind.SensorInvalid, "temperature %d out of range", int64(t))
	}
	return nil
}
