package lib

import "github.com/oebus-project/rwchcd-go/internal/errkind"

// Bilinear20C is a precomputed bilinear heating curve ("bilinear-20C" per
// spec.md §4.8): two calibration points (tout1,twater1) and (tout2,twater2)
// joined through an inflexion point derived from nH100 (radiator exponent
// times 100), defined for a 20C reference room temperature.
type Bilinear20C struct {
	tout1, twater1 Temp
	tout2, twater2 Temp

	// precomputed
	slope1, slope2   float64 // K water per K outdoor, on either side of the inflexion
	toutInflexion    Temp
	twaterInflexion  Temp
}

// MakeBilinear20C validates the calibration points and precomputes the
// inflexion and slopes. Invariants per spec.md §4.8: tout1 < tout2,
// twater2 < twater1, 50 <= nH100 <= 200.
func MakeBilinear20C(tout1, twater1, tout2, twater2 Temp, nH100 int) (Bilinear20C, error) {
	if !(tout1 < tout2) || !(twater2 < twater1) || nH100 < 50 || nH100 > 200 {
		return Bilinear20C{}, errkind.New(errkind.Misconfigured, "invalid bilinear-20C calibration: tout1=%d tout2=%d twater1=%d twater2=%d nH100=%d", tout1, tout2, twater1, twater2, nH100)
	}

	n := float64(nH100) / 100.0
	outSpan := float64(tout2 - tout1)
	waterSpan := float64(twater1 - twater2)

	// inflexion point located at the radiator-exponent-weighted fraction of
	// the outdoor span; steeper below (n>1 radiators need more curve there).
	frac := 1.0 / n
	if frac > 0.95 {
		frac = 0.95
	}
	if frac < 0.05 {
		frac = 0.05
	}

	toutInfl := tout1 + Temp(outSpan*frac)
	twaterInfl := twater2 + Temp(waterSpan*frac)

	slope1 := (float64(twaterInfl) - float64(twater1)) / (float64(toutInfl) - float64(tout1))
	slope2 := (float64(twater2) - float64(twaterInfl)) / (float64(tout2) - float64(toutInfl))

	return Bilinear20C{
		tout1: tout1, twater1: twater1,
		tout2: tout2, twater2: twater2,
		slope1: slope1, slope2: slope2,
		toutInflexion: toutInfl, twaterInflexion: twaterInfl,
	}, nil
}

// Eval evaluates the curve at a filtered outdoor temperature and shifts the
// result by (targetAmbient - 20C), per spec.md's 20C calibration reference.
func (b Bilinear20C) Eval(outdoor, targetAmbient Temp) Temp {
	var water float64
	switch {
	case outdoor <= b.toutInflexion:
		water = float64(b.twater1) + b.slope1*float64(outdoor-b.tout1)
	default:
		water = float64(b.twaterInflexion) + b.slope2*float64(outdoor-b.toutInflexion)
	}

	shift := float64(targetAmbient) - float64(FromCelsius(20))
	return Temp(water + shift)
}
