package lib

import "github.com/oebus-project/rwchcd-go/internal/timekeep"

// roundDiv divides with correct sign rounding (round-half-away-from-zero),
// saturating is left to the caller since Temp deltas here stay well inside
// int64 range for any realistic tau/dt pair.
func roundDiv(num, den int64) int64 {
	if den == 0 {
		return 0
	}
	neg := (num < 0) != (den < 0)
	if num < 0 {
		num = -num
	}
	if den < 0 {
		den = -den
	}
	q := (num + den/2) / den
	if neg {
		return -q
	}
	return q
}

// Ewma computes prev - round((dt/(tau+dt)) * (prev-sample)) using saturating
// integer arithmetic. If dt == 0 the value is unchanged.
func Ewma(prev, sample Temp, tau, dt timekeep.Tick) Temp {
	if dt == 0 {
		return prev
	}
	diff := int64(prev) - int64(sample)
	num := diff * int64(dt)
	den := int64(tau) + int64(dt)
	delta := roundDiv(num, den)
	return Temp(int64(prev) - delta)
}

// DerivState is the restartable state of an exponentially-weighted discrete
// derivative, expressed in Temp-per-second (scaled by KPrecision).
type DerivState struct {
	LastTime  timekeep.Tick
	LastValue Temp
	Deriv     int64 // milliK per second, scaled by KPrecision
}

// Clear resets the derivative state so the next call reseeds cold.
func (d *DerivState) Clear() {
	*d = DerivState{}
}

// Ewderiv folds sample into the stored derivative. On a cold start
// (LastTime == 0) it seeds state and returns 0. spread is the averaging time
// constant applied to the instantaneous slope, same units as timekeep.Tick.
func Ewderiv(d *DerivState, sample Temp, now timekeep.Tick, spread timekeep.Tick) int64 {
	if d.LastTime == 0 {
		d.LastTime = now
		d.LastValue = sample
		d.Deriv = 0
		return 0
	}
	dt := now - d.LastTime
	if dt == 0 {
		return d.Deriv
	}
	dtSec := timekeep.TickToSec(dt)
	if dtSec == 0 {
		dtSec = 1
	}
	instant := int64(sample-d.LastValue) / dtSec

	// average the instantaneous slope into the stored derivative via the
	// same ewma kernel, one-second step.
	prev := d.Deriv
	diff := prev - instant
	delta := roundDiv(diff*1, int64(spread)+1)
	d.Deriv = prev - delta

	d.LastTime = now
	d.LastValue = sample
	return d.Deriv
}

// IntgState is the restartable state of a jacketed threshold integral.
type IntgState struct {
	LastTime timekeep.Tick
	LastThr  Temp
	LastVal  Temp
	Integral int64 // Temp * seconds
	seeded   bool
}

// Clear resets the integral so the next call reseeds cold.
func (s *IntgState) Clear() {
	*s = IntgState{}
}

// ThrsIntg performs trapezoidal integration of (sample - thr) over
// wall-clock seconds, using the previous threshold against the previous
// sample, clamping the running integral to [jacketLo, jacketHi] after each
// update. On first call (or after Clear) it seeds and returns 0.
func ThrsIntg(s *IntgState, thr, sample Temp, now timekeep.Tick, jacketLo, jacketHi int64) int64 {
	if !s.seeded {
		s.seeded = true
		s.LastTime = now
		s.LastThr = thr
		s.LastVal = sample
		s.Integral = 0
		return 0
	}

	dt := now - s.LastTime
	dtSec := timekeep.TickToSec(dt)

	prevErr := int64(s.LastVal - s.LastThr)
	curErr := int64(sample - thr)

	// trapezoidal rule: area = dt * (a+b)/2
	area := dtSec * (prevErr + curErr) / 2
	s.Integral += area

	if s.Integral < jacketLo {
		s.Integral = jacketLo
	}
	if s.Integral > jacketHi {
		s.Integral = jacketHi
	}

	s.LastTime = now
	s.LastThr = thr
	s.LastVal = sample

	return s.Integral
}
