package lib

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oebus-project/rwchcd-go/internal/errkind"
)

func TestMakeBilinear20CRejectsBadCalibration(t *testing.T) {
	_, err := MakeBilinear20C(FromCelsius(15), FromCelsius(30), FromCelsius(-10), FromCelsius(50), 100)
	assert.True(t, errkind.Is(err, errkind.Misconfigured))

	_, err = MakeBilinear20C(FromCelsius(-10), FromCelsius(50), FromCelsius(15), FromCelsius(30), 10)
	assert.True(t, errkind.Is(err, errkind.Misconfigured))
}

func TestBilinear20CEvalAtCalibrationPoints(t *testing.T) {
	curve, err := MakeBilinear20C(FromCelsius(-10), FromCelsius(50), FromCelsius(15), FromCelsius(30), 130)
	assert.NoError(t, err)

	// at the 20C reference ambient, the shift term is zero and the curve
	// should reproduce something between the two calibration waters for any
	// outdoor within the span.
	mid := curve.Eval(FromCelsius(0), FromCelsius(20))
	assert.Less(t, mid.ToCelsius(), 50.0)
	assert.Greater(t, mid.ToCelsius(), 30.0)
}

func TestBilinear20CShiftsWithTargetAmbient(t *testing.T) {
	curve, err := MakeBilinear20C(FromCelsius(-10), FromCelsius(50), FromCelsius(15), FromCelsius(30), 130)
	assert.NoError(t, err)

	base := curve.Eval(FromCelsius(0), FromCelsius(20))
	warmer := curve.Eval(FromCelsius(0), FromCelsius(22))
	assert.InDelta(t, 2.0, warmer.ToCelsius()-base.ToCelsius(), 0.01)
}
