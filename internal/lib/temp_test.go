package lib

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oebus-project/rwchcd-go/internal/errkind"
)

func TestFromCelsiusRoundTrip(t *testing.T) {
	assert.InDelta(t, 20.0, FromCelsius(20).ToCelsius(), 0.001)
	assert.InDelta(t, -10.0, FromCelsius(-10).ToCelsius(), 0.001)
}

func TestValidateTemp(t *testing.T) {
	tests := []struct {
		name string
		in   Temp
		kind errkind.Kind
	}{
		{"ok", FromCelsius(20), errkind.OK},
		{"unset", TempUnset, errkind.SensorInvalid},
		{"short", TempShort, errkind.SensorShort},
		{"disconnected", TempDisconnected, errkind.SensorDisconnect},
		{"too hot", TempMax + 1, errkind.SensorInvalid},
		{"too cold", TempMin - 1, errkind.SensorInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTemp(tt.in)
			if tt.kind == errkind.OK {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errkind.Is(err, tt.kind))
		})
	}
}
