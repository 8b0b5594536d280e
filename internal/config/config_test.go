package config

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/oebus-project/rwchcd-go/internal/hwbackend/sysfsdriver"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected zerolog.Level
	}{
		{"default to info", "", zerolog.InfoLevel},
		{"debug", "debug", zerolog.DebugLevel},
		{"warn", "warn", zerolog.WarnLevel},
		{"error", "error", zerolog.ErrorLevel},
		{"unknown", "weird", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actual := parseLogLevel(tt.input)
			assert.Equal(t, tt.expected, actual)
		})
	}
}

func TestConfigValidate_NoBackends(t *testing.T) {
	cfg := &Config{}
	assert.PanicsWithValue(t,
		"Invalid plant configuration:\n  at least one backend must be configured",
		func() { cfg.validate() },
	)
}

func TestConfigValidate_RelayPinConflict(t *testing.T) {
	cfg := &Config{
		Backends: []Backend{
			{
				Name: "gpio0",
				Relays: []sysfsdriver.RelayConfig{
					{Name: "boiler-stage1", Pin: 17},
					{Name: "boiler-stage2", Pin: 17},
				},
			},
		},
	}

	assert.Panics(t, func() { cfg.validate() })
}

func TestConfigValidate_SensorBusConflict(t *testing.T) {
	cfg := &Config{
		Backends: []Backend{
			{
				Name: "gpio0",
				Sensors: []sysfsdriver.SensorConfig{
					{Name: "boiler-main", Bus: "28-0000012345ab"},
					{Name: "boiler-return", Bus: "28-0000012345ab"},
				},
			},
		},
	}

	assert.Panics(t, func() { cfg.validate() })
}

func TestConfigValidate_OK(t *testing.T) {
	cfg := &Config{
		Backends: []Backend{
			{
				Name: "gpio0",
				Relays: []sysfsdriver.RelayConfig{
					{Name: "boiler-stage1", Pin: 17},
				},
				Sensors: []sysfsdriver.SensorConfig{
					{Name: "boiler-main", Bus: "28-0000012345ab"},
				},
			},
		},
		Models: []BModelConfig{
			{Name: "outdoor", TauSeconds: 3600},
		},
	}

	assert.NotPanics(t, func() { cfg.validate() })
}

func TestBModelConfigConversions(t *testing.T) {
	m := BModelConfig{LimitTSummer: 18, LimitTFrost: 2, HysteresisK: 0.5}
	assert.InDelta(t, 291.15, m.TempSummer().ToCelsius()+273.15, 0.01)
	assert.InDelta(t, 18.0, m.TempSummer().ToCelsius(), 0.01)
	assert.InDelta(t, 2.0, m.TempFrost().ToCelsius(), 0.01)
	assert.EqualValues(t, 500, m.TempHysteresis())
}
