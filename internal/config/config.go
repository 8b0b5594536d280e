// Package config loads the plant's declarative configuration: backend
// definitions, logical inputs/outputs, scheduler seed entries, plant-wide
// defaults, building models, and the plant entity blocks (pumps, valves,
// circuits, tanks, heat sources) of SPEC_FULL.md's DOMAIN STACK. It follows
// the teacher's config.Load pattern exactly: flag-parsed file paths and log
// level, a JSON-decoded body, then a validation pass over the parts of the
// config shaped like the teacher's fixed GPIO block (backend relays and
// sensors) and over the building models.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/oebus-project/rwchcd-go/internal/hwbackend/sysfsdriver"
	"github.com/oebus-project/rwchcd-go/internal/lib"
	"github.com/oebus-project/rwchcd-go/internal/model"
)

// Storage configures the persistent key/value storage boundary.
type Storage struct {
	Path string `json:"path"`
}

// Telemetry configures the log/metrics backend.
type Telemetry struct {
	StatsdAddr string `json:"statsd_addr"`
	LogFile    string `json:"log_file"`
}

// Alarms configures the notifier boundary.
type Alarms struct {
	NtfyTopic string `json:"ntfy_topic"`
}

// Backend configures one sysfsdriver hardware backend instance.
type Backend struct {
	Name     string                     `json:"name"`
	SafeMode bool                       `json:"safe_mode"`
	Relays   []sysfsdriver.RelayConfig  `json:"relays"`
	Sensors  []sysfsdriver.SensorConfig `json:"sensors"`
}

// DefConfig carries the plant-wide defaults used as per-entity fallbacks.
type DefConfig struct {
	CircuitParams         model.CircuitParams `json:"circuit_params"`
	DHWTParams            model.DHWTParams    `json:"dhwt_params"`
	LimitTSummer          float64             `json:"limit_tsummer_c"`
	LimitTFrost           float64             `json:"limit_tfrost_c"`
	ConsumerSdelaySeconds int64               `json:"consumer_sdelay_seconds"`
	SleepingDelaySeconds  int64               `json:"sleeping_delay_seconds"`
}

// BModelConfig configures one building thermal model.
type BModelConfig struct {
	Name            string  `json:"name"`
	OutdoorSensor   string  `json:"outdoor_sensor"` // logical input name
	TauSeconds      int64   `json:"tau_seconds"`
	MixedTauSeconds int64   `json:"mixed_tau_seconds"`
	AttenTauSeconds int64   `json:"attenuated_tau_seconds"`
	LimitTSummer    float64 `json:"limit_tsummer_c"`
	LimitTFrost     float64 `json:"limit_tfrost_c"`
	HysteresisK     float64 `json:"hysteresis_k"`
}

// Config is the root of the plant's declarative configuration, decoded from
// ConfigFile. Field layout mirrors spec.md §6's root sections: storage,
// log, backends, inputs, outputs, scheduler, defconfig, models, plant.
type Config struct {
	StateFile  string
	ConfigFile string
	LogLevel   zerolog.Level

	TickPeriodMS int `json:"tick_period_ms"`

	Storage   Storage        `json:"storage"`
	Telemetry Telemetry      `json:"log"`
	Alarms    Alarms         `json:"alarms"`
	Backends  []Backend      `json:"backends"`
	DefConfig DefConfig      `json:"defconfig"`
	Models    []BModelConfig `json:"models"`

	Inputs    []map[string]any `json:"inputs"`
	Outputs   []map[string]any `json:"outputs"`
	Scheduler []map[string]any `json:"scheduler"`

	Plant PlantConfig `json:"plant"`
}

// PlantConfig lists the configured plant entities by name; their parameter
// payloads are deliberately loose (map[string]any) since the JSON schema
// for an individual entity block lives in the external config parser's
// scope per spec.md §6 ("The core consumes the populated in-memory model
// only; it does not parse") — this Config type is the boundary between the
// two, materialized into concrete entity Settings by internal/plantbuild.
type PlantConfig struct {
	Pumps    []map[string]any `json:"pumps"`
	Valves   []map[string]any `json:"valves"`
	Circuits []map[string]any `json:"circuits"`
	Tanks    []map[string]any `json:"dhwts"`
	Sources  []map[string]any `json:"heatsources"`
}

// Load parses flags, reads ConfigFile, decodes it into Config and validates
// it, panicking on any failure exactly as the teacher's config.Load does —
// configuration errors are startup-fatal per spec.md §7.
func Load() Config {
	var cfg Config
	var logLevel string

	flag.StringVar(&cfg.StateFile, "state-file", "data/plant-state.db", "Path to persistent storage file")
	flag.StringVar(&cfg.ConfigFile, "config-file", "plant.json", "Path to plant configuration file")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	cfg.LogLevel = parseLogLevel(logLevel)

	file, err := os.Open(cfg.ConfigFile)
	if err != nil {
		panic("Failed to load config file: " + err.Error())
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		panic("Failed to parse config file: " + err.Error())
	}

	if cfg.TickPeriodMS == 0 {
		cfg.TickPeriodMS = 1000
	}

	cfg.validate()
	return cfg
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// validate walks every backend's relay and sensor lists the same way the
// teacher's Config.validate reflects over its fixed GPIO block, checking
// for missing names and pin/bus conflicts within that backend.
func (cfg *Config) validate() {
	var problems []string

	if len(cfg.Backends) == 0 {
		problems = append(problems, "at least one backend must be configured")
	}

	for _, b := range cfg.Backends {
		usedPins := map[int]string{}
		for _, r := range b.Relays {
			if r.Name == "" {
				problems = append(problems, fmt.Sprintf("backend %q: relay missing name", b.Name))
				continue
			}
			if other, exists := usedPins[r.Pin]; exists {
				problems = append(problems, fmt.Sprintf("backend %q: relays %q and %q both use pin %d", b.Name, r.Name, other, r.Pin))
			} else {
				usedPins[r.Pin] = r.Name
			}
		}
		usedBus := map[string]string{}
		for _, s := range b.Sensors {
			if s.Name == "" {
				problems = append(problems, fmt.Sprintf("backend %q: sensor missing name", b.Name))
				continue
			}
			if other, exists := usedBus[s.Bus]; exists {
				problems = append(problems, fmt.Sprintf("backend %q: sensors %q and %q both use bus id %q", b.Name, s.Name, other, s.Bus))
			} else {
				usedBus[s.Bus] = s.Name
			}
		}
	}

	for i, m := range cfg.Models {
		if m.Name == "" {
			problems = append(problems, fmt.Sprintf("models[%d]: missing name", i))
		}
		if m.TauSeconds <= 0 {
			problems = append(problems, fmt.Sprintf("model %q: tau_seconds must be positive", m.Name))
		}
	}

	if len(problems) > 0 {
		panic("Invalid plant configuration:\n  " + strings.Join(problems, "\n  "))
	}
}

// TempSummer converts LimitTSummer from Celsius.
func (m BModelConfig) TempSummer() lib.Temp { return lib.FromCelsius(m.LimitTSummer) }

// TempFrost converts LimitTFrost from Celsius.
func (m BModelConfig) TempFrost() lib.Temp { return lib.FromCelsius(m.LimitTFrost) }

// TempHysteresis converts HysteresisK (a Kelvin delta) to a Temp delta.
func (m BModelConfig) TempHysteresis() lib.Temp { return lib.Temp(m.HysteresisK * lib.KPrecision) }
