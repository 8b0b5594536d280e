package sysfsdriver

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/oebus-project/rwchcd-go/internal/hwbackend"
	"github.com/oebus-project/rwchcd-go/internal/lib"
	"github.com/oebus-project/rwchcd-go/internal/model"
	"github.com/oebus-project/rwchcd-go/internal/timekeep"
)

// RelayConfig describes one configured output relay.
type RelayConfig struct {
	Name       string
	Pin        int
	ActiveHigh bool
}

// SensorConfig describes one configured 1-wire temperature sensor.
type SensorConfig struct {
	Name string
	Bus  string // e.g. "28-0000012345ab", resolved under /sys/bus/w1/devices
}

type relayState struct {
	cfg     RelayConfig
	pending bool
	applied bool
}

type sensorState struct {
	cfg       SensorConfig
	value     lib.Temp
	lastRead  timekeep.Tick
	lastError error
}

// Driver implements hwbackend.Driver over pinctrl-managed GPIO relays and
// 1-wire temperature sensors. Built with safeMode set (see New), it never
// drives a physical pin.
type Driver struct {
	clock *timekeep.Clock

	mu      sync.Mutex
	name    string
	safe    bool
	relays  []*relayState
	sensors []*sensorState
	relayByName  map[string]model.OutputID
	sensorByName map[string]model.InputID
}

// New builds a Driver. safeMode, when true, makes every relay write a no-op
// (mirrors the teacher's gpio.SetSafeMode global, scoped per-instance here).
func New(clock *timekeep.Clock, safeMode bool, relays []RelayConfig, sensors []SensorConfig) *Driver {
	d := &Driver{
		clock:        clock,
		safe:         safeMode,
		relayByName:  make(map[string]model.OutputID),
		sensorByName: make(map[string]model.InputID),
	}
	for i, rc := range relays {
		d.relays = append(d.relays, &relayState{cfg: rc})
		d.relayByName[rc.Name] = model.OutputID(i + 1)
	}
	for i, sc := range sensors {
		d.sensors = append(d.sensors, &sensorState{cfg: sc, value: lib.TempUnset})
		d.sensorByName[sc.Name] = model.InputID(i + 1)
	}
	return d
}

func (d *Driver) Setup(name string) error {
	d.name = name
	return nil
}

// Online validates every configured pin is readable and seeds a temperature
// read for every sensor, so InputTime succeeds for all of them before the
// first scheduled Input() call, per spec.md §4.3.
func (d *Driver) Online() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, r := range d.relays {
		if _, err := readLevel(r.cfg.Pin); err != nil {
			return fmt.Errorf("sysfsdriver: relay %s pin %d unreadable: %w", r.cfg.Name, r.cfg.Pin, err)
		}
	}
	for _, s := range d.sensors {
		v, err := d.readSensorLocked(s)
		if err != nil {
			log.Warn().Str("sensor", s.cfg.Name).Err(err).Msg("sysfsdriver: initial sensor read failed, will retry on Input()")
		}
		s.value = v
		s.lastRead = d.clock.Now()
	}
	return nil
}

func (d *Driver) Input() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var firstErr error
	for _, s := range d.sensors {
		v, err := d.readSensorLocked(s)
		s.lastError = err
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.value = v
		s.lastRead = d.clock.Now()
	}
	return firstErr
}

func (d *Driver) Output() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, r := range d.relays {
		if r.applied == r.pending {
			continue
		}
		if d.safe {
			r.applied = r.pending
			continue
		}
		level := r.pending == r.cfg.ActiveHigh
		drive := "dl"
		if level {
			drive = "dh"
		}
		if err := setPin(r.cfg.Pin, "op", "pn", drive); err != nil {
			return fmt.Errorf("sysfsdriver: set relay %s: %w", r.cfg.Name, err)
		}
		r.applied = r.pending
	}
	return nil
}

func (d *Driver) Offline() error {
	d.mu.Lock()
	for _, r := range d.relays {
		r.pending = false
	}
	d.mu.Unlock()
	return d.Output()
}

func (d *Driver) Exit() error { return nil }

func (d *Driver) InputByName(kind hwbackend.InputKind, name string) (model.InputID, bool) {
	if kind != hwbackend.InputTemperature {
		return 0, false
	}
	id, ok := d.sensorByName[name]
	return id, ok
}

func (d *Driver) OutputByName(name string) (model.OutputID, bool) {
	id, ok := d.relayByName[name]
	return id, ok
}

func (d *Driver) InputValue(kind hwbackend.InputKind, id model.InputID) (int64, error) {
	if kind != hwbackend.InputTemperature || int(id) < 1 || int(id) > len(d.sensors) {
		return 0, fmt.Errorf("sysfsdriver: invalid input handle %d", id)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.sensors[id-1]
	if s.lastError != nil {
		return 0, s.lastError
	}
	return int64(s.value), nil
}

func (d *Driver) InputTime(kind hwbackend.InputKind, id model.InputID) (timekeep.Tick, error) {
	if kind != hwbackend.InputTemperature || int(id) < 1 || int(id) > len(d.sensors) {
		return 0, fmt.Errorf("sysfsdriver: invalid input handle %d", id)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sensors[id-1].lastRead, nil
}

func (d *Driver) OutputStateSet(id model.OutputID, on bool) error {
	if int(id) < 1 || int(id) > len(d.relays) {
		return fmt.Errorf("sysfsdriver: invalid output handle %d", id)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.relays[id-1].pending = on
	return nil
}

func (d *Driver) OutputStateGet(id model.OutputID) (bool, error) {
	if int(id) < 1 || int(id) > len(d.relays) {
		return false, fmt.Errorf("sysfsdriver: invalid output handle %d", id)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.relays[id-1].applied, nil
}

func (d *Driver) readSensorLocked(s *sensorState) (lib.Temp, error) {
	path := filepath.Join("/sys/bus/w1/devices", s.cfg.Bus, "w1_slave")
	data, err := os.ReadFile(path)
	if err != nil {
		return lib.TempDisconnected, fmt.Errorf("read %s: %w", path, err)
	}

	lines := strings.Split(string(data), "\n")
	if len(lines) < 2 || !strings.Contains(lines[1], "t=") {
		return lib.TempShort, fmt.Errorf("malformed w1_slave data for %s", s.cfg.Name)
	}

	parts := strings.Split(lines[1], "t=")
	if len(parts) != 2 {
		return lib.TempShort, fmt.Errorf("could not parse temperature line for %s", s.cfg.Name)
	}

	milliC, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return lib.TempShort, fmt.Errorf("parse temp for %s: %w", s.cfg.Name, err)
	}

	return lib.FromCelsius(float64(milliC) / 1000.0), nil
}
