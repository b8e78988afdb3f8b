package melcloud

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Property names accepted by Device.Set.
const (
	PropertyPower                 = "power"
	PropertyTargetTemperature     = "target_temperature"
	PropertyOperationMode         = "operation_mode"
	PropertyFanSpeed              = "fan_speed"
	PropertyVentilationMode       = "ventilation_mode"
	PropertyForcedHotWater        = "forced_hot_water"
	PropertyTargetTankTemperature = "target_tank_temperature"
	PropertyTargetTemperatureZone = "target_temperature_zone" // + zone index suffix
)

// Unit describes one physical unit (indoor or outdoor) of a device.
type Unit struct {
	Model    string
	UnitType int
	IsIndoor bool
}

// Device is the remote control surface of one physical MELCloud device.
// Concrete types are AtaDevice, AtwDevice, and ErvDevice.
type Device interface {
	// Update refreshes device state from the cloud in place. A non-nil
	// error may be returned after the primary state was already applied
	// when only the secondary energy feed failed; callers distinguish the
	// cases by error type.
	Update(ctx context.Context) error
	// Set pushes a partial property update. Calls within the configured
	// debounce window are merged into a single API write; concurrent
	// callers share the outcome of that write.
	Set(ctx context.Context, properties map[string]any) error

	Name() string
	Mac() string
	Serial() string
	DeviceID() int
	BuildingID() int
	Units() []Unit
	Kind() string
}

// baseDevice carries the plumbing shared by all device classes: conf and
// state storage, conf staleness tracking, and the write debounce.
type baseDevice struct {
	client *Client
	kind   string

	// setEndpoint is the Device/Set* API endpoint for this class.
	setEndpoint string
	// encodeSet translates property names into API payload fields and
	// returns the effective-flags mask for the touched fields.
	encodeSet func(state deviceState, props map[string]any, payload map[string]any) (int64, error)

	mu          sync.Mutex
	conf        deviceEntry
	confFetched time.Time
	state       deviceState
	hasState    bool
	energy      energyTotals

	pending   map[string]any
	flushDone chan struct{}
	flushErr  error
}

func newBaseDevice(client *Client, conf deviceEntry, kind, setEndpoint string) baseDevice {
	return baseDevice{
		client:      client,
		kind:        kind,
		setEndpoint: setEndpoint,
		conf:        conf,
		confFetched: time.Now(),
	}
}

func (d *baseDevice) Name() string    { return d.confSnapshot().DeviceName }
func (d *baseDevice) Mac() string     { return d.confSnapshot().MacAddress }
func (d *baseDevice) Serial() string  { return d.confSnapshot().SerialNumber }
func (d *baseDevice) DeviceID() int   { return d.confSnapshot().DeviceID }
func (d *baseDevice) BuildingID() int { return d.confSnapshot().BuildingID }
func (d *baseDevice) Kind() string    { return d.kind }

func (d *baseDevice) Units() []Unit {
	conf := d.confSnapshot()
	units := make([]Unit, 0, len(conf.Device.Units))
	for _, u := range conf.Device.Units {
		units = append(units, Unit{Model: u.Model, UnitType: u.UnitType, IsIndoor: u.IsIndoor})
	}
	return units
}

func (d *baseDevice) confSnapshot() deviceEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conf
}

func (d *baseDevice) stateSnapshot() (deviceState, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state, d.hasState
}

// Update fetches conf (when stale), live state, and the energy report, in
// that order. State is applied as soon as it arrives, so an energy-feed
// failure leaves the device with fresh primary state.
func (d *baseDevice) Update(ctx context.Context) error {
	d.mu.Lock()
	confStale := time.Since(d.confFetched) >= d.client.confUpdateInterval
	deviceID, buildingID := d.conf.DeviceID, d.conf.BuildingID
	d.mu.Unlock()

	if confStale {
		conf, err := d.client.deviceConf(ctx, deviceID)
		if err != nil {
			return err
		}
		d.mu.Lock()
		d.conf = conf
		d.confFetched = time.Now()
		d.mu.Unlock()
	}

	state, err := d.client.deviceState(ctx, deviceID, buildingID)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.state = state
	d.hasState = true
	d.mu.Unlock()

	energy, err := d.client.energyReport(ctx, deviceID)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.energy = energy
	d.mu.Unlock()
	return nil
}

// Set merges properties into the pending write and waits for the debounced
// flush. The flush itself is not bound by the caller's context; once a
// write window opens it runs to completion so that an impatient caller
// cannot drop another caller's merged properties.
func (d *baseDevice) Set(ctx context.Context, properties map[string]any) error {
	d.mu.Lock()
	if d.pending == nil {
		d.pending = make(map[string]any)
		d.flushDone = make(chan struct{})
		go d.flushAfter(d.client.setDebounce)
	}
	for k, v := range properties {
		d.pending[k] = v
	}
	done := d.flushDone
	d.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flushErr
}

func (d *baseDevice) flushAfter(debounce time.Duration) {
	time.Sleep(debounce)

	d.mu.Lock()
	props := d.pending
	done := d.flushDone
	d.pending = nil
	d.flushDone = nil
	state := d.state
	deviceID := d.conf.DeviceID
	d.mu.Unlock()

	err := d.applySet(deviceID, state, props)

	d.mu.Lock()
	d.flushErr = err
	d.mu.Unlock()
	close(done)
}

func (d *baseDevice) applySet(deviceID int, state deviceState, props map[string]any) error {
	payload := map[string]any{
		"DeviceID":          deviceID,
		"HasPendingCommand": true,
	}
	flags, err := d.encodeSet(state, props, payload)
	if err != nil {
		return err
	}
	payload["EffectiveFlags"] = flags

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return d.client.setDevice(ctx, d.setEndpoint, payload)
}

// EnergyTotals returns the last fetched energy report figures.
func (d *baseDevice) EnergyTotals() (heating, cooling float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.energy.TotalHeatingConsumed, d.energy.TotalCoolingConsumed
}

func boolProp(props map[string]any, key string) (bool, bool, error) {
	v, ok := props[key]
	if !ok {
		return false, false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, false, fmt.Errorf("property %q: expected bool, got %T", key, v)
	}
	return b, true, nil
}

func floatProp(props map[string]any, key string) (float64, bool, error) {
	v, ok := props[key]
	if !ok {
		return 0, false, nil
	}
	switch t := v.(type) {
	case float64:
		return t, true, nil
	case int:
		return float64(t), true, nil
	default:
		return 0, false, fmt.Errorf("property %q: expected number, got %T", key, v)
	}
}

func stringProp(props map[string]any, key string) (string, bool, error) {
	v, ok := props[key]
	if !ok {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", false, fmt.Errorf("property %q: expected string, got %T", key, v)
	}
	return s, true, nil
}
