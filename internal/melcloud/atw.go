package melcloud

import "fmt"

// Effective-flag masks for ATW writes. The zone and tank masks are wide
// because the API packs them into the upper half of the flag word.
const (
	atwFlagPower           = 0x01
	atwFlagForcedHotWater  = 0x10000
	atwFlagTargetTankTemp  = 0x1000000000020
	atwFlagTargetTempZone1 = 0x200000080
	atwFlagTargetTempZone2 = 0x800000200
)

// ATW zone operation modes.
const (
	ZoneOperationModeHeatThermostat = "heat-thermostat"
	ZoneOperationModeHeatFlow       = "heat-flow"
	ZoneOperationModeCurve          = "curve"
	ZoneOperationModeCoolThermostat = "cool-thermostat"
	ZoneOperationModeCoolFlow       = "cool-flow"
)

var atwZoneOperationModes = map[int]string{
	0: ZoneOperationModeHeatThermostat,
	1: ZoneOperationModeHeatFlow,
	2: ZoneOperationModeCurve,
	3: ZoneOperationModeCoolThermostat,
	4: ZoneOperationModeCoolFlow,
}

// AtwDevice is an air-to-water heat pump, possibly with two heating zones.
type AtwDevice struct {
	baseDevice
}

func newAtwDevice(client *Client, conf deviceEntry) *AtwDevice {
	d := &AtwDevice{baseDevice: newBaseDevice(client, conf, DeviceTypeAtw, "SetAtw")}
	d.encodeSet = d.encodeSetAtw
	return d
}

// Power reports whether the unit is switched on.
func (d *AtwDevice) Power() bool {
	state, ok := d.stateSnapshot()
	return ok && state.Power != nil && *state.Power
}

// OutdoorTemperature returns the outdoor sensor reading.
func (d *AtwDevice) OutdoorTemperature() *float64 {
	state, _ := d.stateSnapshot()
	return state.OutdoorTemperature
}

// TankTemperature returns the measured hot water tank temperature.
func (d *AtwDevice) TankTemperature() *float64 {
	state, _ := d.stateSnapshot()
	return state.TankWaterTemperature
}

// TargetTankTemperature returns the hot water tank setpoint.
func (d *AtwDevice) TargetTankTemperature() *float64 {
	state, _ := d.stateSnapshot()
	return state.SetTankWaterTemperature
}

// ForcedHotWater reports whether one-shot forced hot water mode is active.
func (d *AtwDevice) ForcedHotWater() bool {
	state, ok := d.stateSnapshot()
	return ok && state.ForcedHotWaterMode
}

// Zones returns the device's heating zones. Zone 1 always exists; zone 2
// only when the conf advertises it.
func (d *AtwDevice) Zones() []*Zone {
	conf := d.confSnapshot()
	zones := []*Zone{{device: d, index: 1}}
	if conf.Device.HasZone2 {
		zones = append(zones, &Zone{device: d, index: 2})
	}
	return zones
}

func (d *AtwDevice) encodeSetAtw(state deviceState, props map[string]any, payload map[string]any) (int64, error) {
	var flags int64

	if state.Power != nil {
		payload["Power"] = *state.Power
	}
	if state.SetTankWaterTemperature != nil {
		payload["SetTankWaterTemperature"] = *state.SetTankWaterTemperature
	}
	if state.SetTemperatureZone1 != nil {
		payload["SetTemperatureZone1"] = *state.SetTemperatureZone1
	}
	if state.SetTemperatureZone2 != nil {
		payload["SetTemperatureZone2"] = *state.SetTemperatureZone2
	}
	payload["ForcedHotWaterMode"] = state.ForcedHotWaterMode

	if v, ok, err := boolProp(props, PropertyPower); err != nil {
		return 0, err
	} else if ok {
		payload["Power"] = v
		flags |= atwFlagPower
	}
	if v, ok, err := floatProp(props, PropertyTargetTankTemperature); err != nil {
		return 0, err
	} else if ok {
		payload["SetTankWaterTemperature"] = v
		flags |= atwFlagTargetTankTemp
	}
	if v, ok, err := boolProp(props, PropertyForcedHotWater); err != nil {
		return 0, err
	} else if ok {
		payload["ForcedHotWaterMode"] = v
		flags |= atwFlagForcedHotWater
	}
	if v, ok, err := floatProp(props, PropertyTargetTemperatureZone+"1"); err != nil {
		return 0, err
	} else if ok {
		payload["SetTemperatureZone1"] = v
		flags |= atwFlagTargetTempZone1
	}
	if v, ok, err := floatProp(props, PropertyTargetTemperatureZone+"2"); err != nil {
		return 0, err
	} else if ok {
		payload["SetTemperatureZone2"] = v
		flags |= atwFlagTargetTempZone2
	}

	if flags == 0 {
		return 0, fmt.Errorf("no writable properties in %v", propertyNames(props))
	}
	return flags, nil
}

// Zone is a derived view over one heating zone of an ATW device. It holds
// no state of its own; every read goes through the parent device.
type Zone struct {
	device *AtwDevice
	index  int
}

// Index returns the 1-based zone index.
func (z *Zone) Index() int { return z.index }

// Name returns the configured zone name, or a positional fallback.
func (z *Zone) Name() string {
	conf := z.device.confSnapshot()
	var name *string
	if z.index == 1 {
		name = conf.Device.Zone1Name
	} else {
		name = conf.Device.Zone2Name
	}
	if name == nil || *name == "" {
		return fmt.Sprintf("Zone %d", z.index)
	}
	return *name
}

// RoomTemperature returns the zone's measured temperature.
func (z *Zone) RoomTemperature() *float64 {
	state, _ := z.device.stateSnapshot()
	if z.index == 1 {
		return state.RoomTemperatureZone1
	}
	return state.RoomTemperatureZone2
}

// TargetTemperature returns the zone's setpoint.
func (z *Zone) TargetTemperature() *float64 {
	state, _ := z.device.stateSnapshot()
	if z.index == 1 {
		return state.SetTemperatureZone1
	}
	return state.SetTemperatureZone2
}

// OperationMode returns the zone's heating/cooling mode.
func (z *Zone) OperationMode() string {
	state, ok := z.device.stateSnapshot()
	if !ok {
		return ""
	}
	if z.index == 1 {
		return atwZoneOperationModes[state.OperationModeZone1]
	}
	return atwZoneOperationModes[state.OperationModeZone2]
}

// TargetTemperatureProperty is the Set property name for this zone.
func (z *Zone) TargetTemperatureProperty() string {
	return fmt.Sprintf("%s%d", PropertyTargetTemperatureZone, z.index)
}
