package melcloud

import (
	"fmt"
	"strconv"
)

// Effective-flag masks for ATA writes.
const (
	ataFlagPower         = 0x01
	ataFlagOperationMode = 0x02
	ataFlagTargetTemp    = 0x04
	ataFlagFanSpeed      = 0x08
)

// ATA operation modes as exposed to callers.
const (
	OperationModeHeat    = "heat"
	OperationModeDry     = "dry"
	OperationModeCool    = "cool"
	OperationModeFanOnly = "fan_only"
	OperationModeAuto    = "heat_cool"
)

// FanSpeedAuto is the automatic fan speed option.
const FanSpeedAuto = "auto"

var ataOperationModes = map[int]string{
	1: OperationModeHeat,
	2: OperationModeDry,
	3: OperationModeCool,
	7: OperationModeFanOnly,
	8: OperationModeAuto,
}

// AtaDevice is an air-to-air unit.
type AtaDevice struct {
	baseDevice
}

func newAtaDevice(client *Client, conf deviceEntry) *AtaDevice {
	d := &AtaDevice{baseDevice: newBaseDevice(client, conf, DeviceTypeAta, "SetAta")}
	d.encodeSet = d.encodeSetAta
	return d
}

// Power reports whether the unit is switched on. False until the first
// successful state fetch.
func (d *AtaDevice) Power() bool {
	state, ok := d.stateSnapshot()
	return ok && state.Power != nil && *state.Power
}

// RoomTemperature returns the measured room temperature, nil before the
// first state fetch.
func (d *AtaDevice) RoomTemperature() *float64 {
	state, _ := d.stateSnapshot()
	return state.RoomTemperature
}

// TargetTemperature returns the temperature setpoint.
func (d *AtaDevice) TargetTemperature() *float64 {
	state, _ := d.stateSnapshot()
	return state.SetTemperature
}

// TemperatureIncrement returns the setpoint step the unit supports.
func (d *AtaDevice) TemperatureIncrement() float64 {
	inc := d.confSnapshot().Device.TemperatureIncrement
	if inc <= 0 {
		return 0.5
	}
	return inc
}

// OperationMode returns the current mode, or "" when unknown.
func (d *AtaDevice) OperationMode() string {
	state, ok := d.stateSnapshot()
	if !ok {
		return ""
	}
	return ataOperationModes[state.OperationMode]
}

// OperationModes lists the modes accepted by Set.
func (d *AtaDevice) OperationModes() []string {
	return []string{OperationModeHeat, OperationModeDry, OperationModeCool, OperationModeFanOnly, OperationModeAuto}
}

// FanSpeed returns the current fan speed option.
func (d *AtaDevice) FanSpeed() string {
	state, ok := d.stateSnapshot()
	if !ok {
		return ""
	}
	return fanSpeedName(state.SetFanSpeed)
}

// FanSpeeds lists the fan speed options this unit supports.
func (d *AtaDevice) FanSpeeds() []string {
	return fanSpeedNames(d.confSnapshot())
}

func (d *AtaDevice) encodeSetAta(state deviceState, props map[string]any, payload map[string]any) (int64, error) {
	var flags int64

	// Untouched fields are resent from the last known state; the flags
	// mask tells the API which of them to honor.
	if state.Power != nil {
		payload["Power"] = *state.Power
	}
	payload["OperationMode"] = state.OperationMode
	if state.SetTemperature != nil {
		payload["SetTemperature"] = *state.SetTemperature
	}
	payload["SetFanSpeed"] = state.SetFanSpeed

	if v, ok, err := boolProp(props, PropertyPower); err != nil {
		return 0, err
	} else if ok {
		payload["Power"] = v
		flags |= ataFlagPower
	}
	if v, ok, err := floatProp(props, PropertyTargetTemperature); err != nil {
		return 0, err
	} else if ok {
		payload["SetTemperature"] = v
		flags |= ataFlagTargetTemp
	}
	if v, ok, err := stringProp(props, PropertyOperationMode); err != nil {
		return 0, err
	} else if ok {
		code, err := ataOperationModeCode(v)
		if err != nil {
			return 0, err
		}
		payload["OperationMode"] = code
		flags |= ataFlagOperationMode
	}
	if v, ok, err := stringProp(props, PropertyFanSpeed); err != nil {
		return 0, err
	} else if ok {
		code, err := fanSpeedCode(v)
		if err != nil {
			return 0, err
		}
		payload["SetFanSpeed"] = code
		flags |= ataFlagFanSpeed
	}

	if flags == 0 {
		return 0, fmt.Errorf("no writable properties in %v", propertyNames(props))
	}
	return flags, nil
}

func ataOperationModeCode(mode string) (int, error) {
	for code, name := range ataOperationModes {
		if name == mode {
			return code, nil
		}
	}
	return 0, fmt.Errorf("unknown operation mode %q", mode)
}

func fanSpeedName(code int) string {
	if code == 0 {
		return FanSpeedAuto
	}
	return strconv.Itoa(code)
}

func fanSpeedCode(name string) (int, error) {
	if name == FanSpeedAuto {
		return 0, nil
	}
	code, err := strconv.Atoi(name)
	if err != nil || code < 1 {
		return 0, fmt.Errorf("unknown fan speed %q", name)
	}
	return code, nil
}

func fanSpeedNames(conf deviceEntry) []string {
	var speeds []string
	if conf.Device.HasAutomaticFanSpeed {
		speeds = append(speeds, FanSpeedAuto)
	}
	for i := 1; i <= conf.Device.NumberOfFanSpeeds; i++ {
		speeds = append(speeds, strconv.Itoa(i))
	}
	return speeds
}

func propertyNames(props map[string]any) []string {
	names := make([]string, 0, len(props))
	for k := range props {
		names = append(names, k)
	}
	return names
}
