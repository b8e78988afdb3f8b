package hub

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/melbridge/melbridge/internal/fleet"
	"github.com/melbridge/melbridge/internal/melcloud"
)

const climateModeOff = "off"

// ataClimate is the full thermostat surface of an air-to-air unit: mode,
// setpoint, and fan speed, plus the current room temperature.
type ataClimate struct {
	entityBase
	device *melcloud.AtaDevice
}

func newAtaClimate(w *fleet.Wrapper, device *melcloud.AtaDevice, baseTopic string) *ataClimate {
	return &ataClimate{
		entityBase: entityBase{
			wrapper:  w,
			identity: w.DeviceIdentity(),
			uniqueID: deviceSlug(w) + "_climate",
			topic:    baseTopic + "/climate",
		},
		device: device,
	}
}

func (c *ataClimate) Platform() string { return "climate" }

func (c *ataClimate) modeStateTopic() string      { return c.topic + "/mode/state" }
func (c *ataClimate) modeCommandTopic() string    { return c.topic + "/mode/set" }
func (c *ataClimate) tempStateTopic() string      { return c.topic + "/temperature/state" }
func (c *ataClimate) tempCommandTopic() string    { return c.topic + "/temperature/set" }
func (c *ataClimate) currentTempTopic() string    { return c.topic + "/current_temperature/state" }
func (c *ataClimate) fanModeStateTopic() string   { return c.topic + "/fan_mode/state" }
func (c *ataClimate) fanModeCommandTopic() string { return c.topic + "/fan_mode/set" }

func (c *ataClimate) Discovery() map[string]any {
	return map[string]any{
		"name":                      c.wrapper.Name(),
		"modes":                     append([]string{climateModeOff}, c.device.OperationModes()...),
		"mode_state_topic":          c.modeStateTopic(),
		"mode_command_topic":        c.modeCommandTopic(),
		"temperature_state_topic":   c.tempStateTopic(),
		"temperature_command_topic": c.tempCommandTopic(),
		"current_temperature_topic": c.currentTempTopic(),
		"fan_modes":                 c.device.FanSpeeds(),
		"fan_mode_state_topic":      c.fanModeStateTopic(),
		"fan_mode_command_topic":    c.fanModeCommandTopic(),
		"temp_step":                 c.device.TemperatureIncrement(),
	}
}

func (c *ataClimate) State() map[string]string {
	state := make(map[string]string)

	if !c.device.Power() {
		state[c.modeStateTopic()] = climateModeOff
	} else if mode := c.device.OperationMode(); mode != "" {
		state[c.modeStateTopic()] = mode
	}
	if v, ok := formatTemperature(c.device.TargetTemperature()); ok {
		state[c.tempStateTopic()] = v
	}
	if v, ok := formatTemperature(c.device.RoomTemperature()); ok {
		state[c.currentTempTopic()] = v
	}
	if fan := c.device.FanSpeed(); fan != "" {
		state[c.fanModeStateTopic()] = fan
	}
	return state
}

func (c *ataClimate) Commands() map[string]CommandHandler {
	return map[string]CommandHandler{
		c.modeCommandTopic(): func(ctx context.Context, payload []byte) error {
			mode := string(payload)
			if mode == climateModeOff {
				return c.wrapper.Write(ctx, map[string]any{melcloud.PropertyPower: false})
			}
			if !slices.Contains(c.device.OperationModes(), mode) {
				return fmt.Errorf("unknown climate mode %q", mode)
			}
			// Selecting a mode also powers the unit on; the debounced write
			// folds both into one API call.
			return c.wrapper.Write(ctx, map[string]any{
				melcloud.PropertyPower:         true,
				melcloud.PropertyOperationMode: mode,
			})
		},
		c.tempCommandTopic(): func(ctx context.Context, payload []byte) error {
			target, err := strconv.ParseFloat(string(payload), 64)
			if err != nil {
				return fmt.Errorf("bad temperature payload %q", payload)
			}
			return c.wrapper.Write(ctx, map[string]any{melcloud.PropertyTargetTemperature: target})
		},
		c.fanModeCommandTopic(): func(ctx context.Context, payload []byte) error {
			return c.wrapper.Write(ctx, map[string]any{melcloud.PropertyFanSpeed: string(payload)})
		},
	}
}

// zoneClimate is the thermostat surface of one heating zone of an
// air-to-water device. It registers under the zone's own identity, linked
// back to the parent device.
type zoneClimate struct {
	entityBase
	device *melcloud.AtwDevice
	zone   *melcloud.Zone
}

func newZoneClimate(w *fleet.Wrapper, device *melcloud.AtwDevice, zone *melcloud.Zone, baseTopic string) *zoneClimate {
	identity := w.ZoneIdentity(fleet.ZoneInfo{Index: zone.Index(), Name: zone.Name()})
	slug := slugify(identity.Identifiers[0].ID)
	return &zoneClimate{
		entityBase: entityBase{
			wrapper:  w,
			identity: identity,
			uniqueID: slug + "_climate",
			topic:    fmt.Sprintf("%s/zone%d/climate", baseTopic, zone.Index()),
		},
		device: device,
		zone:   zone,
	}
}

func (c *zoneClimate) Platform() string { return "climate" }

func (c *zoneClimate) modeStateTopic() string   { return c.topic + "/mode/state" }
func (c *zoneClimate) modeCommandTopic() string { return c.topic + "/mode/set" }
func (c *zoneClimate) tempStateTopic() string   { return c.topic + "/temperature/state" }
func (c *zoneClimate) tempCommandTopic() string { return c.topic + "/temperature/set" }
func (c *zoneClimate) currentTempTopic() string { return c.topic + "/current_temperature/state" }

func (c *zoneClimate) Discovery() map[string]any {
	return map[string]any{
		"name":                      c.zone.Name(),
		"modes":                     []string{climateModeOff, "heat"},
		"mode_state_topic":          c.modeStateTopic(),
		"mode_command_topic":        c.modeCommandTopic(),
		"temperature_state_topic":   c.tempStateTopic(),
		"temperature_command_topic": c.tempCommandTopic(),
		"current_temperature_topic": c.currentTempTopic(),
		"temp_step":                 0.5,
	}
}

func (c *zoneClimate) State() map[string]string {
	state := make(map[string]string)

	// Zone power rides on the parent device; the zone's own operation mode
	// (thermostat, flow, curve) stays internal to the heat pump.
	if c.device.Power() {
		state[c.modeStateTopic()] = "heat"
	} else {
		state[c.modeStateTopic()] = climateModeOff
	}
	if v, ok := formatTemperature(c.zone.TargetTemperature()); ok {
		state[c.tempStateTopic()] = v
	}
	if v, ok := formatTemperature(c.zone.RoomTemperature()); ok {
		state[c.currentTempTopic()] = v
	}
	return state
}

func (c *zoneClimate) Commands() map[string]CommandHandler {
	return map[string]CommandHandler{
		c.modeCommandTopic(): func(ctx context.Context, payload []byte) error {
			switch string(payload) {
			case climateModeOff:
				return c.wrapper.Write(ctx, map[string]any{melcloud.PropertyPower: false})
			case "heat":
				return c.wrapper.Write(ctx, map[string]any{melcloud.PropertyPower: true})
			}
			return fmt.Errorf("unknown climate mode %q", payload)
		},
		c.tempCommandTopic(): func(ctx context.Context, payload []byte) error {
			target, err := strconv.ParseFloat(string(payload), 64)
			if err != nil {
				return fmt.Errorf("bad temperature payload %q", payload)
			}
			return c.wrapper.Write(ctx, map[string]any{c.zone.TargetTemperatureProperty(): target})
		},
	}
}
