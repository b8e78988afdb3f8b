package hub

import (
	"context"
	"fmt"
	"strconv"

	"github.com/melbridge/melbridge/internal/fleet"
	"github.com/melbridge/melbridge/internal/melcloud"
)

// Water heater operation modes as presented to the hub. Performance maps to
// the heat pump's one-shot forced hot water boost.
const (
	waterHeaterModeOff         = "off"
	waterHeaterModeHeatPump    = "heat_pump"
	waterHeaterModePerformance = "performance"
)

// waterHeater is the hot water tank surface of an air-to-water device.
type waterHeater struct {
	entityBase
	device *melcloud.AtwDevice
}

func newWaterHeater(w *fleet.Wrapper, device *melcloud.AtwDevice, baseTopic string) *waterHeater {
	return &waterHeater{
		entityBase: entityBase{
			wrapper:  w,
			identity: w.DeviceIdentity(),
			uniqueID: deviceSlug(w) + "_water_heater",
			topic:    baseTopic + "/water_heater",
		},
		device: device,
	}
}

func (h *waterHeater) Platform() string { return "water_heater" }

func (h *waterHeater) modeStateTopic() string   { return h.topic + "/mode/state" }
func (h *waterHeater) modeCommandTopic() string { return h.topic + "/mode/set" }
func (h *waterHeater) tempStateTopic() string   { return h.topic + "/temperature/state" }
func (h *waterHeater) tempCommandTopic() string { return h.topic + "/temperature/set" }
func (h *waterHeater) currentTempTopic() string { return h.topic + "/current_temperature/state" }

func (h *waterHeater) Discovery() map[string]any {
	return map[string]any{
		"name":                      h.wrapper.Name() + " Water Heater",
		"modes":                     []string{waterHeaterModeOff, waterHeaterModeHeatPump, waterHeaterModePerformance},
		"mode_state_topic":          h.modeStateTopic(),
		"mode_command_topic":        h.modeCommandTopic(),
		"temperature_state_topic":   h.tempStateTopic(),
		"temperature_command_topic": h.tempCommandTopic(),
		"current_temperature_topic": h.currentTempTopic(),
	}
}

func (h *waterHeater) State() map[string]string {
	state := make(map[string]string)

	switch {
	case !h.device.Power():
		state[h.modeStateTopic()] = waterHeaterModeOff
	case h.device.ForcedHotWater():
		state[h.modeStateTopic()] = waterHeaterModePerformance
	default:
		state[h.modeStateTopic()] = waterHeaterModeHeatPump
	}
	if v, ok := formatTemperature(h.device.TargetTankTemperature()); ok {
		state[h.tempStateTopic()] = v
	}
	if v, ok := formatTemperature(h.device.TankTemperature()); ok {
		state[h.currentTempTopic()] = v
	}
	return state
}

func (h *waterHeater) Commands() map[string]CommandHandler {
	return map[string]CommandHandler{
		h.modeCommandTopic(): func(ctx context.Context, payload []byte) error {
			switch string(payload) {
			case waterHeaterModeOff:
				return h.wrapper.Write(ctx, map[string]any{melcloud.PropertyPower: false})
			case waterHeaterModeHeatPump:
				return h.wrapper.Write(ctx, map[string]any{
					melcloud.PropertyPower:          true,
					melcloud.PropertyForcedHotWater: false,
				})
			case waterHeaterModePerformance:
				return h.wrapper.Write(ctx, map[string]any{
					melcloud.PropertyPower:          true,
					melcloud.PropertyForcedHotWater: true,
				})
			}
			return fmt.Errorf("unknown water heater mode %q", payload)
		},
		h.tempCommandTopic(): func(ctx context.Context, payload []byte) error {
			target, err := strconv.ParseFloat(string(payload), 64)
			if err != nil {
				return fmt.Errorf("bad temperature payload %q", payload)
			}
			return h.wrapper.Write(ctx, map[string]any{melcloud.PropertyTargetTankTemperature: target})
		},
	}
}
