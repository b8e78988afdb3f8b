package hub

import (
	"strconv"

	"github.com/melbridge/melbridge/internal/fleet"
)

// temperatureSensor publishes one temperature reading. Readings are pulled
// through a closure so a sensor before the first refresh simply publishes
// nothing.
type temperatureSensor struct {
	entityBase
	label string
	read  func() *float64
}

func newTemperatureSensor(w *fleet.Wrapper, baseTopic, suffix, label string, read func() *float64) *temperatureSensor {
	return &temperatureSensor{
		entityBase: entityBase{
			wrapper:  w,
			identity: w.DeviceIdentity(),
			uniqueID: deviceSlug(w) + "_" + suffix,
			topic:    baseTopic + "/" + suffix,
		},
		label: label,
		read:  read,
	}
}

func (s *temperatureSensor) Platform() string { return "sensor" }

func (s *temperatureSensor) Discovery() map[string]any {
	return map[string]any{
		"name":                s.label,
		"state_topic":         s.stateTopic(),
		"device_class":        "temperature",
		"state_class":         "measurement",
		"unit_of_measurement": "°C",
	}
}

func (s *temperatureSensor) State() map[string]string {
	v, ok := formatTemperature(s.read())
	if !ok {
		return nil
	}
	return map[string]string{s.stateTopic(): v}
}

func (s *temperatureSensor) Commands() map[string]CommandHandler { return nil }

// energySensor publishes one cumulative consumption figure from the energy
// report feed.
type energySensor struct {
	entityBase
	label string
	read  func() float64
}

func newEnergySensor(w *fleet.Wrapper, baseTopic, suffix, label string, read func() float64) *energySensor {
	return &energySensor{
		entityBase: entityBase{
			wrapper:  w,
			identity: w.DeviceIdentity(),
			uniqueID: deviceSlug(w) + "_" + suffix,
			topic:    baseTopic + "/" + suffix,
		},
		label: label,
		read:  read,
	}
}

func (s *energySensor) Platform() string { return "sensor" }

func (s *energySensor) Discovery() map[string]any {
	return map[string]any{
		"name":                s.label,
		"state_topic":         s.stateTopic(),
		"device_class":        "energy",
		"state_class":         "total_increasing",
		"unit_of_measurement": "kWh",
	}
}

func (s *energySensor) State() map[string]string {
	return map[string]string{s.stateTopic(): strconv.FormatFloat(s.read(), 'f', 2, 64)}
}

func (s *energySensor) Commands() map[string]CommandHandler { return nil }
