package hub

import (
	"github.com/melbridge/melbridge/internal/fleet"
	"github.com/melbridge/melbridge/internal/melcloud"
)

// entityBase carries the fields every entity shares. The topic field is the
// entity's base topic; state and command topics hang off it.
type entityBase struct {
	wrapper  *fleet.Wrapper
	identity fleet.IdentityRecord
	uniqueID string
	topic    string
}

func (e *entityBase) UniqueID() string               { return e.uniqueID }
func (e *entityBase) Identity() fleet.IdentityRecord { return e.identity }
func (e *entityBase) Wrapper() *fleet.Wrapper        { return e.wrapper }

func (e *entityBase) stateTopic() string   { return e.topic + "/state" }
func (e *entityBase) commandTopic() string { return e.topic + "/set" }

// deviceSlug is the topic- and id-safe handle for one wrapped device.
func deviceSlug(w *fleet.Wrapper) string {
	return slugify(w.DeviceIdentity().Identifiers[0].ID)
}

// entitiesFor builds the presentation entities for one wrapped device.
// Unknown device classes yield no entities.
func entitiesFor(w *fleet.Wrapper, topicPrefix string) []Entity {
	base := topicPrefix + "/" + deviceSlug(w)

	switch dev := w.Device().(type) {
	case *melcloud.AtaDevice:
		return []Entity{
			newAtaClimate(w, dev, base),
			newPowerSwitch(w, dev, base),
			newTemperatureSensor(w, base, "room_temperature", w.Name()+" Room Temperature", dev.RoomTemperature),
			newEnergySensor(w, base, "heating_energy", w.Name()+" Heating Energy", func() float64 {
				heating, _ := dev.EnergyTotals()
				return heating
			}),
			newEnergySensor(w, base, "cooling_energy", w.Name()+" Cooling Energy", func() float64 {
				_, cooling := dev.EnergyTotals()
				return cooling
			}),
		}

	case *melcloud.AtwDevice:
		entities := []Entity{
			newWaterHeater(w, dev, base),
			newPowerSwitch(w, dev, base),
			newTemperatureSensor(w, base, "outdoor_temperature", w.Name()+" Outdoor Temperature", dev.OutdoorTemperature),
			newTemperatureSensor(w, base, "tank_temperature", w.Name()+" Tank Temperature", dev.TankTemperature),
			newEnergySensor(w, base, "heating_energy", w.Name()+" Heating Energy", func() float64 {
				heating, _ := dev.EnergyTotals()
				return heating
			}),
		}
		for _, zone := range dev.Zones() {
			entities = append(entities, newZoneClimate(w, dev, zone, base))
		}
		return entities

	case *melcloud.ErvDevice:
		return []Entity{
			newPowerSwitch(w, dev, base),
			newModeSelect(w, base, "fan_speed", w.Name()+" Fan Speed",
				melcloud.PropertyFanSpeed, dev.FanSpeeds(), dev.FanSpeed),
			newModeSelect(w, base, "ventilation_mode", w.Name()+" Ventilation Mode",
				melcloud.PropertyVentilationMode, dev.VentilationModes(), dev.VentilationMode),
			newTemperatureSensor(w, base, "room_temperature", w.Name()+" Room Temperature", dev.RoomTemperature),
			newTemperatureSensor(w, base, "outdoor_temperature", w.Name()+" Outdoor Temperature", dev.OutdoorTemperature),
		}
	}
	return nil
}
