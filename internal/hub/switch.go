package hub

import (
	"context"

	"github.com/melbridge/melbridge/internal/fleet"
	"github.com/melbridge/melbridge/internal/melcloud"
)

// powerDevice is the slice of the device surface the power switch needs;
// every device class implements it.
type powerDevice interface {
	Power() bool
}

// powerSwitch exposes the main power toggle of one device.
type powerSwitch struct {
	entityBase
	device powerDevice
}

func newPowerSwitch(w *fleet.Wrapper, device powerDevice, baseTopic string) *powerSwitch {
	identity := w.DeviceIdentity()
	return &powerSwitch{
		entityBase: entityBase{
			wrapper:  w,
			identity: identity,
			uniqueID: deviceSlug(w) + "_power",
			topic:    baseTopic + "/power",
		},
		device: device,
	}
}

func (s *powerSwitch) Platform() string { return "switch" }

func (s *powerSwitch) Discovery() map[string]any {
	return map[string]any{
		"name":          s.wrapper.Name() + " Power",
		"state_topic":   s.stateTopic(),
		"command_topic": s.commandTopic(),
		"payload_on":    payloadOn,
		"payload_off":   payloadOff,
	}
}

func (s *powerSwitch) State() map[string]string {
	return map[string]string{s.stateTopic(): onOff(s.device.Power())}
}

func (s *powerSwitch) Commands() map[string]CommandHandler {
	return map[string]CommandHandler{
		s.commandTopic(): func(ctx context.Context, payload []byte) error {
			on, err := parseOnOff(payload)
			if err != nil {
				return err
			}
			return s.wrapper.Write(ctx, map[string]any{melcloud.PropertyPower: on})
		},
	}
}
