package hub

import (
	"strings"

	"github.com/melbridge/melbridge/internal/fleet"
)

// discoveryDevice is the device block of a Home Assistant MQTT discovery
// payload, linking every entity back to one registry device.
type discoveryDevice struct {
	Identifiers  []string   `json:"identifiers"`
	Connections  [][]string `json:"connections,omitempty"`
	Manufacturer string     `json:"manufacturer"`
	Model        string     `json:"model,omitempty"`
	Name         string     `json:"name"`
	ViaDevice    string     `json:"via_device,omitempty"`
}

func discoveryDeviceFrom(identity fleet.IdentityRecord) discoveryDevice {
	dev := discoveryDevice{
		Manufacturer: identity.Manufacturer,
		Model:        identity.Model,
		Name:         identity.Name,
	}
	for _, id := range identity.Identifiers {
		dev.Identifiers = append(dev.Identifiers, id.String())
	}
	for _, conn := range identity.Connections {
		dev.Connections = append(dev.Connections, []string{conn.Kind, conn.Value})
	}
	if identity.ViaDevice != nil {
		dev.ViaDevice = identity.ViaDevice.String()
	}
	return dev
}

// slugify turns registry identifiers into topic- and object-id-safe
// strings.
func slugify(s string) string {
	s = strings.ToLower(s)
	replacer := strings.NewReplacer(":", "", " ", "_", "/", "_", "#", "", "+", "")
	return replacer.Replace(s)
}
