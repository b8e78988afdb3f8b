package fleet

import (
	"fmt"
	"strings"
)

// Domain namespaces melbridge identifiers in the hub's device registry.
const Domain = "melcloud"

const manufacturer = "Mitsubishi Electric"

// ConnectionNetworkMAC is the connection kind for MAC-address identities.
const ConnectionNetworkMAC = "mac"

// Connection is a network-level identity of a device.
type Connection struct {
	Kind  string
	Value string
}

// Identifier is a registry identity scoped to a namespace.
type Identifier struct {
	Namespace string
	ID        string
}

func (i Identifier) String() string {
	return i.Namespace + ":" + i.ID
}

// IdentityRecord is the registry metadata derived from wrapper state. It is
// recomputed on demand and never cached.
type IdentityRecord struct {
	Connections  []Connection
	Identifiers  []Identifier
	Manufacturer string
	Model        string
	Name         string
	ViaDevice    *Identifier
}

// DeviceIdentity derives the registry record for the wrapped device. The
// model is the comma-joined set of non-empty unit model strings.
func (w *Wrapper) DeviceIdentity() IdentityRecord {
	return IdentityRecord{
		Connections:  []Connection{{Kind: ConnectionNetworkMAC, Value: w.accessor.Mac()}},
		Identifiers:  []Identifier{w.deviceIdentifier()},
		Manufacturer: manufacturer,
		Model:        modelString(w.accessor.Units()),
		Name:         w.name,
	}
}

// ZoneIdentity derives the registry record for one zone of a multi-zone
// device, linked back to the parent device identifier.
func (w *Wrapper) ZoneIdentity(zone ZoneInfo) IdentityRecord {
	parent := w.deviceIdentifier()
	return IdentityRecord{
		Identifiers: []Identifier{{
			Namespace: Domain,
			ID:        fmt.Sprintf("%s-%s-%d", w.accessor.Mac(), w.accessor.Serial(), zone.Index),
		}},
		Manufacturer: manufacturer,
		Model:        "ATW zone device",
		Name:         w.name + " " + zone.Name,
		ViaDevice:    &parent,
	}
}

func (w *Wrapper) deviceIdentifier() Identifier {
	return Identifier{
		Namespace: Domain,
		ID:        w.accessor.Mac() + "-" + w.accessor.Serial(),
	}
}

func modelString(units []UnitInfo) string {
	var models []string
	for _, u := range units {
		if u.Model != "" {
			models = append(models, u.Model)
		}
	}
	return strings.Join(models, ", ")
}
