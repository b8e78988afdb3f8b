package fleet

import "testing"

func TestDeviceIdentity(t *testing.T) {
	acc := &fakeAccessor{
		name:   "Living Room",
		mac:    "00:11:22:33:44:55",
		serial: "1234567890",
		kind:   "ata",
		units: []UnitInfo{
			{Model: "MSZ-AP25VG"},
			{Model: ""},
			{Model: "MUZ-AP25VG"},
		},
	}
	w := NewWrapper(acc, nil)

	identity := w.DeviceIdentity()
	if identity.Model != "MSZ-AP25VG, MUZ-AP25VG" {
		t.Fatalf("unexpected model: %q", identity.Model)
	}
	if identity.Manufacturer != "Mitsubishi Electric" {
		t.Fatalf("unexpected manufacturer: %q", identity.Manufacturer)
	}
	if identity.Name != "Living Room" {
		t.Fatalf("unexpected name: %q", identity.Name)
	}
	if len(identity.Connections) != 1 || identity.Connections[0] != (Connection{Kind: ConnectionNetworkMAC, Value: "00:11:22:33:44:55"}) {
		t.Fatalf("unexpected connections: %v", identity.Connections)
	}
	if len(identity.Identifiers) != 1 || identity.Identifiers[0] != (Identifier{Namespace: Domain, ID: "00:11:22:33:44:55-1234567890"}) {
		t.Fatalf("unexpected identifiers: %v", identity.Identifiers)
	}
	if identity.ViaDevice != nil {
		t.Fatalf("device identity must not carry a via-device link")
	}
}

func TestDeviceIdentityAllEmptyModels(t *testing.T) {
	acc := &fakeAccessor{units: []UnitInfo{{Model: ""}, {Model: ""}}}
	w := newFakeWrapper(acc)

	if model := w.DeviceIdentity().Model; model != "" {
		t.Fatalf("expected empty model string, got %q", model)
	}
}

func TestZoneIdentity(t *testing.T) {
	acc := &fakeAccessor{
		name:   "Basement",
		mac:    "66:77:88:99:AA:BB",
		serial: "0987654321",
		kind:   "atw",
	}
	w := NewWrapper(acc, nil)

	identity := w.ZoneIdentity(ZoneInfo{Index: 2, Name: "Upstairs"})
	if identity.Name != "Basement Upstairs" {
		t.Fatalf("unexpected zone name: %q", identity.Name)
	}
	if identity.Model != "ATW zone device" {
		t.Fatalf("unexpected zone model: %q", identity.Model)
	}
	want := Identifier{Namespace: Domain, ID: "66:77:88:99:AA:BB-0987654321-2"}
	if len(identity.Identifiers) != 1 || identity.Identifiers[0] != want {
		t.Fatalf("unexpected zone identifiers: %v", identity.Identifiers)
	}
	if identity.ViaDevice == nil || identity.ViaDevice.ID != "66:77:88:99:AA:BB-0987654321" {
		t.Fatalf("expected via-device link to parent, got %v", identity.ViaDevice)
	}
}
