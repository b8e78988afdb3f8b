package melcloud

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

const listDevicesBody = `[
  {
    "ID": 10,
    "Structure": {
      "Devices": [
        {
          "DeviceID": 1,
          "BuildingID": 10,
          "DeviceName": "Living Room",
          "MacAddress": "00:11:22:33:44:55",
          "SerialNumber": "1234567890",
          "Type": 0,
          "Device": {
            "Units": [
              {"Model": "MSZ-AP25VG", "UnitType": 1, "IsIndoor": true},
              {"Model": "", "UnitType": 2, "IsIndoor": false}
            ],
            "NumberOfFanSpeeds": 3,
            "HasAutomaticFanSpeed": true,
            "TemperatureIncrement": 0.5
          }
        }
      ],
      "Areas": [],
      "Floors": [
        {
          "Devices": [
            {
              "DeviceID": 2,
              "BuildingID": 10,
              "DeviceName": "Basement",
              "MacAddress": "66:77:88:99:AA:BB",
              "SerialNumber": "0987654321",
              "Type": 1,
              "Device": {
                "Units": [{"Model": "EHSD-VM2D", "UnitType": 1, "IsIndoor": true}],
                "HasZone2": true,
                "Zone1Name": "Ground Floor",
                "Zone2Name": null
              }
            }
          ],
          "Areas": [
            {
              "Devices": [
                {
                  "DeviceID": 3,
                  "BuildingID": 10,
                  "DeviceName": "Attic Vent",
                  "MacAddress": "CC:DD:EE:FF:00:11",
                  "SerialNumber": "5555555555",
                  "Type": 3,
                  "Device": {
                    "Units": [],
                    "NumberOfFanSpeeds": 4,
                    "HasAutomaticFanSpeed": false
                  }
                }
              ]
            }
          ]
        }
      ]
    }
  }
]`

const deviceStateBody = `{
  "EffectiveFlags": 0,
  "Power": true,
  "RoomTemperature": 21.5,
  "SetTemperature": 22.0,
  "OperationMode": 1,
  "SetFanSpeed": 2,
  "OutdoorTemperature": 4.5,
  "TankWaterTemperature": 48.0,
  "SetTankWaterTemperature": 50.0,
  "RoomTemperatureZone1": 20.0,
  "SetTemperatureZone1": 21.0,
  "OperationModeZone1": 0
}`

type apiStub struct {
	mu          sync.Mutex
	listCalls   int
	stateCalls  int
	energyCalls int
	setCalls    int
	setBodies   []map[string]any

	energyStatus int
	stateStatus  int
}

func (s *apiStub) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		switch r.URL.Path {
		case "/Login/ClientLogin":
			io.WriteString(w, `{"ErrorId": null, "LoginData": {"ContextKey": "ctx-key"}}`)
		case "/User/ListDevices":
			s.listCalls++
			assertToken(t, r)
			io.WriteString(w, listDevicesBody)
		case "/Device/Get":
			s.stateCalls++
			assertToken(t, r)
			if s.stateStatus != 0 {
				w.WriteHeader(s.stateStatus)
				return
			}
			io.WriteString(w, deviceStateBody)
		case "/EnergyCost/Report":
			s.energyCalls++
			if s.energyStatus != 0 {
				w.WriteHeader(s.energyStatus)
				return
			}
			io.WriteString(w, `{"Heating": [1.5, 2.5], "Cooling": [0.5]}`)
		case "/Device/SetAta", "/Device/SetAtw", "/Device/SetErv":
			s.setCalls++
			var body map[string]any
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode set body: %v", err)
			}
			s.setBodies = append(s.setBodies, body)
			io.WriteString(w, `{}`)
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func assertToken(t *testing.T, r *http.Request) {
	if got := r.Header.Get("X-MitsContextKey"); got != "ctx-key" {
		t.Errorf("unexpected context key header: %q", got)
	}
}

func newTestClient(t *testing.T, stub *apiStub, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(stub.handler(t))
	t.Cleanup(server.Close)
	opts = append([]Option{WithBaseURL(server.URL)}, opts...)
	return NewClient("ctx-key", server.Client(), opts...)
}

func TestLogin(t *testing.T) {
	stub := &apiStub{}
	server := httptest.NewServer(stub.handler(t))
	defer server.Close()

	token, err := Login(context.Background(), "a@b.c", "hunter2", server.Client(), WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if token != "ctx-key" {
		t.Fatalf("unexpected token: %q", token)
	}
}

func TestLoginRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, `{"ErrorId": 1, "LoginData": null}`)
	}))
	defer server.Close()

	_, err := Login(context.Background(), "a@b.c", "wrong", server.Client(), WithBaseURL(server.URL))
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || !statusErr.Unauthorized() {
		t.Fatalf("expected unauthorized StatusError, got %v", err)
	}
}

func TestListDevicesGroupsByClass(t *testing.T) {
	stub := &apiStub{}
	client := newTestClient(t, stub)

	devices, err := client.ListDevices(context.Background())
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}

	if len(devices) != 3 {
		t.Fatalf("expected 3 device classes, got %d: %v", len(devices), devices)
	}
	if len(devices[DeviceTypeAta]) != 1 || devices[DeviceTypeAta][0].Name() != "Living Room" {
		t.Fatalf("unexpected ata devices: %+v", devices[DeviceTypeAta])
	}
	if len(devices[DeviceTypeAtw]) != 1 || devices[DeviceTypeAtw][0].DeviceID() != 2 {
		t.Fatalf("unexpected atw devices: %+v", devices[DeviceTypeAtw])
	}
	if len(devices[DeviceTypeErv]) != 1 || devices[DeviceTypeErv][0].Mac() != "CC:DD:EE:FF:00:11" {
		t.Fatalf("unexpected erv devices: %+v", devices[DeviceTypeErv])
	}
}

func TestUpdateAppliesState(t *testing.T) {
	stub := &apiStub{}
	client := newTestClient(t, stub)

	devices, err := client.ListDevices(context.Background())
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	ata := devices[DeviceTypeAta][0].(*AtaDevice)

	if err := ata.Update(context.Background()); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !ata.Power() {
		t.Fatalf("expected power on after update")
	}
	if got := ata.RoomTemperature(); got == nil || *got != 21.5 {
		t.Fatalf("unexpected room temperature: %v", got)
	}
	if got := ata.OperationMode(); got != OperationModeHeat {
		t.Fatalf("unexpected operation mode: %q", got)
	}
	if got := ata.FanSpeed(); got != "2" {
		t.Fatalf("unexpected fan speed: %q", got)
	}
	heating, cooling := ata.EnergyTotals()
	if heating != 4.0 || cooling != 0.5 {
		t.Fatalf("unexpected energy totals: %v, %v", heating, cooling)
	}

	// Conf was fetched at construction, so Update within the conf interval
	// must not re-hit the listing endpoint.
	if stub.listCalls != 1 {
		t.Fatalf("expected 1 list call, got %d", stub.listCalls)
	}
}

func TestUpdateEnergyFeedFailureReturnsStatusError(t *testing.T) {
	stub := &apiStub{energyStatus: http.StatusInternalServerError}
	client := newTestClient(t, stub)

	devices, err := client.ListDevices(context.Background())
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	erv := devices[DeviceTypeErv][0].(*ErvDevice)

	err = erv.Update(context.Background())
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Status != http.StatusInternalServerError {
		t.Fatalf("expected 500 StatusError, got %v", err)
	}
	// Primary state landed before the energy feed failed.
	if !erv.Power() {
		t.Fatalf("expected state applied despite energy feed failure")
	}
}

func TestUpdateShapeErrorOnMissingPower(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/User/ListDevices" {
			io.WriteString(w, listDevicesBody)
			return
		}
		io.WriteString(w, `{"EffectiveFlags": 0}`)
	}))
	defer server.Close()
	client := NewClient("ctx-key", server.Client(), WithBaseURL(server.URL))

	devices, err := client.ListDevices(context.Background())
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}

	err = devices[DeviceTypeAta][0].Update(context.Background())
	var shapeErr *ShapeError
	if !errors.As(err, &shapeErr) {
		t.Fatalf("expected ShapeError, got %v", err)
	}
}

func TestSetDebounceMergesWrites(t *testing.T) {
	stub := &apiStub{}
	client := newTestClient(t, stub, WithSetDebounce(50*time.Millisecond))

	devices, err := client.ListDevices(context.Background())
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	ata := devices[DeviceTypeAta][0]

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs[0] = ata.Set(context.Background(), map[string]any{PropertyPower: true})
	}()
	go func() {
		defer wg.Done()
		time.Sleep(10 * time.Millisecond)
		errs[1] = ata.Set(context.Background(), map[string]any{PropertyTargetTemperature: 23.5})
	}()
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("Set %d: %v", i, err)
		}
	}

	stub.mu.Lock()
	defer stub.mu.Unlock()
	if stub.setCalls != 1 {
		t.Fatalf("expected 1 merged set call, got %d", stub.setCalls)
	}
	body := stub.setBodies[0]
	if body["Power"] != true {
		t.Fatalf("expected merged Power=true, got %v", body["Power"])
	}
	if body["SetTemperature"] != 23.5 {
		t.Fatalf("expected merged SetTemperature=23.5, got %v", body["SetTemperature"])
	}
	flags, ok := body["EffectiveFlags"].(float64)
	if !ok || int64(flags)&(ataFlagPower|ataFlagTargetTemp) != ataFlagPower|ataFlagTargetTemp {
		t.Fatalf("unexpected effective flags: %v", body["EffectiveFlags"])
	}
}

func TestAtwZones(t *testing.T) {
	stub := &apiStub{}
	client := newTestClient(t, stub)

	devices, err := client.ListDevices(context.Background())
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	atw := devices[DeviceTypeAtw][0].(*AtwDevice)
	if err := atw.Update(context.Background()); err != nil {
		t.Fatalf("Update: %v", err)
	}

	zones := atw.Zones()
	if len(zones) != 2 {
		t.Fatalf("expected 2 zones, got %d", len(zones))
	}
	if zones[0].Name() != "Ground Floor" {
		t.Fatalf("unexpected zone 1 name: %q", zones[0].Name())
	}
	// Null Zone2Name falls back to a positional name.
	if zones[1].Name() != "Zone 2" {
		t.Fatalf("unexpected zone 2 name: %q", zones[1].Name())
	}
	if got := zones[0].RoomTemperature(); got == nil || *got != 20.0 {
		t.Fatalf("unexpected zone 1 temperature: %v", got)
	}
	if zones[0].OperationMode() != ZoneOperationModeHeatThermostat {
		t.Fatalf("unexpected zone 1 mode: %q", zones[0].OperationMode())
	}
	if zones[1].TargetTemperatureProperty() != "target_temperature_zone2" {
		t.Fatalf("unexpected zone property: %q", zones[1].TargetTemperatureProperty())
	}
}

func TestStatusErrorOnRejectedState(t *testing.T) {
	stub := &apiStub{stateStatus: http.StatusUnauthorized}
	client := newTestClient(t, stub)

	devices, err := client.ListDevices(context.Background())
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}

	err = devices[DeviceTypeAta][0].Update(context.Background())
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || !statusErr.Unauthorized() {
		t.Fatalf("expected unauthorized StatusError, got %v", err)
	}
}
