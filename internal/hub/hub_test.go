package hub

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/melbridge/melbridge/internal/fleet"
	"github.com/melbridge/melbridge/internal/melcloud"
)

const hubListing = `[
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
          "Device": {"Units": [{"Model": "MSZ-AP25VG", "UnitType": 1, "IsIndoor": true}], "NumberOfFanSpeeds": 3, "HasAutomaticFanSpeed": true, "TemperatureIncrement": 0.5}
        },
        {
          "DeviceID": 2,
          "BuildingID": 10,
          "DeviceName": "Basement",
          "MacAddress": "AA:BB:CC:DD:EE:FF",
          "SerialNumber": "9876543210",
          "Type": 1,
          "Device": {"Units": [], "HasZone2": true, "Zone1Name": "Ground Floor", "Zone2Name": null}
        }
      ],
      "Areas": [],
      "Floors": []
    }
  }
]`

const hubStateBody = `{
  "Power": true,
  "RoomTemperature": 21.5,
  "SetTemperature": 22.0,
  "OperationMode": 1,
  "SetFanSpeed": 0,
  "OutdoorTemperature": 5.0,
  "TankWaterTemperature": 48.0,
  "SetTankWaterTemperature": 50.0,
  "ForcedHotWaterMode": false,
  "RoomTemperatureZone1": 20.0,
  "SetTemperatureZone1": 21.0
}`

type hubCloudStub struct {
	mu          sync.Mutex
	stateStatus int
	setBodies   map[string][]map[string]any
}

func (s *hubCloudStub) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/User/ListDevices":
			io.WriteString(w, hubListing)
		case "/Device/Get":
			if s.stateStatus != 0 {
				w.WriteHeader(s.stateStatus)
				return
			}
			io.WriteString(w, hubStateBody)
		case "/EnergyCost/Report":
			io.WriteString(w, `{"Heating": [1.0, 2.0], "Cooling": [0.5]}`)
		case "/Device/SetAta", "/Device/SetAtw", "/Device/SetErv":
			var body map[string]any
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode set body: %v", err)
			}
			s.mu.Lock()
			if s.setBodies == nil {
				s.setBodies = make(map[string][]map[string]any)
			}
			s.setBodies[r.URL.Path] = append(s.setBodies[r.URL.Path], body)
			s.mu.Unlock()
			io.WriteString(w, `{}`)
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

type publishedMessage struct {
	payload string
	retain  bool
}

type fakePublisher struct {
	mu       sync.Mutex
	messages map[string][]publishedMessage
	handlers map[string]func(topic string, payload []byte)
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{
		messages: make(map[string][]publishedMessage),
		handlers: make(map[string]func(string, []byte)),
	}
}

func (p *fakePublisher) Publish(topic string, payload []byte, retain bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages[topic] = append(p.messages[topic], publishedMessage{payload: string(payload), retain: retain})
	return nil
}

func (p *fakePublisher) Subscribe(topic string, handler func(topic string, payload []byte)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[topic] = handler
	return nil
}

func (p *fakePublisher) last(t *testing.T, topic string) publishedMessage {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	msgs := p.messages[topic]
	if len(msgs) == 0 {
		t.Fatalf("nothing published to %s", topic)
	}
	return msgs[len(msgs)-1]
}

func (p *fakePublisher) dispatch(t *testing.T, topic, payload string) {
	t.Helper()
	p.mu.Lock()
	handler := p.handlers[topic]
	p.mu.Unlock()
	if handler == nil {
		t.Fatalf("no subscription for %s", topic)
	}
	handler(topic, []byte(payload))
}

func newTestHub(t *testing.T, stub *hubCloudStub, publisher *fakePublisher) *Hub {
	t.Helper()
	server := httptest.NewServer(stub.handler(t))
	t.Cleanup(server.Close)

	f, err := fleet.Setup(context.Background(), "token", server.Client(), nil,
		melcloud.WithBaseURL(server.URL),
		melcloud.WithSetDebounce(time.Millisecond))
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}

	return New(publisher, f, Options{
		TopicPrefix:     "melbridge",
		DiscoveryPrefix: "homeassistant",
		PollInterval:    time.Minute,
	}, nil)
}

func TestPublishDiscoveryAnnouncesEntities(t *testing.T) {
	publisher := newFakePublisher()
	h := newTestHub(t, &hubCloudStub{}, publisher)

	if err := h.PublishDiscovery(); err != nil {
		t.Fatalf("PublishDiscovery: %v", err)
	}

	msg := publisher.last(t, "homeassistant/climate/melbridge/001122334455-1234567890_climate/config")
	if !msg.retain {
		t.Fatalf("discovery must be retained")
	}

	var payload struct {
		UniqueID     string              `json:"unique_id"`
		Modes        []string            `json:"modes"`
		Availability []map[string]string `json:"availability"`
		Device       struct {
			Identifiers  []string `json:"identifiers"`
			Manufacturer string   `json:"manufacturer"`
			Model        string   `json:"model"`
		} `json:"device"`
	}
	if err := json.Unmarshal([]byte(msg.payload), &payload); err != nil {
		t.Fatalf("decode discovery payload: %v", err)
	}
	if payload.UniqueID != "001122334455-1234567890_climate" {
		t.Fatalf("unexpected unique_id: %q", payload.UniqueID)
	}
	if payload.Modes[0] != "off" {
		t.Fatalf("expected off as first climate mode, got %v", payload.Modes)
	}
	if payload.Device.Manufacturer != "Mitsubishi Electric" || payload.Device.Model != "MSZ-AP25VG" {
		t.Fatalf("unexpected device block: %+v", payload.Device)
	}
	if len(payload.Availability) != 2 {
		t.Fatalf("expected bridge and device availability, got %v", payload.Availability)
	}
}

func TestZoneEntitiesLinkToParentDevice(t *testing.T) {
	publisher := newFakePublisher()
	h := newTestHub(t, &hubCloudStub{}, publisher)

	var zones []Entity
	for _, e := range h.Entities() {
		if e.Identity().ViaDevice != nil {
			zones = append(zones, e)
		}
	}
	if len(zones) != 2 {
		t.Fatalf("expected 2 zone entities, got %d", len(zones))
	}
	for _, z := range zones {
		if got := z.Identity().ViaDevice.String(); got != "melcloud:AA:BB:CC:DD:EE:FF-9876543210" {
			t.Fatalf("unexpected via_device: %q", got)
		}
	}
}

func TestCommandDispatchWritesDevice(t *testing.T) {
	stub := &hubCloudStub{}
	publisher := newFakePublisher()
	h := newTestHub(t, stub, publisher)

	if err := h.SubscribeCommands(); err != nil {
		t.Fatalf("SubscribeCommands: %v", err)
	}

	publisher.dispatch(t, "melbridge/001122334455-1234567890/power/set", "ON")

	stub.mu.Lock()
	defer stub.mu.Unlock()
	bodies := stub.setBodies["/Device/SetAta"]
	if len(bodies) != 1 {
		t.Fatalf("expected one SetAta call, got %v", stub.setBodies)
	}
	if on, ok := bodies[0]["Power"].(bool); !ok || !on {
		t.Fatalf("expected Power true in payload, got %v", bodies[0])
	}
}

func TestWaterHeaterPerformanceModeForcesHotWater(t *testing.T) {
	stub := &hubCloudStub{}
	publisher := newFakePublisher()
	h := newTestHub(t, stub, publisher)

	if err := h.SubscribeCommands(); err != nil {
		t.Fatalf("SubscribeCommands: %v", err)
	}

	publisher.dispatch(t, "melbridge/aabbccddeeff-9876543210/water_heater/mode/set", "performance")

	stub.mu.Lock()
	defer stub.mu.Unlock()
	bodies := stub.setBodies["/Device/SetAtw"]
	if len(bodies) != 1 {
		t.Fatalf("expected one SetAtw call, got %v", stub.setBodies)
	}
	if forced, ok := bodies[0]["ForcedHotWaterMode"].(bool); !ok || !forced {
		t.Fatalf("expected ForcedHotWaterMode true, got %v", bodies[0])
	}
	if on, ok := bodies[0]["Power"].(bool); !ok || !on {
		t.Fatalf("expected Power true, got %v", bodies[0])
	}
}

func TestPollPublishesStateAndAvailability(t *testing.T) {
	publisher := newFakePublisher()
	h := newTestHub(t, &hubCloudStub{}, publisher)

	if err := h.poll(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}

	avail := publisher.last(t, "melbridge/001122334455-1234567890/availability")
	if avail.payload != "online" || !avail.retain {
		t.Fatalf("unexpected availability message: %+v", avail)
	}

	room := publisher.last(t, "melbridge/001122334455-1234567890/room_temperature/state")
	if room.payload != "21.5" {
		t.Fatalf("unexpected room temperature: %q", room.payload)
	}
	mode := publisher.last(t, "melbridge/001122334455-1234567890/climate/mode/state")
	if mode.payload != "heat" {
		t.Fatalf("unexpected climate mode: %q", mode.payload)
	}
	heating := publisher.last(t, "melbridge/001122334455-1234567890/heating_energy/state")
	if heating.payload != "3.00" {
		t.Fatalf("unexpected heating energy: %q", heating.payload)
	}
	tank := publisher.last(t, "melbridge/aabbccddeeff-9876543210/water_heater/current_temperature/state")
	if tank.payload != "48.0" {
		t.Fatalf("unexpected tank temperature: %q", tank.payload)
	}
	zoneTarget := publisher.last(t, "melbridge/aabbccddeeff-9876543210/zone1/climate/temperature/state")
	if zoneTarget.payload != "21.0" {
		t.Fatalf("unexpected zone target: %q", zoneTarget.payload)
	}
}

func TestPollAuthFailureStopsBridge(t *testing.T) {
	publisher := newFakePublisher()
	h := newTestHub(t, &hubCloudStub{stateStatus: http.StatusUnauthorized}, publisher)

	err := h.poll(context.Background())
	if err == nil {
		t.Fatalf("expected auth failure to surface from poll")
	}
	var statusErr *melcloud.StatusError
	if !errors.As(err, &statusErr) || !statusErr.Unauthorized() {
		t.Fatalf("expected unauthorized status error, got %v", err)
	}
	if !strings.Contains(err.Error(), "device refresh") {
		t.Fatalf("expected refresh context in error, got %v", err)
	}
}
