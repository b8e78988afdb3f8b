package hub

import (
	"context"
	"fmt"
	"strconv"

	"github.com/melbridge/melbridge/internal/fleet"
)

// CommandHandler consumes one command payload from the hub.
type CommandHandler func(ctx context.Context, payload []byte) error

// Entity is one hub-facing presentation object backed by a device wrapper.
// Entities are a mechanical mapping: they read wrapper/device state into
// topic payloads and translate command payloads into wrapper writes.
type Entity interface {
	// Platform is the Home Assistant integration name ("switch", "climate",
	// "select", "sensor", "water_heater").
	Platform() string
	// UniqueID is stable across restarts; discovery and topics key off it.
	UniqueID() string
	// Identity is the registry record (device or zone) this entity hangs
	// under.
	Identity() fleet.IdentityRecord
	// Discovery returns the platform-specific part of the discovery
	// payload. The hub injects unique_id, availability and device blocks.
	Discovery() map[string]any
	// State maps state topics to their current payloads. Topics with no
	// current value are omitted.
	State() map[string]string
	// Commands maps command topics to their handlers.
	Commands() map[string]CommandHandler
	// Wrapper returns the backing device wrapper.
	Wrapper() *fleet.Wrapper
}

const (
	payloadOn  = "ON"
	payloadOff = "OFF"
)

func onOff(on bool) string {
	if on {
		return payloadOn
	}
	return payloadOff
}

func parseOnOff(payload []byte) (bool, error) {
	switch string(payload) {
	case payloadOn:
		return true, nil
	case payloadOff:
		return false, nil
	}
	return false, fmt.Errorf("unknown power payload %q", payload)
}

func formatTemperature(v *float64) (string, bool) {
	if v == nil {
		return "", false
	}
	return strconv.FormatFloat(*v, 'f', 1, 64), true
}
