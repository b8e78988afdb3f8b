package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/melbridge/melbridge/internal/fleet"
)

const (
	payloadOnline  = "online"
	payloadOffline = "offline"

	// bridgeNode is the discovery node id all entities register under.
	bridgeNode = "melbridge"

	commandTimeout = 30 * time.Second
)

// BridgeAvailabilityTopic is where the bridge announces itself; the MQTT
// last-will marks it offline when the process dies.
func BridgeAvailabilityTopic(topicPrefix string) string {
	return topicPrefix + "/bridge/availability"
}

// Options configures topic layout and poll cadence.
type Options struct {
	TopicPrefix     string
	DiscoveryPrefix string
	PollInterval    time.Duration
}

// Hub bridges a device fleet onto MQTT: discovery announcements, state and
// availability publishing, and command dispatch back into the fleet.
type Hub struct {
	publisher Publisher
	log       *slog.Logger

	topicPrefix     string
	discoveryPrefix string
	pollInterval    time.Duration

	wrappers []*fleet.Wrapper
	entities []Entity
	metrics  *hubMetrics
}

// New builds the hub and its entities for every wrapped device in the fleet.
func New(publisher Publisher, f fleet.Fleet, opts Options, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		publisher:       publisher,
		log:             logger,
		topicPrefix:     opts.TopicPrefix,
		discoveryPrefix: opts.DiscoveryPrefix,
		pollInterval:    opts.PollInterval,
		wrappers:        f.Devices(),
		metrics:         newHubMetrics(),
	}
	for _, w := range h.wrappers {
		h.entities = append(h.entities, entitiesFor(w, h.topicPrefix)...)
	}
	return h
}

// Entities returns the presentation entities built for the fleet.
func (h *Hub) Entities() []Entity { return h.entities }

func (h *Hub) availabilityTopic(w *fleet.Wrapper) string {
	return h.topicPrefix + "/" + deviceSlug(w) + "/availability"
}

func (h *Hub) discoveryTopic(e Entity) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", h.discoveryPrefix, e.Platform(), bridgeNode, e.UniqueID())
}

// PublishDiscovery announces every entity with a retained discovery payload.
// The entity supplies the platform-specific fields; the hub injects identity,
// uniqueness, and the availability chain.
func (h *Hub) PublishDiscovery() error {
	for _, e := range h.entities {
		payload := e.Discovery()
		payload["unique_id"] = e.UniqueID()
		payload["availability"] = []map[string]string{
			{"topic": BridgeAvailabilityTopic(h.topicPrefix)},
			{"topic": h.availabilityTopic(e.Wrapper())},
		}
		payload["availability_mode"] = "all"
		payload["device"] = discoveryDeviceFrom(e.Identity())

		body, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode discovery for %s: %w", e.UniqueID(), err)
		}
		if err := h.publisher.Publish(h.discoveryTopic(e), body, true); err != nil {
			return fmt.Errorf("announce %s: %w", e.UniqueID(), err)
		}
	}
	return nil
}

// SubscribeCommands wires every entity command topic into the broker.
func (h *Hub) SubscribeCommands() error {
	for _, e := range h.entities {
		for topic, handler := range e.Commands() {
			e, handler := e, handler
			err := h.publisher.Subscribe(topic, func(topic string, payload []byte) {
				h.handleCommand(topic, payload, e, handler)
			})
			if err != nil {
				return fmt.Errorf("subscribe %s: %w", topic, err)
			}
		}
	}
	return nil
}

func (h *Hub) handleCommand(topic string, payload []byte, e Entity, handler CommandHandler) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	device := e.Wrapper().Name()
	if err := handler(ctx, payload); err != nil {
		h.metrics.commands.WithLabelValues(device, "error").Inc()
		h.log.Warn("command failed", "topic", topic, "device", device, "error", err)
	} else {
		h.metrics.commands.WithLabelValues(device, "ok").Inc()
		h.log.Debug("command applied", "topic", topic, "device", device)
	}
	// A write can flip the availability flag either way.
	h.publishAvailability(e.Wrapper())
}

// Run announces the fleet, then polls it until the context is cancelled. An
// auth failure surfacing from a refresh stops the bridge so the operator can
// fix credentials; everything else is absorbed into availability.
func (h *Hub) Run(ctx context.Context) error {
	if err := h.PublishDiscovery(); err != nil {
		return err
	}
	if err := h.SubscribeCommands(); err != nil {
		return err
	}
	if err := h.publisher.Publish(BridgeAvailabilityTopic(h.topicPrefix), []byte(payloadOnline), true); err != nil {
		return fmt.Errorf("announce bridge: %w", err)
	}

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	for {
		if err := h.poll(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// poll refreshes every wrapper concurrently and republishes state.
func (h *Hub) poll(ctx context.Context) error {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		authErr error
	)
	for _, w := range h.wrappers {
		wg.Add(1)
		go func(w *fleet.Wrapper) {
			defer wg.Done()
			if err := w.Refresh(ctx); err != nil {
				h.metrics.refreshes.WithLabelValues(w.Name(), "auth_failed").Inc()
				mu.Lock()
				if authErr == nil {
					authErr = err
				}
				mu.Unlock()
				return
			}
			h.metrics.refreshes.WithLabelValues(w.Name(), "ok").Inc()
		}(w)
	}
	wg.Wait()

	if authErr != nil {
		return fmt.Errorf("device refresh: %w", authErr)
	}

	for _, w := range h.wrappers {
		h.publishAvailability(w)
	}
	for _, e := range h.entities {
		h.publishEntityState(e)
	}
	return nil
}

func (h *Hub) publishAvailability(w *fleet.Wrapper) {
	payload := payloadOffline
	if w.Available() {
		payload = payloadOnline
	}
	if err := h.publisher.Publish(h.availabilityTopic(w), []byte(payload), true); err != nil {
		h.log.Warn("availability publish failed", "device", w.Name(), "error", err)
	}
}

func (h *Hub) publishEntityState(e Entity) {
	for topic, payload := range e.State() {
		if err := h.publisher.Publish(topic, []byte(payload), false); err != nil {
			h.log.Warn("state publish failed", "topic", topic, "error", err)
		}
	}
}
