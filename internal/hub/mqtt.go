package hub

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/melbridge/melbridge/internal/config"
)

const (
	defaultQoS     = 1
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// Publisher is the transport surface entities and the hub publish through.
type Publisher interface {
	Publish(topic string, payload []byte, retain bool) error
	Subscribe(topic string, handler func(topic string, payload []byte)) error
}

// MQTTClient wraps paho with reconnect handling and re-subscription.
type MQTTClient struct {
	client pahomqtt.Client
	log    *slog.Logger

	mu   sync.Mutex
	subs map[string]func(topic string, payload []byte)
}

// ConnectMQTT connects to the broker with a retained last-will on the
// bridge availability topic so the hub marks everything offline if the
// bridge dies.
func ConnectMQTT(cfg config.MQTTConfig, willTopic string, logger *slog.Logger) (*MQTTClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &MQTTClient{
		log:  logger,
		subs: make(map[string]func(string, []byte)),
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetOrderMatters(false).
		SetWill(willTopic, "offline", defaultQoS, true).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			logger.Warn("mqtt connection lost", "error", err)
		}).
		SetOnConnectHandler(func(client pahomqtt.Client) {
			logger.Info("mqtt connected", "broker", cfg.Broker)
			c.resubscribe(client)
		})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt connect to %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return c, nil
}

func (c *MQTTClient) Publish(topic string, payload []byte, retain bool) error {
	token := c.client.Publish(topic, defaultQoS, retain, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	return token.Error()
}

func (c *MQTTClient) Subscribe(topic string, handler func(topic string, payload []byte)) error {
	c.mu.Lock()
	c.subs[topic] = handler
	c.mu.Unlock()

	token := c.client.Subscribe(topic, defaultQoS, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("subscribe to %s timed out", topic)
	}
	return token.Error()
}

// resubscribe restores subscriptions after a reconnect.
func (c *MQTTClient) resubscribe(client pahomqtt.Client) {
	c.mu.Lock()
	subs := make(map[string]func(string, []byte), len(c.subs))
	for topic, handler := range c.subs {
		subs[topic] = handler
	}
	c.mu.Unlock()

	for topic, handler := range subs {
		h := handler
		token := client.Subscribe(topic, defaultQoS, func(_ pahomqtt.Client, msg pahomqtt.Message) {
			h(msg.Topic(), msg.Payload())
		})
		if !token.WaitTimeout(publishTimeout) || token.Error() != nil {
			c.log.Warn("mqtt resubscribe failed", "topic", topic, "error", token.Error())
		}
	}
}

// Close announces the bridge offline and disconnects.
func (c *MQTTClient) Close(willTopic string) {
	_ = c.Publish(willTopic, []byte("offline"), true)
	c.client.Disconnect(250)
}
