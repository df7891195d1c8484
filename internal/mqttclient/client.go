// Package mqttclient holds the process-wide handle to the MQTT broker.
// Connection and reconnection mechanics belong to the paho client; this
// wrapper only shapes subscribe/publish for the rest of the server.
package mqttclient

import (
	"fmt"
	"log/slog"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Options configure the broker connection.
type Options struct {
	BrokerURL string
	Username  string
	Password  string
	ClientID  string
}

// Handler is invoked for each message received on a subscribed topic.
type Handler func(topic string, payload []byte)

// Client is a shared MQTT handle reused by all tasks in the process.
type Client struct {
	impl   mqtt.Client
	logger *slog.Logger
}

// Connect dials the broker and blocks until the connection is established
// or fails.
func Connect(opts Options, logger *slog.Logger) (*Client, error) {
	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true)

	if opts.Username != "" {
		clientOpts = clientOpts.SetUsername(opts.Username).SetPassword(opts.Password)
	}

	clientOpts.OnConnect = func(mqtt.Client) {
		logger.Info("connected to mqtt broker", "broker", opts.BrokerURL)
	}
	clientOpts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", "error", err)
	}

	impl := mqtt.NewClient(clientOpts)
	if token := impl.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to mqtt broker: %w", token.Error())
	}

	return &Client{impl: impl, logger: logger}, nil
}

// Subscribe registers a QoS 0 subscription on the given topic filter.
func (c *Client) Subscribe(filter string, handler Handler) error {
	token := c.impl.Subscribe(filter, 0, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe to %s: %w", filter, token.Error())
	}
	c.logger.Info("subscribed", "topic", filter)
	return nil
}

// Publish sends a QoS 0 message on the given topic.
func (c *Client) Publish(topic string, payload []byte) error {
	token := c.impl.Publish(topic, 0, false, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("publish to %s: %w", topic, token.Error())
	}
	return nil
}

// Disconnect flushes in-flight work and drops the connection.
func (c *Client) Disconnect() {
	c.impl.Disconnect(250)
}
