// Package mqtt publishes alerts to an MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/Capitan-Parrot/clever-camera/internal/notify"
)

const publishTimeout = 5 * time.Second

type ClientConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	// Topic may contain a {camera} placeholder.
	Topic string
}

type Client struct {
	client mqtt.Client
	config ClientConfig
	log    zerolog.Logger
}

func NewClient(config ClientConfig, logger zerolog.Logger) (*Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(config.ClientID)
	opts.SetUsername(config.Username)
	opts.SetPassword(config.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn().Err(err).Msg("MQTT connection lost")
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	logger.Info().Str("broker", config.Broker).Msg("MQTT client connected")
	return &Client{client: client, config: config, log: logger}, nil
}

// FormatTopic replaces the {camera} placeholder.
func FormatTopic(pattern, camera string) string {
	return strings.ReplaceAll(pattern, "{camera}", camera)
}

func (c *Client) Send(ctx context.Context, alert notify.Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	token := c.client.Publish(FormatTopic(c.config.Topic, alert.Camera), 1, false, payload)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
	case <-time.After(publishTimeout):
		return fmt.Errorf("publish to %s timed out", c.config.Topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}
	return nil
}

func (c *Client) Name() string {
	return "mqtt"
}

func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

func (c *Client) Close() {
	c.client.Disconnect(250)
	c.log.Info().Msg("MQTT client disconnected")
}
