// Package mqtt publishes the session tree of every device to an MQTT broker
// so home automation can react to applications starting, stopping or being
// muted.
package mqtt

import (
	"context"
	"time"
)

// Client defines the interface for MQTT client operations.
type Client interface {
	// Connect attempts to connect to the MQTT broker.
	Connect(ctx context.Context) error

	// Publish sends payload to topic. Retained messages are kept by the
	// broker and delivered to late subscribers.
	Publish(ctx context.Context, topic string, payload []byte, retain bool) error

	// IsConnected returns true if the client is currently connected to the MQTT broker.
	IsConnected() bool

	// Disconnect closes the connection to the MQTT broker.
	Disconnect()
}

// Config holds the configuration for the MQTT client and publisher.
type Config struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string // Root of every state topic, e.g. audiosessions

	// Identical consecutive payloads on a topic are dropped for this long.
	DedupTTL time.Duration

	// Home Assistant discovery
	Discovery       bool
	DiscoveryPrefix string
	NodeID          string
	Version         string

	// Connection timeouts
	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
	DisconnectTimeout time.Duration
}

// DefaultConfig returns a Config with reasonable default values
func DefaultConfig() Config {
	return Config{
		ClientID:          "audiosessions",
		TopicPrefix:       "audiosessions",
		DedupTTL:          10 * time.Minute,
		DiscoveryPrefix:   "homeassistant",
		NodeID:            "audiosessions",
		ConnectTimeout:    30 * time.Second,
		PublishTimeout:    10 * time.Second,
		DisconnectTimeout: 250 * time.Millisecond,
	}
}

// AppsTopic is where the app tree of deviceID is published.
func (c Config) AppsTopic(deviceID string) string {
	return c.TopicPrefix + "/" + SanitizeID(deviceID) + "/apps"
}

// StateTopic is where the collection state of deviceID is published.
func (c Config) StateTopic(deviceID string) string {
	return c.TopicPrefix + "/" + SanitizeID(deviceID) + "/state"
}

// StatusTopic carries the service availability.
func (c Config) StatusTopic() string {
	return c.TopicPrefix + "/status"
}
