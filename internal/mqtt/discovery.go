// discovery.go: Home Assistant MQTT auto-discovery implementation.
// See: https://www.home-assistant.io/integrations/mqtt/#mqtt-discovery
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tphakala/audiosessions/internal/errors"
	"github.com/tphakala/audiosessions/internal/logger"
)

// Sensor type constants to avoid magic strings
const (
	SensorApps     = "apps"
	SensorSessions = "sessions"
	SensorMoved    = "moved"
	SensorState    = "state"
)

// deviceIDPrefix is the prefix for all Home Assistant device identifiers
const deviceIDPrefix = "audiosessions"

// AllSensorTypes lists all sensor types for iteration (e.g., during removal)
var AllSensorTypes = []string{
	SensorApps,
	SensorSessions,
	SensorMoved,
	SensorState,
}

// idSanitizer replaces invalid characters in IDs with underscores.
// Home Assistant requires IDs to contain only [a-zA-Z0-9_-].
var idSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// maxDisplayNameLength keeps entity names manageable in the HA UI.
const maxDisplayNameLength = 32

// SanitizeID ensures the ID contains only valid characters for MQTT topics and HA entity IDs.
func SanitizeID(id string) string {
	sanitized := idSanitizer.ReplaceAllString(id, "_")
	for strings.Contains(sanitized, "__") {
		sanitized = strings.ReplaceAll(sanitized, "__", "_")
	}
	sanitized = strings.Trim(sanitized, "_")
	if sanitized == "" {
		sanitized = "unknown"
	}
	return sanitized
}

// shortenDisplayName keeps endpoint ids, which are long opaque strings on
// most platforms, from turning into unreadable entity names.
func shortenDisplayName(name string) string {
	if len(name) <= maxDisplayNameLength {
		return name
	}

	// WASAPI endpoint ids look like {0.0.0.00000000}.{guid}; the guid is the useful part
	if i := strings.LastIndex(name, "}.{"); i >= 0 && len(name) > i+11 {
		return name[i+3 : i+11]
	}

	truncated := name[:maxDisplayNameLength]

	lastBreak := -1
	for i := len(truncated) - 1; i >= maxDisplayNameLength/2; i-- {
		if truncated[i] == '_' || truncated[i] == '-' || truncated[i] == '/' || truncated[i] == ' ' {
			lastBreak = i
			break
		}
	}

	if lastBreak > 0 {
		return truncated[:lastBreak]
	}

	return truncated
}

// DiscoveryPayload represents a Home Assistant MQTT discovery message.
type DiscoveryPayload struct {
	Name                string           `json:"name"`
	UniqueID            string           `json:"unique_id"`
	StateTopic          string           `json:"state_topic"`
	ValueTemplate       string           `json:"value_template,omitempty"`
	UnitOfMeasurement   string           `json:"unit_of_measurement,omitempty"`
	DeviceClass         string           `json:"device_class,omitempty"`
	StateClass          string           `json:"state_class,omitempty"`
	Icon                string           `json:"icon,omitempty"`
	EntityCategory      string           `json:"entity_category,omitempty"`
	PayloadAvailable    string           `json:"payload_available,omitempty"`
	PayloadNotAvailable string           `json:"payload_not_available,omitempty"`
	AvailabilityTopic   string           `json:"availability_topic,omitempty"`
	Device              DiscoveryDevice  `json:"device"`
	Origin              *DiscoveryOrigin `json:"origin,omitempty"`
}

// DiscoveryDevice represents the device information in a discovery payload.
type DiscoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	SWVersion    string   `json:"sw_version,omitempty"`
	ViaDevice    string   `json:"via_device,omitempty"`
}

// DiscoveryOrigin provides information about the software creating the discovery message.
type DiscoveryOrigin struct {
	Name       string `json:"name"`
	SWVersion  string `json:"sw_version,omitempty"`
	SupportURL string `json:"support_url,omitempty"`
}

// DiscoverySource is an audio endpoint announced to Home Assistant.
type DiscoverySource struct {
	ID   string
	Name string
}

// DiscoveryPublisher handles publishing Home Assistant discovery messages.
type DiscoveryPublisher struct {
	client Client
	config Config
	logger logger.Logger
}

// NewDiscoveryPublisher creates a new discovery publisher.
func NewDiscoveryPublisher(client Client, cfg Config, log logger.Logger) *DiscoveryPublisher {
	if log == nil {
		log = logger.Global().Module("mqtt")
	}
	return &DiscoveryPublisher{
		client: client,
		config: cfg,
		logger: log,
	}
}

// PublishDiscovery publishes Home Assistant discovery configs for all sources.
// A failing source does not stop the others; the first error is returned.
func (p *DiscoveryPublisher) PublishDiscovery(ctx context.Context, sources []DiscoverySource) error {
	p.logger.Info("publishing Home Assistant discovery messages",
		logger.Int("source_count", len(sources)),
		logger.String("discovery_prefix", p.config.DiscoveryPrefix))

	if err := p.publishBridgeDiscovery(ctx); err != nil {
		p.logger.Error("failed to publish bridge discovery", logger.Error(err))
		return err
	}

	var firstErr error
	for _, source := range sources {
		if err := p.publishSourceDiscovery(ctx, source); err != nil {
			p.logger.Error("failed to publish source discovery",
				logger.String("device_id", source.ID),
				logger.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if firstErr != nil {
		return fmt.Errorf("failed to publish discovery for one or more devices: %w", firstErr)
	}
	return nil
}

func (p *DiscoveryPublisher) publishBridgeDiscovery(ctx context.Context) error {
	nodeID := SanitizeID(p.config.NodeID)
	bridgeID := p.bridgeID(nodeID)

	payload := DiscoveryPayload{
		Name:                "Status",
		UniqueID:            bridgeID + "_status",
		StateTopic:          p.config.StatusTopic(),
		DeviceClass:         "connectivity",
		EntityCategory:      "diagnostic",
		PayloadAvailable:    "online",
		PayloadNotAvailable: "offline",
		Device: DiscoveryDevice{
			Identifiers:  []string{bridgeID},
			Name:         "Audio Sessions",
			Manufacturer: "audiosessions",
			Model:        "Bridge",
			SWVersion:    p.config.Version,
		},
		Origin: p.defaultOrigin(),
	}

	return p.publishPayload(ctx, p.getBridgeTopic(nodeID), &payload)
}

func (p *DiscoveryPublisher) publishSourceDiscovery(ctx context.Context, source DiscoverySource) error {
	nodeID := SanitizeID(p.config.NodeID)
	sourceID := SanitizeID(source.ID)
	deviceID := fmt.Sprintf("%s_%s_%s", deviceIDPrefix, nodeID, sourceID)

	displayName := source.Name
	if displayName == "" {
		displayName = shortenDisplayName(source.ID)
	}

	device := DiscoveryDevice{
		Identifiers:  []string{deviceID},
		Name:         displayName,
		Manufacturer: "audiosessions",
		Model:        "Audio Endpoint",
		SWVersion:    p.config.Version,
		ViaDevice:    p.bridgeID(nodeID),
	}

	appsTopic := p.config.AppsTopic(source.ID)
	availabilityTopic := p.config.StatusTopic()

	sensors := []struct {
		kind    string
		payload DiscoveryPayload
	}{
		{SensorApps, DiscoveryPayload{
			Name:          "Applications",
			StateTopic:    appsTopic,
			ValueTemplate: "{{ value_json.app_count }}",
			StateClass:    "measurement",
			Icon:          "mdi:application-outline",
		}},
		{SensorSessions, DiscoveryPayload{
			Name:          "Sessions",
			StateTopic:    appsTopic,
			ValueTemplate: "{{ value_json.session_count }}",
			StateClass:    "measurement",
			Icon:          "mdi:volume-high",
		}},
		{SensorMoved, DiscoveryPayload{
			Name:           "Moved Sessions",
			StateTopic:     appsTopic,
			ValueTemplate:  "{{ value_json.moved_count }}",
			StateClass:     "measurement",
			Icon:           "mdi:swap-horizontal",
			EntityCategory: "diagnostic",
		}},
		{SensorState, DiscoveryPayload{
			Name:           "State",
			StateTopic:     p.config.StateTopic(source.ID),
			Icon:           "mdi:speaker",
			EntityCategory: "diagnostic",
		}},
	}

	for _, s := range sensors {
		payload := s.payload
		payload.UniqueID = deviceID + "_" + s.kind
		payload.AvailabilityTopic = availabilityTopic
		payload.Device = device
		payload.Origin = p.defaultOrigin()
		if err := p.publishPayload(ctx, p.getSensorTopic(nodeID, sourceID, s.kind), &payload); err != nil {
			return err
		}
	}
	return nil
}

// publishPayload marshals and publishes a retained discovery payload.
func (p *DiscoveryPublisher) publishPayload(ctx context.Context, topic string, payload *DiscoveryPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Build()
	}

	p.logger.Debug("publishing discovery message",
		logger.String("topic", topic),
		logger.Int("payload_size", len(data)))

	return p.client.Publish(ctx, topic, data, true)
}

func (p *DiscoveryPublisher) getBridgeTopic(nodeID string) string {
	return fmt.Sprintf("%s/binary_sensor/%s/status/config", p.config.DiscoveryPrefix, nodeID)
}

func (p *DiscoveryPublisher) getSensorTopic(nodeID, sourceID, sensorType string) string {
	objectID := fmt.Sprintf("%s_%s_%s", nodeID, sourceID, sensorType)
	return fmt.Sprintf("%s/sensor/%s/%s/config", p.config.DiscoveryPrefix, nodeID, objectID)
}

func (p *DiscoveryPublisher) defaultOrigin() *DiscoveryOrigin {
	return &DiscoveryOrigin{
		Name:       "audiosessions",
		SWVersion:  p.config.Version,
		SupportURL: "https://github.com/tphakala/audiosessions",
	}
}

func (p *DiscoveryPublisher) bridgeID(nodeID string) string {
	return fmt.Sprintf("%s_%s_bridge", deviceIDPrefix, nodeID)
}

// RemoveDiscovery publishes empty retained payloads for the sensors of
// sourceIDs, which deletes them from Home Assistant. The bridge is removed
// only when removeBridge is set.
func (p *DiscoveryPublisher) RemoveDiscovery(ctx context.Context, sourceIDs []string, removeBridge bool) {
	nodeID := SanitizeID(p.config.NodeID)

	if removeBridge {
		if err := p.client.Publish(ctx, p.getBridgeTopic(nodeID), nil, true); err != nil {
			p.logger.Warn("failed to remove bridge discovery", logger.Error(err))
		}
	}

	for _, id := range sourceIDs {
		sourceID := SanitizeID(id)
		for _, sensorType := range AllSensorTypes {
			topic := p.getSensorTopic(nodeID, sourceID, sensorType)
			if err := p.client.Publish(ctx, topic, nil, true); err != nil {
				p.logger.Warn("failed to remove sensor discovery",
					logger.String("topic", topic),
					logger.Error(err))
			}
		}
	}
}
