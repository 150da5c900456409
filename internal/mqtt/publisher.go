package mqtt

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"

	"github.com/patrickmn/go-cache"

	"github.com/tphakala/audiosessions/internal/dispatch"
	"github.com/tphakala/audiosessions/internal/errors"
	"github.com/tphakala/audiosessions/internal/events"
	"github.com/tphakala/audiosessions/internal/logger"
	"github.com/tphakala/audiosessions/internal/observability/metrics"
	"github.com/tphakala/audiosessions/internal/sessions"
)

// Snapshotter returns the session tree of a device.
type Snapshotter interface {
	Snapshot(ctx context.Context, deviceID string) (sessions.DeviceSnapshot, error)
}

// DeviceNamer is optionally implemented by a Snapshotter to give discovered
// devices a friendly name.
type DeviceNamer interface {
	DeviceName(deviceID string) string
}

// TreePayload is the retained message published on the apps topic of a device.
type TreePayload struct {
	sessions.DeviceSnapshot
	AppCount     int `json:"app_count"`
	SessionCount int `json:"session_count"`
	MovedCount   int `json:"moved_count"`
}

// Publisher is an event bus consumer that mirrors session trees to MQTT.
type Publisher struct {
	client    Client
	config    Config
	source    Snapshotter
	metrics   *metrics.MQTTMetrics
	logger    logger.Logger
	discovery *DiscoveryPublisher

	// last payload per topic
	sent *cache.Cache

	mu        sync.Mutex
	announced map[string]bool
}

// NewPublisher creates a publisher. m may be nil.
func NewPublisher(client Client, source Snapshotter, cfg Config, m *metrics.MQTTMetrics, log logger.Logger) *Publisher {
	if log == nil {
		log = logger.Global().Module("mqtt")
	}
	p := &Publisher{
		client:    client,
		config:    cfg,
		source:    source,
		metrics:   m,
		logger:    log,
		sent:      cache.New(cfg.DedupTTL, 0),
		announced: make(map[string]bool),
	}
	if cfg.Discovery {
		p.discovery = NewDiscoveryPublisher(client, cfg, log)
	}
	return p
}

func (p *Publisher) Name() string { return "mqtt" }

func (p *Publisher) Accepts(eventType string) bool {
	return eventType == events.TypeCollectionChanged || eventType == events.TypeStateChanged
}

// ProcessEvent publishes the current tree of the device named by a
// CollectionChanged event, or the new state carried by a StateChanged event.
func (p *Publisher) ProcessEvent(e events.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.PublishTimeout)
	defer cancel()

	switch ev := e.(type) {
	case events.CollectionChanged:
		return p.publishTree(ctx, ev.DeviceID)
	case events.StateChanged:
		return p.publishState(ctx, ev.DeviceID, ev.State)
	}
	return nil
}

func (p *Publisher) publishTree(ctx context.Context, deviceID string) error {
	snap, err := p.source.Snapshot(ctx, deviceID)
	if err != nil {
		// the device went away between the change and now
		if errors.IsNotFound(err) || errors.Is(err, dispatch.ErrClosed) {
			return nil
		}
		return err
	}

	p.announce(ctx, deviceID)

	data, err := json.Marshal(TreePayload{
		DeviceSnapshot: snap,
		AppCount:       len(snap.Apps),
		SessionCount:   snap.SessionCount(),
		MovedCount:     len(snap.Moved),
	})
	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			DeviceContext(deviceID).
			Build()
	}
	return p.publish(ctx, p.config.AppsTopic(deviceID), data)
}

func (p *Publisher) publishState(ctx context.Context, deviceID, state string) error {
	// the tree must be republished if the device comes back
	p.sent.Delete(p.config.AppsTopic(deviceID))

	if err := p.publish(ctx, p.config.StateTopic(deviceID), []byte(state)); err != nil {
		return err
	}

	if state == sessions.StateInvalid.String() && p.discovery != nil {
		p.mu.Lock()
		wasAnnounced := p.announced[deviceID]
		delete(p.announced, deviceID)
		p.mu.Unlock()
		if wasAnnounced {
			p.discovery.RemoveDiscovery(ctx, []string{deviceID}, false)
		}
	}
	return nil
}

// announce publishes discovery for a device the first time it is seen.
func (p *Publisher) announce(ctx context.Context, deviceID string) {
	if p.discovery == nil {
		return
	}
	p.mu.Lock()
	if p.announced[deviceID] {
		p.mu.Unlock()
		return
	}
	p.announced[deviceID] = true
	p.mu.Unlock()

	src := DiscoverySource{ID: deviceID}
	if n, ok := p.source.(DeviceNamer); ok {
		src.Name = n.DeviceName(deviceID)
	}
	if err := p.discovery.PublishDiscovery(ctx, []DiscoverySource{src}); err != nil {
		p.mu.Lock()
		delete(p.announced, deviceID)
		p.mu.Unlock()
		p.logger.Warn("discovery failed, will retry on next change",
			logger.String("device_id", deviceID),
			logger.Error(err))
	}
}

// publish sends a retained message unless the broker already holds the
// same payload on topic.
func (p *Publisher) publish(ctx context.Context, topic string, data []byte) error {
	if last, ok := p.sent.Get(topic); ok && bytes.Equal(last.([]byte), data) {
		p.record(metrics.PublishSuppressed)
		return nil
	}

	if err := p.client.Publish(ctx, topic, data, true); err != nil {
		p.record(metrics.PublishFailed)
		return err
	}

	p.sent.SetDefault(topic, data)
	p.record(metrics.PublishOK)
	return nil
}

func (p *Publisher) record(outcome string) {
	if p.metrics != nil {
		p.metrics.RecordPublish(outcome)
	}
}
