// Package service assembles the session engine with its outer surfaces
// (device backend, event bus, metrics, MQTT, HTTP API) and runs it until
// the context is cancelled.
package service

import (
	"context"
	"time"

	"github.com/tphakala/audiosessions/internal/api"
	"github.com/tphakala/audiosessions/internal/audioapi/memory"
	"github.com/tphakala/audiosessions/internal/conf"
	"github.com/tphakala/audiosessions/internal/devices"
	"github.com/tphakala/audiosessions/internal/dispatch"
	"github.com/tphakala/audiosessions/internal/errors"
	"github.com/tphakala/audiosessions/internal/events"
	"github.com/tphakala/audiosessions/internal/logger"
	"github.com/tphakala/audiosessions/internal/mqtt"
	"github.com/tphakala/audiosessions/internal/observability"
)

const (
	queueName          = "sessions"
	busShutdownTimeout = 5 * time.Second
	sentryFlushTimeout = 2 * time.Second
)

// Service owns every long-lived component. Build it with New, then Start.
type Service struct {
	settings *conf.Settings
	logger   logger.Logger

	metrics *observability.Metrics
	queue   *dispatch.Queue
	bus     *events.EventBus
	manager *devices.Manager
	backend *memory.Backend

	mqttClient mqtt.Client
	server     *api.Server
}

// Option customizes a Service before it is built.
type Option func(*Service)

// WithMQTTClient replaces the paho client, mainly for tests.
func WithMQTTClient(c mqtt.Client) Option {
	return func(s *Service) {
		s.mqttClient = c
	}
}

// New wires the components described by settings. Nothing touches the
// network until Start.
func New(settings *conf.Settings, opts ...Option) (*Service, error) {
	s := &Service{
		settings: settings,
		logger:   logger.Global().Module("service"),
		backend:  memory.NewBackend(),
	}
	for _, opt := range opts {
		opt(s)
	}

	m, err := observability.NewMetrics()
	if err != nil {
		return nil, errors.New(err).
			Component("service").
			Category(errors.CategorySystem).
			Context("operation", "init_metrics").
			Build()
	}
	s.metrics = m

	s.queue = dispatch.New(
		dispatch.WithName(queueName),
		dispatch.WithLogger(logger.Global().Module("dispatch")),
		dispatch.WithDepthObserver(m.Dispatch.DepthObserver(queueName)),
	)

	s.bus = events.New(events.DefaultConfig(), logger.Global().Module("events"))
	if settings.Sentry.Enabled {
		// reported errors reach Sentry from a bus worker, never inline
		errors.SetEventPublisher(events.NewErrorsPublisherAdapter(s.bus))
	}

	s.manager = devices.NewManager(devices.Config{
		Queue:   s.queue,
		Logger:  logger.Global().Module("sessions"),
		Metrics: m.Sessions,
		Events:  s.bus,
	})

	if err := s.registerConsumers(); err != nil {
		s.Shutdown()
		return nil, err
	}

	if settings.API.Enabled {
		var serverOpts []api.ServerOption
		serverOpts = append(serverOpts,
			api.WithLogger(logger.Global().Module("api")),
			api.WithVersion(settings.Version))
		if settings.Metrics.Enabled {
			serverOpts = append(serverOpts, api.WithMetricsHandler(m.Handler()))
		}

		cfg := api.DefaultConfig()
		cfg.Host = settings.API.Host
		cfg.Port = settings.API.Port
		cfg.Debug = settings.API.Debug || settings.Debug

		s.server, err = api.New(cfg, s.manager, serverOpts...)
		if err != nil {
			s.Shutdown()
			return nil, err
		}
	}

	return s, nil
}

func (s *Service) registerConsumers() error {
	consumers := []events.EventConsumer{s.metrics.EventConsumer()}

	if s.settings.Sentry.Enabled {
		consumers = append(consumers, events.NewTelemetryConsumer(errors.GetTelemetryReporter()))
	}

	if s.settings.MQTT.Enabled {
		cfg := s.mqttConfig()
		if s.mqttClient == nil {
			client, err := mqtt.NewClient(cfg, s.metrics.MQTT, logger.Global().Module("mqtt"))
			if err != nil {
				return err
			}
			s.mqttClient = client
		}
		consumers = append(consumers,
			mqtt.NewPublisher(s.mqttClient, s.manager, cfg, s.metrics.MQTT, logger.Global().Module("mqtt")))
	}

	for _, c := range consumers {
		if err := s.bus.RegisterConsumer(c); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) mqttConfig() mqtt.Config {
	cfg := mqtt.DefaultConfig()
	m := s.settings.MQTT
	cfg.Broker = m.Broker
	cfg.ClientID = m.ClientID
	cfg.Username = m.Username
	cfg.Password = m.Password
	cfg.TopicPrefix = m.TopicPrefix
	cfg.DedupTTL = m.DedupTTL
	cfg.Discovery = m.Discovery
	cfg.DiscoveryPrefix = m.DiscoveryPrefix
	cfg.Version = s.settings.Version
	return cfg
}

// Start connects to the broker, starts the HTTP server and attaches the
// configured devices. A broker that cannot be reached is logged, not fatal:
// paho keeps retrying once connected and the tree is republished on the
// next change.
func (s *Service) Start(ctx context.Context) error {
	if s.mqttClient != nil {
		if err := s.mqttClient.Connect(ctx); err != nil {
			s.logger.Warn("MQTT connection failed, continuing without it", logger.Error(err))
		}
	}

	if s.server != nil {
		s.server.Start()
	}

	if s.settings.Backend.Type != conf.BackendMemory {
		s.logger.Info("no device backend configured")
		return nil
	}

	for _, d := range s.settings.Devices {
		s.backend.AddDevice(d.ID, d.Name)
	}
	for _, d := range s.settings.Devices {
		dev, _ := s.backend.Device(d.ID)
		for _, spec := range d.Sessions {
			dev.Seed(memory.SessionSpec{
				ProcessID:    spec.ProcessID,
				AppID:        spec.AppID,
				GroupingKey:  spec.GroupingKey,
				ExeName:      spec.ExeName,
				DisplayName:  spec.DisplayName,
				Muted:        spec.Muted,
				SystemSounds: spec.SystemSounds,
				EndpointID:   spec.EndpointID,
			})
		}
		if _, err := s.manager.Add(ctx, dev); err != nil {
			return err
		}
	}

	s.logger.Info("service started",
		logger.Int("devices", len(s.manager.List())),
		logger.Bool("api", s.server != nil),
		logger.Bool("mqtt", s.mqttClient != nil))
	return nil
}

// Manager returns the device manager.
func (s *Service) Manager() *devices.Manager { return s.manager }

// Backend returns the simulated device backend.
func (s *Service) Backend() *memory.Backend { return s.backend }

// Queue returns the dispatch queue shared by every collection.
func (s *Service) Queue() *dispatch.Queue { return s.queue }

// Server returns the HTTP server, or nil when the API is disabled.
func (s *Service) Server() *api.Server { return s.server }

// Shutdown stops everything in reverse dependency order. It is safe to call
// on a partially built Service.
func (s *Service) Shutdown() {
	if s.server != nil {
		if err := s.server.Shutdown(); err != nil {
			s.logger.Warn("HTTP server shutdown failed", logger.Error(err))
		}
	}
	if s.manager != nil {
		s.manager.Close()
	}
	if s.queue != nil {
		s.queue.Close()
	}

	if s.settings.Sentry.Enabled {
		errors.SetEventPublisher(nil)
	}
	if s.bus != nil {
		if err := s.bus.Shutdown(busShutdownTimeout); err != nil {
			s.logger.Warn("event bus shutdown timed out", logger.Error(err))
		}
	}

	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}
	if s.settings.Sentry.Enabled {
		errors.FlushSentry(sentryFlushTimeout)
	}
	s.logger.Info("service stopped")
}

// Run starts the service and blocks until ctx is cancelled.
func Run(ctx context.Context, settings *conf.Settings) error {
	s, err := New(settings)
	if err != nil {
		return err
	}
	defer s.Shutdown()

	if err := s.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	s.logger.Info("shutdown signal received")
	return nil
}
