package events

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/audiosessions/internal/logger"
)

// Config holds event bus configuration
type Config struct {
	BufferSize int
	Workers    int

	// Deduplication applies to ErrorReported events only. Tree change
	// events are never suppressed since consumers snapshot on every one.
	Deduplication *DeduplicationConfig
}

// DefaultConfig returns the default event bus configuration
func DefaultConfig() *Config {
	return &Config{
		BufferSize:    1000,
		Workers:       1,
		Deduplication: DefaultDeduplicationConfig(),
	}
}

// EventBus provides asynchronous event processing with non-blocking publishing.
// A single worker preserves per-device ordering; more workers trade ordering
// for throughput.
type EventBus struct {
	eventChan chan Event
	workers   int

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
	mu      sync.Mutex

	consumers    []EventConsumer
	deduplicator *Deduplicator

	received   atomic.Uint64
	suppressed atomic.Uint64
	processed  atomic.Uint64
	dropped    atomic.Uint64
	errCount   atomic.Uint64

	logger logger.Logger
}

// New creates an event bus. Workers start with the first consumer.
func New(config *Config, log logger.Logger) *EventBus {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if log == nil {
		log = logger.Global().Module("events")
	}

	ctx, cancel := context.WithCancel(context.Background())
	eb := &EventBus{
		eventChan:    make(chan Event, config.BufferSize),
		workers:      config.Workers,
		ctx:          ctx,
		cancel:       cancel,
		deduplicator: NewDeduplicator(config.Deduplication, log),
		logger:       log,
	}

	log.Info("event bus initialized",
		logger.Int("buffer_size", config.BufferSize),
		logger.Int("workers", config.Workers))

	return eb
}

// RegisterConsumer adds a new event consumer
func (eb *EventBus) RegisterConsumer(consumer EventConsumer) error {
	if eb == nil {
		return fmt.Errorf("event bus not initialized")
	}

	eb.mu.Lock()
	defer eb.mu.Unlock()

	if slices.ContainsFunc(eb.consumers, func(c EventConsumer) bool { return c.Name() == consumer.Name() }) {
		return fmt.Errorf("consumer %s already registered", consumer.Name())
	}

	eb.consumers = append(eb.consumers, consumer)
	eb.logger.Info("registered event consumer", logger.String("consumer", consumer.Name()))

	if len(eb.consumers) == 1 {
		eb.start()
	}

	return nil
}

// TryPublish attempts to publish an event without blocking.
// Returns true if the event was accepted, false if dropped or suppressed.
func (eb *EventBus) TryPublish(event Event) bool {
	if eb == nil || event == nil || !eb.running.Load() {
		return false
	}

	if er, ok := event.(ErrorReported); ok && !eb.deduplicator.ShouldProcess(er) {
		eb.suppressed.Add(1)
		return false
	}

	select {
	case eb.eventChan <- event:
		eb.received.Add(1)
		return true
	default:
		eb.dropped.Add(1)
		eb.logger.Debug("event dropped due to full buffer",
			logger.String("type", event.EventType()),
			logger.String("device_id", event.GetDeviceID()))
		return false
	}
}

func (eb *EventBus) start() {
	if eb.running.Swap(true) {
		return
	}

	eb.logger.Debug("starting event bus workers", logger.Int("count", eb.workers))
	for i := range eb.workers {
		eb.wg.Go(func() { eb.worker(i) })
	}
}

func (eb *EventBus) worker(id int) {
	log := eb.logger.With(logger.Int("worker_id", id))

	for {
		select {
		case <-eb.ctx.Done():
			// Deliver what is already buffered so the last tree state reaches consumers
			for {
				select {
				case event := <-eb.eventChan:
					eb.processEvent(event, log)
				default:
					return
				}
			}
		case event := <-eb.eventChan:
			eb.processEvent(event, log)
		}
	}
}

func (eb *EventBus) processEvent(event Event, log logger.Logger) {
	eb.mu.Lock()
	consumers := slices.Clone(eb.consumers)
	eb.mu.Unlock()

	for _, consumer := range consumers {
		if !consumer.Accepts(event.EventType()) {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					eb.errCount.Add(1)
					log.Error("consumer panicked",
						logger.String("consumer", consumer.Name()),
						logger.Any("panic", r),
						logger.String("type", event.EventType()))
				}
			}()

			if err := consumer.ProcessEvent(event); err != nil {
				eb.errCount.Add(1)
				log.Warn("consumer error",
					logger.String("consumer", consumer.Name()),
					logger.Error(err),
					logger.String("type", event.EventType()),
					logger.String("device_id", event.GetDeviceID()))
				return
			}
			eb.processed.Add(1)
		}()
	}
}

// Shutdown stops accepting events, drains the buffer and waits for workers.
func (eb *EventBus) Shutdown(timeout time.Duration) error {
	if eb == nil {
		return nil
	}

	eb.logger.Info("shutting down event bus", logger.Duration("timeout", timeout))

	eb.running.Store(false)
	eb.cancel()
	defer eb.deduplicator.Shutdown()

	done := make(chan struct{})
	go func() {
		eb.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		eb.logger.Info("event bus shutdown complete")
		return nil
	case <-timer.C:
		eb.logger.Warn("event bus shutdown timeout exceeded")
		return fmt.Errorf("event bus shutdown timeout exceeded")
	}
}

// GetStats returns current event bus statistics
func (eb *EventBus) GetStats() EventBusStats {
	if eb == nil {
		return EventBusStats{}
	}

	return EventBusStats{
		EventsReceived:   eb.received.Load(),
		EventsSuppressed: eb.suppressed.Load(),
		EventsProcessed:  eb.processed.Load(),
		EventsDropped:    eb.dropped.Load(),
		ConsumerErrors:   eb.errCount.Load(),
	}
}
