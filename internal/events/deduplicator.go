package events

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tphakala/audiosessions/internal/logger"
)

// DeduplicationConfig holds configuration for error deduplication
type DeduplicationConfig struct {
	Enabled         bool
	TTL             time.Duration
	CleanupInterval time.Duration
}

// DefaultDeduplicationConfig returns default deduplication settings
func DefaultDeduplicationConfig() *DeduplicationConfig {
	return &DeduplicationConfig{
		Enabled:         true,
		TTL:             5 * time.Minute,
		CleanupInterval: time.Minute,
	}
}

// Deduplicator suppresses repeats of the same error within a sliding TTL
// window. A flapping device otherwise floods telemetry with identical
// invalidation reports.
type Deduplicator struct {
	config *DeduplicationConfig
	seen   *cache.Cache
	mu     sync.Mutex

	totalSeen       atomic.Uint64
	totalSuppressed atomic.Uint64

	stopCleanup chan struct{}
	cleanupDone chan struct{}
	stopOnce    sync.Once
	logger      logger.Logger
}

// NewDeduplicator creates a deduplicator. The cache janitor is not used;
// expired entries are purged by our own loop so Shutdown can stop it.
func NewDeduplicator(config *DeduplicationConfig, log logger.Logger) *Deduplicator {
	if config == nil {
		config = DefaultDeduplicationConfig()
	}

	d := &Deduplicator{
		config:      config,
		seen:        cache.New(config.TTL, 0),
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
		logger:      log,
	}

	if config.Enabled && config.CleanupInterval > 0 {
		go d.cleanupLoop()
	} else {
		close(d.cleanupDone)
	}

	return d
}

// ShouldProcess reports whether the error is new within the TTL window
func (d *Deduplicator) ShouldProcess(event ErrorReported) bool {
	if d == nil || !d.config.Enabled || event.Err == nil {
		return true
	}

	d.totalSeen.Add(1)
	key := hashError(event)

	d.mu.Lock()
	defer d.mu.Unlock()

	if count, found := d.seen.Get(key); found {
		n, _ := count.(int)
		d.seen.Set(key, n+1, d.config.TTL)
		d.totalSuppressed.Add(1)
		if (n+1)%10 == 0 && d.logger != nil {
			d.logger.Debug("suppressing duplicate error",
				logger.String("component", event.Err.GetComponent()),
				logger.String("category", event.Err.GetCategory()),
				logger.Int("count", n+1))
		}
		return false
	}

	d.seen.Set(key, 1, d.config.TTL)
	return true
}

func hashError(event ErrorReported) string {
	h := sha256.New()
	h.Write([]byte(event.Err.GetComponent()))
	h.Write([]byte(event.Err.GetCategory()))
	h.Write([]byte(event.Err.GetMessage()))
	ctx := event.Err.GetContext()
	if op, ok := ctx["operation"].(string); ok {
		h.Write([]byte(op))
	}
	if id, ok := ctx["device_id"].(string); ok {
		h.Write([]byte(id))
	}
	return hex.EncodeToString(h.Sum(nil)[:8])
}

func (d *Deduplicator) cleanupLoop() {
	defer close(d.cleanupDone)

	ticker := time.NewTicker(d.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.seen.DeleteExpired()
		case <-d.stopCleanup:
			return
		}
	}
}

// Stats returns seen and suppressed counts
func (d *Deduplicator) Stats() (seen, suppressed uint64) {
	if d == nil {
		return 0, 0
	}
	return d.totalSeen.Load(), d.totalSuppressed.Load()
}

// Shutdown stops the cleanup loop
func (d *Deduplicator) Shutdown() {
	if d == nil {
		return
	}
	d.stopOnce.Do(func() { close(d.stopCleanup) })
	<-d.cleanupDone
}
