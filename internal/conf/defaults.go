package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaultConfig sets the default value of every configuration key.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.default_level", "info")
	v.SetDefault("logging.console.enabled", true)
	v.SetDefault("logging.console.level", "info")

	v.SetDefault("backend.type", BackendMemory)
	v.SetDefault("devices", []map[string]any{
		{"id": "speakers", "name": "Speakers"},
	})

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.host", "127.0.0.1")
	v.SetDefault("api.port", "8085")
	v.SetDefault("api.debug", false)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.clientid", "audiosessions")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topicprefix", "audiosessions")
	v.SetDefault("mqtt.dedupttl", 10*time.Minute)
	v.SetDefault("mqtt.discovery", false)
	v.SetDefault("mqtt.discoveryprefix", "homeassistant")

	v.SetDefault("metrics.enabled", true)

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "production")
	v.SetDefault("sentry.samplerate", 1.0)
}
