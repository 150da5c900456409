// env.go - Environment variable configuration and validation
package conf

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envPrefix is prepended to every environment variable name
const envPrefix = "AUDIOSESSIONS"

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings with validation
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "AUDIOSESSIONS_DEBUG", validateEnvBool},
		{"logging.default_level", "AUDIOSESSIONS_LOG_LEVEL", validateEnvLogLevel},
		{"logging.timezone", "AUDIOSESSIONS_LOG_TIMEZONE", validateEnvTimezone},

		{"backend.type", "AUDIOSESSIONS_BACKEND", validateEnvBackend},

		{"api.enabled", "AUDIOSESSIONS_API_ENABLED", validateEnvBool},
		{"api.host", "AUDIOSESSIONS_API_HOST", nil},
		{"api.port", "AUDIOSESSIONS_API_PORT", validateEnvPort},

		{"mqtt.enabled", "AUDIOSESSIONS_MQTT_ENABLED", validateEnvBool},
		{"mqtt.broker", "AUDIOSESSIONS_MQTT_BROKER", validateEnvBroker},
		{"mqtt.username", "AUDIOSESSIONS_MQTT_USERNAME", nil},
		{"mqtt.password", "AUDIOSESSIONS_MQTT_PASSWORD", nil},
		{"mqtt.topicprefix", "AUDIOSESSIONS_MQTT_TOPIC_PREFIX", validateEnvTopicPrefix},
		{"mqtt.dedupttl", "AUDIOSESSIONS_MQTT_DEDUP_TTL", validateEnvDuration},

		{"metrics.enabled", "AUDIOSESSIONS_METRICS_ENABLED", validateEnvBool},

		{"sentry.enabled", "AUDIOSESSIONS_SENTRY_ENABLED", validateEnvBool},
		{"sentry.dsn", "AUDIOSESSIONS_SENTRY_DSN", nil},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars(v *viper.Viper) error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

func validateEnvLogLevel(value string) error {
	if !validLogLevels[strings.ToLower(value)] {
		return fmt.Errorf("must be one of trace, debug, info, warn, error")
	}
	return nil
}

func validateEnvTimezone(value string) error {
	if value == "Local" {
		return nil
	}
	if _, err := time.LoadLocation(value); err != nil {
		return fmt.Errorf("unknown timezone")
	}
	return nil
}

func validateEnvBackend(value string) error {
	if value != BackendMemory && value != BackendNone {
		return fmt.Errorf("must be %q or %q", BackendMemory, BackendNone)
	}
	return nil
}

func validateEnvPort(value string) error {
	port, err := strconv.Atoi(value)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("must be a number between 1 and 65535")
	}
	return nil
}

func validateEnvBroker(value string) error {
	u, err := url.Parse(value)
	if err != nil || u.Host == "" {
		return fmt.Errorf("must be a URL such as tcp://host:1883")
	}
	if !validBrokerSchemes[u.Scheme] {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return nil
}

func validateEnvTopicPrefix(value string) error {
	if strings.ContainsAny(value, "+#") {
		return fmt.Errorf("must not contain MQTT wildcards")
	}
	return nil
}

func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return fmt.Errorf("must be a non-negative duration such as 10m")
	}
	return nil
}

// configureEnvironmentVariables sets up environment variable support for Viper
func configureEnvironmentVariables(v *viper.Viper) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return bindEnvVars(v)
}
