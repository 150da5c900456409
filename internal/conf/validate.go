// conf/validate.go

package conf

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var validLogLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validBrokerSchemes = map[string]bool{
	"tcp":  true,
	"ssl":  true,
	"tls":  true,
	"mqtt": true,
	"ws":   true,
	"wss":  true,
}

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) error{
		validateLoggingSettings,
		validateBackendSettings,
		validateAPISettings,
		validateMQTTSettings,
		validateSentrySettings,
	}
	for _, validate := range validators {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateLoggingSettings(settings *Settings) error {
	level := strings.ToLower(settings.Logging.DefaultLevel)
	if level != "" && !validLogLevels[level] {
		return fmt.Errorf("logging.default_level %q is not a valid level", settings.Logging.DefaultLevel)
	}
	if tz := settings.Logging.Timezone; tz != "" && tz != "Local" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("logging.timezone %q: %w", tz, err)
		}
	}
	return nil
}

// validateBackendSettings checks the backend type and that simulated
// devices have unique non-empty ids.
func validateBackendSettings(settings *Settings) error {
	switch settings.Backend.Type {
	case BackendMemory:
	case BackendNone:
		return nil
	default:
		return fmt.Errorf("backend.type must be %q or %q, got %q", BackendMemory, BackendNone, settings.Backend.Type)
	}

	seen := make(map[string]bool, len(settings.Devices))
	for i, d := range settings.Devices {
		if d.ID == "" {
			return fmt.Errorf("devices[%d]: id is required", i)
		}
		if seen[d.ID] {
			return fmt.Errorf("devices[%d]: duplicate id %q", i, d.ID)
		}
		seen[d.ID] = true
	}

	for _, d := range settings.Devices {
		for j, s := range d.Sessions {
			if s.AppID == "" && !s.SystemSounds {
				return fmt.Errorf("devices[%s].sessions[%d]: appid is required", d.ID, j)
			}
			if s.EndpointID != "" && !seen[s.EndpointID] {
				return fmt.Errorf("devices[%s].sessions[%d]: endpointid %q is not a configured device", d.ID, j, s.EndpointID)
			}
		}
	}
	return nil
}

func validateAPISettings(settings *Settings) error {
	if !settings.API.Enabled {
		return nil
	}
	port, err := strconv.Atoi(settings.API.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("api.port %q must be a number between 1 and 65535", settings.API.Port)
	}
	return nil
}

func validateMQTTSettings(settings *Settings) error {
	m := settings.MQTT
	if !m.Enabled {
		return nil
	}

	u, err := url.Parse(m.Broker)
	if err != nil || u.Host == "" {
		return fmt.Errorf("mqtt.broker %q must be a URL such as tcp://host:1883", m.Broker)
	}
	if !validBrokerSchemes[u.Scheme] {
		return fmt.Errorf("mqtt.broker scheme %q is not supported", u.Scheme)
	}
	if m.TopicPrefix == "" || strings.ContainsAny(m.TopicPrefix, "+#") {
		return fmt.Errorf("mqtt.topicprefix %q must be non-empty and free of wildcards", m.TopicPrefix)
	}
	if m.DedupTTL < 0 {
		return fmt.Errorf("mqtt.dedupttl must not be negative")
	}
	if m.Discovery && m.DiscoveryPrefix == "" {
		return fmt.Errorf("mqtt.discoveryprefix is required when discovery is enabled")
	}
	return nil
}

func validateSentrySettings(settings *Settings) error {
	s := settings.Sentry
	if !s.Enabled {
		return nil
	}
	if s.DSN == "" {
		return fmt.Errorf("sentry.dsn is required when sentry is enabled")
	}
	if s.SampleRate < 0 || s.SampleRate > 1 {
		return fmt.Errorf("sentry.samplerate must be between 0 and 1")
	}
	return nil
}
