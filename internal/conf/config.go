// config.go: settings for the audiosessions service and the functions to load and save them.
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/audiosessions/internal/logger"
)

// Backend types
const (
	BackendMemory = "memory" // simulated endpoints declared under devices
	BackendNone   = "none"   // no devices, API and MQTT only
)

// SessionSettings seeds one session on a simulated device.
type SessionSettings struct {
	ProcessID    uint32
	AppID        string
	GroupingKey  string
	ExeName      string
	DisplayName  string
	Muted        bool
	SystemSounds bool
	EndpointID   string // device the session renders to, defaults to its own
}

// DeviceSettings declares a simulated audio endpoint.
type DeviceSettings struct {
	ID       string
	Name     string
	Sessions []SessionSettings
}

// BackendSettings selects where devices come from.
type BackendSettings struct {
	Type string // memory or none
}

// APISettings contains settings for the HTTP control API.
type APISettings struct {
	Enabled bool
	Host    string // interface to bind, empty for all
	Port    string
	Debug   bool // log every request
}

// MQTTSettings contains settings for the MQTT publisher.
type MQTTSettings struct {
	Enabled         bool
	Broker          string // MQTT (tcp://host:port)
	ClientID        string
	Username        string
	Password        string
	TopicPrefix     string
	DedupTTL        time.Duration // identical payloads are not republished within this window
	Discovery       bool          // publish Home Assistant discovery configs
	DiscoveryPrefix string
}

// MetricsSettings contains settings for Prometheus metrics.
type MetricsSettings struct {
	Enabled bool // expose /metrics on the API server
}

// SentrySettings contains settings for error telemetry.
type SentrySettings struct {
	Enabled     bool
	DSN         string
	Environment string
	SampleRate  float64
}

// Settings is the root of the configuration file.
type Settings struct {
	Debug   bool
	Logging logger.LoggingConfig
	Backend BackendSettings
	Devices []DeviceSettings
	API     APISettings
	MQTT    MQTTSettings
	Metrics MetricsSettings
	Sentry  SentrySettings

	// Version is set at build time, never read from the file.
	Version string `yaml:"-" mapstructure:"-"`
}

// Load reads configFile, or config.yaml from the default search paths when
// configFile is empty, applies environment overrides and validates the
// result. A missing config file is not an error: defaults are used.
func Load(configFile string) (*Settings, error) {
	v := viper.New()
	setDefaultConfig(v)

	if err := configureEnvironmentVariables(v); err != nil {
		GetLogger().Warn("environment configuration issues", logger.Error(err))
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		paths, err := GetDefaultConfigPaths()
		if err != nil {
			return nil, fmt.Errorf("error getting default config paths: %w", err)
		}
		for _, path := range paths {
			v.AddConfigPath(path)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("fatal error reading config file: %w", err)
		}
		GetLogger().Info("no config file found, using defaults")
	} else {
		GetLogger().Debug("config file loaded", logger.String("path", v.ConfigFileUsed()))
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}
	return settings, nil
}

// Defaults returns the settings used when no config file exists.
func Defaults() *Settings {
	v := viper.New()
	setDefaultConfig(v)
	settings := &Settings{}
	// defaults always decode
	_ = v.Unmarshal(settings)
	return settings
}

// SaveYAMLConfig writes settings to configPath atomically.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	// Write to a temporary file first so a crash never leaves a truncated config
	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}
	return nil
}
