package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*Settings)
		wantErr string
	}{
		{"defaults", func(*Settings) {}, ""},
		{"bad log level", func(s *Settings) { s.Logging.DefaultLevel = "loud" }, "logging.default_level"},
		{"bad timezone", func(s *Settings) { s.Logging.Timezone = "Mars/Olympus" }, "logging.timezone"},
		{"unknown backend", func(s *Settings) { s.Backend.Type = "pulse" }, "backend.type"},
		{"empty device id", func(s *Settings) { s.Devices = []DeviceSettings{{Name: "x"}} }, "id is required"},
		{"duplicate device", func(s *Settings) {
			s.Devices = []DeviceSettings{{ID: "a"}, {ID: "a"}}
		}, "duplicate id"},
		{"session without app", func(s *Settings) {
			s.Devices = []DeviceSettings{{ID: "a", Sessions: []SessionSettings{{ProcessID: 1}}}}
		}, "appid is required"},
		{"system sounds need no app", func(s *Settings) {
			s.Devices = []DeviceSettings{{ID: "a", Sessions: []SessionSettings{{SystemSounds: true}}}}
		}, ""},
		{"unknown endpoint", func(s *Settings) {
			s.Devices = []DeviceSettings{{ID: "a", Sessions: []SessionSettings{{AppID: "x", EndpointID: "b"}}}}
		}, "endpointid"},
		{"none backend ignores devices", func(s *Settings) {
			s.Backend.Type = BackendNone
			s.Devices = []DeviceSettings{{}, {}}
		}, ""},
		{"bad api port", func(s *Settings) { s.API.Port = "http" }, "api.port"},
		{"disabled api skips port", func(s *Settings) {
			s.API.Enabled = false
			s.API.Port = ""
		}, ""},
		{"bad broker", func(s *Settings) {
			s.MQTT.Enabled = true
			s.MQTT.Broker = "localhost"
		}, "mqtt.broker"},
		{"bad broker scheme", func(s *Settings) {
			s.MQTT.Enabled = true
			s.MQTT.Broker = "http://localhost:1883"
		}, "scheme"},
		{"wildcard prefix", func(s *Settings) {
			s.MQTT.Enabled = true
			s.MQTT.TopicPrefix = "audio/#"
		}, "mqtt.topicprefix"},
		{"sentry without dsn", func(s *Settings) { s.Sentry.Enabled = true }, "sentry.dsn"},
		{"sentry sample rate", func(s *Settings) {
			s.Sentry.Enabled = true
			s.Sentry.DSN = "https://key@example.invalid/1"
			s.Sentry.SampleRate = 2
		}, "samplerate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := Defaults()
			tt.modify(s)
			err := ValidateSettings(s)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEnvValidators(t *testing.T) {
	t.Parallel()

	require.NoError(t, validateEnvBool("true"))
	require.Error(t, validateEnvBool("yes please"))
	require.NoError(t, validateEnvLogLevel("DEBUG"))
	require.Error(t, validateEnvLogLevel("verbose"))
	require.NoError(t, validateEnvPort("1883"))
	require.Error(t, validateEnvPort("0"))
	require.NoError(t, validateEnvBroker("ssl://broker:8883"))
	require.Error(t, validateEnvBroker("broker:1883"))
	require.NoError(t, validateEnvDuration("5m"))
	require.Error(t, validateEnvDuration("-5m"))
	require.Error(t, validateEnvTopicPrefix("a/+/b"))
	require.NoError(t, validateEnvBackend(BackendNone))
	require.Error(t, validateEnvBackend("alsa"))
	require.NoError(t, validateEnvTimezone("Local"))
	require.NoError(t, validateEnvTimezone("UTC"))
}
