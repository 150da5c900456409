package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "speakers", "speakers"},
		{"wasapi endpoint", "{0.0.0.00000000}.{a1b2}", "0_0_0_00000000_a1b2"},
		{"spaces", "USB  Headset", "USB_Headset"},
		{"empty", "", "unknown"},
		{"only invalid", "{}.", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, SanitizeID(tt.in))
		})
	}
}

func TestShortenDisplayName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Speakers", shortenDisplayName("Speakers"))
	assert.Equal(t, "a1b2c3d4", shortenDisplayName("{0.0.0.00000000}.{a1b2c3d4-e5f6-7788-99aa-bbccddeeff00}"))

	long := "alsa_output.pci-0000_00_1f.3.analog-stereo"
	got := shortenDisplayName(long)
	assert.LessOrEqual(t, len(got), maxDisplayNameLength)
	assert.Equal(t, "alsa_output.pci-0000_00", got)
}

func TestRemoveDiscovery(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	p := NewDiscoveryPublisher(client, DefaultConfig(), nil)

	p.RemoveDiscovery(t.Context(), []string{"spk", "hdmi"}, true)

	assert.Len(t, client.topics("homeassistant/binary_sensor/"), 1)
	assert.Len(t, client.topics("homeassistant/sensor/"), 2*len(AllSensorTypes))
	msg, ok := client.last("homeassistant/sensor/audiosessions/audiosessions_hdmi_state/config")
	require.True(t, ok)
	assert.Empty(t, msg.payload)
	assert.True(t, msg.retain)
}

func TestConfigTopics(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.TopicPrefix = "home/audio"
	assert.Equal(t, "home/audio/USB_Headset/apps", cfg.AppsTopic("USB Headset"))
	assert.Equal(t, "home/audio/USB_Headset/state", cfg.StateTopic("USB Headset"))
	assert.Equal(t, "home/audio/status", cfg.StatusTopic())
}

func TestNewClientRequiresBroker(t *testing.T) {
	t.Parallel()

	_, err := NewClient(DefaultConfig(), nil, nil)
	require.Error(t, err)

	cfg := DefaultConfig()
	cfg.Broker = "tcp://127.0.0.1:1883"
	c, err := NewClient(cfg, nil, nil)
	require.NoError(t, err)
	assert.False(t, c.IsConnected())
	c.Disconnect()
}
