package devices

import (
	"context"
	"encoding/hex"
	"runtime"
	"strings"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/audiosessions/internal/errors"
)

// Kind is the direction of an endpoint.
type Kind string

const (
	KindPlayback Kind = "playback"
	KindCapture  Kind = "capture"
)

// Endpoint describes an audio endpoint known to the platform audio stack.
type Endpoint struct {
	ID      string `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	Kind    Kind   `json:"kind" yaml:"kind"`
	Default bool   `json:"default" yaml:"default"`
}

// Enumerator lists endpoints.
type Enumerator interface {
	Endpoints(ctx context.Context) ([]Endpoint, error)
}

// MalgoEnumerator lists endpoints through miniaudio.
type MalgoEnumerator struct {
	backends []malgo.Backend
}

// NewMalgoEnumerator returns an enumerator for the platform's native backend.
func NewMalgoEnumerator() *MalgoEnumerator {
	return &MalgoEnumerator{backends: backendsForPlatform()}
}

func backendsForPlatform() []malgo.Backend {
	switch runtime.GOOS {
	case "linux":
		return []malgo.Backend{malgo.BackendAlsa}
	case "windows":
		return []malgo.Backend{malgo.BackendWasapi}
	case "darwin":
		return []malgo.Backend{malgo.BackendCoreaudio}
	default:
		// nil lets miniaudio pick
		return nil
	}
}

// Endpoints returns playback endpoints followed by capture endpoints.
func (e *MalgoEnumerator) Endpoints(ctx context.Context) ([]Endpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mctx, err := malgo.InitContext(e.backends, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, errors.New(err).
			Component("devices").
			Category(errors.CategoryAudioDevice).
			Context("operation", "init_context").
			Context("os", runtime.GOOS).
			Build()
	}
	defer func() {
		_ = mctx.Uninit()
		mctx.Free()
	}()

	var endpoints []Endpoint
	for _, kind := range []struct {
		kind Kind
		typ  malgo.DeviceType
	}{{KindPlayback, malgo.Playback}, {KindCapture, malgo.Capture}} {
		infos, err := mctx.Devices(kind.typ)
		if err != nil {
			return nil, errors.New(err).
				Component("devices").
				Category(errors.CategoryAudioDevice).
				Context("operation", "enumerate_devices").
				Context("kind", string(kind.kind)).
				Build()
		}

		for i := range infos {
			name := infos[i].Name()
			// miniaudio's null device
			if strings.Contains(name, "Discard all samples") {
				continue
			}
			endpoints = append(endpoints, Endpoint{
				ID:      decodeDeviceID(infos[i].ID.String()),
				Name:    name,
				Kind:    kind.kind,
				Default: infos[i].IsDefault == 1,
			})
		}
	}

	return endpoints, nil
}

// decodeDeviceID turns miniaudio's hex encoded id into the platform id when
// it decodes to printable text.
func decodeDeviceID(hexID string) string {
	raw, err := hex.DecodeString(hexID)
	if err != nil {
		return hexID
	}
	decoded := strings.TrimRight(string(raw), "\x00")
	for _, r := range decoded {
		if r < 0x20 || r > 0x7e {
			return hexID
		}
	}
	if decoded == "" {
		return hexID
	}
	return decoded
}

// StaticEnumerator returns a fixed endpoint list.
type StaticEnumerator []Endpoint

func (s StaticEnumerator) Endpoints(ctx context.Context) ([]Endpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]Endpoint(nil), s...), nil
}
