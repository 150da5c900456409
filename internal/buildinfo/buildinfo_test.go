package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		version   string
		buildDate string
		want      string
	}{
		{"both set", "1.2.0", "2026-10-01", "1.2.0 (built 2026-10-01)"},
		{"missing date", "1.2.0", "", "1.2.0 (built unknown)"},
		{"nothing injected", "", "", "unknown (built unknown)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, New(tt.version, tt.buildDate).String())
		})
	}
}
