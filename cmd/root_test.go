package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audiosessions/internal/buildinfo"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := RootCommand(buildinfo.New("test", ""))
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(t.Context())
	return out.String(), err
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	out, err := run(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)
	_, err = os.Stat(path)
	require.NoError(t, err)

	_, err = run(t, "config", "init", path)
	require.Error(t, err, "existing file is not overwritten without --force")

	_, err = run(t, "config", "init", "--force", path)
	require.NoError(t, err)
}

func TestSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	config := `
api:
  enabled: false
devices:
  - id: spk
    name: Speakers
    sessions:
      - processid: 7
        appid: notepad.exe
        groupingkey: g1
      - processid: 7
        appid: notepad.exe
        groupingkey: g1
`
	require.NoError(t, os.WriteFile(path, []byte(config), 0o600))

	out, err := run(t, "--config", path, "snapshot", "spk")
	require.NoError(t, err)
	assert.Contains(t, out, "device_id: spk")
	assert.Contains(t, out, "app_id: notepad.exe")

	out, err = run(t, "--config", path, "snapshot", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"device_id": "spk"`)

	_, err = run(t, "--config", path, "snapshot", "missing")
	require.Error(t, err)
}
