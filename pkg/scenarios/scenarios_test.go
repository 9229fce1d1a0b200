package scenarios

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hervehildenbrand/threatsage/pkg/extractor"
)

func TestBuiltin(t *testing.T) {
	list := Builtin()
	require.Len(t, list, 4)

	wantIPs := []string{"45.13.22.98", "185.107.56.21", "192.168.1.5", "67.43.156.89"}
	for i, s := range list {
		assert.NotEmpty(t, s.Name)
		assert.Equal(t, []string{wantIPs[i]}, extractor.ExtractIPs(s.Alert), s.Name)
	}
}

func TestLoad_EmptyPathUsesBuiltin(t *testing.T) {
	list, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Builtin(), list)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenarios.yaml")
	content := `scenarios:
  - name: rdp
    description: RDP spray
    alert: "Failed RDP logon for user bob from 203.0.113.9"
  - alert: "Port scan from 198.51.100.7"
  - name: empty
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	list, err := Load(path)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "rdp", list[0].Name)
	assert.Equal(t, "RDP spray", list[0].Description)
	assert.Equal(t, "scenario-2", list[1].Name)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("scenarios: [\n"), 0644))
	_, err = Load(bad)
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("scenarios: []\n"), 0644))
	_, err = Load(empty)
	assert.True(t, errors.Is(err, ErrNoScenarios))
}

func TestFind(t *testing.T) {
	s, ok := Find(Builtin(), "internal-connection")
	assert.True(t, ok)
	assert.Contains(t, s.Alert, "192.168.1.5")

	_, ok = Find(Builtin(), "nope")
	assert.False(t, ok)
}
