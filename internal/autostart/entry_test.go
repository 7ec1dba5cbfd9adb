package autostart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryCommand(t *testing.T) {
	e := Entry{Name: "DeviceHub", Executable: `C:\Program Files\DeviceHub\devicehub.exe`}
	assert.Equal(t, `"C:\Program Files\DeviceHub\devicehub.exe"`, e.Command())

	e.Args = []string{"headless", "--quiet"}
	assert.Equal(t, `"C:\Program Files\DeviceHub\devicehub.exe" headless --quiet`, e.Command())
}

func TestCurrentUsesRunningBinary(t *testing.T) {
	e, err := Current("DeviceHub", "tray")
	require.NoError(t, err)
	assert.NotEmpty(t, e.Executable)
	assert.Equal(t, []string{"tray"}, e.Args)
}
