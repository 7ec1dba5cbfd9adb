package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() *Config {
	id := int16(12)
	feedback := true
	cfg := Default()
	cfg.Terminal.Name = "line-1"
	cfg.Agent.AgentToken = "secret"
	cfg.API.AllowedOrigins = []string{"https://panel.example.com"}
	cfg.Devices = []Device{
		{
			Name:           "scale-1",
			Type:           "Scale",
			Communication:  "SerialComport",
			ClientDeviceID: &id,
			AutoConnect:    true,
			RxLogEnable:    true,
			Serial:         &Serial{PortName: "COM3", BaudRate: 9600, Parity: "None", DataBits: 8, StopBits: "One", Encoding: "windows-1252"},
			Scale:          &Scale{Type: "Scanvaegt", Protocol: "ScanvaegtCommunicationThree"},
		},
		{
			Name:           "scanner-1",
			Type:           "BarcodeScanner",
			Communication:  "SocketClient",
			SocketClient:   &SocketClient{Address: "10.0.0.5", Port: 4001},
			BarcodeScanner: &BarcodeScanner{Type: "Honeywell", Protocol: "CrLf", SendFeedbackToHost: &feedback},
		},
	}
	return cfg
}

func TestRoundTripAllFormats(t *testing.T) {
	for _, name := range []string{"config.toml", "config.yaml", "config.yml", "config.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			want := sample()
			require.NoError(t, SaveFile(path, want))

			got, err := LoadFile(path)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestLoadTOMLAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[terminal]
name = "packing"

[agent]
heartbeat_seconds = 0

[[devices]]
name = "printer"
type = "LabelPrinter"
communication = "SocketServer"

[devices.socket_server]
port = 9100

[devices.label_printer]
type = "Zebra"
protocol = "Zpl2"
dpi = 203
rotate = 90
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "packing", cfg.Terminal.Name)
	assert.Equal(t, defaultHeartbeatSeconds, cfg.Agent.HeartbeatSeconds)
	assert.Equal(t, defaultAPIListen, cfg.API.Listen)

	require.Len(t, cfg.Devices, 1)
	d, ok := cfg.Device("PRINTER")
	require.True(t, ok)
	require.NotNil(t, d.SocketServer)
	assert.Equal(t, 9100, d.SocketServer.Port)
	require.NotNil(t, d.LabelPrinter)
	assert.Equal(t, 90, d.LabelPrinter.Rotate)
	assert.Nil(t, d.Scale)
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.ini")
	require.NoError(t, os.WriteFile(path, []byte("x=1"), 0o600))

	_, err := LoadFile(path)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.ErrorIs(t, SaveFile(path, Default()), ErrUnsupportedFormat)
}

func TestLoadOrCreateDefaultWritesFile(t *testing.T) {
	t.Setenv("DEVICEHUB_CONFIG_DIR", t.TempDir())

	cfg, err := LoadOrCreateDefault()
	require.NoError(t, err)
	assert.True(t, cfg.API.Enabled)
	assert.FileExists(t, Path())

	cfg.Terminal.Name = "changed"
	require.NoError(t, Save(cfg))

	again, err := LoadOrCreateDefault()
	require.NoError(t, err)
	assert.Equal(t, "changed", again.Terminal.Name)
	assert.Equal(t, filepath.Join(Dir(), "logs"), LogDir())
}
