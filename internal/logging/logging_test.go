package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NowakAdmin/DeviceHub/internal/center"
	"github.com/NowakAdmin/DeviceHub/internal/devices"
)

func TestNewWritesConsoleAndFile(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer

	logger, closeFn, err := New(Config{App: "devicehub", Level: zerolog.InfoLevel, NoColor: true, Dir: dir, Console: &console})
	require.NoError(t, err)
	logger.Info().Str("device", "scale-1").Msg("hello")
	logger.Debug().Msg("hidden")
	closeFn()

	assert.Contains(t, console.String(), "hello")
	assert.NotContains(t, console.String(), "hidden")

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"app":"devicehub"`)
	assert.Contains(t, string(data), `"device":"scale-1"`)
}

func TestDefaultConfigEnvOverrides(t *testing.T) {
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvLogNoColor, "true")
	cfg := DefaultConfig("devicehub", "")
	assert.Equal(t, zerolog.DebugLevel, cfg.Level)
	assert.True(t, cfg.NoColor)

	t.Setenv(EnvLogLevel, "loud")
	assert.Equal(t, zerolog.InfoLevel, DefaultConfig("devicehub", "").Level)
}

func TestSinkHonoursDeviceLogFlags(t *testing.T) {
	c := center.New(center.Options{})
	defer c.Close()

	quiet := devices.New("quiet", "", "", devices.TypeScale, devices.CommunicationSerialComport)
	loud := devices.New("loud", "", "", devices.TypeScale, devices.CommunicationSerialComport)
	loud.RxLogEnable = true
	require.True(t, c.CreateDevice(quiet))
	require.True(t, c.CreateDevice(loud))

	var out bytes.Buffer
	s := &Sink{logger: zerolog.New(&out), center: c}

	s.Log(center.Event{Kind: center.KindReceived, Device: "quiet", Text: "q", Bytes: []byte("q")})
	s.Log(center.Event{Kind: center.KindReceived, Device: "loud", Text: "AB", Bytes: []byte("AB")})
	s.Log(center.Event{Kind: center.KindTransmitted, Device: "loud", Text: "x", Bytes: []byte("x")})
	s.Log(center.Event{Kind: center.KindMessage, Device: "loud", Message: "failed", Severity: "error", Cause: "boom"})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"hex":"4142"`)
	assert.Contains(t, lines[0], `"dir":"rx"`)
	assert.Contains(t, lines[1], `"level":"error"`)
	assert.Contains(t, lines[1], `"cause":"boom"`)
}

func TestSinkConsumesSubscription(t *testing.T) {
	c := center.New(center.Options{})
	var out bytes.Buffer
	s := NewSink(c, zerolog.New(&out))

	c.SimulateBarcodeResult("scanner", nil, devices.BarcodeResult{Barcode: "123", Length: 3})
	c.Close()
	s.Close()

	assert.Contains(t, out.String(), `"barcode":"123"`)
}
