package center

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NowakAdmin/DeviceHub/internal/devices"
	"github.com/NowakAdmin/DeviceHub/internal/protocol"
	"github.com/NowakAdmin/DeviceHub/internal/transport"
)

type fakeTransport struct {
	listener transport.Listener

	mu        sync.Mutex
	connected bool
	sent      [][]byte
}

func (f *fakeTransport) Connect() {
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	f.listener.OnStatus(true)
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	f.listener.OnStatus(false)
}

func (f *fakeTransport) TransmitText(text string) { f.TransmitBytes([]byte(text)) }

func (f *fakeTransport) TransmitBytes(raw []byte) {
	f.mu.Lock()
	f.sent = append(f.sent, raw)
	f.mu.Unlock()
	f.listener.OnTransmitted(string(raw), raw)
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) State() transport.State {
	if f.IsConnected() {
		return transport.Connected
	}
	return transport.Disconnected
}

func (f *fakeTransport) feed(raw []byte) {
	f.listener.OnReceived(string(raw), raw)
}

func (f *fakeTransport) sentFrames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.sent...)
}

type harness struct {
	center *Center
	sub    *Subscription

	mu         sync.Mutex
	transports map[string]*fakeTransport
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{transports: make(map[string]*fakeTransport)}
	h.center = New(Options{
		NewTransport: func(d *devices.Device, l transport.Listener) (transport.Transport, error) {
			ft := &fakeTransport{listener: l}
			h.mu.Lock()
			h.transports[d.Name] = ft
			h.mu.Unlock()
			return ft, nil
		},
	})
	h.sub = h.center.Subscribe()
	t.Cleanup(h.center.Close)
	return h
}

func (h *harness) transport(name string) *fakeTransport {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.transports[name]
}

func (h *harness) waitEvent(t *testing.T, match func(Event) bool) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-h.sub.C():
			require.True(t, ok, "subscription closed")
			if match(ev) {
				return ev
			}
		case <-timeout:
			t.Fatal("timed out waiting for event")
			return Event{}
		}
	}
}

// collect drains events for a short while.
func (h *harness) collect(d time.Duration) []Event {
	var out []Event
	timeout := time.After(d)
	for {
		select {
		case ev := <-h.sub.C():
			out = append(out, ev)
		case <-timeout:
			return out
		}
	}
}

func kind(k Kind) func(Event) bool {
	return func(e Event) bool { return e.Kind == k }
}

func com3Frame(alibi int64) []byte {
	body := fmt.Sprintf("CW1001002%s %10d%c %6d%2s%12s%11d%3s", "01", 12345, 'k', 250, "01", "PROG", alibi, "000")
	frame := append([]byte{protocol.STX}, body...)
	return append(frame, protocol.ETX)
}

func (h *harness) scale(t *testing.T, name string, proto devices.ScaleProtocol) *fakeTransport {
	t.Helper()
	id := int16(7)
	d := devices.New(name, "test scale", "SN1", devices.TypeScale, devices.CommunicationSerialComport)
	d.ClientDeviceID = &id
	require.True(t, h.center.CreateDevice(d))
	require.True(t, h.center.AddSerialSettings(name, devices.SerialSettings{PortName: "COM1", BaudRate: 9600, DataBits: 8}))
	require.True(t, h.center.AddScaleSettings(name, devices.ScaleSettings{Type: devices.ScaleScanvaegt, Protocol: proto}))
	require.True(t, h.center.FinalizeConnection(name))
	require.True(t, h.center.OpenDevice(name))
	return h.transport(name)
}

func TestCreateDeviceRejectsDuplicate(t *testing.T) {
	h := newHarness(t)

	first := devices.New("scale-1", "", "", devices.TypeScale, devices.CommunicationSerialComport)
	require.True(t, h.center.CreateDevice(first))

	dup := devices.New("scale-1", "", "", devices.TypeBarcodeScanner, devices.CommunicationSocketClient)
	assert.False(t, h.center.CreateDevice(dup))
	assert.Len(t, h.center.Devices(), 1)

	ev := h.waitEvent(t, kind(KindMessage))
	assert.Equal(t, "error", ev.Severity)
	assert.Contains(t, ev.Cause, ErrDeviceExists.Error())
}

func TestCreateDeviceRejectsEmptyName(t *testing.T) {
	h := newHarness(t)
	assert.False(t, h.center.CreateDevice(devices.New("  ", "", "", devices.TypeScale, devices.CommunicationSerialComport)))
	assert.False(t, h.center.CreateDevice(nil))
	assert.Empty(t, h.center.Devices())
}

func TestSettingsMustMatchDevice(t *testing.T) {
	h := newHarness(t)
	d := devices.New("scanner", "", "", devices.TypeBarcodeScanner, devices.CommunicationSocketClient)
	require.True(t, h.center.CreateDevice(d))

	assert.False(t, h.center.AddScaleSettings("scanner", devices.ScaleSettings{}))
	info, ok := h.center.Device("scanner")
	require.True(t, ok)
	assert.Nil(t, info.Device.Scale)

	assert.False(t, h.center.AddSerialSettings("scanner", devices.SerialSettings{PortName: "COM1", BaudRate: 9600, DataBits: 8}))
	assert.False(t, h.center.AddScaleSettings("missing", devices.ScaleSettings{}))

	assert.True(t, h.center.AddBarcodeScannerSettings("scanner", devices.BarcodeScannerSettings{Protocol: devices.BarcodeCrLf}))
	assert.False(t, h.center.AddBarcodeScannerSettings("scanner", devices.BarcodeScannerSettings{Protocol: devices.BarcodeCr}))
}

func TestFinalizeConnection(t *testing.T) {
	h := newHarness(t)
	d := devices.New("printer", "", "", devices.TypeLabelPrinter, devices.CommunicationSocketServer)
	require.True(t, h.center.CreateDevice(d))

	assert.False(t, h.center.FinalizeConnection("printer"), "no transport settings yet")
	assert.False(t, h.center.OpenDevice("printer"))

	require.True(t, h.center.AddSocketServerSettings("printer", devices.SocketServerSettings{Port: 9100}))
	require.True(t, h.center.FinalizeConnection("printer"))
	assert.False(t, h.center.FinalizeConnection("printer"), "transport already bound")
	assert.False(t, h.center.FinalizeConnection("nobody"))

	info, _ := h.center.Device("printer")
	assert.True(t, info.Finalized)
	assert.False(t, info.Connected)
}

func TestOperationsOnUnknownDevice(t *testing.T) {
	h := newHarness(t)
	assert.False(t, h.center.OpenDevice("ghost"))
	assert.False(t, h.center.CloseDevice("ghost"))
	assert.False(t, h.center.IsConnected("ghost"))
	assert.False(t, h.center.TransmitText("ghost", "x"))
	assert.False(t, h.center.TransmitBytes("ghost", []byte{1}))
}

func TestCOM3SuccessSendsAckBeforeResult(t *testing.T) {
	h := newHarness(t)
	ft := h.scale(t, "scale", devices.ScaleScanvaegtCommunicationThree)
	assert.True(t, h.center.IsConnected("scale"))

	frame := com3Frame(41)
	ft.feed(frame[:25])
	ft.feed(frame[25:])

	var sawAck bool
	ev := h.waitEvent(t, func(e Event) bool {
		if e.Kind == KindTransmitted && len(e.Bytes) == 1 && e.Bytes[0] == protocol.ACK {
			sawAck = true
		}
		return e.Kind == KindWeight
	})
	assert.True(t, sawAck, "ACK must be transmitted before the weight event")
	assert.Equal(t, [][]byte{{protocol.ACK}}, ft.sentFrames())

	require.NotNil(t, ev.Weight)
	assert.InDelta(t, 123.45, ev.Weight.Weight, 1e-9)
	require.NotNil(t, ev.ClientDeviceID)
	assert.EqualValues(t, 7, *ev.ClientDeviceID)
	assert.NotEmpty(t, ev.ID)
}

func TestCSOSuccessDoesNotAck(t *testing.T) {
	h := newHarness(t)
	ft := h.scale(t, "cso", devices.ScaleScanvaegtContinuousSerialOutput)

	frame := []byte{protocol.STX, byte(protocol.CSOAlwaysSet | protocol.CSONoMotion), 0x86}
	frame = append(frame, "00150"...)
	frame = append(frame, '2', 0)
	frame = append(frame, "00000"...)
	frame = append(frame, '0', '0', protocol.ETX)
	ft.feed(frame)

	ev := h.waitEvent(t, kind(KindWeight))
	assert.InDelta(t, 15.0, ev.Weight.Weight, 1e-9)
	assert.Empty(t, ft.sentFrames())
}

func TestClosedDeviceDropsChunks(t *testing.T) {
	h := newHarness(t)
	ft := h.scale(t, "scale", devices.ScaleScanvaegtCommunicationThree)

	frame := com3Frame(1)
	ft.feed(frame[:30])
	h.waitEvent(t, kind(KindReceived))

	require.True(t, h.center.CloseDevice("scale"))
	assert.False(t, h.center.IsConnected("scale"))

	ft.feed(frame[30:])
	for _, ev := range h.collect(100 * time.Millisecond) {
		assert.NotEqual(t, KindReceived, ev.Kind)
		assert.NotEqual(t, KindWeight, ev.Kind)
	}

	require.True(t, h.center.OpenDevice("scale"))
	ft.feed(frame[30:])
	for _, ev := range h.collect(100 * time.Millisecond) {
		assert.NotEqual(t, KindWeight, ev.Kind, "partial frame from before the close must be discarded")
	}

	ft.feed(com3Frame(2))
	ev := h.waitEvent(t, kind(KindWeight))
	assert.EqualValues(t, 2, *ev.Weight.Alibi)
}

func TestBarcodeCrLf(t *testing.T) {
	h := newHarness(t)
	d := devices.New("scanner", "", "", devices.TypeBarcodeScanner, devices.CommunicationSocketClient)
	require.True(t, h.center.CreateDevice(d))
	require.True(t, h.center.AddSocketClientSettings("scanner", devices.SocketClientSettings{}))
	require.True(t, h.center.AddBarcodeScannerSettings("scanner", devices.BarcodeScannerSettings{Protocol: devices.BarcodeCrLf}))
	require.True(t, h.center.FinalizeConnection("scanner"))
	require.True(t, h.center.OpenDevice("scanner"))

	ft := h.transport("scanner")
	ft.feed([]byte("AB"))
	ft.feed([]byte("C\r\n"))

	ev := h.waitEvent(t, kind(KindBarcode))
	assert.Equal(t, "ABC", ev.Barcode.Barcode)
	assert.Equal(t, 3, ev.Barcode.Length)
}

func TestBarcodeUsesDeviceEncoding(t *testing.T) {
	for _, tc := range []struct {
		encoding string
		raw      []byte
		want     string
	}{
		{"", []byte{0xC6, 0xD8, 0xC5, '1', '\r', '\n'}, "ÆØÅ1"},
		{"windows-1252", []byte{0xC6, 0xD8, 0xC5, '1', '\r', '\n'}, "ÆØÅ1"},
		{"utf-8", []byte("ÆØÅ1\r\n"), "ÆØÅ1"},
	} {
		t.Run(tc.encoding, func(t *testing.T) {
			h := newHarness(t)
			d := devices.New("scanner", "", "", devices.TypeBarcodeScanner, devices.CommunicationSocketServer)
			require.True(t, h.center.CreateDevice(d))
			require.True(t, h.center.AddSocketServerSettings("scanner", devices.SocketServerSettings{Port: 4001, Encoding: tc.encoding}))
			require.True(t, h.center.AddBarcodeScannerSettings("scanner", devices.BarcodeScannerSettings{Protocol: devices.BarcodeCrLf}))
			require.True(t, h.center.FinalizeConnection("scanner"))
			require.True(t, h.center.OpenDevice("scanner"))

			h.transport("scanner").feed(tc.raw)

			ev := h.waitEvent(t, kind(KindBarcode))
			assert.Equal(t, tc.want, ev.Barcode.Barcode)
			assert.True(t, utf8.ValidString(ev.Barcode.Barcode))
			assert.Equal(t, 4, ev.Barcode.Length)
		})
	}
}

func TestLabelPrinterDataIsNotDecoded(t *testing.T) {
	h := newHarness(t)
	d := devices.New("printer", "", "", devices.TypeLabelPrinter, devices.CommunicationSocketServer)
	require.True(t, h.center.CreateDevice(d))
	require.True(t, h.center.AddSocketServerSettings("printer", devices.SocketServerSettings{Port: 9100}))
	require.True(t, h.center.FinalizeConnection("printer"))
	require.True(t, h.center.OpenDevice("printer"))

	h.transport("printer").feed([]byte("\x02status\x03"))
	h.waitEvent(t, kind(KindReceived))
	for _, ev := range h.collect(50 * time.Millisecond) {
		assert.NotEqual(t, KindBarcode, ev.Kind)
		assert.NotEqual(t, KindWeight, ev.Kind)
	}
}

func TestUnsupportedScaleProtocolIsReported(t *testing.T) {
	h := newHarness(t)
	ft := h.scale(t, "toledo", devices.ScaleToledo)
	ft.feed([]byte("anything"))

	ev := h.waitEvent(t, func(e Event) bool {
		return e.Kind == KindMessage && strings.Contains(e.Message, "no decoder")
	})
	assert.Equal(t, "toledo", ev.Device)
}

func TestCustomDecoderRegistration(t *testing.T) {
	h := newHarness(t)
	err := h.center.Registry().Register(protocol.ScaleKind(devices.ScaleToledo), func() protocol.Decoder {
		return protocol.DecoderFunc(func(buf []byte) (devices.Result, protocol.State) {
			return &devices.WeightResult{Weight: float64(len(buf))}, protocol.Success
		})
	})
	require.NoError(t, err)

	ft := h.scale(t, "toledo", devices.ScaleToledo)
	ft.feed([]byte("1234"))
	ev := h.waitEvent(t, kind(KindWeight))
	assert.InDelta(t, 4, ev.Weight.Weight, 1e-9)
}

func TestSimulateResults(t *testing.T) {
	h := newHarness(t)
	id := int16(3)

	h.center.SimulateWeightResult("virtual", &id, devices.WeightResult{Weight: 1.5, WeightUnit: devices.UnitKilogram})
	ev := h.waitEvent(t, kind(KindWeight))
	assert.Equal(t, "virtual", ev.Device)
	assert.InDelta(t, 1.5, ev.Weight.Weight, 1e-9)
	assert.EqualValues(t, 3, *ev.ClientDeviceID)

	h.center.SimulateBarcodeResult("virtual", nil, devices.BarcodeResult{Barcode: "X1", Length: 2})
	ev = h.waitEvent(t, kind(KindBarcode))
	assert.Equal(t, "X1", ev.Barcode.Barcode)
	assert.Nil(t, ev.ClientDeviceID)
}

type countingObserver struct {
	mu     sync.Mutex
	states map[protocol.State]int
}

func (o *countingObserver) Decoded(_ string, state protocol.State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states[state]++
}

func (o *countingObserver) count(state protocol.State) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.states[state]
}

func TestObserverSeesDecodeStates(t *testing.T) {
	obs := &countingObserver{states: map[protocol.State]int{}}
	var ft *fakeTransport
	c := New(Options{
		Observer: obs,
		NewTransport: func(_ *devices.Device, l transport.Listener) (transport.Transport, error) {
			ft = &fakeTransport{listener: l}
			return ft, nil
		},
	})
	defer c.Close()

	d := devices.New("scanner", "", "", devices.TypeBarcodeScanner, devices.CommunicationSocketClient)
	require.True(t, c.CreateDevice(d))
	require.True(t, c.AddSocketClientSettings("scanner", devices.SocketClientSettings{}))
	require.True(t, c.AddBarcodeScannerSettings("scanner", devices.BarcodeScannerSettings{Protocol: devices.BarcodeCr}))
	require.True(t, c.FinalizeConnection("scanner"))
	require.True(t, c.OpenDevice("scanner"))

	ft.feed([]byte("12"))
	ft.feed([]byte("3\r"))
	require.Eventually(t, func() bool { return obs.count(protocol.Success) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, obs.count(protocol.Partial))
}

func TestCloseEndsSubscriptions(t *testing.T) {
	c := New(Options{})
	sub := c.Subscribe()
	c.Close()

	_, ok := <-sub.C()
	assert.False(t, ok)
}
