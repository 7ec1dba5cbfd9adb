// Package center owns the device registry. It binds settings to devices,
// builds their transports, runs one receive pipeline per device and fans all
// device activity out as Events.
//
// Registry operations return false on failure and report the reason as an
// Error message event; nothing here panics or terminates the host.
package center

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/NowakAdmin/DeviceHub/internal/devices"
	"github.com/NowakAdmin/DeviceHub/internal/protocol"
	"github.com/NowakAdmin/DeviceHub/internal/transport"
)

var (
	ErrDeviceExists      = errors.New("device already exists")
	ErrDeviceNotFound    = errors.New("device not found")
	ErrSettingsMismatch  = errors.New("settings do not match device")
	ErrSettingsBound     = errors.New("settings already bound")
	ErrMissingSettings   = errors.New("transport settings missing")
	ErrAlreadyFinalized  = errors.New("transport already bound")
	ErrNotFinalized      = errors.New("transport not bound")
	ErrInvalidDeviceName = errors.New("device name is empty")
)

const defaultQueueSize = 64

// TransportFactory builds the transport for a finalized device.
type TransportFactory func(d *devices.Device, listener transport.Listener) (transport.Transport, error)

// Observer is notified of every decode attempt.
type Observer interface {
	Decoded(device string, state protocol.State)
}

type Options struct {
	Registry     *protocol.Registry
	NewTransport TransportFactory
	Observer     Observer
	QueueSize    int
}

type Center struct {
	registry     *protocol.Registry
	newTransport TransportFactory
	observer     Observer
	queueSize    int
	hub          *Hub

	mu      sync.RWMutex
	entries map[string]*entry
	order   []string

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// entry is the runtime side of a device. The pipeline goroutine is the only
// writer of its buffer.
type entry struct {
	device    *devices.Device
	transport transport.Transport
	chunks    chan chunk
	connected atomic.Bool
	epoch     atomic.Uint64
}

type chunk struct {
	raw   []byte
	epoch uint64
}

func New(opts Options) *Center {
	c := &Center{
		registry:     opts.Registry,
		newTransport: opts.NewTransport,
		observer:     opts.Observer,
		queueSize:    opts.QueueSize,
		hub:          NewHub(),
		entries:      make(map[string]*entry),
		done:         make(chan struct{}),
	}
	if c.registry == nil {
		c.registry = protocol.DefaultRegistry()
	}
	if c.newTransport == nil {
		c.newTransport = DefaultTransport
	}
	if c.queueSize <= 0 {
		c.queueSize = defaultQueueSize
	}
	return c
}

// DefaultTransport builds a serial, socket client or socket server transport
// from the bound settings.
func DefaultTransport(d *devices.Device, listener transport.Listener) (transport.Transport, error) {
	opts := transport.Options{Name: d.Name, Encoding: d.Encoding(), AutoReconnect: d.AutoConnect}
	switch d.Communication {
	case devices.CommunicationSerialComport:
		return transport.NewSerial(opts, *d.Serial, listener)
	case devices.CommunicationSocketClient:
		return transport.NewSocketClient(opts, *d.SocketClient, listener)
	case devices.CommunicationSocketServer:
		return transport.NewSocketServer(opts, *d.SocketServer, listener)
	default:
		return nil, fmt.Errorf("%w: communication %s", ErrSettingsMismatch, d.Communication)
	}
}

func (c *Center) Registry() *protocol.Registry { return c.registry }

func (c *Center) Subscribe() *Subscription {
	return c.hub.Subscribe(0)
}

func (c *Center) CreateDevice(d *devices.Device) bool {
	if d == nil || strings.TrimSpace(d.Name) == "" {
		c.reportFailure("", "failed to create device", ErrInvalidDeviceName)
		return false
	}

	c.mu.Lock()
	if _, ok := c.entries[d.Name]; ok {
		c.mu.Unlock()
		c.reportFailure(d.Name, "failed to create device", ErrDeviceExists)
		return false
	}
	c.entries[d.Name] = &entry{device: d}
	c.order = append(c.order, d.Name)
	c.mu.Unlock()
	return true
}

// bind applies one settings kind to a device under the registry lock.
func (c *Center) bind(name, what string, apply func(d *devices.Device) error) bool {
	c.mu.Lock()
	e, ok := c.entries[name]
	var err error
	if !ok {
		err = ErrDeviceNotFound
	} else {
		err = apply(e.device)
	}
	c.mu.Unlock()

	if err != nil {
		c.reportFailure(name, "failed to add "+what+" settings", err)
		return false
	}
	return true
}

func (c *Center) AddSerialSettings(name string, s devices.SerialSettings) bool {
	return c.bind(name, "serial", func(d *devices.Device) error {
		if d.Communication != devices.CommunicationSerialComport {
			return fmt.Errorf("%w: %s is %s", ErrSettingsMismatch, name, d.Communication)
		}
		if d.Serial != nil {
			return ErrSettingsBound
		}
		if err := s.Validate(); err != nil {
			return err
		}
		d.Serial = &s
		return nil
	})
}

func (c *Center) AddSocketClientSettings(name string, s devices.SocketClientSettings) bool {
	return c.bind(name, "socket client", func(d *devices.Device) error {
		if d.Communication != devices.CommunicationSocketClient {
			return fmt.Errorf("%w: %s is %s", ErrSettingsMismatch, name, d.Communication)
		}
		if d.SocketClient != nil {
			return ErrSettingsBound
		}
		d.SocketClient = &s
		return nil
	})
}

func (c *Center) AddSocketServerSettings(name string, s devices.SocketServerSettings) bool {
	return c.bind(name, "socket server", func(d *devices.Device) error {
		if d.Communication != devices.CommunicationSocketServer {
			return fmt.Errorf("%w: %s is %s", ErrSettingsMismatch, name, d.Communication)
		}
		if d.SocketServer != nil {
			return ErrSettingsBound
		}
		d.SocketServer = &s
		return nil
	})
}

func (c *Center) AddScaleSettings(name string, s devices.ScaleSettings) bool {
	return c.bind(name, "scale", func(d *devices.Device) error {
		if d.Type != devices.TypeScale {
			return fmt.Errorf("%w: %s is %s", ErrSettingsMismatch, name, d.Type)
		}
		if d.Scale != nil {
			return ErrSettingsBound
		}
		d.Scale = &s
		return nil
	})
}

func (c *Center) AddLabelPrinterSettings(name string, s devices.LabelPrinterSettings) bool {
	return c.bind(name, "label printer", func(d *devices.Device) error {
		if d.Type != devices.TypeLabelPrinter {
			return fmt.Errorf("%w: %s is %s", ErrSettingsMismatch, name, d.Type)
		}
		if d.LabelPrinter != nil {
			return ErrSettingsBound
		}
		d.LabelPrinter = &s
		return nil
	})
}

func (c *Center) AddBarcodeScannerSettings(name string, s devices.BarcodeScannerSettings) bool {
	return c.bind(name, "barcode scanner", func(d *devices.Device) error {
		if d.Type != devices.TypeBarcodeScanner {
			return fmt.Errorf("%w: %s is %s", ErrSettingsMismatch, name, d.Type)
		}
		if d.BarcodeScanner != nil {
			return ErrSettingsBound
		}
		d.BarcodeScanner = &s
		return nil
	})
}

// FinalizeConnection builds the device transport and starts its pipeline. A
// device with AutoConnect set starts connecting on its own.
func (c *Center) FinalizeConnection(name string) bool {
	c.mu.Lock()
	e, ok := c.entries[name]
	var err error
	switch {
	case !ok:
		err = ErrDeviceNotFound
	case e.transport != nil:
		err = ErrAlreadyFinalized
	case !e.device.HasTransportSettings():
		err = fmt.Errorf("%w: %s needs %s settings", ErrMissingSettings, name, e.device.Communication)
	}
	if err != nil {
		c.mu.Unlock()
		c.reportFailure(name, "failed to finalize connection", err)
		return false
	}

	t, err := c.newTransport(e.device, &deviceListener{center: c, entry: e})
	if err != nil {
		c.mu.Unlock()
		c.reportFailure(name, "failed to finalize connection", err)
		return false
	}
	e.transport = t
	e.chunks = make(chan chunk, c.queueSize)
	c.mu.Unlock()

	c.wg.Add(1)
	go c.runPipeline(e)
	return true
}

func (c *Center) lookup(name string) (*entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[name]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	if e.transport == nil {
		return nil, ErrNotFinalized
	}
	return e, nil
}

func (c *Center) OpenDevice(name string) bool {
	e, err := c.lookup(name)
	if err != nil {
		c.reportFailure(name, "failed to open device", err)
		return false
	}
	e.transport.Connect()
	return true
}

func (c *Center) CloseDevice(name string) bool {
	e, err := c.lookup(name)
	if err != nil {
		c.reportFailure(name, "failed to close device", err)
		return false
	}
	e.transport.Disconnect()
	return true
}

func (c *Center) IsConnected(name string) bool {
	e, err := c.lookup(name)
	if err != nil {
		return false
	}
	return e.transport.IsConnected()
}

func (c *Center) TransmitText(name, text string) bool {
	e, err := c.lookup(name)
	if err != nil {
		c.reportFailure(name, "failed to transmit data", err)
		return false
	}
	e.transport.TransmitText(text)
	return true
}

func (c *Center) TransmitBytes(name string, raw []byte) bool {
	e, err := c.lookup(name)
	if err != nil {
		c.reportFailure(name, "failed to transmit data", err)
		return false
	}
	e.transport.TransmitBytes(raw)
	return true
}

// SimulateWeightResult publishes a weight event without touching any
// transport or decoder.
func (c *Center) SimulateWeightResult(name string, clientDeviceID *int16, result devices.WeightResult) {
	event := newEvent(KindWeight, name, clientDeviceID)
	event.Weight = &result
	c.hub.Broadcast(event)
}

func (c *Center) SimulateBarcodeResult(name string, clientDeviceID *int16, result devices.BarcodeResult) {
	event := newEvent(KindBarcode, name, clientDeviceID)
	event.Barcode = &result
	c.hub.Broadcast(event)
}

// DeviceInfo is a point in time view of one registered device.
type DeviceInfo struct {
	Device    devices.Device `json:"device"`
	Finalized bool           `json:"finalized"`
	Connected bool           `json:"connected"`
	State     string         `json:"state"`
}

func (c *Center) Devices() []DeviceInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]DeviceInfo, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.entries[name].info())
	}
	return out
}

func (c *Center) Device(name string) (DeviceInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[name]
	if !ok {
		return DeviceInfo{}, false
	}
	return e.info(), true
}

// Names returns the registered device names in sorted order.
func (c *Center) Names() []string {
	c.mu.RLock()
	names := append([]string(nil), c.order...)
	c.mu.RUnlock()
	sort.Strings(names)
	return names
}

func (e *entry) info() DeviceInfo {
	info := DeviceInfo{Device: *e.device, State: transport.Disconnected.String()}
	if e.transport != nil {
		info.Finalized = true
		info.Connected = e.transport.IsConnected()
		info.State = e.transport.State().String()
	}
	return info
}

// Close disconnects every device, stops the pipelines and closes all
// subscriptions.
func (c *Center) Close() {
	c.closeOnce.Do(func() {
		c.mu.RLock()
		var transports []transport.Transport
		for _, e := range c.entries {
			if e.transport != nil {
				transports = append(transports, e.transport)
			}
		}
		c.mu.RUnlock()

		for _, t := range transports {
			t.Disconnect()
		}
		close(c.done)
		c.wg.Wait()
		c.hub.Close()
	})
}

func (c *Center) clientDeviceID(e *entry) *int16 {
	return e.device.ClientDeviceID
}

func (c *Center) reportFailure(name, text string, err error) {
	event := newEvent(KindMessage, name, nil)
	if name != "" {
		c.mu.RLock()
		if e, ok := c.entries[name]; ok {
			event.ClientDeviceID = e.device.ClientDeviceID
		}
		c.mu.RUnlock()
	}
	event.Message = fmt.Sprintf("%s '%s'", text, name)
	event.Severity = transport.Error.String()
	event.Cause = err.Error()
	c.hub.Broadcast(event)
}

func (c *Center) report(e *entry, severity transport.Severity, text string) {
	event := newEvent(KindMessage, e.device.Name, c.clientDeviceID(e))
	event.Message = text
	event.Severity = severity.String()
	c.hub.Broadcast(event)
}
