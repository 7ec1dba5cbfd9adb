// Package terminal provisions the devices configured for this workstation
// into the device center.
package terminal

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/rs/zerolog"

	"github.com/NowakAdmin/DeviceHub/internal/center"
	"github.com/NowakAdmin/DeviceHub/internal/config"
	"github.com/NowakAdmin/DeviceHub/internal/devices"
	"github.com/NowakAdmin/DeviceHub/internal/transport"
)

type Terminal struct {
	Name        string
	Description string

	center      *center.Center
	logger      zerolog.Logger
	provisioned bool
}

func New(cfg config.TerminalConfig, c *center.Center, logger zerolog.Logger) *Terminal {
	return &Terminal{
		Name:        cfg.Name,
		Description: cfg.Description,
		center:      c,
		logger:      logger.With().Str("terminal", cfg.Name).Logger(),
	}
}

// Provision registers every configured device, binds its settings and
// finalizes its connection. It stops at the first invalid record and reports
// false; nothing here is fatal to the host.
func (t *Terminal) Provision(records []config.Device) bool {
	if t.provisioned {
		t.logger.Error().Msg("terminal already provisioned")
		return false
	}
	t.provisioned = true

	if len(records) == 0 {
		t.logger.Info().Msg("no devices configured for terminal")
		return true
	}

	for _, record := range records {
		spec, err := Build(record)
		if err != nil {
			t.logger.Error().Err(err).Str("device", record.Name).Msg("invalid device configuration")
			return false
		}
		if !t.apply(spec) {
			return false
		}
	}
	return true
}

func (t *Terminal) apply(s *Spec) bool {
	log := t.logger.With().Str("device", s.Device.Name).Logger()
	c := t.center

	if !c.CreateDevice(s.Device) {
		log.Error().Msg("device not created")
		return false
	}
	log.Info().
		Str("type", s.Device.Type.String()).
		Str("communication", s.Device.Communication.String()).
		Bool("rx_log", s.Device.RxLogEnable).
		Bool("tx_log", s.Device.TxLogEnable).
		Bool("auto_connect", s.Device.AutoConnect).
		Msg("device added")

	name := s.Device.Name
	steps := []struct {
		what string
		ok   func() bool
		set  bool
	}{
		{"scale", func() bool { return c.AddScaleSettings(name, *s.Scale) }, s.Scale != nil},
		{"label printer", func() bool { return c.AddLabelPrinterSettings(name, *s.LabelPrinter) }, s.LabelPrinter != nil},
		{"barcode scanner", func() bool { return c.AddBarcodeScannerSettings(name, *s.BarcodeScanner) }, s.BarcodeScanner != nil},
		{"socket server", func() bool { return c.AddSocketServerSettings(name, *s.SocketServer) }, s.SocketServer != nil},
		{"socket client", func() bool { return c.AddSocketClientSettings(name, *s.SocketClient) }, s.SocketClient != nil},
		{"serial", func() bool { return c.AddSerialSettings(name, *s.Serial) }, s.Serial != nil},
	}
	for _, step := range steps {
		if !step.set {
			continue
		}
		if !step.ok() {
			log.Error().Str("settings", step.what).Msg("settings not added")
			return false
		}
		log.Info().Str("settings", step.what).Msg("settings added")
	}

	if !c.FinalizeConnection(name) {
		log.Error().Msg("connection not finalized")
		return false
	}
	return true
}

// Spec is a validated device record ready to be applied to the center.
type Spec struct {
	Device *devices.Device

	Serial       *devices.SerialSettings
	SocketClient *devices.SocketClientSettings
	SocketServer *devices.SocketServerSettings

	Scale          *devices.ScaleSettings
	LabelPrinter   *devices.LabelPrinterSettings
	BarcodeScanner *devices.BarcodeScannerSettings
}

// Build validates a config record. Settings blocks that do not match the
// device type or communication are ignored.
func Build(r config.Device) (*Spec, error) {
	if strings.TrimSpace(r.Name) == "" {
		return nil, center.ErrInvalidDeviceName
	}
	deviceType, err := devices.ParseType(r.Type)
	if err != nil {
		return nil, err
	}
	communication, err := devices.ParseCommunication(r.Communication)
	if err != nil {
		return nil, err
	}

	d := devices.New(r.Name, r.Description, r.SerialNumber, deviceType, communication)
	d.ClientDeviceID = r.ClientDeviceID
	d.AutoConnect = r.AutoConnect
	d.RxLogEnable = r.RxLogEnable
	d.TxLogEnable = r.TxLogEnable
	s := &Spec{Device: d}

	switch deviceType {
	case devices.TypeScale:
		if r.Scale != nil {
			if s.Scale, err = buildScale(r.Scale); err != nil {
				return nil, err
			}
		}
	case devices.TypeLabelPrinter:
		if r.LabelPrinter != nil {
			if s.LabelPrinter, err = buildLabelPrinter(r.LabelPrinter); err != nil {
				return nil, err
			}
		}
	case devices.TypeBarcodeScanner:
		if r.BarcodeScanner != nil {
			if s.BarcodeScanner, err = buildBarcodeScanner(r.BarcodeScanner); err != nil {
				return nil, err
			}
		}
	}

	switch communication {
	case devices.CommunicationSerialComport:
		if r.Serial != nil {
			if s.Serial, err = buildSerial(r.Serial); err != nil {
				return nil, err
			}
		}
	case devices.CommunicationSocketClient:
		if r.SocketClient != nil {
			if s.SocketClient, err = buildSocketClient(r.SocketClient); err != nil {
				return nil, err
			}
		}
	case devices.CommunicationSocketServer:
		if r.SocketServer != nil {
			if s.SocketServer, err = buildSocketServer(r.SocketServer); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

func buildScale(r *config.Scale) (*devices.ScaleSettings, error) {
	scaleType, err := devices.ParseScaleType(r.Type)
	if err != nil {
		return nil, err
	}
	protocol, err := devices.ParseScaleProtocol(r.Protocol)
	if err != nil {
		return nil, err
	}
	return &devices.ScaleSettings{Type: scaleType, Protocol: protocol, AllowTareFromIndicator: r.AllowTareFromIndicator}, nil
}

func buildLabelPrinter(r *config.LabelPrinter) (*devices.LabelPrinterSettings, error) {
	printerType, err := devices.ParseLabelPrinterType(r.Type)
	if err != nil {
		return nil, err
	}
	protocol, err := devices.ParseLabelPrinterProtocol(r.Protocol)
	if err != nil {
		return nil, err
	}
	if !devices.ValidDpi(r.Dpi) {
		return nil, fmt.Errorf("%w: label printer dpi %d", devices.ErrUnknownValue, r.Dpi)
	}
	if !devices.ValidRotate(r.Rotate) {
		return nil, fmt.Errorf("%w: label printer rotate %d", devices.ErrUnknownValue, r.Rotate)
	}

	s := &devices.LabelPrinterSettings{
		Type:               printerType,
		Protocol:           protocol,
		Dpi:                r.Dpi,
		Rotate:             r.Rotate,
		PrintSpeed:         r.PrintSpeed,
		LabelLength:        r.LabelLength,
		LabelWidth:         r.LabelWidth,
		StartAdjust:        r.StartAdjust,
		StopAdjust:         r.StopAdjust,
		LeftMargin:         r.LeftMargin,
		PrintButtonCopy:    r.PrintButtonCopy,
		ProgramBeforePrint: r.ProgramBeforePrint,
		ProgramAfterPrint:  r.ProgramAfterPrint,
	}
	if r.PrintMode != "" {
		mode, err := devices.ParseLabelPrinterPrintMode(r.PrintMode)
		if err != nil {
			return nil, err
		}
		s.PrintMode = &mode
	}
	if r.MediaType != "" {
		media, err := devices.ParseLabelPrinterMediaType(r.MediaType)
		if err != nil {
			return nil, err
		}
		s.MediaType = &media
	}
	if r.PaperType != "" {
		paper, err := devices.ParseLabelPrinterPaperType(r.PaperType)
		if err != nil {
			return nil, err
		}
		s.PaperType = &paper
	}
	return s, nil
}

func buildBarcodeScanner(r *config.BarcodeScanner) (*devices.BarcodeScannerSettings, error) {
	scannerType, err := devices.ParseBarcodeScannerType(r.Type)
	if err != nil {
		return nil, err
	}
	protocol, err := devices.ParseBarcodeProtocol(r.Protocol)
	if err != nil {
		return nil, err
	}
	return &devices.BarcodeScannerSettings{Type: scannerType, Protocol: protocol, SendFeedbackToHost: r.SendFeedbackToHost}, nil
}

func buildSerial(r *config.Serial) (*devices.SerialSettings, error) {
	encoding, err := encodingName(r.Encoding)
	if err != nil {
		return nil, err
	}
	parity := devices.ParityNone
	if r.Parity != "" {
		if parity, err = devices.ParseParity(r.Parity); err != nil {
			return nil, err
		}
	}
	stopBits := devices.StopBitsOne
	if r.StopBits != "" {
		if stopBits, err = devices.ParseStopBits(r.StopBits); err != nil {
			return nil, err
		}
	}
	s := &devices.SerialSettings{
		Encoding:        encoding,
		PortName:        strings.TrimSpace(r.PortName),
		BaudRate:        r.BaudRate,
		Parity:          parity,
		DataBits:        r.DataBits,
		StopBits:        stopBits,
		ReadBufferSize:  r.ReadBufferSize,
		WriteBufferSize: r.WriteBufferSize,
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func buildSocketClient(r *config.SocketClient) (*devices.SocketClientSettings, error) {
	encoding, err := encodingName(r.Encoding)
	if err != nil {
		return nil, err
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(r.Address))
	if err != nil {
		return nil, fmt.Errorf("%w: socket client address %q", devices.ErrUnknownValue, r.Address)
	}
	port, err := portOf(r.Port)
	if err != nil {
		return nil, err
	}
	return &devices.SocketClientSettings{Encoding: encoding, Address: addr, Port: port}, nil
}

func buildSocketServer(r *config.SocketServer) (*devices.SocketServerSettings, error) {
	encoding, err := encodingName(r.Encoding)
	if err != nil {
		return nil, err
	}
	port, err := portOf(r.Port)
	if err != nil {
		return nil, err
	}
	return &devices.SocketServerSettings{Encoding: encoding, Port: port}, nil
}

func portOf(port int) (uint16, error) {
	if port <= 0 || port > 65535 {
		return 0, fmt.Errorf("%w: port %d", devices.ErrUnknownValue, port)
	}
	return uint16(port), nil
}

// encodingName resolves an encoding label to its canonical name.
func encodingName(label string) (string, error) {
	codec, err := transport.NewCodec(label)
	if err != nil {
		return "", fmt.Errorf("%w: %v", devices.ErrUnknownValue, err)
	}
	return codec.Name(), nil
}
