package devices

import (
	"fmt"
	"net/netip"
)

type Parity int

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
	ParityMark
	ParitySpace
)

var parityNames = enumNames[Parity]{"None", "Odd", "Even", "Mark", "Space"}

func (p Parity) String() string { return parityNames.name(p) }

func ParseParity(raw string) (Parity, error) { return parityNames.parse("serial parity", raw) }

type StopBits int

const (
	StopBitsOne StopBits = iota
	StopBitsOnePointFive
	StopBitsTwo
)

var stopBitsNames = enumNames[StopBits]{"One", "OnePointFive", "Two"}

func (s StopBits) String() string { return stopBitsNames.name(s) }

func ParseStopBits(raw string) (StopBits, error) { return stopBitsNames.parse("serial stop bits", raw) }

var validBaudRates = []int{1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200}

func ValidBaudRate(rate int) bool {
	for _, candidate := range validBaudRates {
		if candidate == rate {
			return true
		}
	}
	return false
}

func ValidDataBits(bits int) bool { return bits == 7 || bits == 8 }

type SerialSettings struct {
	Encoding        string
	PortName        string
	BaudRate        int
	Parity          Parity
	DataBits        int
	StopBits        StopBits
	ReadBufferSize  int
	WriteBufferSize int
}

func (s SerialSettings) Validate() error {
	if s.PortName == "" {
		return fmt.Errorf("%w: serial port name is empty", ErrUnknownValue)
	}
	if !ValidBaudRate(s.BaudRate) {
		return fmt.Errorf("%w: serial baud rate %d", ErrUnknownValue, s.BaudRate)
	}
	if !ValidDataBits(s.DataBits) {
		return fmt.Errorf("%w: serial data bits %d", ErrUnknownValue, s.DataBits)
	}
	return nil
}

type SocketClientSettings struct {
	Encoding string
	Address  netip.Addr
	Port     uint16
}

func (s SocketClientSettings) Endpoint() string {
	return netip.AddrPortFrom(s.Address, s.Port).String()
}

type SocketServerSettings struct {
	Encoding string
	Port     uint16
}

type ScaleSettings struct {
	Type                   ScaleType
	Protocol               ScaleProtocol
	AllowTareFromIndicator bool
}

type LabelPrinterSettings struct {
	Type     LabelPrinterType
	Protocol LabelPrinterProtocol
	Dpi      int
	Rotate   int

	PrintMode          *LabelPrinterPrintMode
	MediaType          *LabelPrinterMediaType
	PaperType          *LabelPrinterPaperType
	PrintSpeed         *int16
	LabelLength        *int16
	LabelWidth         *int16
	StartAdjust        *int16
	StopAdjust         *int16
	LeftMargin         *int16
	PrintButtonCopy    *bool
	ProgramBeforePrint string
	ProgramAfterPrint  string
}

type BarcodeScannerSettings struct {
	Type               BarcodeScannerType
	Protocol           BarcodeProtocol
	SendFeedbackToHost *bool
}
