package devices

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownValue = errors.New("unknown enumerated value")

// enumNames maps each value of an enum to its canonical name.
type enumNames[T ~int] []string

func (n enumNames[T]) name(v T) string {
	if int(v) < 0 || int(v) >= len(n) {
		return fmt.Sprintf("%d", int(v))
	}
	return n[v]
}

func (n enumNames[T]) parse(kind string, raw string) (T, error) {
	clean := strings.TrimSpace(raw)
	for i, candidate := range n {
		if strings.EqualFold(candidate, clean) {
			return T(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %s %q", ErrUnknownValue, kind, raw)
}

type Type int

const (
	TypeNone Type = iota
	TypeScale
	TypeLabelPrinter
	TypeBarcodeScanner
	TypeDigitalIoRelay
	TypeRfidReader
	TypeTypeless
)

var typeNames = enumNames[Type]{"None", "Scale", "LabelPrinter", "BarcodeScanner", "DigitalIoRelay", "RfidReader", "Typeless"}

func (t Type) String() string { return typeNames.name(t) }

func ParseType(raw string) (Type, error) { return typeNames.parse("device type", raw) }

type Communication int

const (
	CommunicationNone Communication = iota
	CommunicationSocketServer
	CommunicationSocketClient
	CommunicationSerialComport
)

var communicationNames = enumNames[Communication]{"None", "SocketServer", "SocketClient", "SerialComport"}

func (c Communication) String() string { return communicationNames.name(c) }

func ParseCommunication(raw string) (Communication, error) {
	return communicationNames.parse("device communication", raw)
}

type BarcodeScannerType int

const (
	BarcodeScannerIntermec BarcodeScannerType = iota
	BarcodeScannerHoneywell
	BarcodeScannerHoneywellWithFeedBack
	BarcodeScannerDataLogic
	BarcodeScannerOther
)

var barcodeScannerTypeNames = enumNames[BarcodeScannerType]{"Intermec", "Honeywell", "HoneywellWithFeedBack", "DataLogic", "Other"}

func (t BarcodeScannerType) String() string { return barcodeScannerTypeNames.name(t) }

func ParseBarcodeScannerType(raw string) (BarcodeScannerType, error) {
	return barcodeScannerTypeNames.parse("barcode scanner type", raw)
}

// BarcodeProtocol selects the framing a scanner wraps around each read.
type BarcodeProtocol int

const (
	BarcodeStxEtx BarcodeProtocol = iota
	BarcodeCrLf
	BarcodeCr
	BarcodeLf
	BarcodeNone
)

var barcodeProtocolNames = enumNames[BarcodeProtocol]{"StxEtx", "CrLf", "Cr", "Lf", "None"}

func (p BarcodeProtocol) String() string { return barcodeProtocolNames.name(p) }

func ParseBarcodeProtocol(raw string) (BarcodeProtocol, error) {
	return barcodeProtocolNames.parse("barcode scanner protocol", raw)
}
