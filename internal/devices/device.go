package devices

import (
	"fmt"
	"strings"
)

// Device is the identity and bound settings of one peripheral. Live state
// (transport, receive buffer) is owned by the center.
type Device struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	SerialNumber string `json:"serial_number"`

	Type          Type          `json:"type"`
	Communication Communication `json:"communication"`

	ClientDeviceID *int16 `json:"client_device_id,omitempty"`
	AutoConnect    bool   `json:"auto_connect"`
	RxLogEnable    bool   `json:"rx_log_enable"`
	TxLogEnable    bool   `json:"tx_log_enable"`

	Serial       *SerialSettings       `json:"-"`
	SocketClient *SocketClientSettings `json:"-"`
	SocketServer *SocketServerSettings `json:"-"`

	Scale          *ScaleSettings          `json:"-"`
	LabelPrinter   *LabelPrinterSettings   `json:"-"`
	BarcodeScanner *BarcodeScannerSettings `json:"-"`
}

func New(name, description, serialNumber string, deviceType Type, communication Communication) *Device {
	return &Device{
		Name:          strings.TrimSpace(name),
		Description:   description,
		SerialNumber:  serialNumber,
		Type:          deviceType,
		Communication: communication,
	}
}

// HasTransportSettings reports whether the settings matching Communication are bound.
func (d *Device) HasTransportSettings() bool {
	switch d.Communication {
	case CommunicationSerialComport:
		return d.Serial != nil
	case CommunicationSocketClient:
		return d.SocketClient != nil
	case CommunicationSocketServer:
		return d.SocketServer != nil
	default:
		return false
	}
}

// Encoding returns the text encoding name of the bound transport settings.
func (d *Device) Encoding() string {
	switch {
	case d.Serial != nil:
		return d.Serial.Encoding
	case d.SocketClient != nil:
		return d.SocketClient.Encoding
	case d.SocketServer != nil:
		return d.SocketServer.Encoding
	}
	return ""
}

func (d *Device) String() string {
	return fmt.Sprintf("%s (%s/%s)", d.Name, d.Type, d.Communication)
}

// Result is a decoded frame, either *WeightResult or *BarcodeResult.
type Result interface {
	isResult()
}

type BarcodeResult struct {
	Barcode string `json:"barcode" msgpack:"barcode"`
	Length  int    `json:"length" msgpack:"length"`
}

func (*BarcodeResult) isResult() {}

// Buffer accumulates received bytes until a decoder consumes a frame.
// Decoders frame on bytes; text is produced from a framed payload only.
type Buffer struct {
	bytes []byte
}

func (b *Buffer) Append(raw []byte) {
	b.bytes = append(b.bytes, raw...)
}

func (b *Buffer) Bytes() []byte { return b.bytes }

func (b *Buffer) Len() int { return len(b.bytes) }

func (b *Buffer) Reset() {
	b.bytes = nil
}
