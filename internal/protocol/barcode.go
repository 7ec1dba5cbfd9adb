package protocol

import (
	"bytes"

	"github.com/NowakAdmin/DeviceHub/internal/devices"
)

// Barcode decoders frame on raw bytes. The payload is returned undecoded in
// BarcodeResult.Barcode; the center converts it with the device encoding.

// Suffix frames a read as everything before a terminating byte sequence.
type Suffix struct {
	Suffix []byte
}

func (d *Suffix) Decode(buf []byte) (devices.Result, State) {
	if len(buf) == 0 {
		return nil, Fail
	}
	if !bytes.HasSuffix(buf, d.Suffix) {
		return nil, Partial
	}

	payload := buf[:bytes.LastIndex(buf, d.Suffix)]
	return &devices.BarcodeResult{Barcode: string(payload), Length: len(payload)}, Success
}

// DefaultPrefixSuffixMinLength is the buffer length below which PrefixSuffix
// does not look for a prefix.
const DefaultPrefixSuffixMinLength = 60

// PrefixSuffix frames a read between a start and an end sequence. The payload
// excludes both delimiters.
type PrefixSuffix struct {
	Prefix    []byte
	Suffix    []byte
	MinLength int
}

func NewPrefixSuffix(prefix, suffix []byte) *PrefixSuffix {
	return &PrefixSuffix{Prefix: prefix, Suffix: suffix, MinLength: DefaultPrefixSuffixMinLength}
}

func (d *PrefixSuffix) Decode(buf []byte) (devices.Result, State) {
	if len(buf) == 0 {
		return nil, Fail
	}
	if len(buf) < d.MinLength || !bytes.Contains(buf, d.Prefix) {
		return nil, Partial
	}

	suffixAt := bytes.LastIndex(buf, d.Suffix)
	if suffixAt < 0 {
		return nil, Partial
	}
	prefixAt := bytes.LastIndex(buf, d.Prefix)
	if prefixAt >= suffixAt {
		return nil, Fail
	}
	if !bytes.HasSuffix(buf, d.Suffix) {
		return nil, Partial
	}

	payload := buf[prefixAt+len(d.Prefix) : suffixAt]
	return &devices.BarcodeResult{Barcode: string(payload), Length: len(payload)}, Success
}

// DecodeWhole treats the whole buffer as one read.
func DecodeWhole(buf []byte) (devices.Result, State) {
	return &devices.BarcodeResult{Barcode: string(buf), Length: len(buf)}, Success
}
