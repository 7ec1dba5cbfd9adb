// Package protocol decodes scale and barcode scanner wire formats.
//
// Every decoder maps an accumulation buffer to a result and a State. Decoders
// never return errors: malformed input is reported as Fail, and callers
// re-invoke them with a longer buffer after Partial.
package protocol

import (
	"errors"
	"fmt"
	"sync"

	"github.com/NowakAdmin/DeviceHub/internal/devices"
)

const (
	STX byte = 0x02
	ETX byte = 0x03
	ACK byte = 0x06
	LF  byte = 0x0A
	CR  byte = 0x0D
	DLE byte = 0x10
)

type State int

const (
	Partial State = iota
	Success
	Fail
)

func (s State) String() string {
	switch s {
	case Partial:
		return "partial"
	case Success:
		return "success"
	case Fail:
		return "fail"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type Decoder interface {
	Decode(buf []byte) (devices.Result, State)
}

// DecoderFunc adapts a stateless function to Decoder.
type DecoderFunc func(buf []byte) (devices.Result, State)

func (f DecoderFunc) Decode(buf []byte) (devices.Result, State) { return f(buf) }

// Kind identifies a decoder by device type and protocol name.
type Kind struct {
	Type     devices.Type
	Protocol string
}

func ScaleKind(p devices.ScaleProtocol) Kind {
	return Kind{Type: devices.TypeScale, Protocol: p.String()}
}

func BarcodeKind(p devices.BarcodeProtocol) Kind {
	return Kind{Type: devices.TypeBarcodeScanner, Protocol: p.String()}
}

// Factory builds a decoder for one device. Stateful decoders must not be shared.
type Factory func() Decoder

var (
	ErrDecoderExists   = errors.New("decoder already registered")
	ErrDecoderNotFound = errors.New("no decoder registered")
)

type Registry struct {
	mu        sync.RWMutex
	factories map[Kind]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[Kind]Factory)}
}

// DefaultRegistry holds every built-in decoder. Toledo and Marel protocols are
// not built in and must be registered by the host.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register(ScaleKind(devices.ScaleScanvaegtCommunicationThree), func() Decoder { return NewScanvaegtCOM3() })
	_ = r.Register(ScaleKind(devices.ScaleScanvaegtContinuousSerialOutput), func() Decoder { return DecoderFunc(DecodeScanvaegtCSO) })
	_ = r.Register(ScaleKind(devices.ScaleSysTekCustomizedProtocol), func() Decoder { return DecoderFunc(DecodeSysTekCustomized) })
	_ = r.Register(ScaleKind(devices.ScaleSysTekExtendedStandardProtocol), func() Decoder { return DecoderFunc(DecodeSysTekExtended) })

	_ = r.Register(BarcodeKind(devices.BarcodeStxEtx), func() Decoder { return &PrefixSuffix{Prefix: []byte{STX}, Suffix: []byte{ETX}} })
	_ = r.Register(BarcodeKind(devices.BarcodeCrLf), func() Decoder { return &Suffix{Suffix: []byte{CR, LF}} })
	_ = r.Register(BarcodeKind(devices.BarcodeCr), func() Decoder { return &Suffix{Suffix: []byte{CR}} })
	_ = r.Register(BarcodeKind(devices.BarcodeLf), func() Decoder { return &Suffix{Suffix: []byte{LF}} })
	_ = r.Register(BarcodeKind(devices.BarcodeNone), func() Decoder { return DecoderFunc(DecodeWhole) })
	return r
}

func (r *Registry) Register(kind Kind, factory Factory) error {
	if factory == nil {
		return fmt.Errorf("protocol: nil factory for %s/%s", kind.Type, kind.Protocol)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[kind]; ok {
		return fmt.Errorf("%w: %s/%s", ErrDecoderExists, kind.Type, kind.Protocol)
	}
	r.factories[kind] = factory
	return nil
}

// Replace registers factory, overriding any existing entry.
func (r *Registry) Replace(kind Kind, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = factory
}

// New returns a fresh decoder for kind, guarded against panics.
func (r *Registry) New(kind Kind) (Decoder, error) {
	r.mu.RLock()
	factory, ok := r.factories[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrDecoderNotFound, kind.Type, kind.Protocol)
	}
	return guarded{inner: factory()}, nil
}

type guarded struct {
	inner Decoder
}

func (g guarded) Decode(buf []byte) (result devices.Result, state State) {
	defer func() {
		if recover() != nil {
			result, state = nil, Fail
		}
	}()
	return g.inner.Decode(buf)
}
