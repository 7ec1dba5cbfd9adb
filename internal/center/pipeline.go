package center

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/NowakAdmin/DeviceHub/internal/devices"
	"github.com/NowakAdmin/DeviceHub/internal/protocol"
	"github.com/NowakAdmin/DeviceHub/internal/transport"
)

// deviceListener turns transport callbacks into events and feeds received
// chunks to the device pipeline.
type deviceListener struct {
	center *Center
	entry  *entry
}

func (l *deviceListener) OnReceived(text string, raw []byte) {
	e := l.entry
	if !e.connected.Load() {
		return
	}

	event := newEvent(KindReceived, e.device.Name, e.device.ClientDeviceID)
	event.Text = text
	event.Bytes = raw
	l.center.hub.Broadcast(event)

	select {
	case e.chunks <- chunk{raw: raw, epoch: e.epoch.Load()}:
	case <-l.center.done:
	}
}

func (l *deviceListener) OnTransmitted(text string, raw []byte) {
	event := newEvent(KindTransmitted, l.entry.device.Name, l.entry.device.ClientDeviceID)
	event.Text = text
	event.Bytes = raw
	l.center.hub.Broadcast(event)
}

func (l *deviceListener) OnMessage(msg transport.Message) {
	event := newEvent(KindMessage, l.entry.device.Name, l.entry.device.ClientDeviceID)
	event.Message = msg.Text
	event.Severity = msg.Severity.String()
	if msg.Cause != nil {
		event.Cause = msg.Cause.Error()
	}
	l.center.hub.Broadcast(event)
}

// OnStatus runs under the transport lock and must not block. A disconnect
// bumps the epoch so the pipeline drops whatever it had buffered.
func (l *deviceListener) OnStatus(connected bool) {
	e := l.entry
	if !connected {
		e.epoch.Add(1)
	}
	e.connected.Store(connected)

	event := newEvent(KindStatus, e.device.Name, e.device.ClientDeviceID)
	event.Connected = connected
	l.center.hub.Broadcast(event)
}

// pipeline is the per-device decode state, owned by one goroutine.
type pipeline struct {
	entry    *entry
	buffer   devices.Buffer
	epoch    uint64
	decoder  protocol.Decoder
	codec    *transport.Codec
	ack      bool
	resolved bool
}

func (c *Center) runPipeline(e *entry) {
	defer c.wg.Done()
	p := &pipeline{entry: e}
	for {
		select {
		case <-c.done:
			return
		case ch := <-e.chunks:
			c.process(p, ch)
		}
	}
}

func (c *Center) process(p *pipeline, ch chunk) {
	if ch.epoch != p.epoch {
		p.buffer.Reset()
		p.epoch = ch.epoch
	}
	if ch.epoch != p.entry.epoch.Load() {
		return
	}

	if !p.resolved {
		c.resolveDecoder(p)
	}
	if p.decoder == nil {
		return
	}

	p.buffer.Append(ch.raw)
	result, state := p.decoder.Decode(p.buffer.Bytes())
	if c.observer != nil {
		c.observer.Decoded(p.entry.device.Name, state)
	}

	switch state {
	case protocol.Fail:
		p.buffer.Reset()
	case protocol.Success:
		if p.ack {
			p.entry.transport.TransmitBytes([]byte{protocol.ACK})
		}
		p.buffer.Reset()
		if result != nil {
			p.text(result)
			c.publishResult(p.entry, result)
		}
	}
}

// resolveDecoder picks the decoder from the bound type settings. Until those
// settings exist the device stays unresolved and chunks are ignored.
func (c *Center) resolveDecoder(p *pipeline) {
	c.mu.RLock()
	d := p.entry.device
	deviceType := d.Type
	var kind protocol.Kind
	settled := true
	switch deviceType {
	case devices.TypeScale:
		if d.Scale == nil {
			settled = false
			break
		}
		kind = protocol.ScaleKind(d.Scale.Protocol)
		p.ack = d.Scale.Protocol == devices.ScaleScanvaegtCommunicationThree
	case devices.TypeBarcodeScanner:
		if d.BarcodeScanner == nil {
			settled = false
			break
		}
		kind = protocol.BarcodeKind(d.BarcodeScanner.Protocol)
	}
	encoding := d.Encoding()
	c.mu.RUnlock()

	if !settled {
		return
	}
	p.resolved = true
	if kind.Protocol == "" {
		return
	}

	codec, err := transport.NewCodec(encoding)
	if err != nil {
		c.report(p.entry, transport.Error, fmt.Sprintf("%v, using %s", err, transport.DefaultEncoding))
		codec, _ = transport.NewCodec("")
	}
	p.codec = codec

	decoder, err := c.registry.New(kind)
	if err != nil {
		if errors.Is(err, protocol.ErrDecoderNotFound) {
			c.report(p.entry, transport.Error, fmt.Sprintf("no decoder for %s protocol %s, received data is ignored", kind.Type, kind.Protocol))
		}
		return
	}
	p.decoder = decoder
}

// text decodes a barcode payload with the device encoding. Decoders frame on
// raw bytes and leave the payload undecoded.
func (p *pipeline) text(result devices.Result) {
	r, ok := result.(*devices.BarcodeResult)
	if !ok || p.codec == nil {
		return
	}
	r.Barcode = p.codec.Decode([]byte(r.Barcode))
	r.Length = utf8.RuneCountInString(r.Barcode)
}

func (c *Center) publishResult(e *entry, result devices.Result) {
	switch r := result.(type) {
	case *devices.WeightResult:
		event := newEvent(KindWeight, e.device.Name, e.device.ClientDeviceID)
		event.Weight = r
		c.hub.Broadcast(event)
	case *devices.BarcodeResult:
		event := newEvent(KindBarcode, e.device.Name, e.device.ClientDeviceID)
		event.Barcode = r
		c.hub.Broadcast(event)
	}
}
