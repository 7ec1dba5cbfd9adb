package transport

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/NowakAdmin/DeviceHub/internal/devices"
)

const defaultSerialBufferSize = 512

// Port is the subset of serial.Port the transport drives.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	SetRTS(rts bool) error
	SetDTR(dtr bool) error
}

type PortOpener func(name string, mode *serial.Mode) (Port, error)

func openSerialPort(name string, mode *serial.Mode) (Port, error) {
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, err
	}
	return port, nil
}

// Serial owns one serial line. Reads block for at most the I/O timeout and
// every chunk available is forwarded as it arrives.
type Serial struct {
	*link
	settings devices.SerialSettings
	open     PortOpener
	timeout  time.Duration
}

func NewSerial(opts Options, settings devices.SerialSettings, listener Listener) (*Serial, error) {
	return newSerial(opts, settings, listener, openSerialPort)
}

func newSerial(opts Options, settings devices.SerialSettings, listener Listener, open PortOpener) (*Serial, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if opts.Encoding == "" {
		opts.Encoding = settings.Encoding
	}

	s := &Serial{settings: settings, open: open, timeout: DefaultIOTimeout}
	l, err := newLink("serial port", opts, listener, s.dial)
	if err != nil {
		return nil, err
	}
	l.asyncClose = true
	if settings.ReadBufferSize > 0 {
		l.chunk = settings.ReadBufferSize
	} else {
		l.chunk = defaultSerialBufferSize
	}
	s.link = l
	return s, nil
}

func (s *Serial) Settings() devices.SerialSettings { return s.settings }

func (s *Serial) dial(context.Context) (io.ReadWriteCloser, error) {
	port, err := s.open(s.settings.PortName, serialMode(s.settings))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.settings.PortName, err)
	}
	if err = port.SetReadTimeout(s.timeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", s.settings.PortName, err)
	}
	_ = port.SetRTS(true)
	_ = port.SetDTR(true)

	writeChunk := s.settings.WriteBufferSize
	if writeChunk <= 0 {
		writeChunk = defaultSerialBufferSize
	}
	return &serialSession{port: port, timeout: s.timeout, chunk: writeChunk}, nil
}

func serialMode(settings devices.SerialSettings) *serial.Mode {
	mode := &serial.Mode{
		BaudRate: settings.BaudRate,
		DataBits: settings.DataBits,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	switch settings.Parity {
	case devices.ParityOdd:
		mode.Parity = serial.OddParity
	case devices.ParityEven:
		mode.Parity = serial.EvenParity
	case devices.ParityMark:
		mode.Parity = serial.MarkParity
	case devices.ParitySpace:
		mode.Parity = serial.SpaceParity
	}

	switch settings.StopBits {
	case devices.StopBitsOnePointFive:
		mode.StopBits = serial.OnePointFiveStopBits
	case devices.StopBitsTwo:
		mode.StopBits = serial.TwoStopBits
	}

	return mode
}

// serialSession bounds writes by timeout; go.bug.st/serial has no write
// deadline of its own.
type serialSession struct {
	port    Port
	timeout time.Duration
	chunk   int
}

func (s *serialSession) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *serialSession) Write(p []byte) (int, error) {
	type result struct {
		n   int
		err error
	}

	done := make(chan result, 1)
	go func() {
		written := 0
		for written < len(p) {
			end := written + s.chunk
			if end > len(p) {
				end = len(p)
			}
			n, err := s.port.Write(p[written:end])
			written += n
			if err != nil {
				done <- result{written, err}
				return
			}
		}
		done <- result{written, nil}
	}()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		return r.n, r.err
	case <-timer.C:
		return 0, ErrWriteTimeout
	}
}

func (s *serialSession) Close() error {
	return s.port.Close()
}

// PortNames lists the serial ports present on the machine.
func PortNames() ([]string, error) {
	names, err := serial.GetPortsList()
	if err != nil {
		return nil, err
	}
	out := names[:0]
	for _, name := range names {
		if strings.TrimSpace(name) != "" {
			out = append(out, name)
		}
	}
	return out, nil
}
