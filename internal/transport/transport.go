// Package transport moves raw bytes between a device and the host over a
// serial line, an outbound TCP connection or a listening TCP socket.
//
// All transports share one lifecycle: Connect never blocks the caller, faults
// are reported as Error messages followed by status=false, and an enabled
// transport retries on a fixed interval until Disconnect.
package transport

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultRetryInterval = 3 * time.Second
	DefaultIOTimeout     = 5 * time.Second
	DefaultPollInterval  = 333 * time.Millisecond
	defaultChunkSize     = 1024
)

var (
	ErrNotConnected = errors.New("transport not connected")
	ErrWriteTimeout = errors.New("write timed out")
	ErrNoPeer       = errors.New("no peer connected")
	ErrPeerLost     = errors.New("peer connection lost")
)

type Severity int

const (
	Info Severity = iota
	Success
	Error
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Success:
		return "success"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

type Message struct {
	Text     string
	Severity Severity
	Cause    error
}

// Listener receives transport events. OnStatus is called with the transport
// lock held, so implementations must not call back into the transport.
type Listener interface {
	OnReceived(text string, raw []byte)
	OnTransmitted(text string, raw []byte)
	OnMessage(msg Message)
	OnStatus(connected bool)
}

type Transport interface {
	Connect()
	Disconnect()
	TransmitText(text string)
	TransmitBytes(raw []byte)
	IsConnected() bool
	State() State
}

type Options struct {
	Name          string
	Encoding      string
	AutoReconnect bool
	RetryInterval time.Duration
}

func (o Options) retryInterval() time.Duration {
	if o.RetryInterval <= 0 {
		return DefaultRetryInterval
	}
	return o.RetryInterval
}
