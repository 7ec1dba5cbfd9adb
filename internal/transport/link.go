package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Closing
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Closing:
		return "closing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type dialFunc func(ctx context.Context) (io.ReadWriteCloser, error)

// link drives the connection state machine shared by every transport. The
// concrete transport only supplies dial; the session it returns is read by
// one goroutine until it fails or is replaced.
type link struct {
	kind          string
	name          string
	codec         *Codec
	listener      Listener
	dial          dialFunc
	chunk         int
	retryEvery    time.Duration
	autoReconnect bool
	asyncClose    bool

	writeMu sync.Mutex

	mu      sync.Mutex
	state   State
	enabled bool
	pending bool
	gen     uint64
	cur     io.ReadWriteCloser
	cancel  context.CancelFunc
	retry   *time.Timer
}

func newLink(kind string, opts Options, listener Listener, dial dialFunc) (*link, error) {
	codec, err := NewCodec(opts.Encoding)
	if err != nil {
		return nil, err
	}
	l := &link{
		kind:          kind,
		name:          opts.Name,
		codec:         codec,
		listener:      listener,
		dial:          dial,
		chunk:         defaultChunkSize,
		retryEvery:    opts.retryInterval(),
		autoReconnect: opts.AutoReconnect,
	}
	if opts.AutoReconnect {
		l.enabled = true
		l.scheduleRetry()
	}
	return l, nil
}

func (l *link) Codec() *Codec { return l.codec }

func (l *link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *link) IsConnected() bool {
	return l.State() == Connected
}

// Connect is idempotent and returns immediately; the outcome arrives as
// message and status events.
func (l *link) Connect() {
	l.mu.Lock()
	l.enabled = true
	l.stopRetryLocked()
	switch l.state {
	case Disconnected:
	case Closing:
		l.pending = true
		l.mu.Unlock()
		return
	default:
		l.mu.Unlock()
		return
	}
	ctx, gen := l.startLocked()
	l.mu.Unlock()

	go l.connect(ctx, gen)
}

func (l *link) startLocked() (context.Context, uint64) {
	l.state = Connecting
	l.pending = false
	l.gen++
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	return ctx, l.gen
}

func (l *link) connect(ctx context.Context, gen uint64) {
	session, err := l.dial(ctx)

	l.mu.Lock()
	if gen != l.gen {
		l.mu.Unlock()
		if session != nil {
			_ = session.Close()
		}
		return
	}
	if err != nil {
		l.state = Disconnected
		l.releaseCancelLocked()
		l.listener.OnStatus(false)
		l.mu.Unlock()

		l.message(Error, "failed to connect", err)
		l.scheduleRetry()
		return
	}
	l.state = Connected
	l.cur = session
	l.listener.OnStatus(true)
	l.mu.Unlock()

	l.message(Success, "is connected", nil)
	go l.readLoop(session)
}

// Disconnect stops any scheduled retry, tears down the live session and
// always ends with status=false.
func (l *link) Disconnect() {
	l.mu.Lock()
	l.enabled = false
	l.pending = false
	l.stopRetryLocked()
	l.gen++
	l.releaseCancelLocked()

	session := l.cur
	l.cur = nil
	if session == nil {
		l.state = Disconnected
		l.listener.OnStatus(false)
		l.mu.Unlock()
		return
	}
	l.state = Closing
	l.mu.Unlock()

	if l.asyncClose {
		go l.finishClose(session, false)
		return
	}
	l.finishClose(session, false)
}

// fail is the close path for faults on a live session. Faults from a session
// that is no longer current are ignored.
func (l *link) fail(session io.ReadWriteCloser, text string, err error) {
	l.mu.Lock()
	if l.cur != session || l.state != Connected {
		l.mu.Unlock()
		return
	}
	l.cur = nil
	l.state = Closing
	l.releaseCancelLocked()
	l.mu.Unlock()

	l.message(Error, text, err)
	l.finishClose(session, true)
}

func (l *link) finishClose(session io.ReadWriteCloser, reconnect bool) {
	if err := session.Close(); err != nil {
		l.message(Error, "failed to close", err)
	}

	l.mu.Lock()
	l.state = Disconnected
	l.listener.OnStatus(false)
	if l.pending && l.enabled {
		ctx, gen := l.startLocked()
		l.mu.Unlock()
		l.message(Info, "is closed", nil)
		go l.connect(ctx, gen)
		return
	}
	l.mu.Unlock()

	l.message(Info, "is closed", nil)
	if reconnect {
		l.scheduleRetry()
	}
}

func (l *link) readLoop(session io.ReadWriteCloser) {
	buf := make([]byte, l.chunk)
	for {
		n, err := session.Read(buf)
		if n > 0 {
			raw := make([]byte, n)
			copy(raw, buf[:n])
			l.listener.OnReceived(l.codec.Decode(raw), raw)
		}
		if err != nil {
			l.fail(session, "failed to receive data", err)
			return
		}
		if !l.current(session) {
			return
		}
	}
}

func (l *link) current(session io.ReadWriteCloser) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cur == session
}

func (l *link) TransmitText(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	raw, err := l.codec.Encode(text)
	if err != nil {
		l.message(Error, "failed to encode data", err)
		return
	}
	l.TransmitBytes(raw)
}

// TransmitBytes is best effort. A write failure runs the close path.
func (l *link) TransmitBytes(raw []byte) {
	if len(raw) == 0 {
		return
	}

	l.mu.Lock()
	session := l.cur
	l.mu.Unlock()
	if session == nil {
		l.message(Error, "failed to transmit data", ErrNotConnected)
		return
	}

	l.writeMu.Lock()
	_, err := session.Write(raw)
	l.writeMu.Unlock()
	if errors.Is(err, ErrNoPeer) || errors.Is(err, ErrPeerLost) {
		l.message(Error, "failed to transmit data", err)
		return
	}
	if err != nil {
		l.fail(session, "failed to transmit data", err)
		return
	}
	l.listener.OnTransmitted(l.codec.Decode(raw), raw)
}

func (l *link) scheduleRetry() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.autoReconnect || !l.enabled || l.retry != nil || l.state != Disconnected {
		return
	}
	gen := l.gen
	var timer *time.Timer
	timer = time.AfterFunc(l.retryEvery, func() {
		l.mu.Lock()
		if l.retry != timer || l.gen != gen || !l.enabled {
			l.mu.Unlock()
			return
		}
		l.retry = nil
		l.mu.Unlock()
		l.Connect()
	})
	l.retry = timer
}

func (l *link) stopRetryLocked() {
	if l.retry != nil {
		l.retry.Stop()
		l.retry = nil
	}
}

func (l *link) releaseCancelLocked() {
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
}

func (l *link) message(severity Severity, text string, cause error) {
	l.listener.OnMessage(Message{
		Text:     fmt.Sprintf("%s '%s' %s", l.kind, l.name, text),
		Severity: severity,
		Cause:    cause,
	})
}
