package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/NowakAdmin/DeviceHub/internal/devices"
)

// peerReadWindow bounds one poll read so the peer mutex is never held long.
const peerReadWindow = 20 * time.Millisecond

type listenFunc func(ctx context.Context, addr string) (net.Listener, error)

func listenTCP(ctx context.Context, addr string) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(ctx, "tcp", addr)
}

// SocketServer listens on a TCP port and talks to at most one peer at a time.
// A newly accepted peer replaces the current one. The transport counts as
// connected while the listener is open, with or without a peer.
type SocketServer struct {
	*link
	settings devices.SocketServerSettings
	listen   listenFunc
	poll     time.Duration
	timeout  time.Duration

	mu      sync.Mutex
	session *serverSession
}

func NewSocketServer(opts Options, settings devices.SocketServerSettings, listener Listener) (*SocketServer, error) {
	return newSocketServer(opts, settings, listener, listenTCP)
}

func newSocketServer(opts Options, settings devices.SocketServerSettings, listener Listener, listen listenFunc) (*SocketServer, error) {
	if opts.Encoding == "" {
		opts.Encoding = settings.Encoding
	}

	s := &SocketServer{
		settings: settings,
		listen:   listen,
		poll:     DefaultPollInterval,
		timeout:  DefaultIOTimeout,
	}
	l, err := newLink("socket server", opts, listener, s.dial)
	if err != nil {
		return nil, err
	}
	s.link = l
	return s, nil
}

// Addr returns the bound address, or nil while not listening.
func (s *SocketServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	return s.session.listener.Addr()
}

// HasPeer reports whether a peer is currently attached.
func (s *SocketServer) HasPeer() bool {
	s.mu.Lock()
	session := s.session
	s.mu.Unlock()
	if session == nil {
		return false
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.peer != nil
}

func (s *SocketServer) dial(ctx context.Context) (io.ReadWriteCloser, error) {
	ln, err := s.listen(ctx, fmt.Sprintf(":%d", s.settings.Port))
	if err != nil {
		return nil, err
	}

	session := &serverSession{
		listener:     ln,
		poll:         s.poll,
		writeTimeout: s.timeout,
		closed:       make(chan struct{}),
		notify:       s.link.message,
	}
	s.mu.Lock()
	s.session = session
	s.mu.Unlock()

	session.wg.Add(1)
	go session.acceptLoop()
	return session, nil
}

// serverSession runs the accept loop; Read is the poll loop. Both touch the
// peer only under mu, so a peer is never closed in the middle of a read.
type serverSession struct {
	listener     net.Listener
	poll         time.Duration
	writeTimeout time.Duration
	notify       func(Severity, string, error)

	mu        sync.Mutex
	peer      net.Conn
	acceptErr error
	more      bool

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func (s *serverSession) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
			}
			s.mu.Lock()
			s.acceptErr = err
			s.mu.Unlock()
			return
		}

		s.mu.Lock()
		if s.peer != nil {
			_ = s.peer.Close()
		}
		s.peer = conn
		s.more = false
		s.mu.Unlock()

		s.notify(Info, fmt.Sprintf("accepted peer %s", conn.RemoteAddr()), nil)
	}
}

// Read waits one poll interval unless the previous read filled the buffer,
// then reads whatever the peer has available. Peer loss is not a fault.
func (s *serverSession) Read(p []byte) (int, error) {
	s.mu.Lock()
	more := s.more
	s.mu.Unlock()

	if !more {
		timer := time.NewTimer(s.poll)
		select {
		case <-s.closed:
			timer.Stop()
			return 0, net.ErrClosed
		case <-timer.C:
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.acceptErr != nil {
		return 0, s.acceptErr
	}
	s.more = false
	if s.peer == nil {
		return 0, nil
	}

	_ = s.peer.SetReadDeadline(time.Now().Add(peerReadWindow))
	n, err := s.peer.Read(p)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return n, nil
		}
		addr := s.peer.RemoteAddr()
		_ = s.peer.Close()
		s.peer = nil
		s.notify(Info, fmt.Sprintf("peer %s disconnected", addr), nil)
		return n, nil
	}
	s.more = n == len(p)
	return n, nil
}

func (s *serverSession) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.peer == nil {
		return 0, ErrNoPeer
	}
	_ = s.peer.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	n, err := s.peer.Write(p)
	if err != nil {
		_ = s.peer.Close()
		s.peer = nil
		return n, fmt.Errorf("%w: %v", ErrPeerLost, err)
	}
	return n, nil
}

func (s *serverSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.listener.Close()
		s.wg.Wait()

		s.mu.Lock()
		if s.peer != nil {
			_ = s.peer.Close()
			s.peer = nil
		}
		s.mu.Unlock()
	})
	return err
}
