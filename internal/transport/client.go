package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/NowakAdmin/DeviceHub/internal/devices"
)

// SocketClient owns one outbound TCP connection.
type SocketClient struct {
	*link
	settings devices.SocketClientSettings
	timeout  time.Duration
}

func NewSocketClient(opts Options, settings devices.SocketClientSettings, listener Listener) (*SocketClient, error) {
	if !settings.Address.IsValid() {
		return nil, fmt.Errorf("socket client %q: invalid address", opts.Name)
	}
	if opts.Encoding == "" {
		opts.Encoding = settings.Encoding
	}

	c := &SocketClient{settings: settings, timeout: DefaultIOTimeout}
	l, err := newLink("socket client", opts, listener, c.dial)
	if err != nil {
		return nil, err
	}
	c.link = l
	return c, nil
}

func (c *SocketClient) Endpoint() string { return c.settings.Endpoint() }

func (c *SocketClient) dial(ctx context.Context) (io.ReadWriteCloser, error) {
	dialer := net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.settings.Endpoint())
	if err != nil {
		return nil, err
	}
	return &deadlineConn{Conn: conn, writeTimeout: c.timeout}, nil
}

type deadlineConn struct {
	net.Conn
	writeTimeout time.Duration
}

func (c *deadlineConn) Write(p []byte) (int, error) {
	_ = c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.Conn.Write(p)
}
