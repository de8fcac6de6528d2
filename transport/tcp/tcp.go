// Package tcp dials [transport.Conn]s over the operating system's TCP stack,
// optionally wrapped in TLS.
package tcp

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"os"
	"syscall"
	"time"

	"sockhttp/transport"

	"github.com/pkg/errors"
)

type DialerOptions struct {
	// KeepAlive is the TCP keep-alive period. Zero uses the system default.
	KeepAlive time.Duration
}

type Dialer struct {
	d net.Dialer
}

var _ transport.ConnDialer = (*Dialer)(nil)

func NewDialer(opts DialerOptions) *Dialer {
	return &Dialer{d: net.Dialer{KeepAlive: opts.KeepAlive}}
}

func (d *Dialer) Dial(ctx context.Context, addr transport.Addr) (transport.Conn, error) {
	nc, err := d.d.DialContext(ctx, "tcp", addr.String())
	if err != nil {
		return nil, mapDialError(err)
	}

	return &conn{nc: nc}, nil
}

func (d *Dialer) DialTLS(ctx context.Context, addr transport.Addr, config *tls.Config) (transport.Conn, error) {
	nc, err := d.d.DialContext(ctx, "tcp", addr.String())
	if err != nil {
		return nil, mapDialError(err)
	}

	cfg := &tls.Config{}
	if config != nil {
		cfg = config.Clone()
	}
	if cfg.ServerName == "" {
		cfg.ServerName = addr.Host
	}

	tc := tls.Client(nc, cfg)
	if err := tc.HandshakeContext(ctx); err != nil {
		_ = nc.Close()
		return nil, errors.Wrap(err, "TLS handshake")
	}

	return &conn{nc: tc}, nil
}

func mapDialError(err error) error {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return errors.Wrap(transport.ErrConnRefused, err.Error())
	}
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(transport.ErrDeadLineExceeded, err.Error())
	}
	return errors.Wrap(err, "dialing")
}

type conn struct {
	nc net.Conn
}

var _ transport.Conn = (*conn)(nil)

func (c *conn) Read(p []byte) (int, error) {
	n, err := c.nc.Read(p)
	return n, mapIOError(err)
}

func (c *conn) Write(p []byte) (int, error) {
	n, err := c.nc.Write(p)
	return n, mapIOError(err)
}

func (c *conn) Close() error {
	if err := c.nc.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

func (c *conn) LocalAddr() transport.Addr  { return toAddr(c.nc.LocalAddr()) }
func (c *conn) RemoteAddr() transport.Addr { return toAddr(c.nc.RemoteAddr()) }

// Errors from setting deadlines only occur on closed conns,
// which the next Read or Write reports anyway.
func (c *conn) SetReadDeadLine(t time.Time)  { _ = c.nc.SetReadDeadline(t) }
func (c *conn) SetWriteDeadLine(t time.Time) { _ = c.nc.SetWriteDeadline(t) }

func mapIOError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, os.ErrDeadlineExceeded):
		return transport.ErrDeadLineExceeded
	case errors.Is(err, io.EOF),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE):
		return transport.ErrConnClosed
	}
	return err
}

func toAddr(a net.Addr) transport.Addr {
	if tcpAddr, ok := a.(*net.TCPAddr); ok {
		ap := tcpAddr.AddrPort()
		return transport.Addr{Host: ap.Addr().Unmap().String(), Port: ap.Port()}
	}
	return transport.Addr{Host: a.String()}
}
