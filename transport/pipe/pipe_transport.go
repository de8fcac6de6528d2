package pipe

import (
	"context"
	"crypto/tls"
	"sync"

	"sockhttp/transport"

	"github.com/benbjohnson/clock"
)

// DialerAddr is the local address of every dialed pipe.
var DialerAddr = transport.Addr{Host: "dialer"}

type listenKey struct {
	addr transport.Addr
	tls  bool
}

// PipeTransport routes dials to listeners by address. TLS dials only reach
// listeners created with [PipeTransport.ListenTLS]; no handshake takes place.
type PipeTransport struct {
	listeners map[listenKey]*pipeListener
	clock     clock.Clock

	mu sync.Mutex
}

func NewPipeTransport(clock clock.Clock) *PipeTransport {
	return &PipeTransport{
		listeners: make(map[listenKey]*pipeListener),
		clock:     clock,
	}
}

var _ transport.ConnDialer = (*PipeTransport)(nil)

func (pt *PipeTransport) Dial(ctx context.Context, addr transport.Addr) (transport.Conn, error) {
	return pt.dial(ctx, listenKey{addr: addr})
}

func (pt *PipeTransport) DialTLS(ctx context.Context, addr transport.Addr, _ *tls.Config) (transport.Conn, error) {
	return pt.dial(ctx, listenKey{addr: addr, tls: true})
}

func (pt *PipeTransport) dial(ctx context.Context, key listenKey) (transport.Conn, error) {
	pt.mu.Lock()
	listener, ok := pt.listeners[key]
	pt.mu.Unlock()

	if !ok {
		return nil, transport.ErrConnRefused
	}

	local, remote := Pipe(DialerAddr, key.addr, pt.clock)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-listener.closed:
		return nil, transport.ErrConnRefused
	case listener.requests <- remote:
	}

	return local, nil
}

func (pt *PipeTransport) Listen(addr transport.Addr) (*pipeListener, error) {
	return pt.listen(listenKey{addr: addr})
}

func (pt *PipeTransport) ListenTLS(addr transport.Addr) (*pipeListener, error) {
	return pt.listen(listenKey{addr: addr, tls: true})
}

func (pt *PipeTransport) listen(key listenKey) (*pipeListener, error) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	if _, ok := pt.listeners[key]; ok {
		return nil, transport.ErrAddrAlreadyInUse
	}

	pl := &pipeListener{
		key:       key,
		transport: pt,
		requests:  make(chan transport.Conn),
		closed:    make(chan struct{}),
	}
	pt.listeners[key] = pl

	return pl, nil
}

type pipeListener struct {
	key       listenKey
	transport *PipeTransport

	requests chan transport.Conn
	closed   chan struct{}
	once     sync.Once
}

var _ transport.ConnListener = (*pipeListener)(nil)

func (pl *pipeListener) Addr() transport.Addr { return pl.key.addr }

func (pl *pipeListener) Accept(ctx context.Context) (transport.Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-pl.closed:
		return nil, transport.ErrConnListenerClosed
	case conn := <-pl.requests:
		return conn, nil
	}
}

func (pl *pipeListener) Close() error {
	closed := false
	pl.once.Do(func() {
		close(pl.closed)
		closed = true
	})
	if !closed {
		return transport.ErrConnListenerClosed
	}

	pl.transport.mu.Lock()
	delete(pl.transport.listeners, pl.key)
	pl.transport.mu.Unlock()

	return nil
}
