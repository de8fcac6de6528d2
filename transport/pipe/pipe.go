// Package pipe provides in-memory connections with clock driven deadlines.
// It mirrors [net.Pipe], so no data is buffered: a Write blocks until the
// peer has read all of it.
package pipe

import (
	"sync"
	"time"

	"sockhttp/transport"

	"github.com/benbjohnson/clock"
)

// end is one side of a pipe. Writes hand slices to the peer's inbox and
// wait on acks for how much of it was consumed.
type end struct {
	inbox chan []byte
	acks  chan int

	writeMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once

	readDeadline  *deadline
	writeDeadline *deadline

	peer *end
	addr transport.Addr
}

var _ transport.Conn = (*end)(nil)

// Pipe creates a pair of connected, synchronous connections.
func Pipe(addr1, addr2 transport.Addr, clock clock.Clock) (transport.Conn, transport.Conn) {
	a, b := newEnd(addr1, clock), newEnd(addr2, clock)
	a.peer, b.peer = b, a
	return a, b
}

func newEnd(addr transport.Addr, clock clock.Clock) *end {
	return &end{
		inbox:         make(chan []byte),
		acks:          make(chan int),
		done:          make(chan struct{}),
		readDeadline:  &deadline{clock: clock, expired: make(chan struct{})},
		writeDeadline: &deadline{clock: clock, expired: make(chan struct{})},
		addr:          addr,
	}
}

func (e *end) LocalAddr() transport.Addr  { return e.addr }
func (e *end) RemoteAddr() transport.Addr { return e.peer.addr }

func (e *end) SetReadDeadLine(t time.Time)  { e.readDeadline.reset(t) }
func (e *end) SetWriteDeadLine(t time.Time) { e.writeDeadline.reset(t) }

func (e *end) Close() error {
	e.closeOnce.Do(func() {
		close(e.done)
		e.readDeadline.reset(time.Time{})
		e.writeDeadline.reset(time.Time{})
	})
	return nil
}

func (e *end) Read(b []byte) (int, error) {
	expired := e.readDeadline.channel()
	if err := e.usable(expired); err != nil {
		return 0, err
	}

	select {
	case chunk := <-e.inbox:
		n := copy(b, chunk)
		e.peer.acks <- n
		return n, nil
	case <-e.done:
	case <-e.peer.done:
	case <-expired:
		return 0, transport.ErrDeadLineExceeded
	}
	return 0, transport.ErrConnClosed
}

func (e *end) Write(b []byte) (int, error) {
	expired := e.writeDeadline.channel()
	if err := e.usable(expired); err != nil {
		return 0, err
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	written := 0
	for written < len(b) {
		select {
		case e.peer.inbox <- b[written:]:
			written += <-e.acks
		case <-e.done:
			return written, transport.ErrConnClosed
		case <-e.peer.done:
			return written, transport.ErrConnClosed
		case <-expired:
			return written, transport.ErrDeadLineExceeded
		}
	}

	return written, nil
}

// usable fails fast so a closed or expired side never races a ready peer.
func (e *end) usable(expired <-chan struct{}) error {
	switch {
	case fired(e.done), fired(e.peer.done):
		return transport.ErrConnClosed
	case fired(expired):
		return transport.ErrDeadLineExceeded
	}
	return nil
}

// deadline closes expired once the clock passes the configured time.
// Every reset hands out a fresh channel, so a timer that already fired
// cannot leak into the next deadline.
type deadline struct {
	clock clock.Clock

	mu      sync.Mutex
	timer   *clock.Timer
	expired chan struct{}
}

func (d *deadline) reset(t time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
		d.expired = make(chan struct{})
	} else if fired(d.expired) {
		d.expired = make(chan struct{})
	}

	if t.IsZero() {
		return
	}

	expired := d.expired
	if wait := d.clock.Until(t); wait > 0 {
		d.timer = d.clock.AfterFunc(wait, func() { close(expired) })
		return
	}
	close(expired)
}

func (d *deadline) channel() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.expired
}

func fired(c <-chan struct{}) bool {
	select {
	case <-c:
		return true
	default:
		return false
	}
}
