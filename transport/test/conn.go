// Package test holds a conformance suite for [transport.Conn] implementations.
package test

import (
	"bytes"
	"io"
	"sync"
	"time"

	"sockhttp/transport"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
)

// ConnTestSuite exercises a connected pair. Embedders set C1 and C2 in
// SetupTest after calling [ConnTestSuite.SetupTest].
type ConnTestSuite struct {
	suite.Suite
	C1, C2 transport.Conn
	Clock  *clock.Mock

	watchdog *time.Timer
}

func (s *ConnTestSuite) SetupTest() {
	s.Clock = clock.NewMock()

	t := s.T()
	s.watchdog = time.AfterFunc(time.Second, func() {
		t.Error("test did not finish within a second")
	})
}

func (s *ConnTestSuite) TearDownTest() {
	defer goleak.VerifyNone(s.T())
	s.watchdog.Stop()
	s.NoError(s.C1.Close())
	s.NoError(s.C2.Close())
}

// drain reads c until it fails and reports what arrived and the final error.
func drain(c transport.Conn, bufSize int) ([]byte, error) {
	var got []byte
	buf := make([]byte, bufSize)
	for {
		n, err := c.Read(buf)
		got = append(got, buf[:n]...)
		if err != nil {
			return got, err
		}
	}
}

func (s *ConnTestSuite) TestShortReads() {
	msg := []byte("GET / HTTP/1.1\r\nHost: example.com\r\n\r\n")

	done := make(chan struct{})
	go func() {
		defer close(done)
		n, err := s.C1.Write(msg)
		s.NoError(err)
		s.Equal(len(msg), n)
		s.NoError(s.C1.Close())
	}()

	got, err := drain(s.C2, 7)
	<-done

	s.ErrorIs(err, transport.ErrConnClosed)
	s.Equal(msg, got)
}

func (s *ConnTestSuite) TestBothDirections() {
	var wg sync.WaitGroup
	defer wg.Wait()
	wg.Add(1)
	go func() {
		defer wg.Done()
		buf := make([]byte, 4)
		_, err := io.ReadFull(s.C2, buf)
		s.NoError(err)
		_, err = s.C2.Write(bytes.ToUpper(buf))
		s.NoError(err)
	}()

	_, err := s.C1.Write([]byte("ping"))
	s.Require().NoError(err)

	buf := make([]byte, 4)
	_, err = io.ReadFull(s.C1, buf)
	s.Require().NoError(err)
	s.Equal("PING", string(buf))
}

// Every concurrent Write is delivered in full.
func (s *ConnTestSuite) TestConcurrentWrites() {
	const writers = 8
	chunk := []byte("0123456789")

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := s.C1.Write(chunk)
			s.NoError(err)
			s.Equal(len(chunk), n)
		}()
	}
	go func() {
		wg.Wait()
		s.NoError(s.C1.Close())
	}()

	got, err := drain(s.C2, 3)
	s.ErrorIs(err, transport.ErrConnClosed)
	s.Equal(bytes.Repeat(chunk, writers), got)
}

func (s *ConnTestSuite) TestClose() {
	s.Require().NoError(s.C2.Close())
	s.Require().NoError(s.C2.Close(), "second close")

	for _, c := range []transport.Conn{s.C1, s.C2} {
		n, err := c.Write([]byte("x"))
		s.ErrorIs(err, transport.ErrConnClosed)
		s.Zero(n)

		n, err = c.Read(make([]byte, 1))
		s.ErrorIs(err, transport.ErrConnClosed)
		s.Zero(n)
	}
}

func (s *ConnTestSuite) TestCloseUnblocksReader() {
	errc := make(chan error, 1)
	go func() {
		_, err := s.C1.Read(make([]byte, 1))
		errc <- err
	}()

	time.Sleep(20 * time.Millisecond)
	s.Require().NoError(s.C2.Close())
	s.ErrorIs(<-errc, transport.ErrConnClosed)
}

func (s *ConnTestSuite) TestDeadLines() {
	testcases := []struct {
		desc string
		set  func(c transport.Conn, t time.Time)
		op   func(c transport.Conn) (int, error)
	}{
		{
			desc: "read",
			set:  transport.Conn.SetReadDeadLine,
			op:   func(c transport.Conn) (int, error) { return c.Read(make([]byte, 1)) },
		},
		{
			desc: "write",
			set:  transport.Conn.SetWriteDeadLine,
			op:   func(c transport.Conn) (int, error) { return c.Write([]byte("x")) },
		},
	}

	for _, tc := range testcases {
		s.Run(tc.desc+" already passed", func() {
			tc.set(s.C1, s.Clock.Now().Add(-time.Millisecond))
			n, err := tc.op(s.C1)
			s.ErrorIs(err, transport.ErrDeadLineExceeded)
			s.Zero(n)
			tc.set(s.C1, time.Time{})
		})

		s.Run(tc.desc+" fires while blocked", func() {
			tc.set(s.C1, s.Clock.Now().Add(3*time.Second))
			errc := make(chan error, 1)
			go func() {
				_, err := tc.op(s.C1)
				errc <- err
			}()

			time.Sleep(20 * time.Millisecond)
			s.Clock.Add(3 * time.Second)
			s.ErrorIs(<-errc, transport.ErrDeadLineExceeded)
			tc.set(s.C1, time.Time{})
		})
	}
}

// An expired deadline stops mattering once it is cleared or pushed back.
func (s *ConnTestSuite) TestDeadLineReset() {
	s.C1.SetReadDeadLine(s.Clock.Now())
	_, err := s.C1.Read(make([]byte, 1))
	s.Require().ErrorIs(err, transport.ErrDeadLineExceeded)

	s.C1.SetReadDeadLine(s.Clock.Now().Add(time.Minute))

	go func() {
		_, err := s.C2.Write([]byte("y"))
		s.NoError(err)
	}()

	buf := make([]byte, 1)
	n, err := s.C1.Read(buf)
	s.NoError(err)
	s.Equal(1, n)
	s.Equal("y", string(buf))
}

func (s *ConnTestSuite) TestAddr() {
	s.Equal(s.C1.LocalAddr(), s.C2.RemoteAddr())
	s.Equal(s.C2.LocalAddr(), s.C1.RemoteAddr())
	s.NotEqual(s.C1.LocalAddr(), s.C2.LocalAddr())
}
