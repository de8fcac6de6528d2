package tcp

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sockhttp/transport"

	"github.com/stretchr/testify/suite"
)

type DialerTestSuite struct {
	suite.Suite

	dialer *Dialer
	lis    net.Listener
	addr   transport.Addr
}

func TestDialerTestSuite(t *testing.T) {
	suite.Run(t, new(DialerTestSuite))
}

func (s *DialerTestSuite) SetupTest() {
	s.dialer = NewDialer(DialerOptions{})

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	s.Require().NoError(err)
	s.lis = lis

	port := lis.Addr().(*net.TCPAddr).Port
	s.addr = transport.Addr{Host: "127.0.0.1", Port: uint16(port)}
}

func (s *DialerTestSuite) TearDownTest() {
	s.lis.Close()
}

func (s *DialerTestSuite) accept() <-chan net.Conn {
	c := make(chan net.Conn, 1)
	go func() {
		nc, err := s.lis.Accept()
		s.NoError(err)
		c <- nc
	}()
	return c
}

func (s *DialerTestSuite) TestReadWrite() {
	accepted := s.accept()

	conn, err := s.dialer.Dial(context.Background(), s.addr)
	s.Require().NoError(err)
	defer conn.Close()

	peer := <-accepted
	defer peer.Close()

	s.Equal(s.addr, conn.RemoteAddr())
	s.Equal("127.0.0.1", conn.LocalAddr().Host)

	_, err = conn.Write([]byte("ping"))
	s.Require().NoError(err)

	buf := make([]byte, 4)
	_, err = io.ReadFull(peer, buf)
	s.Require().NoError(err)
	s.Equal("ping", string(buf))
}

func (s *DialerTestSuite) TestPeerClose() {
	accepted := s.accept()

	conn, err := s.dialer.Dial(context.Background(), s.addr)
	s.Require().NoError(err)
	defer conn.Close()

	s.Require().NoError((<-accepted).Close())

	_, err = conn.Read(make([]byte, 1))
	s.ErrorIs(err, transport.ErrConnClosed)
}

func (s *DialerTestSuite) TestReadDeadLine() {
	accepted := s.accept()

	conn, err := s.dialer.Dial(context.Background(), s.addr)
	s.Require().NoError(err)
	defer conn.Close()

	peer := <-accepted
	defer peer.Close()

	conn.SetReadDeadLine(time.Now().Add(10 * time.Millisecond))
	_, err = conn.Read(make([]byte, 1))
	s.ErrorIs(err, transport.ErrDeadLineExceeded)
}

func (s *DialerTestSuite) TestDialRefused() {
	// Nothing listens once the listener is closed.
	s.Require().NoError(s.lis.Close())

	_, err := s.dialer.Dial(context.Background(), s.addr)
	s.ErrorIs(err, transport.ErrConnRefused)
}

func (s *DialerTestSuite) TestDialTLS() {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("secure"))
	}))
	defer srv.Close()

	port := srv.Listener.Addr().(*net.TCPAddr).Port
	addr := transport.Addr{Host: "127.0.0.1", Port: uint16(port)}

	s.Run("verification fails for unknown CA", func() {
		_, err := s.dialer.DialTLS(context.Background(), addr, nil)
		s.Error(err)
	})

	s.Run("trusted", func() {
		cfg := srv.Client().Transport.(*http.Transport).TLSClientConfig

		conn, err := s.dialer.DialTLS(context.Background(), addr, cfg)
		s.Require().NoError(err)
		defer conn.Close()

		_, err = conn.Write([]byte("GET / HTTP/1.1\r\nHost: example.com\r\nConnection: close\r\n\r\n"))
		s.Require().NoError(err)

		conn.SetReadDeadLine(time.Now().Add(time.Second))
		received := make([]byte, 0)
		buf := make([]byte, 512)
		for {
			n, err := conn.Read(buf)
			received = append(received, buf[:n]...)
			if err != nil {
				s.ErrorIs(err, transport.ErrConnClosed)
				break
			}
		}

		s.True(strings.HasPrefix(string(received), "HTTP/1.1 200 OK\r\n"))
		s.True(strings.HasSuffix(string(received), "secure"))
	})
}
