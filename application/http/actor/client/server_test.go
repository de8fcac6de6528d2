package client

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"sync"
	"time"

	"sockhttp/application/http"
	"sockhttp/application/http/semantic"
	"sockhttp/application/http/semantic/status"
	iolib "sockhttp/lib/io"
	"sockhttp/transport"

	"github.com/benbjohnson/clock"
)

// recordingClock is a mock clock whose timers fire at once.
// Every requested delay is recorded.
type recordingClock struct {
	*clock.Mock

	mu     sync.Mutex
	sleeps []time.Duration
}

func newRecordingClock() *recordingClock {
	mock := clock.NewMock()
	mock.Set(time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC))
	return &recordingClock{Mock: mock}
}

func (c *recordingClock) Timer(d time.Duration) *clock.Timer {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()

	t := c.Mock.Timer(d)
	c.Mock.Add(d)
	return t
}

func (c *recordingClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// received is a request as the fake server saw it.
type received struct {
	Method  string
	Target  string
	Headers semantic.Headers
	Body    []byte
}

// handlerFunc answers req on conn. Returning false closes the connection.
type handlerFunc func(conn transport.Conn, req received) bool

type fakeServer struct {
	lis    transport.ConnListener
	handle handlerFunc

	mu       sync.Mutex
	conns    []transport.Conn
	requests []received

	wg sync.WaitGroup
}

func startFakeServer(lis transport.ConnListener, handle handlerFunc) *fakeServer {
	s := &fakeServer{lis: lis, handle: handle}

	s.wg.Add(1)
	go s.serve()

	return s
}

func (s *fakeServer) serve() {
	defer s.wg.Done()

	for {
		conn, err := s.lis.Accept(context.Background())
		if err != nil {
			return
		}

		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

func (s *fakeServer) serveConn(conn transport.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	dec := http.NewRequestDecoder(conn, http.DefaultDecodeOptions)
	for {
		var req http.Request
		if err := dec.Decode(&req); err != nil {
			return
		}

		r := received{
			Method:  req.Method,
			Target:  req.Target,
			Headers: semantic.HeadersFrom(req.Headers),
		}

		if cl, ok := r.Headers.Get("Content-Length"); ok {
			n, err := strconv.ParseUint(cl, 10, 64)
			if err != nil {
				return
			}
			if r.Body, err = io.ReadAll(iolib.LimitReader(req.Body, uint(n))); err != nil {
				return
			}
		}

		s.mu.Lock()
		s.requests = append(s.requests, r)
		s.mu.Unlock()

		if !s.handle(conn, r) {
			return
		}
	}
}

func (s *fakeServer) Requests() []received {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]received(nil), s.requests...)
}

// Accepted is the number of connections the server has accepted.
func (s *fakeServer) Accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *fakeServer) Close() {
	s.lis.Close()

	s.mu.Lock()
	for _, conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// respond writes a response with a Content-Length unless headers frame the body already.
func respond(conn transport.Conn, code uint, headers semantic.Headers, body []byte) error {
	st, _ := status.FromCode(code)

	if !headers.Has("Content-Length") && !headers.Has("Transfer-Encoding") {
		headers.Set("Content-Length", strconv.Itoa(len(body)))
	}

	return http.NewResponseEncoder(conn, http.DefaultEncodeOptions).Encode(http.Response{
		StatusLine: http.StatusLine{
			Version:      http.Version11,
			StatusCode:   code,
			ReasonPhrase: st.ReasonPhrase,
		},
		Headers: headers.ToRawFields(),
		Body:    bytes.NewReader(body),
	})
}

func writeRaw(conn transport.Conn, parts ...string) error {
	for _, part := range parts {
		if _, err := iolib.WriteFull(conn, []byte(part)); err != nil {
			return err
		}
	}
	return nil
}

func headersOf(fields ...[2]string) semantic.Headers {
	h := semantic.Headers{}
	h.UpdateFields(fields...)
	return h
}
