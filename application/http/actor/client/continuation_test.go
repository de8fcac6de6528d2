package client

import (
	"context"
	"time"

	"sockhttp/application/http/semantic"
	"sockhttp/transport"
)

func (s *ClientTestSuite) TestRedirect() {
	srv := s.serve(s.addr, func(conn transport.Conn, req received) bool {
		switch req.Target {
		case "/old":
			s.NoError(respond(conn, 301, headersOf([2]string{"Location", "/new"}), nil))
		case "/absolute":
			s.NoError(respond(conn, 301, headersOf([2]string{"Location", "http://example.com/new?x=1#top"}), nil))
		default:
			s.NoError(respond(conn, 200, semantic.Headers{}, []byte("moved")))
		}
		return true
	})

	c := s.newClient(DefaultOptions())

	res, err := c.Post(context.Background(), "/old", []byte("a=1"), WithHeader("X-Trace", "1"))
	s.Require().NoError(err)
	s.EqualValues(200, res.StatusCode)
	s.Equal([]byte("moved"), res.Body)
	s.Equal(semantic.MethodGet, res.Request.Method)
	s.EqualValues(4, res.Request.Retry.MaxRedirects)

	res, err = c.Get(context.Background(), "/absolute")
	s.Require().NoError(err)
	s.Equal("/new?x=1", res.Request.Path)

	reqs := srv.Requests()
	s.Require().Len(reqs, 4)

	s.Equal("POST", reqs[0].Method)
	s.Equal([]byte("a=1"), reqs[0].Body)

	s.Equal("GET", reqs[1].Method)
	s.Equal("/new", reqs[1].Target)
	s.Equal("1", reqs[1].Headers.Value("X-Trace", ""))
	s.False(reqs[1].Headers.Has("Content-Length"))
	s.Empty(reqs[1].Body)

	s.Equal("/new?x=1", reqs[3].Target)

	// No waiting on plain redirects.
	s.Empty(s.clock.Sleeps())
}

func (s *ClientTestSuite) TestRedirectFailures() {
	testcases := []struct {
		desc     string
		location string
		opts     []RequestOption
		requests int
		err      error
	}{
		{
			desc:     "missing location",
			requests: 1,
			err:      ErrMissingLocation,
		},
		{
			desc:     "no redirects allowed",
			location: "/next",
			opts:     []RequestOption{WithMaxRedirects(0)},
			requests: 1,
			err:      ErrRedirectLimitExceeded,
		},
		{
			desc:     "redirect loop",
			location: "/loop",
			opts:     []RequestOption{WithMaxRedirects(2)},
			requests: 3,
			err:      ErrRedirectLimitExceeded,
		},
		{
			desc:     "another host",
			location: "http://other.com/",
			requests: 1,
			err:      ErrCrossHostRedirect,
		},
	}

	for i, tc := range testcases {
		s.Run(tc.desc, func() {
			addr := transport.Addr{Host: "example.com", Port: uint16(8000 + i)}
			srv := s.serve(addr, func(conn transport.Conn, req received) bool {
				headers := semantic.Headers{}
				if tc.location != "" {
					headers.Set("Location", tc.location)
				}
				s.NoError(respond(conn, 301, headers, nil))
				return true
			})

			c := s.newClientAt(addr, DefaultOptions())

			_, err := c.Get(context.Background(), "/loop", tc.opts...)
			s.ErrorIs(err, tc.err)
			s.Len(srv.Requests(), tc.requests)
		})
	}
}

func (s *ClientTestSuite) TestRedirectWithRetryAfter() {
	srv := s.serve(s.addr, func(conn transport.Conn, req received) bool {
		if req.Target == "/old" {
			headers := headersOf(
				[2]string{"Location", "/new"},
				[2]string{"Retry-After", "5"},
			)
			s.NoError(respond(conn, 301, headers, nil))
			return true
		}
		s.NoError(respond(conn, 200, semantic.Headers{}, req.Body))
		return true
	})

	c := s.newClient(DefaultOptions())

	res, err := c.Post(context.Background(), "/old", []byte("a=1"))
	s.Require().NoError(err)
	s.Equal([]byte("a=1"), res.Body)

	// A redirect asking to wait is retried with the same method.
	s.Equal(semantic.MethodPost, res.Request.Method)
	s.EqualValues(4, res.Request.Retry.MaxRetries)
	s.EqualValues(5, res.Request.Retry.MaxRedirects)

	reqs := srv.Requests()
	s.Require().Len(reqs, 2)
	s.Equal("POST", reqs[1].Method)
	s.Equal("/new", reqs[1].Target)

	s.Equal([]time.Duration{5 * time.Second}, s.clock.Sleeps())
}

func (s *ClientTestSuite) TestTLSUpgrade() {
	plain := s.serve(s.addr, func(conn transport.Conn, req received) bool {
		s.NoError(respond(conn, 301, headersOf([2]string{"Location", "https://example.com/secure"}), nil))
		return true
	})
	secure := s.serveTLS(transport.Addr{Host: "example.com", Port: 443}, func(conn transport.Conn, req received) bool {
		s.NoError(respond(conn, 200, semantic.Headers{}, []byte("secret")))
		return true
	})

	c := s.newClient(DefaultOptions())

	res, err := c.Get(context.Background(), "/login")
	s.Require().NoError(err)
	s.Equal([]byte("secret"), res.Body)

	s.True(c.IsTLS())
	s.Equal(transport.Addr{Host: "example.com", Port: 443}, c.Addr())

	s.Len(plain.Requests(), 1)
	reqs := secure.Requests()
	s.Require().Len(reqs, 1)
	s.Equal("/secure", reqs[0].Target)
	s.Equal("example.com", reqs[0].Headers.Value("Host", ""))

	// Later requests stay on the TLS connection.
	_, err = c.Get(context.Background(), "/again")
	s.Require().NoError(err)
	s.Equal(1, secure.Accepted())
	s.Len(plain.Requests(), 1)
}

func (s *ClientTestSuite) TestTLSUpgradeFailure() {
	srv := s.serve(s.addr, func(conn transport.Conn, req received) bool {
		if req.Target == "/login" {
			s.NoError(respond(conn, 301, headersOf([2]string{"Location", "https://example.com/secure"}), nil))
			return true
		}
		s.NoError(respond(conn, 200, semantic.Headers{}, []byte("plain")))
		return true
	})

	c := s.newClient(DefaultOptions())

	res, err := c.Get(context.Background(), "/login")
	s.Require().NoError(err)
	s.Equal([]byte("plain"), res.Body)
	s.False(c.IsTLS())

	reqs := srv.Requests()
	s.Require().Len(reqs, 2)
	s.Equal("/secure", reqs[1].Target)
	s.Equal(1, srv.Accepted())
}

func (s *ClientTestSuite) TestNoUpgradeOffDefaultPort() {
	addr := transport.Addr{Host: "example.com", Port: 8080}
	srv := s.serve(addr, func(conn transport.Conn, req received) bool {
		if req.Target == "/login" {
			s.NoError(respond(conn, 301, headersOf([2]string{"Location", "https://example.com/secure"}), nil))
			return true
		}
		s.NoError(respond(conn, 200, semantic.Headers{}, nil))
		return true
	})
	secure := s.serveTLS(transport.Addr{Host: "example.com", Port: 443}, func(conn transport.Conn, req received) bool {
		return false
	})

	c := s.newClientAt(addr, DefaultOptions())

	_, err := c.Get(context.Background(), "/login")
	s.Require().NoError(err)
	s.False(c.IsTLS())
	s.Len(srv.Requests(), 2)
	s.Equal(0, secure.Accepted())
}

func (s *ClientTestSuite) TestRetry() {
	attempts := 0
	srv := s.serve(s.addr, func(conn transport.Conn, req received) bool {
		attempts++
		if attempts == 1 {
			retryAt := s.clock.Now().Add(10 * time.Second).Format(semantic.IMFFixDateLayout)
			s.NoError(respond(conn, 429, headersOf([2]string{"Retry-After", retryAt}), nil))
			return true
		}
		s.NoError(respond(conn, 200, semantic.Headers{}, req.Body))
		return true
	})

	c := s.newClient(DefaultOptions())

	res, err := c.Put(context.Background(), "/doc", []byte("v2"))
	s.Require().NoError(err)
	s.EqualValues(200, res.StatusCode)
	s.Equal([]byte("v2"), res.Body)
	s.EqualValues(4, res.Request.Retry.MaxRetries)

	reqs := srv.Requests()
	s.Require().Len(reqs, 2)
	s.Equal("PUT", reqs[1].Method)
	s.Equal("/doc", reqs[1].Target)

	s.Equal([]time.Duration{10 * time.Second}, s.clock.Sleeps())
}

func (s *ClientTestSuite) TestRetryLimit() {
	testcases := []struct {
		desc       string
		retryAfter string
		opts       []RequestOption
		sleeps     []time.Duration
	}{
		{
			desc:       "retry-after seconds",
			retryAfter: "5",
			opts:       []RequestOption{WithMaxRetries(3)},
			sleeps:     []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second},
		},
		{
			desc:   "backoff without retry-after",
			opts:   []RequestOption{WithMaxRetries(3), WithBackoffFactor(100 * time.Millisecond)},
			sleeps: []time.Duration{400 * time.Millisecond, 200 * time.Millisecond, 100 * time.Millisecond},
		},
		{
			desc:       "no retries allowed",
			retryAfter: "5",
			opts:       []RequestOption{WithMaxRetries(0)},
			sleeps:     nil,
		},
	}

	for i, tc := range testcases {
		s.Run(tc.desc, func() {
			before := len(s.clock.Sleeps())

			addr := transport.Addr{Host: "example.com", Port: uint16(8000 + i)}
			srv := s.serve(addr, func(conn transport.Conn, req received) bool {
				headers := semantic.Headers{}
				if tc.retryAfter != "" {
					headers.Set("Retry-After", tc.retryAfter)
				}
				s.NoError(respond(conn, 429, headers, nil))
				return true
			})

			c := s.newClientAt(addr, DefaultOptions())

			_, err := c.Get(context.Background(), "/busy", tc.opts...)
			s.ErrorIs(err, ErrRetryLimitExceeded)
			s.Len(srv.Requests(), len(tc.sleeps)+1)

			slept := s.clock.Sleeps()[before:]
			if len(tc.sleeps) == 0 {
				s.Empty(slept)
				return
			}
			s.Equal(tc.sleeps, slept)
		})
	}
}

func (s *ClientTestSuite) TestRetryAfterRejected() {
	testcases := []struct {
		desc       string
		retryAfter func(now time.Time) string
		err        error
	}{
		{
			desc:       "zero seconds",
			retryAfter: func(time.Time) string { return "0" },
			err:        ErrInvalidRetryAfter,
		},
		{
			desc: "date in the past",
			retryAfter: func(now time.Time) string {
				return now.Add(-time.Hour).Format(semantic.IMFFixDateLayout)
			},
			err: ErrInvalidRetryAfter,
		},
		{
			desc:       "too long",
			retryAfter: func(time.Time) string { return "601" },
			err:        ErrExcessiveDelay,
		},
		{
			desc:       "unparsable",
			retryAfter: func(time.Time) string { return "soon" },
			err:        semantic.ErrDateFormat,
		},
	}

	for i, tc := range testcases {
		s.Run(tc.desc, func() {
			addr := transport.Addr{Host: "example.com", Port: uint16(8000 + i)}
			srv := s.serve(addr, func(conn transport.Conn, req received) bool {
				headers := headersOf([2]string{"Retry-After", tc.retryAfter(s.clock.Now())})
				s.NoError(respond(conn, 429, headers, nil))
				return true
			})

			c := s.newClientAt(addr, DefaultOptions())

			_, err := c.Get(context.Background(), "/busy")
			s.ErrorIs(err, tc.err)
			s.Len(srv.Requests(), 1)
		})
	}

	s.Empty(s.clock.Sleeps())
}

func (s *ClientTestSuite) TestMaxDelayOption() {
	srv := s.serve(s.addr, func(conn transport.Conn, req received) bool {
		s.NoError(respond(conn, 429, headersOf([2]string{"Retry-After", "30"}), nil))
		return true
	})

	opts := DefaultOptions()
	opts.Retry.MaxDelay = 10 * time.Second
	c := s.newClient(opts)

	_, err := c.Get(context.Background(), "/busy")
	s.ErrorIs(err, ErrExcessiveDelay)
	s.Len(srv.Requests(), 1)
}
