package client

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"sockhttp/application/http/semantic"
	"sockhttp/transport"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

var (
	ErrMissingLocation       = errors.New("redirect response has no location")
	ErrRedirectLimitExceeded = errors.New("redirect limit exceeded")
	ErrRetryLimitExceeded    = errors.New("retry limit exceeded")
	ErrInvalidRetryAfter     = errors.New("retry-after is not in the future")
	ErrExcessiveDelay        = errors.New("retry delay exceeds the maximum")
	ErrCrossHostRedirect     = errors.New("redirect to another host")
	ErrEmptyResponse         = errors.New("no response received")
	ErrClientClosed          = errors.New("client is closed")
)

// Client is a connection to a single host. Requests on it are serialized:
// each call writes one request and reads its response before the next starts.
type Client struct {
	host string
	port uint16
	tls  bool

	conn transport.Conn
	// stale marks a connection the peer has given up on.
	stale  bool
	closed bool

	headers semantic.Headers
	timeout time.Duration

	mu sync.Mutex // guards the fields above

	dialer  transport.ConnDialer
	limiter *rate.Limiter
	logger  *slog.Logger
	clock   clock.Clock

	opts Options
}

// New returns a client for host without connecting.
// The connection is opened by the first request.
// A zero port means 80, or the TLS port if TLS is enabled.
func New(
	d transport.ConnDialer,
	host string,
	port uint16,
	logger *slog.Logger,
	clock clock.Clock,
	opts Options,
) *Client {
	opts = opts.withDefaults()

	if port == 0 {
		port = DefaultPlainPort
		if opts.TLS.Enabled {
			port = opts.TLS.Port
		}
	}

	c := &Client{
		host:    host,
		port:    port,
		tls:     opts.TLS.Enabled,
		headers: opts.defaultHeaders(),
		timeout: opts.Timeout.ReadWrite,
		dialer:  d,
		logger:  logger,
		clock:   clock,
		opts:    opts,
	}

	if opts.RateLimit.PerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit.PerSecond), opts.RateLimit.Burst)
	}

	return c
}

// Dial is like [New] but connects before returning.
func Dial(
	ctx context.Context,
	d transport.ConnDialer,
	host string,
	port uint16,
	logger *slog.Logger,
	clock clock.Clock,
	opts Options,
) (*Client, error) {
	c := New(d, host, port, logger, clock, opts)
	if err := c.Reconnect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) Get(ctx context.Context, path string, opts ...RequestOption) (*semantic.Response, error) {
	return c.Do(ctx, string(semantic.MethodGet), path, opts...)
}

func (c *Client) Head(ctx context.Context, path string, opts ...RequestOption) (*semantic.Response, error) {
	return c.Do(ctx, string(semantic.MethodHead), path, opts...)
}

func (c *Client) Post(ctx context.Context, path string, body []byte, opts ...RequestOption) (*semantic.Response, error) {
	return c.Do(ctx, string(semantic.MethodPost), path, append([]RequestOption{WithBody(body)}, opts...)...)
}

func (c *Client) Put(ctx context.Context, path string, body []byte, opts ...RequestOption) (*semantic.Response, error) {
	return c.Do(ctx, string(semantic.MethodPut), path, append([]RequestOption{WithBody(body)}, opts...)...)
}

func (c *Client) Patch(ctx context.Context, path string, body []byte, opts ...RequestOption) (*semantic.Response, error) {
	return c.Do(ctx, string(semantic.MethodPatch), path, append([]RequestOption{WithBody(body)}, opts...)...)
}

func (c *Client) Delete(ctx context.Context, path string, opts ...RequestOption) (*semantic.Response, error) {
	return c.Do(ctx, string(semantic.MethodDelete), path, opts...)
}

func (c *Client) Options(ctx context.Context, path string, opts ...RequestOption) (*semantic.Response, error) {
	return c.Do(ctx, string(semantic.MethodOptions), path, opts...)
}

// Do builds a request from the client's default headers and opts, then sends it.
func (c *Client) Do(ctx context.Context, method, path string, opts ...RequestOption) (*semantic.Response, error) {
	m, err := semantic.ParseMethod(method)
	if err != nil {
		return nil, err
	}

	cfg := newRequestConfig(opts)

	c.mu.Lock()
	headers := c.headers.Clone()
	host := c.hostHeader()
	c.mu.Unlock()

	headers.Update(cfg.headers)
	headers.Set("Host", host)
	if cfg.body != nil && m.AllowsBody() {
		headers.Set("Content-Length", strconv.Itoa(len(cfg.body)))
	}

	req, err := semantic.NewRequest(string(m), path, headers, cfg.body, cfg.policy)
	if err != nil {
		return nil, errors.Wrap(err, "building request")
	}

	return c.Send(ctx, req)
}

// Send issues request as is and follows the redirects and retries it triggers.
// The returned response is the last one received.
func (c *Client) Send(ctx context.Context, request *semantic.Request) (*semantic.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClientClosed
	}

	log := c.logger.With("exchange", uuid.NewString(), "host", c.host)

	// Every continuation spends one unit of a budget, so this ends.
	for {
		if err := c.waitLimiter(ctx); err != nil {
			return nil, err
		}

		res, err := c.roundtrip(ctx, log, request)
		if err != nil {
			return nil, err
		}

		next, err := c.continuation(ctx, log, res)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return res, nil
		}

		request = next
	}
}

// SetHeaders merges h into the headers sent with every request.
func (c *Client) SetHeaders(h semantic.Headers) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers.Update(h)
}

// SetTimeout changes the socket timeout used by requests that set none.
// Zero means blocking.
func (c *Client) SetTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = d
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && c.conn != nil && !c.stale
}

// IsTLS reports whether the current connection is encrypted.
func (c *Client) IsTLS() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tls
}

// Addr returns the host and port requests currently go to.
func (c *Client) Addr() transport.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	return transport.Addr{Host: c.host, Port: c.port}
}

// Reconnect opens a fresh connection, reopening a closed client.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = false
	return c.connect(ctx, c.logger.With("host", c.host))
}

// Close closes the connection. Calling it again is a no-op.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.conn == nil {
		return nil
	}

	conn := c.conn
	c.conn = nil
	if err := conn.Close(); err != nil && !errors.Is(err, transport.ErrConnClosed) {
		return errors.Wrap(err, "closing connection")
	}
	return nil
}

// connect replaces the current connection with a new one to c.port.
// Assumes it is locked.
func (c *Client) connect(ctx context.Context, log *slog.Logger) error {
	conn, err := c.dial(ctx, c.port, c.tls)
	if err != nil {
		return err
	}

	c.swap(conn, log)
	log.Info("connected", "port", c.port, "tls", c.tls)
	return nil
}

// upgradeTLS moves the client onto a TLS connection at port.
// On failure the plain connection stays in place.
// Assumes it is locked.
func (c *Client) upgradeTLS(ctx context.Context, log *slog.Logger, port uint16) {
	conn, err := c.dial(ctx, port, true)
	if err != nil {
		log.Warn("tls upgrade failed, continuing over plain connection",
			"error", err.Error(), "port", port)
		return
	}

	c.swap(conn, log)
	c.tls = true
	c.port = port
	log.Info("upgraded to tls", "port", port)
}

func (c *Client) dial(ctx context.Context, port uint16, useTLS bool) (transport.Conn, error) {
	if c.opts.Timeout.Connect > 0 {
		var cancel context.CancelFunc
		ctx, cancel = c.clock.WithTimeout(ctx, c.opts.Timeout.Connect)
		defer cancel()
	}

	addr, err := c.resolve(ctx, port)
	if err != nil {
		return nil, err
	}

	var conn transport.Conn
	if useTLS {
		conn, err = c.dialer.DialTLS(ctx, addr, c.tlsConfig())
	} else {
		conn, err = c.dialer.Dial(ctx, addr)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "dialing %s", addr)
	}

	return conn, nil
}

// resolve maps the host to the address to dial.
func (c *Client) resolve(ctx context.Context, port uint16) (transport.Addr, error) {
	if c.opts.Resolver == nil {
		return transport.Addr{Host: c.host, Port: port}, nil
	}

	addrs, err := c.opts.Resolver.LookupIP(ctx, c.host)
	if err != nil {
		return transport.Addr{}, errors.Wrapf(err, "lookup for host(%s) failed", c.host)
	}

	// Lets simply use the first address.
	return transport.Addr{Host: addrs[0].String(), Port: port}, nil
}

// tlsConfig verifies against the host even when an address is dialed.
func (c *Client) tlsConfig() *tls.Config {
	var config *tls.Config
	if c.opts.TLS.Config != nil {
		config = c.opts.TLS.Config.Clone()
	} else {
		config = &tls.Config{}
	}

	if config.ServerName == "" {
		config.ServerName = c.host
	}
	return config
}

// swap installs conn and closes the one it replaces.
func (c *Client) swap(conn transport.Conn, log *slog.Logger) {
	old := c.conn
	c.conn = conn
	c.stale = false

	if old == nil {
		return
	}
	if err := old.Close(); err != nil && !errors.Is(err, transport.ErrConnClosed) {
		log.Debug("closing replaced connection", "error", err.Error())
	}
}

// hostHeader omits the port when it is the default for the scheme.
func (c *Client) hostHeader() string {
	if (!c.tls && c.port == DefaultPlainPort) || (c.tls && c.port == DefaultTLSPort) {
		return c.host
	}
	return net.JoinHostPort(c.host, strconv.FormatUint(uint64(c.port), 10))
}

func (c *Client) waitLimiter(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}

	now := c.clock.Now()
	r := c.limiter.ReserveN(now, 1)
	if !r.OK() {
		return errors.New("rate limit burst is zero")
	}

	if err := c.sleep(ctx, r.DelayFrom(now)); err != nil {
		r.CancelAt(c.clock.Now())
		return err
	}
	return nil
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	t := c.clock.Timer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
