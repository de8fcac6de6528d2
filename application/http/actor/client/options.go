package client

import (
	"crypto/tls"
	"time"

	"sockhttp/application/http/semantic"
	"sockhttp/application/util/domain"
)

type Options struct {
	// Headers are merged into every request after the built-in defaults.
	Headers   semantic.Headers
	UserAgent string

	Timeout   TimeoutOptions
	Retry     RetryOptions
	Receive   ReceiveOptions
	TLS       TLSOptions
	RateLimit RateLimitOptions

	// Resolver maps the host to the address actually dialed.
	// If nil, the host is dialed by name.
	Resolver domain.Lookuper
}

type TimeoutOptions struct {
	Connect time.Duration
	// ReadWrite bounds each socket read and write.
	// Zero means blocking; requests may still set their own timeout.
	ReadWrite time.Duration
}

type RetryOptions struct {
	// MaxDelay is the longest the client sleeps before a retry.
	MaxDelay time.Duration
}

type ReceiveOptions struct {
	// BufferSize is the size of each socket read.
	BufferSize uint
}

type TLSOptions struct {
	// Enabled makes the first connection a TLS one.
	Enabled bool
	// Config is cloned for each TLS connection. ServerName defaults to the host.
	Config *tls.Config
	// Port is dialed on upgrade when the redirect target names none.
	Port uint16
}

type RateLimitOptions struct {
	// PerSecond limits outgoing requests, continuations included. Zero disables.
	PerSecond float64
	Burst     int
}

const (
	DefaultUserAgent  = "sockhttp/1.1"
	DefaultPlainPort  = 80
	DefaultTLSPort    = 443
	DefaultBufferSize = 4096
)

func DefaultOptions() Options {
	return Options{
		UserAgent: DefaultUserAgent,
		Timeout: TimeoutOptions{
			Connect:   2 * time.Second,
			ReadWrite: 2 * time.Second,
		},
		Retry:   RetryOptions{MaxDelay: 600 * time.Second},
		Receive: ReceiveOptions{BufferSize: DefaultBufferSize},
		TLS:     TLSOptions{Port: DefaultTLSPort},
	}
}

// withDefaults fills zero fields that have no meaning as zero.
func (o Options) withDefaults() Options {
	def := DefaultOptions()

	if o.UserAgent == "" {
		o.UserAgent = def.UserAgent
	}
	if o.Timeout.Connect == 0 {
		o.Timeout.Connect = def.Timeout.Connect
	}
	if o.Retry.MaxDelay == 0 {
		o.Retry.MaxDelay = def.Retry.MaxDelay
	}
	if o.Receive.BufferSize == 0 {
		o.Receive.BufferSize = def.Receive.BufferSize
	}
	if o.TLS.Port == 0 {
		o.TLS.Port = def.TLS.Port
	}
	if o.RateLimit.PerSecond > 0 && o.RateLimit.Burst <= 0 {
		o.RateLimit.Burst = 1
	}

	return o
}

// defaultHeaders are sent with every request unless overridden.
func (o Options) defaultHeaders() semantic.Headers {
	h := semantic.Headers{}
	h.UpdateFields(
		[2]string{"Connection", "keep-alive"},
		[2]string{"User-Agent", o.UserAgent},
		[2]string{"Accept-Encoding", "gzip"},
	)
	h.Update(o.Headers)
	return h
}

// RequestOption configures a single request.
type RequestOption func(*requestConfig)

type requestConfig struct {
	headers semantic.Headers
	body    []byte
	policy  semantic.RetryPolicy
}

func newRequestConfig(opts []RequestOption) requestConfig {
	cfg := requestConfig{policy: semantic.DefaultRetryPolicy()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithHeaders merges h into the request headers. Later options win.
func WithHeaders(h semantic.Headers) RequestOption {
	return func(cfg *requestConfig) { cfg.headers.Update(h) }
}

func WithHeader(key, value string) RequestOption {
	return func(cfg *requestConfig) { cfg.headers.Set(key, value) }
}

// WithBody sets the body. It is dropped for methods other than POST, PUT and PATCH.
func WithBody(body []byte) RequestOption {
	return func(cfg *requestConfig) { cfg.body = body }
}

func WithRetryPolicy(p semantic.RetryPolicy) RequestOption {
	return func(cfg *requestConfig) { cfg.policy = p }
}

func WithTimeout(d time.Duration) RequestOption {
	return func(cfg *requestConfig) { cfg.policy.Timeout = d }
}

func WithMaxRedirects(n uint) RequestOption {
	return func(cfg *requestConfig) { cfg.policy.MaxRedirects = n }
}

func WithMaxRetries(n uint) RequestOption {
	return func(cfg *requestConfig) { cfg.policy.MaxRetries = n }
}

func WithBackoffFactor(d time.Duration) RequestOption {
	return func(cfg *requestConfig) { cfg.policy.BackoffFactor = d }
}
