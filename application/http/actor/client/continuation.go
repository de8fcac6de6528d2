package client

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"sockhttp/application/http/semantic"
	"sockhttp/application/http/semantic/status"
	"sockhttp/application/util/uri"

	"github.com/pkg/errors"
)

// continuation returns the request res calls for, or nil if res is final.
func (c *Client) continuation(ctx context.Context, log *slog.Logger, res *semantic.Response) (*semantic.Request, error) {
	switch res.StatusCode {
	case status.MovedPermanently.Code:
		return c.redirect(ctx, log, res)
	case status.TooManyRequests.Code:
		return c.retry(ctx, log, res, res.Request.Path)
	default:
		return nil, nil
	}
}

// redirect follows a 301 to a path on the same host. An https location
// reached over plain port 80 first moves the client onto TLS.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-15.4.2
func (c *Client) redirect(ctx context.Context, log *slog.Logger, res *semantic.Response) (*semantic.Request, error) {
	req := res.Request

	location, ok := res.Headers.Get("Location")
	if !ok {
		return nil, errors.Wrapf(ErrMissingLocation, "%s %s", req.Method, req.Path)
	}
	if req.Retry.MaxRedirects == 0 {
		return nil, errors.Wrapf(ErrRedirectLimitExceeded, "redirected to %q", location)
	}

	target, err := uri.Parse(location)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing location %q", location)
	}

	if target.Authority != nil {
		if !strings.EqualFold(target.Authority.Host, c.host) {
			return nil, errors.Wrapf(ErrCrossHostRedirect, "%q", location)
		}

		if strings.EqualFold(target.Scheme, "https") && !c.tls && c.port == DefaultPlainPort {
			port := c.opts.TLS.Port
			if target.Authority.Port != nil {
				port = *target.Authority.Port
			}
			c.upgradeTLS(ctx, log, port)
		}
	}

	path := target.RequestTarget()

	// A redirect asking to wait is a retry at the new location.
	if res.Headers.Has("Retry-After") {
		return c.retry(ctx, log, res, path)
	}

	policy := req.Retry
	policy.MaxRedirects--

	log.Debug("following redirect", "status", res.StatusCode, "path", path)
	return req.Derive(semantic.MethodGet, path, policy)
}

// retry waits and reissues the request at path with the same method.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-10.2.3
func (c *Client) retry(ctx context.Context, log *slog.Logger, res *semantic.Response, path string) (*semantic.Request, error) {
	req := res.Request

	if req.Retry.MaxRetries == 0 {
		return nil, errors.Wrapf(ErrRetryLimitExceeded, "%s %s: %s", req.Method, req.Path, res.StatusLine())
	}

	delay, err := c.retryDelay(res)
	if err != nil {
		return nil, err
	}
	if delay > c.opts.Retry.MaxDelay {
		return nil, errors.Wrapf(ErrExcessiveDelay, "%s > %s", delay, c.opts.Retry.MaxDelay)
	}

	policy := req.Retry
	policy.MaxRetries--

	log.Info("retry scheduled",
		"status", res.StatusCode, "path", path, "delay", delay.String(), "retries", policy.MaxRetries)

	if err := c.sleep(ctx, delay); err != nil {
		return nil, errors.Wrap(err, "waiting to retry")
	}

	return req.Derive(req.Method, path, policy)
}

// retryDelay is Retry-After when present, the request's backoff otherwise.
func (c *Client) retryDelay(res *semantic.Response) (time.Duration, error) {
	raw, ok := res.Headers.Get("Retry-After")
	if !ok {
		return res.Request.BackoffDelay(), nil
	}

	date, err := semantic.ParseDate(raw, c.clock)
	if err != nil {
		return 0, errors.Wrap(err, "parsing retry-after")
	}
	if !date.IsFuture() {
		return 0, errors.Wrapf(ErrInvalidRetryAfter, "%q", raw)
	}

	return date.Until(), nil
}
