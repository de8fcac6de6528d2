// Httpget issues a single HTTP/1.1 request and prints the response.
//
//	httpget [-method GET] [-H 'Name: value']... [-d body] [-timeout 2s] [-json] [-resolve host=ip] [-v] URL
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"os"
	"strings"
	"time"

	"sockhttp/application/http/actor/client"
	"sockhttp/application/http/semantic"
	"sockhttp/application/util/domain"
	"sockhttp/application/util/uri"
	"sockhttp/transport/tcp"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

type headerFlags []string

func (h *headerFlags) String() string     { return strings.Join(*h, ", ") }
func (h *headerFlags) Set(v string) error { *h = append(*h, v); return nil }

var (
	method  string
	body    string
	timeout time.Duration
	asJSON  bool
	resolve string
	verbose bool
	headers headerFlags
)

func main() {
	flag.StringVar(&method, "method", "GET", "http method")
	flag.StringVar(&body, "d", "", "request body")
	flag.DurationVar(&timeout, "timeout", 2*time.Second, "socket timeout, 0 blocks")
	flag.BoolVar(&asJSON, "json", false, "print the body as indented json")
	flag.StringVar(&resolve, "resolve", "", "dial host at ip instead of resolving it (host=ip)")
	flag.BoolVar(&verbose, "v", false, "log connection events")
	flag.Var(&headers, "H", "request header (repeatable)")
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(context.Background(), logger, flag.Arg(0)); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, rawURL string) error {
	target, err := uri.Parse(rawURL)
	if err != nil {
		return errors.Wrap(err, "parsing url")
	}
	if target.Authority == nil {
		return errors.Errorf("url has no host: %q", rawURL)
	}

	opts := client.DefaultOptions()
	opts.Timeout.ReadWrite = timeout

	switch strings.ToLower(target.Scheme) {
	case "http":
	case "https":
		opts.TLS.Enabled = true
	default:
		return errors.Errorf("unsupported scheme: %q", target.Scheme)
	}

	if resolve != "" {
		lookuper, err := staticLookuper(resolve)
		if err != nil {
			return err
		}
		opts.Resolver = domain.ChainLookuper{lookuper, domain.NewResolverLookuper(net.DefaultResolver)}
	}

	var port uint16
	if target.Authority.Port != nil {
		port = *target.Authority.Port
	}

	c := client.New(tcp.NewDialer(tcp.DialerOptions{}), target.Authority.Host, port, logger, clock.New(), opts)
	defer c.Close()

	var reqOpts []client.RequestOption
	for _, h := range headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return errors.Errorf("header has no colon: %q", h)
		}
		reqOpts = append(reqOpts, client.WithHeader(strings.TrimSpace(name), strings.TrimSpace(value)))
	}
	if body != "" {
		reqOpts = append(reqOpts, client.WithBody([]byte(body)))
	}

	res, err := c.Do(ctx, method, target.RequestTarget(), reqOpts...)
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stderr, res.StatusLine())
	if verbose {
		fmt.Fprintln(os.Stderr, res.Headers.String())
	}

	return printBody(res)
}

func printBody(res *semantic.Response) error {
	if asJSON {
		var v any
		if err := res.JSON(&v); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	text, err := res.Text()
	if err != nil {
		return err
	}

	fmt.Print(text)
	return nil
}

func staticLookuper(mapping string) (domain.Lookuper, error) {
	host, ip, ok := strings.Cut(mapping, "=")
	if !ok {
		return nil, errors.Errorf("resolve wants host=ip: %q", mapping)
	}

	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing resolve address %q", ip)
	}

	return domain.NewMapLookuper(map[string][]netip.Addr{host: {addr}}), nil
}
