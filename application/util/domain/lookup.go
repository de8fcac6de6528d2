// Package domain resolves host names to IP addresses.
package domain

import (
	"context"
	"maps"
	"net"
	"net/netip"

	"github.com/pkg/errors"
)

var ErrDomainNotFound = errors.New("domain not found")

type Lookuper interface {
	LookupIP(ctx context.Context, domain string) (addrs []netip.Addr, err error)
}

type mapLookuper struct {
	set map[string][]netip.Addr
}

var _ Lookuper = (*mapLookuper)(nil)

// NewMapLookuper answers from a fixed table, like a hosts file.
func NewMapLookuper(set map[string][]netip.Addr) *mapLookuper {
	if set == nil {
		set = make(map[string][]netip.Addr)
	}
	return &mapLookuper{set: maps.Clone(set)}
}

func (m *mapLookuper) LookupIP(ctx context.Context, domain string) (addrs []netip.Addr, err error) {
	addrs, ok := m.set[domain]
	if !ok || len(addrs) == 0 {
		return nil, errors.Wrap(ErrDomainNotFound, domain)
	}
	return addrs, nil
}

func (m *mapLookuper) Set(domain string, addrs []netip.Addr) {
	if len(addrs) == 0 {
		return
	}
	m.set[domain] = addrs
}

func (m *mapLookuper) Del(domain string) { delete(m.set, domain) }

type resolverLookuper struct {
	r *net.Resolver
}

var _ Lookuper = (*resolverLookuper)(nil)

// NewResolverLookuper uses r, or [net.DefaultResolver] if r is nil.
func NewResolverLookuper(r *net.Resolver) *resolverLookuper {
	if r == nil {
		r = net.DefaultResolver
	}
	return &resolverLookuper{r: r}
}

func (l *resolverLookuper) LookupIP(ctx context.Context, domain string) ([]netip.Addr, error) {
	addrs, err := l.r.LookupNetIP(ctx, "ip", domain)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return nil, errors.Wrap(ErrDomainNotFound, domain)
		}
		return nil, errors.Wrapf(err, "looking up %s", domain)
	}

	for idx, addr := range addrs {
		addrs[idx] = addr.Unmap()
	}
	return addrs, nil
}

// ChainLookuper asks each lookuper in order until one knows the domain.
type ChainLookuper []Lookuper

var _ Lookuper = ChainLookuper(nil)

func (c ChainLookuper) LookupIP(ctx context.Context, domain string) ([]netip.Addr, error) {
	for _, l := range c {
		addrs, err := l.LookupIP(ctx, domain)
		if errors.Is(err, ErrDomainNotFound) {
			continue
		}
		return addrs, err
	}
	return nil, errors.Wrap(ErrDomainNotFound, domain)
}
