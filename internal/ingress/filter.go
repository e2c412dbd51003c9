// Package ingress implements the allow-list check applied before any other
// gateway work happens: a client identifier against a small, operator-
// configured list of exact addresses and CIDR ranges.
package ingress

import (
	"fmt"
	"net"
)

// Filter holds a parsed allow-list. An empty allow-list permits everyone,
// matching spec.md's "empty allow-list = allow all".
type Filter struct {
	exact []string
	cidrs []*net.IPNet
}

// NewFilter parses entries, which may each be a bare IP address or a CIDR
// range. No third-party CIDR-matching library appears anywhere in the
// dependency pack, and the entire check is a handful of lines over
// net.ParseIP/net.ParseCIDR, so this stays on the standard library.
func NewFilter(entries []string) (*Filter, error) {
	f := &Filter{}
	for _, e := range entries {
		if ip := net.ParseIP(e); ip != nil {
			f.exact = append(f.exact, e)
			continue
		}
		_, cidr, err := net.ParseCIDR(e)
		if err != nil {
			return nil, fmt.Errorf("ingress: invalid allow-list entry %q: %w", e, err)
		}
		f.cidrs = append(f.cidrs, cidr)
	}
	return f, nil
}

// Allow reports whether addr (a client-supplied identifier, already
// extracted by the caller from whatever header or connection info it
// trusts) is permitted. Matching is O(n) over the configured list, which
// is expected to stay small.
func (f *Filter) Allow(addr string) bool {
	if len(f.exact) == 0 && len(f.cidrs) == 0 {
		return true
	}

	for _, e := range f.exact {
		if e == addr {
			return true
		}
	}

	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, cidr := range f.cidrs {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}
