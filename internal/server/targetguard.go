package server

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"strings"
)

var errBlockedTarget = errors.New("audit target resolves to a private or reserved address")

// reservedPrefixes are ranges not covered by the netip.Addr helpers.
var reservedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("100.64.0.0/10"),   // Carrier-grade NAT (RFC 6598)
	netip.MustParsePrefix("192.0.0.0/24"),    // IETF protocol assignments (RFC 6890)
	netip.MustParsePrefix("192.0.2.0/24"),    // TEST-NET-1 (RFC 5737)
	netip.MustParsePrefix("198.18.0.0/15"),   // Benchmarking (RFC 2544)
	netip.MustParsePrefix("198.51.100.0/24"), // TEST-NET-2 (RFC 5737)
	netip.MustParsePrefix("203.0.113.0/24"),  // TEST-NET-3 (RFC 5737)
}

// Resolver looks up host addresses. *net.Resolver satisfies it.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// targetGuard refuses audit URLs that point back into the server's own
// network. The check runs before Chrome is launched; Chrome resolves the
// host again, so it narrows rather than closes DNS-rebinding.
type targetGuard struct {
	resolver Resolver
}

func (g *targetGuard) check(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %w", errBlockedTarget, err)
	}
	host := strings.TrimSuffix(u.Hostname(), ".")
	if host == "" {
		return fmt.Errorf("%w: empty host", errBlockedTarget)
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return fmt.Errorf("%w: %s", errBlockedTarget, host)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if isBlockedIP(addr) {
			return fmt.Errorf("%w: %s", errBlockedTarget, addr)
		}
		return nil
	}

	addrs, err := g.resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return fmt.Errorf("%w: lookup %s: %w", errBlockedTarget, host, err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("%w: no addresses for %s", errBlockedTarget, host)
	}
	for _, addr := range addrs {
		if isBlockedIP(addr) {
			return fmt.Errorf("%w: %s resolves to %s", errBlockedTarget, host, addr)
		}
	}
	return nil
}

func isBlockedIP(addr netip.Addr) bool {
	// ::ffff:127.0.0.1 must not slip past the IPv4 checks.
	addr = addr.Unmap()

	if !addr.IsGlobalUnicast() || addr.IsPrivate() {
		return true
	}
	for _, p := range reservedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
