package fetch

import (
	"context"
	"fmt"
	"net"
	"time"
)

// blockedCIDRs are the address ranges web_fetch may never touch:
// loopback, RFC 1918, link-local (cloud metadata lives here), CGNAT,
// multicast and reserved space, plus their IPv6 counterparts.
// IPv4-mapped IPv6 addresses are unwrapped and checked under the
// IPv4 rules.
var blockedCIDRs = []string{
	"0.0.0.0/8",
	"10.0.0.0/8",
	"100.64.0.0/10",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"224.0.0.0/4",
	"240.0.0.0/4",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
}

// defaultGuard enforces the standard ranges; tests substitute narrower
// guards to reach local fixtures.
var defaultGuard = &guard{nets: mustParseCIDRs(blockedCIDRs)}

func mustParseCIDRs(cidrs []string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(fmt.Sprintf("bad blocked CIDR %q: %v", c, err))
		}
		nets = append(nets, n)
	}
	return nets
}

// guard decides which addresses a fetch may connect to.
type guard struct {
	nets []*net.IPNet
}

// checkIP rejects addresses inside any blocked range.
func (g *guard) checkIP(ip net.IP) error {
	// To4 unwraps IPv4-mapped IPv6 (::ffff:a.b.c.d) so the embedded
	// address is judged under the IPv4 rules.
	if ip4 := ip.To4(); ip4 != nil {
		ip = ip4
	}
	for _, n := range g.nets {
		if n.Contains(ip) {
			return &Error{
				Kind:   KindBlockedAddress,
				Detail: fmt.Sprintf("address %s is in blocked range %s", ip, n),
			}
		}
	}
	return nil
}

// resolveAndCheck resolves host to its full A/AAAA set and validates
// every address. A single blocked address poisons the whole set; split-
// horizon DNS that mixes public and internal records gets no pass.
func (g *guard) resolveAndCheck(ctx context.Context, host string) ([]net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		if err := g.checkIP(ip); err != nil {
			return nil, err
		}
		return []net.IP{ip}, nil
	}

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, &Error{Kind: KindDNSFailed, Detail: fmt.Sprintf("cannot resolve %q", host), Err: err}
	}
	if len(addrs) == 0 {
		return nil, &Error{Kind: KindDNSFailed, Detail: fmt.Sprintf("no addresses for %q", host)}
	}

	ips := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		if err := g.checkIP(a.IP); err != nil {
			return nil, err
		}
		ips = append(ips, a.IP)
	}
	return ips, nil
}

// dialPinned resolves and validates the target, then connects only to
// addresses that just passed the check. Validating inside the dial
// closes the rebinding window between a pre-flight check and connect.
func (g *guard) dialPinned(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	ips, err := g.resolveAndCheck(ctx, host)
	if err != nil {
		return nil, err
	}

	d := &net.Dialer{Timeout: 10 * time.Second}
	var lastErr error
	for _, ip := range ips {
		conn, err := d.DialContext(ctx, network, net.JoinHostPort(ip.String(), port))
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
