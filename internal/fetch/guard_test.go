package fetch

import (
	"context"
	"errors"
	"net"
	"testing"
)

func fetchKind(t *testing.T, err error) Kind {
	t.Helper()
	var ferr *Error
	if !errors.As(err, &ferr) {
		t.Fatalf("expected *fetch.Error, got: %v", err)
	}
	return ferr.Kind
}

func TestCheckIP_Blocked(t *testing.T) {
	blocked := []string{
		"0.0.0.1",
		"10.0.0.5",
		"100.64.0.1",
		"127.0.0.1",
		"169.254.169.254",
		"172.16.0.1",
		"172.31.255.255",
		"192.168.1.1",
		"224.0.0.1",
		"240.0.0.1",
		"::1",
		"fc00::1",
		"fd12:3456::1",
		"fe80::1",
		"::ffff:10.0.0.5",
		"::ffff:127.0.0.1",
	}
	for _, s := range blocked {
		ip := net.ParseIP(s)
		if ip == nil {
			t.Fatalf("bad test address %q", s)
		}
		err := defaultGuard.checkIP(ip)
		if err == nil {
			t.Errorf("checkIP(%s) allowed, want blocked", s)
			continue
		}
		if k := fetchKind(t, err); k != KindBlockedAddress {
			t.Errorf("checkIP(%s) kind = %s, want %s", s, k, KindBlockedAddress)
		}
	}
}

func TestCheckIP_Allowed(t *testing.T) {
	allowed := []string{
		"1.1.1.1",
		"8.8.8.8",
		"93.184.216.34",
		"172.32.0.1",
		"2606:4700:4700::1111",
		"::ffff:8.8.8.8",
	}
	for _, s := range allowed {
		ip := net.ParseIP(s)
		if ip == nil {
			t.Fatalf("bad test address %q", s)
		}
		if err := defaultGuard.checkIP(ip); err != nil {
			t.Errorf("checkIP(%s) blocked: %v", s, err)
		}
	}
}

func TestResolveAndCheck_LiteralBlocked(t *testing.T) {
	_, err := defaultGuard.resolveAndCheck(context.Background(), "169.254.169.254")
	if err == nil {
		t.Fatal("metadata address allowed, want blocked")
	}
	if k := fetchKind(t, err); k != KindBlockedAddress {
		t.Errorf("kind = %s, want %s", k, KindBlockedAddress)
	}
}

func TestResolveAndCheck_LiteralAllowed(t *testing.T) {
	ips, err := defaultGuard.resolveAndCheck(context.Background(), "93.184.216.34")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ips) != 1 || ips[0].String() != "93.184.216.34" {
		t.Errorf("expected the literal back, got %v", ips)
	}
}

func TestResolveAndCheck_DNSFailure(t *testing.T) {
	// .invalid never resolves (RFC 2606).
	_, err := defaultGuard.resolveAndCheck(context.Background(), "does-not-exist.invalid")
	if err == nil {
		t.Fatal("expected resolution failure")
	}
	if k := fetchKind(t, err); k != KindDNSFailed {
		t.Errorf("kind = %s, want %s", k, KindDNSFailed)
	}
}

func TestPermissiveGuardAllowsLoopback(t *testing.T) {
	g := &guard{}
	if err := g.checkIP(net.ParseIP("127.0.0.1")); err != nil {
		t.Fatalf("empty guard should allow anything, got: %v", err)
	}
}
