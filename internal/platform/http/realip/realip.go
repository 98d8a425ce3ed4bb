// Package realip resolves the client address of a request behind trusted proxies.
package realip

import (
	"net/http"
	"net/netip"
	"strings"
)

// TrustedProxies holds the proxy ranges whose forwarding headers are honoured.
type TrustedProxies struct {
	prefixes []netip.Prefix
}

// NewTrustedProxies parses CIDRs or bare IPs. Unparseable entries are skipped.
func NewTrustedProxies(cidrs []string) *TrustedProxies {
	tp := &TrustedProxies{}
	for _, raw := range cidrs {
		raw = strings.TrimSpace(raw)
		if p, err := netip.ParsePrefix(raw); err == nil {
			tp.prefixes = append(tp.prefixes, p.Masked())
			continue
		}
		if addr, err := netip.ParseAddr(raw); err == nil {
			tp.prefixes = append(tp.prefixes, netip.PrefixFrom(addr, addr.BitLen()))
		}
	}
	return tp
}

// IsTrusted reports whether addr falls inside a trusted range.
func (tp *TrustedProxies) IsTrusted(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range tp.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// GetClientIP returns the client address. Forwarding headers are only read
// when the direct peer is a trusted proxy.
func (tp *TrustedProxies) GetClientIP(r *http.Request) (netip.Addr, bool) {
	direct, ok := parseRemoteAddr(r.RemoteAddr)
	if !ok || !tp.IsTrusted(direct) {
		return direct, ok
	}

	// X-Forwarded-For is "client, proxy1, proxy2"; the first parseable entry wins.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			if addr, err := netip.ParseAddr(strings.TrimSpace(part)); err == nil {
				return addr.Unmap(), true
			}
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if addr, err := netip.ParseAddr(strings.TrimSpace(xri)); err == nil {
			return addr.Unmap(), true
		}
	}
	return direct, true
}

// GetClientIPString is GetClientIP formatted for logs and rate-limit keys.
func (tp *TrustedProxies) GetClientIPString(r *http.Request) string {
	if tp == nil {
		if addr, ok := parseRemoteAddr(r.RemoteAddr); ok {
			return addr.String()
		}
		return "unknown"
	}
	addr, ok := tp.GetClientIP(r)
	if !ok {
		return "unknown"
	}
	return addr.String()
}

func parseRemoteAddr(remote string) (netip.Addr, bool) {
	if ap, err := netip.ParseAddrPort(remote); err == nil {
		return ap.Addr().Unmap(), true
	}
	if addr, err := netip.ParseAddr(remote); err == nil {
		return addr.Unmap(), true
	}
	return netip.Addr{}, false
}
