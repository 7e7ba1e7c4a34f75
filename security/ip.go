package security

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP returns the address a request is attributed to for rate limiting
// and audit.
//
// Forwarding headers are only honored when trustProxy is set. In
// X-Forwarded-For ("client, proxy1, proxy2") the rightmost trustedProxies
// entries were appended by our own proxies, so the client is the entry just
// before them. trustedProxies <= 0 means one proxy.
func ClientIP(r *http.Request, trustProxy bool, trustedProxies int) string {
	if trustProxy {
		if ip := forwardedFor(r.Header.Get("X-Forwarded-For"), trustedProxies); ip != "" {
			return ip
		}
		if ip := parseAddr(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}
	return remoteHost(r.RemoteAddr)
}

func forwardedFor(header string, trustedProxies int) string {
	if header == "" {
		return ""
	}
	hops := strings.Split(header, ",")
	if trustedProxies <= 0 {
		trustedProxies = 1
	}
	idx := len(hops) - trustedProxies - 1
	if idx < 0 {
		idx = 0
	}
	return parseAddr(hops[idx])
}

func parseAddr(s string) string {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return ""
	}
	return addr.Unmap().String()
}

func remoteHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
