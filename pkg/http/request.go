package http

import (
	"net"
	"net/http"
	"strings"
)

// MaxUserAgentLength bounds the user agent stored with sessions and audit entries
const MaxUserAgentLength = 512

// IPConfig lists the proxies whose forwarding headers are believed
type IPConfig struct {
	TrustedProxies []string // CIDR ranges
}

// ClientInfo identifies the caller of a request
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// ExtractClientInfo returns the caller's IP (see ExtractClientIP) and a
// length-bounded user agent
func ExtractClientInfo(r *http.Request, config *IPConfig) ClientInfo {
	ua := r.UserAgent()
	if len(ua) > MaxUserAgentLength {
		ua = strings.ToValidUTF8(ua[:MaxUserAgentLength], "")
	}
	return ClientInfo{
		IPAddress: ExtractClientIP(r, config),
		UserAgent: ua,
	}
}

// ExtractClientIP returns the client address. X-Forwarded-For and then
// X-Real-IP are honoured only when the direct peer is a trusted proxy;
// otherwise the peer address is used.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	peer := peerIP(r)
	if config == nil || !trusted(peer, config.TrustedProxies) {
		return peer
	}

	for _, candidate := range strings.Split(r.Header.Get("X-Forwarded-For"), ",") {
		candidate = strings.TrimSpace(candidate)
		if net.ParseIP(candidate) != nil {
			return candidate
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}
	return peer
}

func peerIP(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func trusted(ip string, cidrs []string) bool {
	addr := net.ParseIP(ip)
	if addr == nil {
		return false
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		if network.Contains(addr) {
			return true
		}
	}
	return false
}
