package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/swpuclaylee/APIFlask/internal/platform/httputil"
)

// TrustedProxies are the peer networks whose X-Forwarded-For and X-Real-IP headers are believed.
type TrustedProxies []*net.IPNet

// ParseTrustedProxies parses IP addresses and CIDRs. A bare address is a single-host network.
func ParseTrustedProxies(entries []string) (TrustedProxies, error) {
	out := make(TrustedProxies, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !strings.Contains(e, "/") {
			ip := net.ParseIP(e)
			if ip == nil {
				return nil, fmt.Errorf("trusted proxy %q: not an IP or CIDR", e)
			}
			bits := 8 * net.IPv6len
			if v4 := ip.To4(); v4 != nil {
				ip, bits = v4, 8*net.IPv4len
			}
			out = append(out, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(e)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", e, err)
		}
		out = append(out, n)
	}
	return out, nil
}

// Contains reports whether addr is a trusted proxy. Unparseable addresses are never trusted.
func (t TrustedProxies) Contains(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range t {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// RequestContext assigns a request id (reusing a sane inbound X-Request-ID), records the peer
// address as the client IP and echoes the id in the response. No forwarding header is believed.
func RequestContext(next http.Handler) http.Handler {
	return RequestContextFor(nil)(next)
}

// RequestContextFor is RequestContext for a server behind the given proxies: when the peer is one
// of them, the client IP comes from X-Forwarded-For or X-Real-IP.
func RequestContextFor(trusted TrustedProxies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(httputil.RequestIDHeader))
			if id == "" || len(id) > 64 {
				id = uuid.New().String()
			}
			r.Header.Set(httputil.RequestIDHeader, id)
			w.Header().Set(httputil.RequestIDHeader, id)

			info := &requestInfo{requestID: id, clientIP: clientIP(r, trusted), userID: Anonymous}
			next.ServeHTTP(w, r.WithContext(withRequestInfo(r.Context(), info)))
		})
	}
}

// clientIP returns the peer address unless the peer is a trusted proxy. Behind a trusted proxy it
// walks X-Forwarded-For from the right and returns the first hop that is not itself trusted, then
// falls back to X-Real-IP.
func clientIP(r *http.Request, trusted TrustedProxies) string {
	peer := peerAddr(r)
	if !trusted.Contains(peer) {
		return peer
	}
	var hops []string
	for _, v := range r.Header.Values("X-Forwarded-For") {
		hops = append(hops, strings.Split(v, ",")...)
	}
	leftmost := ""
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if net.ParseIP(hop) == nil {
			break
		}
		if !trusted.Contains(hop) {
			return hop
		}
		leftmost = hop
	}
	if leftmost != "" {
		return leftmost
	}
	if s := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(s) != nil {
		return s
	}
	return peer
}

func peerAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
