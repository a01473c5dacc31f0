package metadata

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"leadtriage/pkg/requestcontext"
)

// Resolver works out the caller's IP. Forwarding headers are only believed
// when the direct peer is a trusted proxy; anyone else could write them.
type Resolver struct {
	trusted []netip.Prefix
}

// NewResolver builds a resolver that trusts the given proxies. Entries are
// CIDR ranges or single addresses. With no entries the peer address is
// always used.
func NewResolver(trustedProxies []string) (*Resolver, error) {
	r := &Resolver{}
	for _, raw := range trustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			prefix, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
			}
			r.trusted = append(r.trusted, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
		}
		addr = addr.Unmap()
		r.trusted = append(r.trusted, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return r, nil
}

// ClientMetadata stores the caller's IP in the request context for the intake
// rate limiter and request logs. Apply early in the chain. A nil resolver
// trusts no proxies.
func ClientMetadata(resolver *Resolver) func(http.Handler) http.Handler {
	if resolver == nil {
		resolver = &Resolver{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithClientIP(r.Context(), resolver.ClientIP(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIP extracts the client IP. X-Forwarded-For is walked from the right,
// skipping trusted hops, so the result is the first address no trusted proxy
// vouches for.
func (res *Resolver) ClientIP(r *http.Request) string {
	peer := remoteHost(r.RemoteAddr)
	if !res.isTrusted(peer) {
		return peer
	}

	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if !res.isTrusted(hop) || i == 0 {
				return hop
			}
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return peer
}

func (res *Resolver) isTrusted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range res.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func remoteHost(remoteAddr string) string {
	if remoteAddr == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
