package middleware

import (
	"context"
	"net"
	"net/http"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	HeaderXRequestID    = "X-Request-ID"
	HeaderXForwardedFor = "X-Forwarded-For"
	HeaderXRealIP       = "X-Real-IP"
)

const requestIDMaxLength = 128

var validRequestIDRegex = regexp.MustCompile(`^[a-zA-Z0-9\-_]+$`)

// RequestID tags each request with an ID. A well-formed incoming X-Request-ID
// is propagated, anything else is replaced with a fresh UUID.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(HeaderXRequestID)
			if !isValidRequestID(id) {
				id = uuid.NewString()
			}
			w.Header().Set(HeaderXRequestID, id)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), RequestIDKey, id)))
		})
	}
}

func isValidRequestID(id string) bool {
	return id != "" && len(id) <= requestIDMaxLength && validRequestIDRegex.MatchString(id)
}

// ClientIP resolves the caller address and stores it in the request context.
// Forwarding headers are honoured only when trustProxy is set and, if
// trustedProxies is non-empty, the peer is one of them.
func ClientIP(trustProxy bool, trustedProxies []string) Middleware {
	trusted := make(map[string]struct{}, len(trustedProxies))
	for _, ip := range trustedProxies {
		trusted[ip] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := extractClientIP(r, trustProxy, trusted)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ClientIPKey, ip)))
		})
	}
}

func extractClientIP(r *http.Request, trustProxy bool, trusted map[string]struct{}) string {
	peer := extractIPFromAddr(r.RemoteAddr)
	if !trustProxy {
		return peer
	}
	if len(trusted) > 0 {
		if _, ok := trusted[peer]; !ok {
			return peer
		}
	}

	// The left-most X-Forwarded-For entry is the original client.
	if xff := r.Header.Get(HeaderXForwardedFor); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); net.ParseIP(ip) != nil {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get(HeaderXRealIP)); net.ParseIP(ip) != nil {
		return ip
	}
	return peer
}

// extractIPFromAddr strips the port from host:port. A bare host is returned as is.
func extractIPFromAddr(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// clientIdentity returns the IP stored by ClientIP, falling back to the peer
// address when that middleware did not run.
func clientIdentity(r *http.Request) string {
	if ip := GetClientIP(r.Context()); ip != "" {
		return ip
	}
	return extractIPFromAddr(r.RemoteAddr)
}
