package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const clientIdentityContextKey contextKey = "client_identity"

// UnknownClient is the identity used when a request carries no forwarding header.
const UnknownClient = "unknown"

// ClientIdentity stores the caller's identity in the request context. The
// identity is the first entry of X-Forwarded-For, as set by the fronting proxy.
func ClientIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), clientIdentityContextKey, identityFromHeader(r.Header.Get("X-Forwarded-For")))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func identityFromHeader(forwarded string) string {
	first, _, _ := strings.Cut(forwarded, ",")
	if first = strings.TrimSpace(first); first != "" {
		return first
	}
	return UnknownClient
}

// GetClientIdentity retrieves the identity set by ClientIdentity.
func GetClientIdentity(ctx context.Context) string {
	if id, ok := ctx.Value(clientIdentityContextKey).(string); ok {
		return id
	}
	return UnknownClient
}
