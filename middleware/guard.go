package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/MrEthical07/credkit"
	"github.com/MrEthical07/credkit/jwt"
)

// SessionTokenHeader carries the opaque session token.
const SessionTokenHeader = "X-Session-Token"

// Authenticate returns middleware that requires a valid Bearer identity
// token. Requests without one are rejected with 401.
func Authenticate(tokens *jwt.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokens == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := tokens.Parse(token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := WithRequestMetadata(r.Context(), r)
			ctx = credkit.WithIdentity(ctx, credkit.Identity{UserID: claims.UserID(), Role: claims.Role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithRequestMetadata copies the client IP and User-Agent of r into ctx.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ctx = credkit.WithClientIP(ctx, ClientIP(r))
	if ua := r.UserAgent(); ua != "" {
		ctx = credkit.WithUserAgent(ctx, ua)
	}
	return ctx
}

// ClientIP returns the host part of r.RemoteAddr. Forwarded headers are not
// trusted; deployments behind a proxy should rewrite RemoteAddr first.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
