package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/credkit"
)

// APIKeyHeader carries an API key token. "Authorization: ApiKey <token>" is
// accepted as well.
const APIKeyHeader = "X-API-Key"

type apiKeyContextKey struct{}

// APIKeyFromContext returns the key authenticated by RequireAPIKey.
func APIKeyFromContext(ctx context.Context) (*credkit.APIKeyRecord, bool) {
	key, ok := ctx.Value(apiKeyContextKey{}).(*credkit.APIKeyRecord)
	return key, ok
}

// RequireAPIKey authenticates the presented API key. On success the key's
// owner becomes the request identity with no role, so admin-only engine
// operations stay out of reach of API keys.
func RequireAPIKey(engine *credkit.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := apiKeyToken(r)
			if engine == nil || token == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := WithRequestMetadata(r.Context(), r)
			key, err := engine.AuthenticateAPIKey(ctx, token)
			if err != nil {
				status := http.StatusUnauthorized
				switch credkit.KindOf(err) {
				case credkit.KindTooManyRequests:
					status = http.StatusTooManyRequests
				case credkit.KindStoreError:
					status = http.StatusInternalServerError
				}
				http.Error(w, http.StatusText(status), status)
				return
			}

			ctx = credkit.WithIdentity(ctx, credkit.Identity{UserID: key.OwnerID})
			ctx = context.WithValue(ctx, apiKeyContextKey{}, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireScope rejects requests whose API key does not grant required.
// It must run after RequireAPIKey.
func RequireScope(required string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, ok := APIKeyFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if !credkit.HasScope(key, required) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func apiKeyToken(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get(APIKeyHeader)); token != "" {
		return token
	}
	const scheme = "ApiKey "
	if value := r.Header.Get("Authorization"); strings.HasPrefix(value, scheme) {
		return strings.TrimSpace(value[len(scheme):])
	}
	return ""
}
