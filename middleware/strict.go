package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/credkit"
)

type sessionContextKey struct{}

// SessionFromContext returns the session validated by RequireSession.
func SessionFromContext(ctx context.Context) (*credkit.SessionRecord, bool) {
	sess, ok := ctx.Value(sessionContextKey{}).(*credkit.SessionRecord)
	return sess, ok
}

// RequireSession must run after Authenticate. It touches the session named
// by the X-Session-Token header and rejects the request unless the session
// is live and belongs to the authenticated caller.
func RequireSession(engine *credkit.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := credkit.IdentityFromContext(r.Context())
			if engine == nil || !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token := strings.TrimSpace(r.Header.Get(SessionTokenHeader))
			if token == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			sess, err := engine.TouchSession(r.Context(), token)
			if err != nil {
				status := credkit.KindOf(err).HTTPStatus()
				if status != http.StatusTooManyRequests && status < http.StatusInternalServerError {
					status = http.StatusUnauthorized
				}
				http.Error(w, http.StatusText(status), status)
				return
			}
			if sess.UserID != id.UserID {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := credkit.WithSessionToken(r.Context(), token)
			ctx = context.WithValue(ctx, sessionContextKey{}, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
