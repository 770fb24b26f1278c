package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/MrEthical07/credkit"
	"github.com/MrEthical07/credkit/jwt"
	"github.com/MrEthical07/credkit/middleware"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

var errNoCurrentSession = errors.New("except_current requires the " + middleware.SessionTokenHeader + " header")

// Server routes /v1 requests to the engine.
type Server struct {
	engine *credkit.Engine
	tokens *jwt.Manager
	logger *zap.Logger
}

// New returns a Server. A nil logger is replaced by a no-op logger.
func New(engine *credkit.Engine, tokens *jwt.Manager, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{engine: engine, tokens: tokens, logger: logger.Named("httpapi")}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	user := func(h http.HandlerFunc) http.Handler {
		return middleware.Authenticate(s.tokens)(withSessionToken(h))
	}

	mux.HandleFunc("GET /v1/healthz", s.healthz)

	mux.Handle("POST /v1/two-factor/codes", user(s.sendCode))
	mux.Handle("POST /v1/two-factor/verify", user(s.verifyCode))

	mux.Handle("POST /v1/api-keys", user(s.generateAPIKey))
	mux.Handle("GET /v1/api-keys", user(s.listAPIKeys))
	mux.Handle("POST /v1/api-keys/{id}/deactivate", user(s.deactivateAPIKey))
	mux.Handle("POST /v1/api-keys/{id}/rotate", user(s.rotateAPIKey))
	mux.Handle("GET /v1/api-keys/self", middleware.RequireAPIKey(s.engine)(http.HandlerFunc(s.apiKeySelf)))

	mux.Handle("POST /v1/sessions", user(s.createSession))
	mux.Handle("GET /v1/sessions", user(s.listSessions))
	mux.Handle("GET /v1/sessions/current", middleware.Authenticate(s.tokens)(middleware.RequireSession(s.engine)(http.HandlerFunc(s.currentSession))))
	mux.Handle("DELETE /v1/sessions/{id}", user(s.terminateSession))
	mux.Handle("POST /v1/sessions/terminate-all", user(s.terminateAllSessions))

	return mux
}

// withSessionToken marks the caller's session, when presented, so listings
// can flag it and terminate-all can keep it.
func withSessionToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := strings.TrimSpace(r.Header.Get(middleware.SessionTokenHeader)); token != "" {
			r = r.WithContext(credkit.WithSessionToken(r.Context(), token))
		}
		next.ServeHTTP(w, r)
	})
}

type errorBody struct {
	Error *credkit.Error `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ce *credkit.Error
	if !errors.As(err, &ce) {
		s.logger.Error("unclassified handler error", zap.String("path", r.URL.Path), zap.Error(err))
		ce = &credkit.Error{Kind: credkit.KindStoreError, Message: "internal error, please retry"}
	}
	writeJSON(w, ce.Kind.HTTPStatus(), errorBody{Error: ce})
}

func (s *Server) invalidBody(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: &credkit.Error{
		Kind:    credkit.KindInvalidInput,
		Message: "malformed request body",
		Details: map[string]any{"reason": err.Error()},
	}})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
