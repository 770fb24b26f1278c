package httpapi

import (
	"net/http"

	"github.com/MrEthical07/credkit"
	"github.com/MrEthical07/credkit/middleware"
)

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Ping(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ---------------------------------------------------------------------------
// Two-factor
// ---------------------------------------------------------------------------

func (s *Server) sendCode(w http.ResponseWriter, r *http.Request) {
	issue, err := s.engine.SendTwoFactorCode(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, issue)
}

type verifyCodeRequest struct {
	Code string `json:"code"`
}

func (s *Server) verifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.invalidBody(w, err)
		return
	}
	res, err := s.engine.VerifyTwoFactorCode(r.Context(), req.Code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ---------------------------------------------------------------------------
// API keys
// ---------------------------------------------------------------------------

func (s *Server) generateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req credkit.GenerateAPIKeyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.invalidBody(w, err)
		return
	}
	key, err := s.engine.GenerateAPIKey(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, key)
}

func (s *Server) listAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.engine.ListAPIKeys(r.Context(), r.URL.Query().Get("owner_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"api_keys": keys})
}

func (s *Server) deactivateAPIKey(w http.ResponseWriter, r *http.Request) {
	key, err := s.engine.DeactivateAPIKey(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, key)
}

func (s *Server) rotateAPIKey(w http.ResponseWriter, r *http.Request) {
	key, err := s.engine.RotateAPIKey(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, key)
}

func (s *Server) apiKeySelf(w http.ResponseWriter, r *http.Request) {
	key, _ := middleware.APIKeyFromContext(r.Context())
	writeJSON(w, http.StatusOK, key)
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req credkit.CreateSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.invalidBody(w, err)
		return
	}
	issued, err := s.engine.CreateSession(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, issued)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.engine.ListSessions(r.Context(), r.URL.Query().Get("owner_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) currentSession(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.SessionFromContext(r.Context())
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) terminateSession(w http.ResponseWriter, r *http.Request) {
	reason := credkit.TerminationReason(r.URL.Query().Get("reason"))
	sess, err := s.engine.TerminateSessionByID(r.Context(), r.PathValue("id"), reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

type terminateAllRequest struct {
	OwnerID       string                    `json:"owner_id"`
	Reason        credkit.TerminationReason `json:"reason"`
	ExceptCurrent bool                      `json:"except_current"`
}

func (s *Server) terminateAllSessions(w http.ResponseWriter, r *http.Request) {
	var req terminateAllRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.invalidBody(w, err)
		return
	}

	var except string
	if req.ExceptCurrent {
		except = r.Header.Get(middleware.SessionTokenHeader)
		if except == "" {
			s.invalidBody(w, errNoCurrentSession)
			return
		}
	}

	n, err := s.engine.TerminateAllSessions(r.Context(), req.OwnerID, req.Reason, except)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"terminated": n})
}
