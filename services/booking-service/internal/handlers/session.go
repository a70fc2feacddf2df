package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/slotly-app/slotly/libs/auth"
)

// SessionHandler issues the anonymous bearer tokens that gate the public
// booking routes. The front-end calls this once on mount and again whenever
// a request comes back 401.
type SessionHandler struct {
	secret string
	ttl    time.Duration
	logger *slog.Logger
}

func NewSessionHandler(secret string, ttl time.Duration, logger *slog.Logger) *SessionHandler {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SessionHandler{secret: secret, ttl: ttl, logger: logger}
}

type sessionResponse struct {
	Token string `json:"token"`
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	claims := auth.NewSessionClaims(h.ttl, time.Now())
	token, err := auth.SignHS256(claims, h.secret)
	if err != nil {
		h.logger.Error("session token signing failed", "err", err)
		http.Error(w, "failed to issue session", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(sessionResponse{Token: token})
}

// RequireSession rejects requests without a valid session bearer token.
func RequireSession(next http.Handler, secret string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if _, err := auth.ParseAndVerifyHS256(token, secret); err != nil {
			http.Error(w, "invalid or expired session", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
