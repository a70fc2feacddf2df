package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSessionCreateAndRequire(t *testing.T) {
	secret := "test-secret"
	h := NewSessionHandler(secret, time.Hour, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/public/session", nil)
	rw := httptest.NewRecorder()
	h.Create(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("expected non-empty token")
	}

	protected := RequireSession(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), secret)

	reqOK := httptest.NewRequest(http.MethodGet, "/availability", nil)
	reqOK.Header.Set("Authorization", "Bearer "+resp.Token)
	rwOK := httptest.NewRecorder()
	protected.ServeHTTP(rwOK, reqOK)
	if rwOK.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid token, got %d", rwOK.Code)
	}

	reqBad := httptest.NewRequest(http.MethodGet, "/availability", nil)
	reqBad.Header.Set("Authorization", "Bearer not-a-token")
	rwBad := httptest.NewRecorder()
	protected.ServeHTTP(rwBad, reqBad)
	if rwBad.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", rwBad.Code)
	}

	reqNone := httptest.NewRequest(http.MethodGet, "/availability", nil)
	rwNone := httptest.NewRecorder()
	protected.ServeHTTP(rwNone, reqNone)
	if rwNone.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rwNone.Code)
	}
}

func TestSessionCreateMethodNotAllowed(t *testing.T) {
	h := NewSessionHandler("s", time.Hour, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/public/session", nil)
	rw := httptest.NewRecorder()
	h.Create(rw, req)
	if rw.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rw.Code)
	}
}
