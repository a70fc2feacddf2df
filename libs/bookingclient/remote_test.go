package bookingclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

// fakeAPI is a minimal booking API: issues rotating session tokens and
// serves availability behind them.
type fakeAPI struct {
	sessionCalls atomic.Int64
	dayCalls     atomic.Int64
	monthCalls   atomic.Int64
	currentToken atomic.Value // string
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/public/session", func(w http.ResponseWriter, r *http.Request) {
		n := f.sessionCalls.Add(1)
		token := fmt.Sprintf("tok-%d", n)
		f.currentToken.Store(token)
		fmt.Fprintf(w, `{"token":%q}`, token)
	})
	mux.HandleFunc("/availability/month", func(w http.ResponseWriter, r *http.Request) {
		f.monthCalls.Add(1)
		if !f.authorized(r) {
			http.Error(w, "invalid or expired session", http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"availableDates":["2026-01-05","2026-01-12"]}`)
	})
	mux.HandleFunc("/availability", func(w http.ResponseWriter, r *http.Request) {
		f.dayCalls.Add(1)
		if !f.authorized(r) {
			http.Error(w, "invalid or expired session", http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"date":"2026-01-05","slots":[{"startTime":"10:00","endTime":"10:30"}]}`)
	})
	return mux
}

func (f *fakeAPI) authorized(r *http.Request) bool {
	current, _ := f.currentToken.Load().(string)
	return current != "" && r.Header.Get("Authorization") == "Bearer "+current
}

func (f *fakeAPI) expireToken() {
	f.currentToken.Store("rotated-away")
}

func TestRemoteMonthAvailability(t *testing.T) {
	api := &fakeAPI{}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	c := NewRemote(srv.URL)
	out, err := c.MonthAvailability(context.Background(), MonthQuery{
		BusinessID: "biz-1", ServiceID: "svc-1", Year: 2026, Month: 1,
	})
	if err != nil {
		t.Fatalf("MonthAvailability failed: %v", err)
	}
	if len(out.AvailableDates) != 2 || out.AvailableDates[0] != "2026-01-05" {
		t.Fatalf("unexpected dates: %v", out.AvailableDates)
	}
	if got := api.sessionCalls.Load(); got != 1 {
		t.Fatalf("expected 1 session call, got %d", got)
	}
}

func TestRemoteReusesToken(t *testing.T) {
	api := &fakeAPI{}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	c := NewRemote(srv.URL)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := c.DayAvailability(ctx, DayQuery{BusinessID: "b", ServiceID: "s", Date: "2026-01-05"}); err != nil {
			t.Fatalf("call %d failed: %v", i, err)
		}
	}
	if got := api.sessionCalls.Load(); got != 1 {
		t.Fatalf("expected 1 session call across requests, got %d", got)
	}
}

func TestRemoteRefreshesOn401(t *testing.T) {
	api := &fakeAPI{}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	c := NewRemote(srv.URL)
	ctx := context.Background()

	if _, err := c.DayAvailability(ctx, DayQuery{BusinessID: "b", ServiceID: "s", Date: "2026-01-05"}); err != nil {
		t.Fatalf("first call failed: %v", err)
	}

	// Server-side session rotation invalidates the cached token; the next
	// call should hit a 401, re-auth, and succeed on the retry.
	api.expireToken()
	out, err := c.DayAvailability(ctx, DayQuery{BusinessID: "b", ServiceID: "s", Date: "2026-01-05"})
	if err != nil {
		t.Fatalf("call after expiry failed: %v", err)
	}
	if len(out.Slots) != 1 {
		t.Fatalf("unexpected slots: %v", out.Slots)
	}
	if got := api.sessionCalls.Load(); got != 2 {
		t.Fatalf("expected 2 session calls, got %d", got)
	}
	if got := api.dayCalls.Load(); got != 3 {
		t.Fatalf("expected 3 day calls (1 ok, 1 rejected, 1 retried), got %d", got)
	}
}

func TestRemotePersistent401SurfacesError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/public/session" {
			fmt.Fprint(w, `{"token":"tok"}`)
			return
		}
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewRemote(srv.URL)
	_, err := c.DayAvailability(context.Background(), DayQuery{BusinessID: "b", ServiceID: "s", Date: "2026-01-05"})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 StatusError after one retry, got %v", err)
	}
}

func TestRemoteServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/public/session" {
			fmt.Fprint(w, `{"token":"tok"}`)
			return
		}
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewRemote(srv.URL)
	_, err := c.MonthAvailability(context.Background(), MonthQuery{BusinessID: "b", ServiceID: "s", Year: 2026, Month: 1})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500 StatusError, got %v", err)
	}
}
