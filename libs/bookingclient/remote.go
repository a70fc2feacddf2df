package bookingclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const defaultTimeout = 15 * time.Second

// Remote implements Client against the booking API. It manages its own
// anonymous session: a token is fetched lazily from POST /public/session,
// and a 401 response triggers exactly one re-auth plus one retry.
type Remote struct {
	baseURL string
	httpc   *http.Client

	mu    sync.Mutex
	token string
}

func NewRemote(baseURL string) *Remote {
	return &Remote{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (r *Remote) MonthAvailability(ctx context.Context, q MonthQuery) (MonthAvailability, error) {
	params := url.Values{
		"businessId": {q.BusinessID},
		"serviceId":  {q.ServiceID},
		"year":       {strconv.Itoa(q.Year)},
		"month":      {strconv.Itoa(q.Month)},
	}
	var out MonthAvailability
	if err := r.getJSON(ctx, "/availability/month", params, &out); err != nil {
		return MonthAvailability{}, err
	}
	if out.AvailableDates == nil {
		out.AvailableDates = []string{}
	}
	return out, nil
}

func (r *Remote) DayAvailability(ctx context.Context, q DayQuery) (DayAvailability, error) {
	params := url.Values{
		"businessId": {q.BusinessID},
		"serviceId":  {q.ServiceID},
		"date":       {q.Date},
	}
	var out DayAvailability
	if err := r.getJSON(ctx, "/availability", params, &out); err != nil {
		return DayAvailability{}, err
	}
	if out.Slots == nil {
		out.Slots = []TimeSlot{}
	}
	return out, nil
}

func (r *Remote) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	token, err := r.sessionToken(ctx, false)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}

	resp, err := r.get(ctx, path, params, token)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		_ = resp.Body.Close()
		// Stale or expired token. Re-auth once, retry once.
		token, err = r.sessionToken(ctx, true)
		if err != nil {
			return fmt.Errorf("session refresh: %w", err)
		}
		resp, err = r.get(ctx, path, params, token)
		if err != nil {
			return err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (r *Remote) get(ctx context.Context, path string, params url.Values, token string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return r.httpc.Do(req)
}

// sessionToken returns the cached token, fetching a fresh one when none is
// cached or force is set.
func (r *Remote) sessionToken(ctx context.Context, force bool) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.token != "" && !force {
		return r.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/public/session", nil)
	if err != nil {
		return "", err
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var payload struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	if payload.Token == "" {
		return "", fmt.Errorf("session response missing token")
	}
	r.token = payload.Token
	return r.token, nil
}
