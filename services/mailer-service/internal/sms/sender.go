// Package sms delivers short confirmation texts through a gateway webhook.
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type Sender interface {
	Send(ctx context.Context, to string, body string) error
	ProviderID() string
}

type Config struct {
	URL    string
	Token  string
	Sender string // displayed sender name, gateway-dependent
}

// Webhook posts outbound messages to an HTTP gateway. Transient failures
// (network errors, 5xx) get one retry.
type Webhook struct {
	cfg   Config
	httpc *http.Client
}

func NewWebhook(cfg Config) *Webhook {
	cfg.URL = strings.TrimSpace(cfg.URL)
	cfg.Token = strings.TrimSpace(cfg.Token)
	return &Webhook{
		cfg: cfg,
		httpc: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (s *Webhook) ProviderID() string {
	return "sms-webhook"
}

func (s *Webhook) Send(ctx context.Context, to string, body string) error {
	if s.cfg.URL == "" {
		return fmt.Errorf("sms webhook url not configured")
	}
	raw, err := json.Marshal(map[string]string{
		"from": s.cfg.Sender,
		"to":   to,
		"body": body,
	})
	if err != nil {
		return err
	}

	status, err := s.post(ctx, raw)
	if err == nil && status < 500 {
		return checkStatus(status)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(500 * time.Millisecond):
	}
	status, err = s.post(ctx, raw)
	if err != nil {
		return err
	}
	return checkStatus(status)
}

func (s *Webhook) post(ctx context.Context, payload []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	}
	resp, err := s.httpc.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

func checkStatus(status int) error {
	if status < 200 || status >= 300 {
		return fmt.Errorf("sms webhook returned %d", status)
	}
	return nil
}

// Noop drops messages; the default when no gateway is configured.
type Noop struct{}

func NewNoop() *Noop {
	return &Noop{}
}

func (s *Noop) ProviderID() string {
	return "sms-noop"
}

func (s *Noop) Send(_ context.Context, _ string, _ string) error {
	return nil
}
