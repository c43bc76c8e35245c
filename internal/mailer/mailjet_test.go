package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

func newTestClient(url string) *Client {
	return NewClient(Config{
		BaseURL:     url,
		APIKey:      "key",
		SecretKey:   "secret",
		SenderEmail: "no-reply@vestetec.test",
	}, zap.NewNop())
}

func TestSendVerificationCode_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/v3.1/send" {
			t.Fatalf("path = %s, want /v3.1/send", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "key" || pass != "secret" {
			t.Fatalf("basic auth = %q/%q, want key/secret", user, pass)
		}

		var req sendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(req.Messages) != 1 {
			t.Fatalf("messages = %d, want 1", len(req.Messages))
		}
		m := req.Messages[0]
		if m.To[0].Email != "ana@example.com" {
			t.Fatalf("to = %s, want ana@example.com", m.To[0].Email)
		}
		if m.From.Name != "no-reply@vestetec.test" {
			t.Fatalf("sender name = %q, want sender email fallback", m.From.Name)
		}
		if !strings.Contains(m.HTMLPart, "123456") {
			t.Fatalf("html part does not contain the code: %s", m.HTMLPart)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Messages":[{"Status":"success"}]}`))
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := newTestClient(ts.URL).SendVerificationCode(ctx, "ana@example.com", "123456"); err != nil {
		t.Fatalf("SendVerificationCode error: %v", err)
	}
}

func TestSendVerificationCode_Rejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Messages":[{"Status":"error"}]}`))
	}))
	defer ts.Close()

	err := newTestClient(ts.URL).SendVerificationCode(context.Background(), "ana@example.com", "123456")
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
}

func TestSendVerificationCode_UnexpectedStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	err := newTestClient(ts.URL).SendVerificationCode(context.Background(), "ana@example.com", "123456")
	if err == nil || !strings.Contains(err.Error(), "unexpected status: 401") {
		t.Fatalf("expected unexpected status error, got %v", err)
	}
}

func TestSendVerificationCode_BreakerOpens(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	client := newTestClient(ts.URL)
	for i := 0; i < 5; i++ {
		if err := client.SendVerificationCode(context.Background(), "ana@example.com", "123456"); err == nil {
			t.Fatalf("attempt %d: expected error", i)
		}
	}

	err := client.SendVerificationCode(context.Background(), "ana@example.com", "123456")
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected ErrOpenState, got %v", err)
	}
	if got := calls.Load(); got != 5 {
		t.Fatalf("server calls = %d, want 5", got)
	}
}

func TestLogMailer(t *testing.T) {
	if err := NewLogMailer(zap.NewNop()).SendVerificationCode(context.Background(), "a@example.com", "111111"); err != nil {
		t.Fatalf("LogMailer error: %v", err)
	}
}
