package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"growthdesk_backend/internal/leads/domain"
	"growthdesk_backend/internal/nurture/repository"
	"growthdesk_backend/platform/logger"

	"github.com/google/uuid"
)

type smsTestConfig struct {
	url string
	key string
}

func (c smsTestConfig) GetSMSGatewayURL() string { return c.url }
func (c smsTestConfig) GetSMSGatewayKey() string { return c.key }

func smsLead() domain.Lead {
	phone := "+15551234567"
	return domain.Lead{ID: uuid.New(), FirstName: "Dana", Phone: &phone}
}

func TestSMSSenderPostsToGateway(t *testing.T) {
	var got gatewayRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/send/message" {
			t.Errorf("path = %q, want /send/message", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := NewSMSSender(smsTestConfig{url: srv.URL, key: "secret"}, logger.New("development"))
	msg := repository.Message{Body: "Quick reminder about your visit.", StepNumber: 2}

	if err := sender.Send(context.Background(), smsLead(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.Message != msg.Body {
		t.Errorf("message = %q, want %q", got.Message, msg.Body)
	}
	if got.Phone == "" || strings.HasPrefix(got.Phone, " ") {
		t.Errorf("phone not normalized: %q", got.Phone)
	}
	if !strings.HasPrefix(auth, "Basic ") {
		t.Errorf("auth header = %q, want Basic prefix", auth)
	}
}

func TestSMSSenderPropagatesGatewayErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "device offline", http.StatusBadGateway)
	}))
	defer srv.Close()

	sender := NewSMSSender(smsTestConfig{url: srv.URL}, logger.New("development"))
	err := sender.Send(context.Background(), smsLead(), repository.Message{Body: "hi"})
	if err == nil {
		t.Fatal("expected error for 502 response")
	}
	if !strings.Contains(err.Error(), "502") {
		t.Errorf("error = %v, want status code mentioned", err)
	}
}

func TestSMSSenderRequiresConfiguration(t *testing.T) {
	sender := NewSMSSender(smsTestConfig{}, logger.New("development"))
	if sender != nil {
		t.Fatal("expected nil sender without gateway url")
	}
	if err := sender.Send(context.Background(), smsLead(), repository.Message{}); err == nil {
		t.Fatal("expected error from unconfigured sender")
	}
}

func TestSMSSenderRequiresPhone(t *testing.T) {
	sender := NewSMSSender(smsTestConfig{url: "http://localhost:9"}, logger.New("development"))
	lead := domain.Lead{ID: uuid.New()}
	if err := sender.Send(context.Background(), lead, repository.Message{Body: "hi"}); err == nil {
		t.Fatal("expected error for lead without phone")
	}
}
